package models

// Wire shapes of the RPC boundary between the scan station and inventoryd.

// SaveBatchItem is one queued record as submitted for persistence.
type SaveBatchItem struct {
	UID        string `json:"uid" binding:"required"`
	Code       int    `json:"code" binding:"required"`
	Location   string `json:"location" binding:"required"`
	State      int    `json:"state"`
	UsefulLife int    `json:"usefulLife"`
	Notes      string `json:"notes"`
}

// SaveBatchRequest carries one upload batch.
type SaveBatchRequest struct {
	Items []SaveBatchItem `json:"items" binding:"required"`
}

// SaveBatchResponse lists exactly the uids effectively persisted. A submitted
// uid missing from Saved must be treated as failed by the caller.
type SaveBatchResponse struct {
	Saved []string `json:"saved"`
}

// LocationSummary is per-location progress metadata.
type LocationSummary struct {
	Name         string `json:"name"`
	TotalAssets  int    `json:"totalAssets"`
	FoundCount   int    `json:"foundCount"`
	MissingCount int    `json:"missingCount"`
}

// AssetGroup groups recorded asset codes by the location they were found at.
type AssetGroup struct {
	Location string `json:"location"`
	Assets   []int  `json:"assets"`
}

// InventorySummary is the cross-user view of what has been recorded so far.
type InventorySummary struct {
	Locations   []LocationSummary `json:"locations"`
	AssetsFound []AssetGroup      `json:"assetsFound"`
}

// AppSettings are backend-controlled switches the agents consult at startup.
type AppSettings struct {
	MinValidDate  string `json:"minValidDate"` // RFC 3339; older local records are purged
	AppVersion    string `json:"appVersion"`   // local stores wipe themselves on mismatch
	InventoryOpen bool   `json:"inventoryOpen"`
}

// BaselineLocation is one location of the official inventory baseline.
type BaselineLocation struct {
	Name        string `json:"name"`
	AssetsCount int    `json:"assetsCount"`
}

// BaselineGroup lists the asset codes officially assigned to a location.
type BaselineGroup struct {
	Location string `json:"location"`
	Assets   []int  `json:"assets"`
}

// InventoryData feeds the baseline validator once per session.
type InventoryData struct {
	Locations []BaselineLocation `json:"locations"`
	Inventory []BaselineGroup    `json:"inventory"`
}
