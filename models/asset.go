package models

import "time"

const AssetTable = "inv_assets"
const FoundItemTable = "inv_found_items"

// Asset is one row of the official baseline: where an asset code is supposed
// to live. Loaded by admins before an inventory round, read-only afterwards.
type Asset struct {
	Code      int       `gorm:"primaryKey" json:"code"`
	Location  string    `gorm:"size:120;index;not null" json:"location"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FoundItem is one persisted scan. UID is the primary key so that re-uploads
// of the same record are no-ops (the agents may retry a batch after a crash).
type FoundItem struct {
	UID        string    `gorm:"type:uuid;primaryKey" json:"uid"`
	Code       int       `gorm:"index;not null" json:"code"`
	Location   string    `gorm:"size:120;index;not null" json:"location"`
	State      int       `gorm:"not null;default:0" json:"state"`
	UsefulLife int       `gorm:"not null;default:0" json:"usefulLife"`
	Notes      string    `gorm:"size:140" json:"notes"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Asset) TableName() string     { return AssetTable }
func (FoundItem) TableName() string { return FoundItemTable }
