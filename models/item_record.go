package models

import "time"

// SyncStatus is the lifecycle state of a locally queued record.
// Transitions only go Pending → InFlight → {Synced | Pending (retry) | Failed}.
type SyncStatus int

const (
	StatusPending SyncStatus = iota
	StatusInFlight
	StatusSynced
	StatusFailed
)

func (s SyncStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInFlight:
		return "inflight"
	case StatusSynced:
		return "synced"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Condition rating bounds for ItemRecord.State.
const (
	StateMin = 0
	StateMax = 4
)

// MaxNotesLen caps the free-text notes field.
const MaxNotesLen = 140

// ItemRecord is one accepted scan queued for upload.
type ItemRecord struct {
	UID        string     `json:"uid"`
	Code       int        `json:"code"`
	Location   string     `json:"location"`
	State      int        `json:"state"`
	UsefulLife int        `json:"usefulLife"`
	Notes      string     `json:"notes"`
	Status     SyncStatus `json:"status"`
	RetryCount int        `json:"retryCount"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// RepoStats summarizes the local queue for the UI badge row.
type RepoStats struct {
	Total   int `json:"total"`
	Synced  int `json:"synced"`
	Pending int `json:"pending"` // Pending + InFlight
	Failed  int `json:"failed"`
}
