package scan

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"asset_inventory_tool/baseline"
	"asset_inventory_tool/models"
	"asset_inventory_tool/store"
)

// Asset tags are 10 digits: a 4-digit acquisition year followed by a 6-digit
// sequence number.
const (
	tagLength = 10
	yearMin   = 1990
	yearMax   = 2030
)

// Status is the terminal state of one pipeline run.
type Status string

const (
	// Accepted: the scan was committed to the local queue.
	Accepted Status = "accepted"
	// Rejected: the scan was dropped; Reason says why.
	Rejected Status = "rejected"
	// ConfirmRequired: the scan needs an explicit user confirmation before
	// it can be committed. The client re-submits with the matching confirm
	// flag set, or drops the scan (a decline is simply no re-submission).
	ConfirmRequired Status = "confirm-required"
)

// Confirmation identifies which prompt the client must resolve.
type Confirmation string

const (
	// ConfirmDivergence: the baseline places this asset elsewhere.
	ConfirmDivergence Confirmation = "divergence"
	// ConfirmConflict: another station already recorded this asset at a
	// different location.
	ConfirmConflict Confirmation = "conflict"
)

// Request is one scan attempt. The confirm flags carry the user's answers to
// previously returned ConfirmRequired results.
type Request struct {
	Raw               string `json:"raw" binding:"required"`
	Location          string `json:"location"`
	ConfirmDivergence bool   `json:"confirmDivergence"`
	ConfirmConflict   bool   `json:"confirmConflict"`
}

// Result reports how a scan attempt ended.
type Result struct {
	Status    Status             `json:"status"`
	Reason    string             `json:"reason,omitempty"`
	Duplicate bool               `json:"duplicate,omitempty"` // harmless re-scan, not an error
	Confirm   Confirmation       `json:"confirm,omitempty"`
	Location  string             `json:"location,omitempty"` // prompt detail: where the asset is known to be
	Record    *models.ItemRecord `json:"record,omitempty"`
}

// Registry is the slice of the remote-state cache the pipeline consults.
type Registry interface {
	CheckLocation(code int) (string, bool)
}

// Pipeline runs the acceptance gates for raw scans. One scan at a time: the
// surface lock rejects interleaved submissions instead of queueing them, so a
// double-fired scanner cannot double-submit.
type Pipeline struct {
	store    *store.Store
	baseline *baseline.Validator
	registry Registry
	surface  sync.Mutex
}

func New(st *store.Store, bl *baseline.Validator, reg Registry) *Pipeline {
	return &Pipeline{store: st, baseline: bl, registry: reg}
}

// ParseCode validates the strict tag format and returns the numeric code.
func ParseCode(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != tagLength {
		return 0, fmt.Errorf("tag must be %d digits", tagLength)
	}
	code, err := strconv.Atoi(raw)
	if err != nil || code <= 0 {
		return 0, fmt.Errorf("tag must be numeric")
	}
	year, _ := strconv.Atoi(raw[:4])
	if year < yearMin || year > yearMax {
		return 0, fmt.Errorf("tag year prefix must be between %d and %d", yearMin, yearMax)
	}
	return code, nil
}

// Accept runs the whole gate sequence for one scan. It never panics outward:
// any unexpected failure degrades to a generic rejection and the surface lock
// is always released.
func (p *Pipeline) Accept(req Request) (result Result) {
	if !p.surface.TryLock() {
		return Result{Status: Rejected, Reason: "another scan is being processed"}
	}
	defer p.surface.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scan: pipeline panic: %v", r)
			result = Result{Status: Rejected, Reason: "could not process the scan"}
		}
	}()

	location := strings.TrimSpace(req.Location)
	if location == "" {
		return Result{Status: Rejected, Reason: "select a location first"}
	}

	code, err := ParseCode(req.Raw)
	if err != nil {
		return Result{Status: Rejected, Reason: err.Error()}
	}

	if p.store.Exists(code, location) {
		return Result{
			Status:    Rejected,
			Duplicate: true,
			Reason:    "already scanned at this location",
		}
	}

	verdict := p.baseline.Verify(code, location)
	switch verdict.Verdict {
	case baseline.Unknown:
		return Result{Status: Rejected, Reason: verdict.Reason}
	case baseline.Divergent:
		if !req.ConfirmDivergence {
			return Result{
				Status:   ConfirmRequired,
				Confirm:  ConfirmDivergence,
				Location: verdict.CorrectLocation,
			}
		}
	}

	if known, ok := p.registry.CheckLocation(code); ok && known != location {
		if !req.ConfirmConflict {
			return Result{
				Status:   ConfirmRequired,
				Confirm:  ConfirmConflict,
				Location: known,
			}
		}
	}

	rec, err := p.store.Add(code, location)
	if errors.Is(err, store.ErrDuplicate) {
		return Result{Status: Rejected, Duplicate: true, Reason: "already scanned at this location"}
	}
	if err != nil {
		log.Printf("scan: commit %d at %q: %v", code, location, err)
		return Result{Status: Rejected, Reason: "could not save the scan"}
	}
	return Result{Status: Accepted, Record: rec}
}
