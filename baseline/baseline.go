package baseline

import (
	"fmt"
	"sync"

	"asset_inventory_tool/models"
)

// Verdict classifies a scan against the official baseline.
type Verdict int

const (
	// Match: the asset is expected at the selected location.
	Match Verdict = iota
	// Divergent: the asset exists in the baseline but belongs elsewhere.
	// Needs user confirmation before committing.
	Divergent
	// Unknown: the asset is not in the baseline at all.
	Unknown
)

// Result carries the verdict plus the detail the UI prompt needs.
type Result struct {
	Verdict         Verdict
	CorrectLocation string // set when Divergent
	Reason          string // set when Unknown
}

// Validator holds the official asset→location mapping, loaded once per
// session from the backend and read-only afterwards.
type Validator struct {
	mu        sync.RWMutex
	byCode    map[int]string
	locations []string
}

func New() *Validator {
	return &Validator{byCode: make(map[int]string)}
}

// Load replaces the baseline wholesale. A nil or empty payload is ignored so
// a bad fetch cannot erase a previously loaded baseline.
func (v *Validator) Load(data *models.InventoryData) {
	if data == nil || len(data.Inventory) == 0 {
		return
	}
	byCode := make(map[int]string)
	locations := make([]string, 0, len(data.Inventory))
	for _, group := range data.Inventory {
		if group.Location == "" {
			continue
		}
		locations = append(locations, group.Location)
		for _, code := range group.Assets {
			byCode[code] = group.Location
		}
	}
	v.mu.Lock()
	v.byCode = byCode
	v.locations = locations
	v.mu.Unlock()
}

// Ready reports whether a baseline has been loaded.
func (v *Validator) Ready() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.byCode) > 0
}

// Locations lists the baseline locations for the UI picker.
func (v *Validator) Locations() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, len(v.locations))
	copy(out, v.locations)
	return out
}

// LocationOf returns the official location of a code, if known.
func (v *Validator) LocationOf(code int) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	loc, ok := v.byCode[code]
	return loc, ok
}

// Verify classifies a scan for the selected location.
func (v *Validator) Verify(code int, selectedLocation string) Result {
	loc, ok := v.LocationOf(code)
	if !ok {
		return Result{
			Verdict: Unknown,
			Reason:  fmt.Sprintf("asset %d is not in the inventory baseline", code),
		}
	}
	if loc != selectedLocation {
		return Result{Verdict: Divergent, CorrectLocation: loc}
	}
	return Result{Verdict: Match}
}
