package scan

import (
	"path/filepath"
	"testing"
	"time"

	"asset_inventory_tool/baseline"
	"asset_inventory_tool/events"
	"asset_inventory_tool/models"
	"asset_inventory_tool/store"
)

type fakeRegistry struct {
	known map[int]string
}

func (f *fakeRegistry) CheckLocation(code int) (string, bool) {
	loc, ok := f.known[code]
	return loc, ok
}

func testPipeline(t *testing.T, reg Registry) (*Pipeline, *store.Store) {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "station.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	st, err := store.New(db, events.New(), 25*time.Millisecond)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(st.Close)

	bl := baseline.New()
	bl.Load(&models.InventoryData{
		Inventory: []models.BaselineGroup{
			{Location: "Room A", Assets: []int{2024000123}},
			{Location: "Room B", Assets: []int{2023000001}},
		},
	})
	if reg == nil {
		reg = &fakeRegistry{}
	}
	return New(st, bl, reg), st
}

func TestParseCode(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{"2024000123", true},
		{"1990000000", true},
		{"2030999999", true},
		{"12345", false},       // too short
		{"20240001234", false}, // too long
		{"1989000123", false},  // year before range
		{"2031000123", false},  // year after range
		{"2024x00123", false},  // not numeric
		{" 2024000123 ", true},
	}
	for _, tc := range cases {
		_, err := ParseCode(tc.raw)
		if tc.ok && err != nil {
			t.Fatalf("%q: unexpected error %v", tc.raw, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.raw)
		}
	}
}

func TestAcceptHappyPath(t *testing.T) {
	p, st := testPipeline(t, nil)
	res := p.Accept(Request{Raw: "2024000123", Location: "Room A"})
	if res.Status != Accepted {
		t.Fatalf("expected accepted, got %+v", res)
	}
	if res.Record == nil || res.Record.Code != 2024000123 {
		t.Fatalf("missing committed record: %+v", res)
	}
	if !st.Exists(2024000123, "Room A") {
		t.Fatal("record not committed to the store")
	}
}

func TestAcceptRequiresLocation(t *testing.T) {
	p, _ := testPipeline(t, nil)
	res := p.Accept(Request{Raw: "2024000123", Location: "  "})
	if res.Status != Rejected {
		t.Fatalf("expected rejected, got %+v", res)
	}
}

func TestAcceptRejectsBadFormat(t *testing.T) {
	p, _ := testPipeline(t, nil)
	res := p.Accept(Request{Raw: "12345", Location: "Room A"})
	if res.Status != Rejected {
		t.Fatalf("expected rejected, got %+v", res)
	}
}

func TestAcceptDuplicateIsHarmless(t *testing.T) {
	p, _ := testPipeline(t, nil)
	p.Accept(Request{Raw: "2024000123", Location: "Room A"})
	res := p.Accept(Request{Raw: "2024000123", Location: "Room A"})
	if res.Status != Rejected || !res.Duplicate {
		t.Fatalf("expected duplicate rejection, got %+v", res)
	}
}

func TestAcceptRejectsUnknownAsset(t *testing.T) {
	p, st := testPipeline(t, nil)
	res := p.Accept(Request{Raw: "2020000999", Location: "Room A"})
	if res.Status != Rejected || res.Reason == "" {
		t.Fatalf("expected rejection with baseline reason, got %+v", res)
	}
	if st.Exists(2020000999, "Room A") {
		t.Fatal("unknown asset must not be committed")
	}
}

func TestAcceptDivergenceNeedsConfirmation(t *testing.T) {
	p, st := testPipeline(t, nil)

	// Baseline has 2024000123 in Room A; scanning it under Room B diverges.
	res := p.Accept(Request{Raw: "2024000123", Location: "Room B"})
	if res.Status != ConfirmRequired || res.Confirm != ConfirmDivergence {
		t.Fatalf("expected divergence prompt, got %+v", res)
	}
	if res.Location != "Room A" {
		t.Fatalf("prompt must name the baseline location, got %q", res.Location)
	}
	if st.Exists(2024000123, "Room B") {
		t.Fatal("nothing may be committed before confirmation")
	}

	// A decline is simply no re-submission. Re-submitting with the flag set
	// commits.
	res = p.Accept(Request{Raw: "2024000123", Location: "Room B", ConfirmDivergence: true})
	if res.Status != Accepted {
		t.Fatalf("expected accepted after confirmation, got %+v", res)
	}
}

func TestAcceptRemoteConflictNeedsConfirmation(t *testing.T) {
	reg := &fakeRegistry{known: map[int]string{2024000123: "Room C"}}
	p, _ := testPipeline(t, reg)

	res := p.Accept(Request{Raw: "2024000123", Location: "Room A"})
	if res.Status != ConfirmRequired || res.Confirm != ConfirmConflict {
		t.Fatalf("expected conflict prompt, got %+v", res)
	}
	if res.Location != "Room C" {
		t.Fatalf("prompt must name the recorded location, got %q", res.Location)
	}

	res = p.Accept(Request{Raw: "2024000123", Location: "Room A", ConfirmConflict: true})
	if res.Status != Accepted {
		t.Fatalf("expected accepted after confirmation, got %+v", res)
	}
}

func TestAcceptRemoteMatchIsSilent(t *testing.T) {
	reg := &fakeRegistry{known: map[int]string{2024000123: "Room A"}}
	p, _ := testPipeline(t, reg)
	res := p.Accept(Request{Raw: "2024000123", Location: "Room A"})
	if res.Status != Accepted {
		t.Fatalf("same-location registry entry must not prompt, got %+v", res)
	}
}

type panickyRegistry struct{}

func (panickyRegistry) CheckLocation(int) (string, bool) { panic("registry exploded") }

func TestAcceptContainsPanics(t *testing.T) {
	p, _ := testPipeline(t, panickyRegistry{})
	res := p.Accept(Request{Raw: "2024000123", Location: "Room A"})
	if res.Status != Rejected {
		t.Fatalf("panic must degrade to rejection, got %+v", res)
	}
	// The surface lock must have been released: the next scan still works.
	res = p.Accept(Request{Raw: "9999999999", Location: "Room A"})
	if res.Status != Rejected {
		t.Fatalf("pipeline locked up after panic: %+v", res)
	}
}
