package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"asset_inventory_tool/events"
	"asset_inventory_tool/models"
	"asset_inventory_tool/store"
)

type fakeBackend struct {
	online  bool
	summary *models.InventorySummary
	err     error
	calls   int
}

func (f *fakeBackend) GetInventorySummary(context.Context, string) (*models.InventorySummary, error) {
	f.calls++
	return f.summary, f.err
}

func (f *fakeBackend) Online() bool { return f.online }

func testDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "station.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPollReplacesCacheWholesale(t *testing.T) {
	backend := &fakeBackend{
		online: true,
		summary: &models.InventorySummary{
			AssetsFound: []models.AssetGroup{{Location: "Room A", Assets: []int{2024000123}}},
		},
	}
	c, err := New(backend, testDB(t), events.New(), Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, ok := c.CheckLocation(2024000123); ok {
		t.Fatal("cold cache must answer not-ready")
	}

	c.poll()
	loc, ok := c.CheckLocation(2024000123)
	if !ok || loc != "Room A" {
		t.Fatalf("expected Room A, got %q/%v", loc, ok)
	}

	backend.summary = &models.InventorySummary{
		AssetsFound: []models.AssetGroup{{Location: "Room B", Assets: []int{2023000001}}},
	}
	c.poll()
	if _, ok := c.CheckLocation(2024000123); ok {
		t.Fatal("old entries must not survive a refresh (no partial merge)")
	}
	if loc, _ := c.CheckLocation(2023000001); loc != "Room B" {
		t.Fatalf("expected Room B, got %q", loc)
	}
}

func TestPollSkippedWhileOffline(t *testing.T) {
	backend := &fakeBackend{online: false}
	c, err := New(backend, testDB(t), events.New(), Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.poll()
	if backend.calls != 0 {
		t.Fatalf("offline poll must not hit the backend, got %d calls", backend.calls)
	}
	if c.Ready() {
		t.Fatal("cache must stay cold")
	}
}

func TestPollFailureLeavesCacheIntact(t *testing.T) {
	backend := &fakeBackend{
		online: true,
		summary: &models.InventorySummary{
			AssetsFound: []models.AssetGroup{{Location: "Room A", Assets: []int{2024000123}}},
		},
	}
	c, err := New(backend, testDB(t), events.New(), Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.poll()

	backend.err = errors.New("boom")
	c.poll()
	if loc, ok := c.CheckLocation(2024000123); !ok || loc != "Room A" {
		t.Fatal("failed poll must keep the previous snapshot")
	}
}

func TestSnapshotRoundTripWithinTTL(t *testing.T) {
	db := testDB(t)
	backend := &fakeBackend{
		online: true,
		summary: &models.InventorySummary{
			AssetsFound: []models.AssetGroup{
				{Location: "Room A", Assets: []int{2024000123, 2024000124}},
				{Location: "Room B", Assets: []int{2023000001}},
			},
		},
	}
	c, err := New(backend, db, events.New(), Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.poll()

	reloaded, err := New(&fakeBackend{}, db, events.New(), Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Ready() {
		t.Fatal("persisted snapshot within TTL must restore the cache")
	}
	for code, want := range map[int]string{
		2024000123: "Room A",
		2024000124: "Room A",
		2023000001: "Room B",
	} {
		if got, ok := reloaded.CheckLocation(code); !ok || got != want {
			t.Fatalf("code %d: got %q/%v want %q", code, got, ok, want)
		}
	}
}

func TestSnapshotExpiredByTTL(t *testing.T) {
	db := testDB(t)
	backend := &fakeBackend{
		online: true,
		summary: &models.InventorySummary{
			AssetsFound: []models.AssetGroup{{Location: "Room A", Assets: []int{2024000123}}},
		},
	}
	c, err := New(backend, db, events.New(), Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.poll()

	// Age the stored snapshot past the TTL.
	if err := c.saveSnapshot(snapshot{
		Timestamp: time.Now().Add(-2 * time.Minute),
		Entries:   map[int]string{2024000123: "Room A"},
	}); err != nil {
		t.Fatalf("age snapshot: %v", err)
	}

	reloaded, err := New(&fakeBackend{}, db, events.New(), Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Ready() {
		t.Fatal("expired snapshot must be discarded")
	}
	if _, ok := reloaded.CheckLocation(2024000123); ok {
		t.Fatal("expired entries must not be served")
	}
}

func TestFetchingTransitions(t *testing.T) {
	bus := events.New()
	var seen []bool
	bus.Subscribe(events.RegistryFetching, func(p any) { seen = append(seen, p.(bool)) })

	backend := &fakeBackend{online: true, summary: &models.InventorySummary{}}
	c, err := New(backend, testDB(t), bus, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.poll()
	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Fatalf("expected fetching true,false transitions, got %v", seen)
	}
}
