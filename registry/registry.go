package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"asset_inventory_tool/events"
	"asset_inventory_tool/models"
)

const (
	registryBucket = "registry"
)

var snapshotKey = []byte("snapshot")

// Backend is the slice of the RPC client the registry needs.
type Backend interface {
	GetInventorySummary(ctx context.Context, location string) (*models.InventorySummary, error)
	Online() bool
}

// Options tune the poll loop. Zero values fall back to the defaults.
type Options struct {
	InitialDelay time.Duration
	PollInterval time.Duration
	TTL          time.Duration
	FetchTimeout time.Duration
}

func (o *Options) withDefaults() {
	if o.InitialDelay <= 0 {
		o.InitialDelay = 3 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.TTL <= 0 {
		o.TTL = 10 * time.Minute
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
}

type snapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Entries   map[int]string `json:"entries"`
}

// Cache is a best-effort, periodically refreshed view of which asset codes
// have already been recorded by anyone, and where. It exists to catch a scan
// of an asset that some other station already inventoried elsewhere.
type Cache struct {
	backend Backend
	db      *bbolt.DB
	bus     *events.Bus
	opts    Options

	mu       sync.RWMutex
	ready    bool
	entries  map[int]string
	summary  []models.LocationSummary
	location string

	polling atomic.Bool
	kick    chan struct{}
	stop    chan struct{}
	once    sync.Once
}

// New loads the persisted snapshot; entries older than the TTL are discarded
// and the cache starts not-ready until the first successful poll.
func New(backend Backend, db *bbolt.DB, bus *events.Bus, opts Options) (*Cache, error) {
	opts.withDefaults()
	c := &Cache{
		backend: backend,
		db:      db,
		bus:     bus,
		opts:    opts,
		entries: make(map[int]string),
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	if err := c.ensureBucket(); err != nil {
		return nil, err
	}
	snap, err := c.loadSnapshot()
	if err != nil {
		log.Printf("registry: load snapshot: %v", err)
	} else if snap != nil {
		if time.Since(snap.Timestamp) < opts.TTL {
			c.entries = snap.Entries
			c.ready = true
		} else {
			log.Printf("registry: cached snapshot expired, starting cold")
		}
	}
	return c, nil
}

// Start arms the poll loop and hooks the early-refresh triggers.
func (c *Cache) Start() {
	c.bus.Subscribe(events.SyncCompleted, func(any) { c.Refresh() })
	go c.loop()
}

func (c *Cache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// CheckLocation returns where a code has already been recorded, if the cache
// knows about it. Returns ok=false while the cache is cold.
func (c *Cache) CheckLocation(code int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return "", false
	}
	loc, ok := c.entries[code]
	return loc, ok
}

// Ready reports whether at least one snapshot (fresh or persisted within TTL)
// is available.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Summary returns the last location-progress metadata received.
func (c *Cache) Summary() []models.LocationSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.LocationSummary, len(c.summary))
	copy(out, c.summary)
	return out
}

// SetLocation records the station's selected location and refreshes early.
func (c *Cache) SetLocation(location string) {
	c.mu.Lock()
	changed := c.location != location
	c.location = location
	c.mu.Unlock()
	if changed {
		c.Refresh()
	}
}

// Refresh requests an out-of-cycle poll. Non-blocking; collapses with any
// already-queued request and never resets the fixed schedule.
func (c *Cache) Refresh() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Cache) loop() {
	timer := time.NewTimer(c.opts.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-timer.C:
			c.poll()
			timer.Reset(c.opts.PollInterval)
		case <-c.kick:
			c.poll()
		}
	}
}

// poll fetches and atomically replaces the cache. One poll in flight at a
// time; requests while busy or offline are dropped, the schedule continues.
func (c *Cache) poll() {
	if !c.backend.Online() {
		return
	}
	if !c.polling.CompareAndSwap(false, true) {
		return
	}
	defer c.polling.Store(false)

	c.bus.Publish(events.RegistryFetching, true)
	defer c.bus.Publish(events.RegistryFetching, false)

	c.mu.RLock()
	location := c.location
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.FetchTimeout)
	defer cancel()
	summary, err := c.backend.GetInventorySummary(ctx, location)
	if err != nil {
		log.Printf("registry: poll failed, will retry next cycle: %v", err)
		return
	}

	entries := make(map[int]string)
	for _, group := range summary.AssetsFound {
		for _, code := range group.Assets {
			entries[code] = group.Location
		}
	}

	c.mu.Lock()
	c.entries = entries
	c.summary = summary.Locations
	c.ready = true
	c.mu.Unlock()

	if err := c.saveSnapshot(snapshot{Timestamp: time.Now(), Entries: entries}); err != nil {
		log.Printf("registry: persist snapshot: %v", err)
	}
	c.bus.Publish(events.RegistryUpdated, summary.Locations)
}

func (c *Cache) ensureBucket() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(registryBucket))
		if err != nil {
			return fmt.Errorf("create registry bucket: %w", err)
		}
		return nil
	})
}

func (c *Cache) loadSnapshot() (*snapshot, error) {
	var snap *snapshot
	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(registryBucket))
		if bucket == nil {
			return nil
		}
		payload := bucket.Get(snapshotKey)
		if payload == nil {
			return nil
		}
		var s snapshot
		if err := json.Unmarshal(payload, &s); err != nil {
			return fmt.Errorf("unmarshal registry snapshot: %w", err)
		}
		snap = &s
		return nil
	})
	return snap, err
}

func (c *Cache) saveSnapshot(s snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(registryBucket))
		if bucket == nil {
			return fmt.Errorf("registry bucket is missing")
		}
		return bucket.Put(snapshotKey, payload)
	})
}
