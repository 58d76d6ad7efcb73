package syncer

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"asset_inventory_tool/events"
	"asset_inventory_tool/models"
	"asset_inventory_tool/store"
)

// Uploader is the slice of the RPC client the sync manager drains through.
type Uploader interface {
	SaveBatch(ctx context.Context, items []models.SaveBatchItem) ([]string, error)
	Online() bool
}

// Options tune the drain loop. Zero values fall back to the defaults.
type Options struct {
	Interval   time.Duration // tick spacing while the queue is non-empty
	BatchSize  int           // max records per upload call
	MaxRetries int           // failed attempts before a record goes Failed
	MaxBackoff time.Duration // cap for the transport-failure backoff
	RPCTimeout time.Duration
}

func (o *Options) withDefaults() {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.RPCTimeout <= 0 {
		o.RPCTimeout = 15 * time.Second
	}
}

// Manager periodically drains Pending records from the local store, uploads
// them in batches and reconciles the outcome back into record status. The
// loop is idempotent-restartable: stopping the timer is always safe, and a
// restart resumes from whatever the store currently holds.
type Manager struct {
	store    *store.Store
	uploader Uploader
	bus      *events.Bus
	opts     Options

	mu      sync.Mutex
	timer   *time.Timer // nil while idle
	cycling atomic.Bool
	retry   *backoff.ExponentialBackOff
}

func New(st *store.Store, up Uploader, bus *events.Bus, opts Options) *Manager {
	opts.withDefaults()
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.Interval
	eb.MaxInterval = opts.MaxBackoff
	return &Manager{store: st, uploader: up, bus: bus, opts: opts, retry: eb}
}

// Start hooks the loop triggers and kicks an initial drain of anything left
// over from a previous run.
func (m *Manager) Start() {
	m.bus.Subscribe(events.ItemAdded, func(any) { m.EnsureRunning() })
	m.bus.Subscribe(events.LocationChanged, func(any) { m.EnsureRunning() })
	m.bus.Subscribe(events.Online, func(any) {
		// Reconnection is the optimistic moment: give every Failed record
		// a fresh set of attempts before the loop restarts.
		m.store.RetryAllFailed()
		m.EnsureRunning()
	})
	m.bus.Subscribe(events.Offline, func(any) { m.Halt() })
	m.EnsureRunning()
}

// EnsureRunning arms the tick timer if the loop is idle.
func (m *Manager) EnsureRunning() {
	m.mu.Lock()
	if m.timer != nil {
		m.mu.Unlock()
		return
	}
	m.timer = time.AfterFunc(m.opts.Interval, m.tick)
	m.mu.Unlock()
	m.bus.Publish(events.SyncStarted, nil)
}

// Halt stops the timer without touching record state. An in-progress cycle
// finishes on its own; its reschedule notices the loop was halted.
func (m *Manager) Halt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Running reports whether the drain loop is armed.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

func (m *Manager) tick() {
	// One cycle at a time; an overlapping tick is a no-op, not a queue.
	if !m.cycling.CompareAndSwap(false, true) {
		m.reschedule(m.opts.Interval)
		return
	}
	delay, idle := m.cycle()
	m.cycling.Store(false)
	if idle {
		m.goIdle()
		return
	}
	m.reschedule(delay)
}

// cycle drains one batch. Returns the delay before the next tick and whether
// the loop should go idle instead.
func (m *Manager) cycle() (time.Duration, bool) {
	if !m.uploader.Online() {
		return m.opts.Interval, false
	}

	batch := m.store.PendingBatch(m.opts.BatchSize)
	if len(batch) == 0 {
		return 0, true
	}

	uids := make([]string, len(batch))
	items := make([]models.SaveBatchItem, len(batch))
	for i, rec := range batch {
		uids[i] = rec.UID
		items[i] = models.SaveBatchItem{
			UID:        rec.UID,
			Code:       rec.Code,
			Location:   rec.Location,
			State:      rec.State,
			UsefulLife: rec.UsefulLife,
			Notes:      rec.Notes,
		}
	}
	m.store.MarkInFlight(uids)

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.RPCTimeout)
	saved, err := m.uploader.SaveBatch(ctx, items)
	cancel()
	if err != nil {
		log.Printf("syncer: batch upload failed (%d items): %v", len(items), err)
		m.store.ApplySyncFailure(uids, m.opts.MaxRetries)
		return m.retry.NextBackOff(), false
	}

	savedSet := make(map[string]bool, len(saved))
	for _, uid := range saved {
		savedSet[uid] = true
	}
	var ok, missing []string
	for _, uid := range uids {
		if savedSet[uid] {
			ok = append(ok, uid)
		} else {
			missing = append(missing, uid)
		}
	}
	m.store.ApplySyncSuccess(ok)
	if len(missing) > 0 {
		log.Printf("syncer: backend persisted %d of %d, retrying the rest", len(ok), len(uids))
		m.store.ApplySyncFailure(missing, m.opts.MaxRetries)
	}
	if len(ok) > 0 {
		m.bus.Publish(events.BatchSynced, len(ok))
	}
	m.retry.Reset()
	return m.opts.Interval, false
}

func (m *Manager) reschedule(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer == nil {
		// Halted mid-cycle; stay idle.
		return
	}
	m.timer.Reset(delay)
}

func (m *Manager) goIdle() {
	m.mu.Lock()
	if m.timer == nil {
		m.mu.Unlock()
		return
	}
	// A scan may have landed after the empty drain; its item-added wakeup
	// was a no-op while the timer was still armed, so re-check before
	// disarming or that record sits Pending with no drain scheduled.
	if len(m.store.PendingBatch(1)) > 0 {
		m.timer.Reset(m.opts.Interval)
		m.mu.Unlock()
		return
	}
	m.timer.Stop()
	m.timer = nil
	m.mu.Unlock()
	m.retry.Reset()
	m.bus.Publish(events.SyncCompleted, nil)
}
