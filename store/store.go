package store

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"asset_inventory_tool/events"
	"asset_inventory_tool/models"
)

var (
	ErrInvalidInput = errors.New("invalid code or location")
	ErrDuplicate    = errors.New("item already scanned at this location")
	ErrNotFound     = errors.New("record not found")
	ErrOutOfRange   = errors.New("field value out of range")
)

// recoveryKeep is how many of the newest records survive a storage-exhaustion
// recovery before the store gives up and wipes itself.
const recoveryKeep = 100

// Store is the local write-ahead queue of accepted scans. Records live in
// memory; a bbolt snapshot backs them so a reload resumes from the last
// persisted state. Writes are debounced except for the transitions where
// losing state across a reload would break the sync invariants.
type Store struct {
	db       *bbolt.DB
	bus      *events.Bus
	debounce time.Duration
	now      func() time.Time

	mu         sync.Mutex
	items      map[string]*models.ItemRecord
	order      []string // uids in insertion order
	dirty      bool
	flushTimer *time.Timer
}

// New loads the persisted snapshot from db. Any record found InFlight is
// demoted to Pending: the process died mid-upload and the RPC outcome is
// unknown, so the record must be retried (the backend save is idempotent by
// uid).
func New(db *bbolt.DB, bus *events.Bus, debounce time.Duration) (*Store, error) {
	s := &Store{
		db:       db,
		bus:      bus,
		debounce: debounce,
		now:      time.Now,
		items:    make(map[string]*models.ItemRecord),
	}
	if err := ensureBuckets(db); err != nil {
		return nil, err
	}
	recs, err := loadRecords(db)
	if err != nil {
		return nil, err
	}
	demoted := false
	for i := range recs {
		r := recs[i]
		if r.Status == models.StatusInFlight {
			r.Status = models.StatusPending
			demoted = true
		}
		s.items[r.UID] = &r
	}
	s.rebuildOrderLocked()
	if demoted {
		s.mu.Lock()
		s.flushLocked()
		s.mu.Unlock()
	}
	return s, nil
}

// Close flushes any debounced state. The bbolt handle is owned by the caller.
func (s *Store) Close() {
	s.mu.Lock()
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	if s.dirty {
		s.flushLocked()
	}
	s.mu.Unlock()
}

// Add queues a new scan. The (code, location) pair must be unique across the
// whole store. Persists immediately so a reload right after a scan cannot
// lose it.
func (s *Store) Add(code int, location string) (*models.ItemRecord, error) {
	location = strings.TrimSpace(location)
	if code <= 0 || location == "" {
		return nil, ErrInvalidInput
	}

	s.mu.Lock()
	if s.existsLocked(code, location) {
		s.mu.Unlock()
		return nil, ErrDuplicate
	}
	now := s.now()
	rec := &models.ItemRecord{
		UID:        uuid.NewString(),
		Code:       code,
		Location:   location,
		UsefulLife: 1,
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.items[rec.UID] = rec
	s.order = append(s.order, rec.UID)
	snapshot := *rec
	// Recovery inside the flush already mutates the record set; the
	// unconditional repository-changed below covers it.
	_ = s.flushLocked()
	s.mu.Unlock()

	s.bus.Publish(events.ItemAdded, snapshot)
	s.bus.Publish(events.RepositoryChanged, nil)
	return &snapshot, nil
}

// Update edits the user-editable fields and re-queues the record for upload.
func (s *Store) Update(uid string, state, usefulLife int, notes string) error {
	if state < models.StateMin || state > models.StateMax {
		return ErrOutOfRange
	}
	if usefulLife < 0 || len(notes) > models.MaxNotesLen {
		return ErrOutOfRange
	}

	s.mu.Lock()
	rec, ok := s.items[uid]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	rec.State = state
	rec.UsefulLife = usefulLife
	rec.Notes = notes
	rec.Status = models.StatusPending
	rec.RetryCount = 0
	rec.UpdatedAt = s.now()
	snapshot := *rec
	s.markDirtyLocked()
	s.mu.Unlock()

	s.bus.Publish(events.ItemChanged, snapshot)
	return nil
}

func (s *Store) Exists(code int, location string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(code, strings.TrimSpace(location))
}

func (s *Store) GetByUID(uid string) (models.ItemRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[uid]
	if !ok {
		return models.ItemRecord{}, false
	}
	return *rec, true
}

// AllItems returns a snapshot of every record in insertion order.
func (s *Store) AllItems() []models.ItemRecord {
	return s.ItemsForLocation("")
}

// ItemsForLocation filters by location; empty location returns everything.
func (s *Store) ItemsForLocation(location string) []models.ItemRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ItemRecord, 0, len(s.order))
	for _, uid := range s.order {
		rec := s.items[uid]
		if location == "" || rec.Location == location {
			out = append(out, *rec)
		}
	}
	return out
}

func (s *Store) Stats() models.RepoStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := models.RepoStats{Total: len(s.items)}
	for _, rec := range s.items {
		switch rec.Status {
		case models.StatusSynced:
			st.Synced++
		case models.StatusFailed:
			st.Failed++
		default:
			st.Pending++
		}
	}
	return st
}

// PendingBatch returns up to n Pending records in insertion order.
func (s *Store) PendingBatch(n int) []models.ItemRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ItemRecord, 0, n)
	for _, uid := range s.order {
		if len(out) == n {
			break
		}
		if rec := s.items[uid]; rec.Status == models.StatusPending {
			out = append(out, *rec)
		}
	}
	return out
}

// MarkInFlight moves the given Pending records to InFlight. Persisted
// immediately: if the process dies during the upload, the reload demotion
// brings them back to Pending instead of trusting a stale InFlight.
func (s *Store) MarkInFlight(uids []string) {
	s.mu.Lock()
	for _, uid := range uids {
		if rec, ok := s.items[uid]; ok && rec.Status == models.StatusPending {
			rec.Status = models.StatusInFlight
			rec.UpdatedAt = s.now()
		}
	}
	recovered := s.flushLocked()
	s.mu.Unlock()
	if recovered {
		s.bus.Publish(events.RepositoryChanged, nil)
	}
}

// ApplySyncSuccess settles InFlight records the backend confirmed.
func (s *Store) ApplySyncSuccess(uids []string) {
	var changed []models.ItemRecord
	s.mu.Lock()
	for _, uid := range uids {
		rec, ok := s.items[uid]
		if !ok || rec.Status != models.StatusInFlight {
			continue
		}
		rec.Status = models.StatusSynced
		rec.RetryCount = 0
		rec.UpdatedAt = s.now()
		changed = append(changed, *rec)
	}
	if len(changed) > 0 {
		s.markDirtyLocked()
	}
	s.mu.Unlock()

	for _, rec := range changed {
		s.bus.Publish(events.ItemChanged, rec)
	}
}

// ApplySyncFailure feeds InFlight records back into the retry path. A record
// that has already burned maxRetries attempts goes Failed and stays there
// until a manual retry.
func (s *Store) ApplySyncFailure(uids []string, maxRetries int) {
	var failed []models.ItemRecord
	any := false
	s.mu.Lock()
	for _, uid := range uids {
		rec, ok := s.items[uid]
		if !ok || rec.Status != models.StatusInFlight {
			continue
		}
		any = true
		rec.RetryCount++
		rec.UpdatedAt = s.now()
		if rec.RetryCount >= maxRetries {
			rec.Status = models.StatusFailed
			failed = append(failed, *rec)
		} else {
			rec.Status = models.StatusPending
		}
	}
	if any {
		s.markDirtyLocked()
	}
	s.mu.Unlock()

	for _, rec := range failed {
		s.bus.Publish(events.ItemFailed, rec)
	}
}

// RetryAllFailed re-queues every Failed record. Reports whether anything
// actually changed.
func (s *Store) RetryAllFailed() bool {
	changed := false
	s.mu.Lock()
	for _, rec := range s.items {
		if rec.Status == models.StatusFailed {
			rec.Status = models.StatusPending
			rec.RetryCount = 0
			rec.UpdatedAt = s.now()
			changed = true
		}
	}
	recovered := false
	if changed {
		recovered = s.flushLocked()
	}
	s.mu.Unlock()

	if changed || recovered {
		s.bus.Publish(events.RepositoryChanged, nil)
	}
	return changed
}

// ApplyRetentionPolicy enforces the backend's minValidDate and version tag.
// A version-tag change wipes the whole store (schema escape hatch); otherwise
// records created before minCreatedAt are dropped.
func (s *Store) ApplyRetentionPolicy(minCreatedAt time.Time, versionTag string) {
	changed := false
	s.mu.Lock()
	stored, err := loadVersionTag(s.db)
	if err != nil {
		log.Printf("store: read version tag: %v", err)
	}
	if stored != versionTag {
		if err := saveVersionTag(s.db, versionTag); err != nil {
			log.Printf("store: save version tag: %v", err)
		}
	}
	// A never-initialized tag is adoption, not migration: offline scans made
	// before the first settings fetch must survive it. Only a real tag
	// change wipes.
	if stored != "" && stored != versionTag {
		if len(s.items) > 0 {
			s.items = make(map[string]*models.ItemRecord)
			s.order = nil
			changed = true
		}
	} else if !minCreatedAt.IsZero() {
		for uid, rec := range s.items {
			if rec.CreatedAt.Before(minCreatedAt) {
				delete(s.items, uid)
				changed = true
			}
		}
		if changed {
			s.rebuildOrderLocked()
		}
	}
	recovered := false
	if changed {
		recovered = s.flushLocked()
	}
	s.mu.Unlock()

	if changed || recovered {
		s.bus.Publish(events.RepositoryChanged, nil)
	}
}

// Clear wipes every record. Also signals sync completion so dependents stop
// expecting a drain of the queue that no longer exists.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = make(map[string]*models.ItemRecord)
	s.order = nil
	s.flushLocked()
	s.mu.Unlock()

	s.bus.Publish(events.RepositoryChanged, nil)
	s.bus.Publish(events.SyncCompleted, nil)
}

func (s *Store) existsLocked(code int, location string) bool {
	for _, rec := range s.items {
		if rec.Code == code && rec.Location == location {
			return true
		}
	}
	return false
}

func (s *Store) rebuildOrderLocked() {
	s.order = s.order[:0]
	for uid := range s.items {
		s.order = append(s.order, uid)
	}
	sort.Slice(s.order, func(i, j int) bool {
		a, b := s.items[s.order[i]], s.items[s.order[j]]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.UID < b.UID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// markDirtyLocked arms the debounced flush. Repeated mutations inside the
// window coalesce into one write.
func (s *Store) markDirtyLocked() {
	s.dirty = true
	if s.flushTimer != nil {
		return
	}
	s.flushTimer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		s.flushTimer = nil
		recovered := false
		if s.dirty {
			recovered = s.flushLocked()
		}
		s.mu.Unlock()
		if recovered {
			s.bus.Publish(events.RepositoryChanged, nil)
		}
	})
}

// flushLocked writes the snapshot now, cancelling any pending debounce. On a
// write failure (disk full being the realistic case) it keeps only the newest
// records and retries once; if even that fails the store is wiped rather than
// left half-written. Returns whether a recovery mutated the record set.
func (s *Store) flushLocked() bool {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	s.dirty = false

	err := saveRecords(s.db, s.snapshotLocked())
	if err == nil {
		return false
	}
	log.Printf("store: persist failed, pruning to newest %d records: %v", recoveryKeep, err)

	if len(s.order) > recoveryKeep {
		for _, uid := range s.order[:len(s.order)-recoveryKeep] {
			delete(s.items, uid)
		}
		s.rebuildOrderLocked()
	}
	if err := saveRecords(s.db, s.snapshotLocked()); err != nil {
		log.Printf("store: persist still failing, wiping local queue: %v", err)
		s.items = make(map[string]*models.ItemRecord)
		s.order = nil
		if err := saveRecords(s.db, nil); err != nil {
			log.Printf("store: wipe failed: %v", err)
		}
	}
	return true
}

func (s *Store) snapshotLocked() []models.ItemRecord {
	out := make([]models.ItemRecord, 0, len(s.order))
	for _, uid := range s.order {
		out = append(out, *s.items[uid])
	}
	return out
}
