package db

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"asset_inventory_tool/models"
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

var ErrEmptyBaseline = errors.New("baseline has no locations")

// SaveBatch persists a batch of found items and returns the uids effectively
// persisted. Saves are idempotent by uid: a re-upload of an already stored
// uid counts as persisted. An item whose (code, location) was already taken
// by a different uid is omitted from the result so the agent surfaces it
// instead of silently absorbing it.
func (r *Repo) SaveBatch(ctx context.Context, items []models.SaveBatchItem) ([]string, error) {
	saved := make([]string, 0, len(items))
	for _, it := range items {
		row := models.FoundItem{
			UID:        it.UID,
			Code:       it.Code,
			Location:   strings.TrimSpace(it.Location),
			State:      it.State,
			UsefulLife: it.UsefulLife,
			Notes:      it.Notes,
		}
		if row.UID == "" || row.Code <= 0 || row.Location == "" {
			continue
		}
		err := r.DB.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "uid"}},
				DoNothing: true,
			}).
			Create(&row).Error
		if err != nil {
			if !isUniqueViolation(err) {
				// Connectivity or server trouble, not a conflict: fail the
				// whole call so the agent retries the batch (re-inserts are
				// idempotent by uid anyway).
				return nil, err
			}
			// (code, location) already taken by another uid.
			log.Printf("saveBatch: skip %s (%d at %q): %v", it.UID, it.Code, it.Location, err)
			continue
		}
		saved = append(saved, row.UID)
	}
	return saved, nil
}

// isUniqueViolation reports whether err is a unique-constraint failure
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ReplaceBaseline swaps the official asset→location mapping wholesale.
func (r *Repo) ReplaceBaseline(ctx context.Context, groups []models.BaselineGroup) error {
	if len(groups) == 0 {
		return ErrEmptyBaseline
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Asset{}).Error; err != nil {
			return err
		}
		for _, g := range groups {
			loc := strings.TrimSpace(g.Location)
			if loc == "" {
				continue
			}
			for _, code := range g.Assets {
				if code <= 0 {
					continue
				}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "code"}},
					DoUpdates: clause.AssignmentColumns([]string{"location"}),
				}).Create(&models.Asset{Code: code, Location: loc}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// InventoryData returns the baseline grouped by location, for the agents'
// once-per-session load.
func (r *Repo) InventoryData(ctx context.Context) (*models.InventoryData, error) {
	var assets []models.Asset
	if err := r.DB.WithContext(ctx).Order("location, code").Find(&assets).Error; err != nil {
		return nil, err
	}
	byLoc := map[string][]int{}
	for _, a := range assets {
		byLoc[a.Location] = append(byLoc[a.Location], a.Code)
	}
	out := &models.InventoryData{}
	for _, loc := range sortedKeys(byLoc) {
		out.Locations = append(out.Locations, models.BaselineLocation{
			Name:        loc,
			AssetsCount: len(byLoc[loc]),
		})
		out.Inventory = append(out.Inventory, models.BaselineGroup{
			Location: loc,
			Assets:   byLoc[loc],
		})
	}
	return out, nil
}

// Summary builds the recorded-so-far view. The found-assets groups always
// cover every location (conflict detection is global); location only scopes
// the progress metadata.
func (r *Repo) Summary(ctx context.Context, location string) (*models.InventorySummary, error) {
	var assets []models.Asset
	if err := r.DB.WithContext(ctx).Find(&assets).Error; err != nil {
		return nil, err
	}
	var found []models.FoundItem
	if err := r.DB.WithContext(ctx).Order("location, code").Find(&found).Error; err != nil {
		return nil, err
	}

	totals := map[string]int{}
	for _, a := range assets {
		totals[a.Location]++
	}
	foundByLoc := map[string][]int{}
	foundCount := map[string]int{}
	for _, f := range found {
		foundByLoc[f.Location] = append(foundByLoc[f.Location], f.Code)
		foundCount[f.Location]++
	}

	out := &models.InventorySummary{}
	for _, loc := range sortedKeys(totals) {
		if location != "" && loc != location {
			continue
		}
		missing := totals[loc] - foundCount[loc]
		if missing < 0 {
			missing = 0
		}
		out.Locations = append(out.Locations, models.LocationSummary{
			Name:         loc,
			TotalAssets:  totals[loc],
			FoundCount:   foundCount[loc],
			MissingCount: missing,
		})
	}
	for _, loc := range sortedKeys(foundByLoc) {
		out.AssetsFound = append(out.AssetsFound, models.AssetGroup{
			Location: loc,
			Assets:   foundByLoc[loc],
		})
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
