package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"asset_inventory_tool/models"
)

const (
	itemsBucket = "items"
	metaBucket  = "meta"
)

var versionKey = []byte("version")

// OpenDB opens the shared durable storage file. The item store and the
// registry each own their own bucket inside it.
func OpenDB(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}
	return db, nil
}

func ensureBuckets(db *bbolt.DB) error {
	return db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{itemsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func loadRecords(db *bbolt.DB) ([]models.ItemRecord, error) {
	var out []models.ItemRecord
	err := db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var rec models.ItemRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// saveRecords replaces the whole items bucket with the given snapshot.
func saveRecords(db *bbolt.DB, recs []models.ItemRecord) error {
	return db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(itemsBucket)); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("reset items bucket: %w", err)
		}
		bucket, err := tx.CreateBucket([]byte(itemsBucket))
		if err != nil {
			return fmt.Errorf("create items bucket: %w", err)
		}
		for i := range recs {
			payload, err := json.Marshal(&recs[i])
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			if err := bucket.Put([]byte(recs[i].UID), payload); err != nil {
				return err
			}
		}
		return nil
	})
}

func loadVersionTag(db *bbolt.DB) (string, error) {
	var tag string
	err := db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		if bucket == nil {
			return nil
		}
		tag = string(bucket.Get(versionKey))
		return nil
	})
	return tag, err
}

func saveVersionTag(db *bbolt.DB, tag string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return err
		}
		return bucket.Put(versionKey, []byte(tag))
	})
}
