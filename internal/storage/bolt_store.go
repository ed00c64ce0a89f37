package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"sessionprobe/internal/logx"
)

const (
	BucketRuns  = "runs"
	bucketIndex = "runs_by_time"
)

// boltStore keeps one JSON document per run, keyed by ID, plus a time
// ordered index for listing.
type boltStore struct {
	db  *bbolt.DB
	log logx.Logger
}

func openBolt(cfg Config, log logx.Logger) (Store, error) {
	db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketRuns)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketIndex))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &boltStore{db: db, log: log}, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

func indexKey(item HistoryItem) []byte {
	k := make([]byte, 8, 8+len(item.ID))
	binary.BigEndian.PutUint64(k, uint64(item.Timestamp.UnixNano()))
	return append(k, item.ID...)
}

func (s *boltStore) Save(_ context.Context, item HistoryItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(BucketRuns))
		idx := tx.Bucket([]byte(bucketIndex))

		if prev := runs.Get([]byte(item.ID)); prev != nil {
			var old HistoryItem
			if json.Unmarshal(prev, &old) == nil {
				if err := idx.Delete(indexKey(old)); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		if err := runs.Put([]byte(item.ID), data); err != nil {
			return err
		}
		if err := idx.Put(indexKey(item), []byte(item.ID)); err != nil {
			return err
		}

		// trim the oldest entries
		c := idx.Cursor()
		excess := -MaxItems
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			excess++
		}
		for k, v := c.First(); k != nil && excess > 0; k, v = c.First() {
			if err := runs.Delete(v); err != nil {
				return err
			}
			if err := idx.Delete(k); err != nil {
				return err
			}
			excess--
		}
		return nil
	})
}

func (s *boltStore) List(context.Context) ([]HistoryItem, error) {
	var items []HistoryItem

	err := s.db.View(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(BucketRuns))
		c := tx.Bucket([]byte(bucketIndex)).Cursor()

		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			v := runs.Get(id)
			if v == nil {
				continue
			}
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				s.log.Warn("skipping unreadable run", logx.String("id", string(id)), logx.Err(err))
				continue
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

func (s *boltStore) Get(_ context.Context, id string) (HistoryItem, error) {
	var item HistoryItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketRuns)).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return HistoryItem{}, err
	}
	return item, nil
}
