package storage

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

// BoltStore persists records in a single BoltDB bucket. Bolt's single-writer
// transactions provide the serialisable Update semantics the engines rely on.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore initialises (and migrates) the BoltDB-backed store.
func NewBoltStore(path string, options *bolt.Options) (*BoltStore, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

type boltTxn struct {
	bucket   *bolt.Bucket
	writable bool
}

func (t *boltTxn) KVGet(key []byte, out any) (bool, error) {
	raw := t.bucket.Get(key)
	if raw == nil {
		return false, nil
	}
	if err := decodeValue(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (t *boltTxn) KVPut(key []byte, value any) error {
	if !t.writable {
		return ErrReadOnly
	}
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}
	return t.bucket.Put(key, raw)
}

func (t *boltTxn) KVDelete(key []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	return t.bucket.Delete(key)
}

func (t *boltTxn) KVAppend(key []byte, item []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	updated, err := appendToList(t.bucket.Get(key), item)
	if err != nil {
		return err
	}
	return t.bucket.Put(key, updated)
}

func (t *boltTxn) KVGetList(key []byte, out *[][]byte) error {
	items, err := decodeList(t.bucket.Get(key))
	if err != nil {
		return err
	}
	*out = items
	return nil
}

// Update implements the Store interface.
func (s *BoltStore) Update(fn func(Txn) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTxn{bucket: tx.Bucket(bucketRecords), writable: true})
	})
}

// View implements the Store interface.
func (s *BoltStore) View(fn func(Txn) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTxn{bucket: tx.Bucket(bucketRecords)})
	})
}

// Close releases the underlying Bolt database handle.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
