package storage

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelStore is a persistent Store backed by LevelDB. LevelDB has no native
// multi-key transactions, so updates buffer their writes and commit through a
// batch under a store-level lock.
type LevelStore struct {
	mu sync.RWMutex
	db *leveldb.DB
}

// NewLevelStore creates or opens a LevelDB database at the specified path.
func NewLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db}, nil
}

type levelTxn struct {
	db       *leveldb.DB
	pending  map[string][]byte
	deleted  map[string]bool
	writable bool
}

func (t *levelTxn) lookup(key []byte) ([]byte, bool, error) {
	k := string(key)
	if t.writable {
		if t.deleted[k] {
			return nil, false, nil
		}
		if raw, ok := t.pending[k]; ok {
			return raw, true, nil
		}
	}
	raw, err := t.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (t *levelTxn) KVGet(key []byte, out any) (bool, error) {
	raw, ok, err := t.lookup(key)
	if err != nil || !ok {
		return false, err
	}
	if err := decodeValue(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (t *levelTxn) KVPut(key []byte, value any) error {
	if !t.writable {
		return ErrReadOnly
	}
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}
	k := string(key)
	delete(t.deleted, k)
	t.pending[k] = raw
	return nil
}

func (t *levelTxn) KVDelete(key []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	k := string(key)
	delete(t.pending, k)
	t.deleted[k] = true
	return nil
}

func (t *levelTxn) KVAppend(key []byte, item []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	raw, _, err := t.lookup(key)
	if err != nil {
		return err
	}
	updated, err := appendToList(raw, item)
	if err != nil {
		return err
	}
	k := string(key)
	delete(t.deleted, k)
	t.pending[k] = updated
	return nil
}

func (t *levelTxn) KVGetList(key []byte, out *[][]byte) error {
	raw, ok, err := t.lookup(key)
	if err != nil {
		return err
	}
	if !ok {
		*out = nil
		return nil
	}
	items, err := decodeList(raw)
	if err != nil {
		return err
	}
	*out = items
	return nil
}

// Update implements the Store interface.
func (s *LevelStore) Update(fn func(Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := &levelTxn{
		db:       s.db,
		pending:  make(map[string][]byte),
		deleted:  make(map[string]bool),
		writable: true,
	}
	if err := fn(txn); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for k := range txn.deleted {
		batch.Delete([]byte(k))
	}
	for k, raw := range txn.pending {
		batch.Put([]byte(k), raw)
	}
	return s.db.Write(batch, nil)
}

// View implements the Store interface.
func (s *LevelStore) View(fn func(Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&levelTxn{db: s.db})
}

// Close closes the database connection.
func (s *LevelStore) Close() error {
	return s.db.Close()
}
