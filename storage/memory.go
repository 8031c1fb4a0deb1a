package storage

import "sync"

// MemStore is an in-memory Store used by tests and development runs. A single
// RWMutex serialises updates; pending writes are buffered per transaction so a
// failed closure leaves the store untouched.
type MemStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

type memTxn struct {
	store    *MemStore
	pending  map[string][]byte
	deleted  map[string]bool
	writable bool
}

func (t *memTxn) lookup(key []byte) ([]byte, bool) {
	k := string(key)
	if t.writable {
		if t.deleted[k] {
			return nil, false
		}
		if raw, ok := t.pending[k]; ok {
			return raw, true
		}
	}
	raw, ok := t.store.data[k]
	return raw, ok
}

func (t *memTxn) KVGet(key []byte, out any) (bool, error) {
	raw, ok := t.lookup(key)
	if !ok {
		return false, nil
	}
	if err := decodeValue(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (t *memTxn) KVPut(key []byte, value any) error {
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

func (t *memTxn) KVDelete(key []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	k := string(key)
	delete(t.pending, k)
	t.deleted[k] = true
	return nil
}

func (t *memTxn) KVAppend(key []byte, item []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	raw, _ := t.lookup(key)
	updated, err := appendToList(raw, item)
	if err != nil {
		return err
	}
	k := string(key)
	delete(t.deleted, k)
	t.pending[k] = updated
	return nil
}

func (t *memTxn) KVGetList(key []byte, out *[][]byte) error {
	raw, ok := t.lookup(key)
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
func (s *MemStore) Update(fn func(Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	txn := &memTxn{
		store:    s,
		pending:  make(map[string][]byte),
		deleted:  make(map[string]bool),
		writable: true,
	}
	if err := fn(txn); err != nil {
		return err
	}
	for k := range txn.deleted {
		delete(s.data, k)
	}
	for k, raw := range txn.pending {
		s.data[k] = raw
	}
	return nil
}

// View implements the Store interface.
func (s *MemStore) View(fn func(Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memTxn{store: s})
}

// Close implements the Store interface.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
