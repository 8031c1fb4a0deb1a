package storage

import (
	"encoding/json"
	"errors"
)

var (
	// ErrClosed is returned when operating on a store after Close.
	ErrClosed = errors.New("storage: store closed")
	// ErrReadOnly is returned when a view transaction attempts a write.
	ErrReadOnly = errors.New("storage: transaction is read-only")
)

// Txn exposes the keyed record operations available inside a transaction.
// Values are serialised as JSON; list keys hold append-only byte slices used
// for secondary indexes.
type Txn interface {
	KVGet(key []byte, out any) (bool, error)
	KVPut(key []byte, value any) error
	KVDelete(key []byte) error
	KVAppend(key []byte, item []byte) error
	KVGetList(key []byte, out *[][]byte) error
}

// Store is a transactional key-value store. Update runs the supplied closure
// inside a single writable transaction: either every mutation performed by the
// closure is committed, or none is. Updates are serialised, so externally
// observable transitions (cap increments, token consumption, coupon state
// changes) are never interleaved. View runs read-only and never observes a
// half-committed update.
type Store interface {
	Update(fn func(Txn) error) error
	View(fn func(Txn) error) error
	Close() error
}

func encodeValue(value any) ([]byte, error) {
	return json.Marshal(value)
}

func decodeValue(raw []byte, out any) error {
	return json.Unmarshal(raw, out)
}

func encodeList(items [][]byte) ([]byte, error) {
	return json.Marshal(items)
}

func decodeList(raw []byte) ([][]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items [][]byte
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func appendToList(raw []byte, item []byte) ([]byte, error) {
	items, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	items = append(items, append([]byte(nil), item...))
	return encodeList(items)
}
