// Package wallet implements the wallet directory: identity commitments map
// deterministically to wallet addresses, and recovery rebinds a commitment
// without a held private key.
package wallet

import (
	"bytes"
	"errors"
	"time"

	"zkcoupon/core/events"
	"zkcoupon/crypto"
	"zkcoupon/storage"
	"zkcoupon/zkproof"
)

var (
	// ErrWalletExists is returned when a wallet was already created for the
	// identity commitment.
	ErrWalletExists = errors.New("wallet: wallet already exists")
	// ErrWalletNotFound is returned when no wallet matches the lookup.
	ErrWalletNotFound = errors.New("wallet: wallet not found")
	// ErrRecoveryConflict is returned when a concurrent recovery won, or the
	// new commitment is already bound elsewhere.
	ErrRecoveryConflict = errors.New("wallet: recovery conflict")
	// ErrInvalidCommitment is returned for zero-valued commitments.
	ErrInvalidCommitment = errors.New("wallet: invalid commitment")
	// ErrInvalidRecoveryKey is returned when creation carries no recovery
	// verification key.
	ErrInvalidRecoveryKey = errors.New("wallet: recovery verification key required")
)

// Wallet is the persisted directory record. Address never changes; the
// identity commitment may be rebound by recovery, which strips the prior
// commitment's authority. RecoveryKey holds the serialised verification key
// for the wallet's recovery statement, in whatever shape the configured
// verifier deserialises.
type Wallet struct {
	Address            [20]byte
	IdentityCommitment [32]byte
	RecoveryKey        []byte
	CreatedAt          int64
	RecoveredAt        int64
}

// Clone returns a copy of the wallet record.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	clone := *w
	clone.RecoveryKey = append([]byte(nil), w.RecoveryKey...)
	return &clone
}

func walletKey(address [20]byte) []byte {
	return append([]byte("wallet/record/"), address[:]...)
}

func commitmentKey(commitment [32]byte) []byte {
	return append([]byte("wallet/commitment/"), commitment[:]...)
}

// Directory owns wallet records and the commitment index.
type Directory struct {
	st       storage.Store
	verifier zkproof.Verifier
	emitter  events.Emitter
	nowFn    func() int64
}

// NewDirectory creates a directory over the supplied store. The verifier
// gates recovery using the key material recorded at wallet creation.
func NewDirectory(st storage.Store, verifier zkproof.Verifier) *Directory {
	return &Directory{
		st:       st,
		verifier: verifier,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (d *Directory) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		d.emitter = events.NoopEmitter{}
		return
	}
	d.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (d *Directory) SetNowFunc(now func() int64) {
	if now == nil {
		d.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	d.nowFn = now
}

func (d *Directory) emit(evt events.Event) {
	if d == nil || d.emitter == nil || evt == nil {
		return
	}
	d.emitter.Emit(evt)
}

// AddressOf derives the wallet address for an identity commitment without
// touching storage. The same commitment always yields the same address.
func AddressOf(identityCommitment [32]byte) [20]byte {
	return crypto.WalletAddressFromCommitment(identityCommitment)
}

// Create mints the wallet for an identity commitment. Creation is rejected
// with ErrWalletExists when the derived address or the commitment is already
// bound; callers that only need the address should use Lookup instead.
func (d *Directory) Create(identityCommitment [32]byte, recoveryKey []byte) (*Wallet, error) {
	if identityCommitment == ([32]byte{}) {
		return nil, ErrInvalidCommitment
	}
	if len(recoveryKey) == 0 {
		return nil, ErrInvalidRecoveryKey
	}
	record := &Wallet{
		Address:            AddressOf(identityCommitment),
		IdentityCommitment: identityCommitment,
		RecoveryKey:        append([]byte(nil), recoveryKey...),
		CreatedAt:          d.nowFn(),
	}
	err := d.st.Update(func(txn storage.Txn) error {
		existing := new(Wallet)
		ok, err := txn.KVGet(walletKey(record.Address), existing)
		if err != nil {
			return err
		}
		if ok {
			return ErrWalletExists
		}
		var bound [20]byte
		ok, err = txn.KVGet(commitmentKey(identityCommitment), &bound)
		if err != nil {
			return err
		}
		if ok {
			return ErrWalletExists
		}
		if err := txn.KVPut(walletKey(record.Address), record); err != nil {
			return err
		}
		return txn.KVPut(commitmentKey(identityCommitment), record.Address)
	})
	if err != nil {
		return nil, err
	}
	d.emit(events.WalletCreated{Address: record.Address})
	return record.Clone(), nil
}

// Lookup resolves a wallet by identity commitment. After recovery the stale
// commitment stops resolving and the replacement resolves instead.
func (d *Directory) Lookup(identityCommitment [32]byte) (*Wallet, error) {
	record := new(Wallet)
	err := d.st.View(func(txn storage.Txn) error {
		var address [20]byte
		ok, err := txn.KVGet(commitmentKey(identityCommitment), &address)
		if err != nil {
			return err
		}
		if !ok {
			return ErrWalletNotFound
		}
		ok, err = txn.KVGet(walletKey(address), record)
		if err != nil {
			return err
		}
		if !ok {
			return ErrWalletNotFound
		}
		if record.IdentityCommitment != identityCommitment {
			return ErrWalletNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Get resolves a wallet by address.
func (d *Directory) Get(address [20]byte) (*Wallet, error) {
	record := new(Wallet)
	err := d.st.View(func(txn storage.Txn) error {
		ok, err := txn.KVGet(walletKey(address), record)
		if err != nil {
			return err
		}
		if !ok {
			return ErrWalletNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Recover rebinds the wallet's identity commitment after validating the
// recovery proof against the verification key recorded at creation.
// Concurrent recovery attempts serialise on the store; the loser observes a
// changed record and fails with ErrRecoveryConflict instead of silently
// overwriting.
func (d *Directory) Recover(address [20]byte, newIdentityCommitment [32]byte, recoveryProof []byte) (*Wallet, error) {
	if newIdentityCommitment == ([32]byte{}) {
		return nil, ErrInvalidCommitment
	}
	current, err := d.Get(address)
	if err != nil {
		return nil, err
	}
	inputs := zkproof.RecoveryInputs(address, newIdentityCommitment)
	if err := d.verifier.Verify(recoveryProof, inputs, current.RecoveryKey); err != nil {
		return nil, err
	}
	var result *Wallet
	err = d.st.Update(func(txn storage.Txn) error {
		record := new(Wallet)
		ok, err := txn.KVGet(walletKey(address), record)
		if err != nil {
			return err
		}
		if !ok {
			return ErrWalletNotFound
		}
		// The proof was checked against the snapshot; if the record moved
		// underneath us a concurrent recovery won.
		if record.IdentityCommitment != current.IdentityCommitment ||
			!bytes.Equal(record.RecoveryKey, current.RecoveryKey) {
			return ErrRecoveryConflict
		}
		var bound [20]byte
		ok, err = txn.KVGet(commitmentKey(newIdentityCommitment), &bound)
		if err != nil {
			return err
		}
		if ok && bound != address {
			return ErrRecoveryConflict
		}
		if err := txn.KVDelete(commitmentKey(record.IdentityCommitment)); err != nil {
			return err
		}
		record.IdentityCommitment = newIdentityCommitment
		record.RecoveredAt = d.nowFn()
		if err := txn.KVPut(walletKey(address), record); err != nil {
			return err
		}
		if err := txn.KVPut(commitmentKey(newIdentityCommitment), address); err != nil {
			return err
		}
		result = record.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.emit(events.WalletRecovered{Address: address, RecoveredAt: result.RecoveredAt})
	return result, nil
}
