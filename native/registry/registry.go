package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"zkcoupon/core/events"
	"zkcoupon/storage"
)

var (
	// ErrMerchantNotFound is returned when the merchant record does not exist.
	ErrMerchantNotFound = errors.New("registry: merchant not found")
	// ErrMerchantInactive is returned when an operation requires an active merchant.
	ErrMerchantInactive = errors.New("registry: merchant inactive")
	// ErrProgramNotFound is returned when the program record does not exist or is retired.
	ErrProgramNotFound = errors.New("registry: program not found")
	// ErrInvalidProgramParams is returned when program parameters fail validation.
	ErrInvalidProgramParams = errors.New("registry: invalid program parameters")
	// ErrNotProgramOwner is returned when a caller operates on a program owned by another merchant.
	ErrNotProgramOwner = errors.New("registry: caller does not own program")
	// ErrInvalidMerchant is returned when merchant registration input fails validation.
	ErrInvalidMerchant = errors.New("registry: invalid merchant")
)

// Registry owns merchant and coupon-program records, issuance caps and
// verification-key bindings.
type Registry struct {
	st      storage.Store
	emitter events.Emitter
	nowFn   func() int64
}

// NewRegistry creates a registry over the supplied store with a no-op
// emitter. Callers can override the emitter via SetEmitter.
func NewRegistry(st storage.Store) *Registry {
	return &Registry{
		st:      st,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Registry) emit(evt events.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(evt)
}

// RegisterMerchant creates a new active merchant record.
func (r *Registry) RegisterMerchant(name string, walletAddress [20]byte) (*Merchant, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidMerchant)
	}
	if walletAddress == ([20]byte{}) {
		return nil, fmt.Errorf("%w: wallet address required", ErrInvalidMerchant)
	}
	now := r.nowFn()
	merchant := &Merchant{
		ID:            uuid.NewString(),
		Name:          trimmed,
		WalletAddress: walletAddress,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := r.st.Update(func(txn storage.Txn) error {
		if err := txn.KVPut(MerchantKey(merchant.ID), merchant); err != nil {
			return err
		}
		return txn.KVAppend(MerchantIndexKey(), []byte(merchant.ID))
	})
	if err != nil {
		return nil, err
	}
	r.emit(events.MerchantRegistered{ID: merchant.ID, Name: merchant.Name, Wallet: merchant.WalletAddress})
	return merchant.Clone(), nil
}

// MerchantUpdate describes the mutable merchant fields. Nil pointers leave
// the current value untouched.
type MerchantUpdate struct {
	Name          *string
	WalletAddress *[20]byte
	Active        *bool
}

// UpdateMerchantDetails applies the supplied update. Setting Active to false
// deactivates the merchant; the record itself is never deleted.
func (r *Registry) UpdateMerchantDetails(id string, update MerchantUpdate) (*Merchant, error) {
	var result *Merchant
	err := r.st.Update(func(txn storage.Txn) error {
		merchant := new(Merchant)
		ok, err := txn.KVGet(MerchantKey(id), merchant)
		if err != nil {
			return err
		}
		if !ok {
			return ErrMerchantNotFound
		}
		if update.Name != nil {
			trimmed := strings.TrimSpace(*update.Name)
			if trimmed == "" {
				return fmt.Errorf("%w: name required", ErrInvalidMerchant)
			}
			merchant.Name = trimmed
		}
		if update.WalletAddress != nil {
			if *update.WalletAddress == ([20]byte{}) {
				return fmt.Errorf("%w: wallet address required", ErrInvalidMerchant)
			}
			merchant.WalletAddress = *update.WalletAddress
		}
		if update.Active != nil {
			merchant.Active = *update.Active
		}
		merchant.UpdatedAt = r.nowFn()
		result = merchant.Clone()
		return txn.KVPut(MerchantKey(id), merchant)
	})
	if err != nil {
		return nil, err
	}
	r.emit(events.MerchantUpdated{ID: result.ID, Active: result.Active})
	return result, nil
}

// CreateProgram registers a coupon program for an active merchant. The
// initial verification key is optional; issuance requires one to be bound
// before proofs can verify.
func (r *Registry) CreateProgram(merchantID string, validityPeriod int64, maxIssuance uint64, verificationKey []byte) (*Program, error) {
	if validityPeriod <= 0 {
		return nil, fmt.Errorf("%w: validity period must be positive", ErrInvalidProgramParams)
	}
	if maxIssuance == 0 {
		return nil, fmt.Errorf("%w: max issuance must be positive", ErrInvalidProgramParams)
	}
	now := r.nowFn()
	program := &Program{
		MerchantID:       merchantID,
		ValidityPeriod:   validityPeriod,
		MaxIssuance:      maxIssuance,
		VerificationKeys: make(map[uint32][]byte),
		Active:           true,
		CreatedAt:        now,
	}
	if len(verificationKey) > 0 {
		program.KeyVersion = 1
		program.VerificationKeys[1] = append([]byte(nil), verificationKey...)
	}
	copy(program.ID[:], ethcrypto.Keccak256([]byte(merchantID), []byte(uuid.NewString())))
	err := r.st.Update(func(txn storage.Txn) error {
		merchant := new(Merchant)
		ok, err := txn.KVGet(MerchantKey(merchantID), merchant)
		if err != nil {
			return err
		}
		if !ok {
			return ErrMerchantNotFound
		}
		if !merchant.Active {
			return ErrMerchantInactive
		}
		if err := txn.KVPut(ProgramKey(program.ID), program); err != nil {
			return err
		}
		return txn.KVAppend(MerchantProgramsKey(merchantID), program.ID[:])
	})
	if err != nil {
		return nil, err
	}
	r.emit(events.ProgramCreated{
		ID:          program.ID,
		MerchantID:  merchantID,
		MaxIssuance: maxIssuance,
	})
	return program.Clone(), nil
}

// RegisterVerificationKey binds a new verification key to the program and
// bumps the key version. Prior versions are retained: outstanding coupons
// redeem against the version recorded at issuance, so rotation never strands
// them.
func (r *Registry) RegisterVerificationKey(programID [32]byte, callerMerchant string, verificationKey []byte) (*Program, error) {
	if len(verificationKey) == 0 {
		return nil, fmt.Errorf("%w: verification key required", ErrInvalidProgramParams)
	}
	var result *Program
	err := r.st.Update(func(txn storage.Txn) error {
		program := new(Program)
		ok, err := txn.KVGet(ProgramKey(programID), program)
		if err != nil {
			return err
		}
		if !ok {
			return ErrProgramNotFound
		}
		if program.MerchantID != callerMerchant {
			return ErrNotProgramOwner
		}
		if program.VerificationKeys == nil {
			program.VerificationKeys = make(map[uint32][]byte)
		}
		program.KeyVersion++
		program.VerificationKeys[program.KeyVersion] = append([]byte(nil), verificationKey...)
		result = program.Clone()
		return txn.KVPut(ProgramKey(programID), program)
	})
	if err != nil {
		return nil, err
	}
	r.emit(events.VerificationKeyRotated{ProgramID: programID, KeyVersion: result.KeyVersion})
	return result, nil
}

// Merchant returns the merchant record for the identifier.
func (r *Registry) Merchant(id string) (*Merchant, error) {
	merchant := new(Merchant)
	err := r.st.View(func(txn storage.Txn) error {
		ok, err := txn.KVGet(MerchantKey(id), merchant)
		if err != nil {
			return err
		}
		if !ok {
			return ErrMerchantNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merchant, nil
}

// Program returns the program record for the identifier.
func (r *Registry) Program(id [32]byte) (*Program, error) {
	program := new(Program)
	err := r.st.View(func(txn storage.Txn) error {
		ok, err := txn.KVGet(ProgramKey(id), program)
		if err != nil {
			return err
		}
		if !ok {
			return ErrProgramNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return program, nil
}

// Merchants lists every registered merchant in registration order.
func (r *Registry) Merchants() ([]*Merchant, error) {
	var merchants []*Merchant
	err := r.st.View(func(txn storage.Txn) error {
		var ids [][]byte
		if err := txn.KVGetList(MerchantIndexKey(), &ids); err != nil {
			return err
		}
		merchants = make([]*Merchant, 0, len(ids))
		for _, id := range ids {
			merchant := new(Merchant)
			ok, err := txn.KVGet(MerchantKey(string(id)), merchant)
			if err != nil {
				return err
			}
			if ok {
				merchants = append(merchants, merchant)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merchants, nil
}

// MerchantPrograms lists the programs owned by a merchant in creation order.
func (r *Registry) MerchantPrograms(merchantID string) ([]*Program, error) {
	var programs []*Program
	err := r.st.View(func(txn storage.Txn) error {
		var ids [][]byte
		if err := txn.KVGetList(MerchantProgramsKey(merchantID), &ids); err != nil {
			return err
		}
		programs = make([]*Program, 0, len(ids))
		for _, raw := range ids {
			var id [32]byte
			copy(id[:], raw)
			program := new(Program)
			ok, err := txn.KVGet(ProgramKey(id), program)
			if err != nil {
				return err
			}
			if ok {
				programs = append(programs, program)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return programs, nil
}
