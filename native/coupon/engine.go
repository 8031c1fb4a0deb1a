// Package coupon implements the coupon ledger: the state machine governing a
// coupon's lifecycle and the orchestration of proof verification, issuance
// caps and confirmation-gated redemption.
package coupon

import (
	"errors"
	"time"

	"zkcoupon/core/events"
	"zkcoupon/native/confirm"
	"zkcoupon/native/registry"
	"zkcoupon/storage"
	"zkcoupon/zkproof"
)

var (
	// ErrCouponNotFound is returned when the coupon does not exist.
	ErrCouponNotFound = errors.New("coupon: coupon not found")
	// ErrCouponExpired is returned when the coupon's validity window has
	// elapsed. The stored state is lazily transitioned to Expired as a side
	// effect.
	ErrCouponExpired = errors.New("coupon: coupon expired")
	// ErrCouponAlreadyRedeemed is returned when the coupon reached its
	// redeemed terminal state before.
	ErrCouponAlreadyRedeemed = errors.New("coupon: coupon already redeemed")
	// ErrIssuanceCapReached is returned when the program has minted its
	// maximum issuance.
	ErrIssuanceCapReached = errors.New("coupon: issuance cap reached")
	// ErrInvalidOwner is returned when issuance names a zero owner wallet.
	ErrInvalidOwner = errors.New("coupon: owner wallet required")
)

// Engine wires the coupon state machine with the transactional store, the
// proof verifier capability and the confirmation gateway.
type Engine struct {
	st       storage.Store
	verifier zkproof.Verifier
	tokens   *confirm.Gateway
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine creates a coupon engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine(st storage.Store, verifier zkproof.Verifier, tokens *confirm.Gateway) *Engine {
	return &Engine{
		st:       st,
		verifier: verifier,
		tokens:   tokens,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func loadProgram(txn storage.Txn, id [32]byte) (*registry.Program, error) {
	program := new(registry.Program)
	ok, err := txn.KVGet(registry.ProgramKey(id), program)
	if err != nil {
		return nil, err
	}
	if !ok || !program.Active {
		return nil, registry.ErrProgramNotFound
	}
	return program, nil
}

func loadActiveMerchant(txn storage.Txn, id string) (*registry.Merchant, error) {
	merchant := new(registry.Merchant)
	ok, err := txn.KVGet(registry.MerchantKey(id), merchant)
	if err != nil {
		return nil, err
	}
	if !ok || !merchant.Active {
		return nil, registry.ErrMerchantInactive
	}
	return merchant, nil
}

// Issue verifies the issuance proof and atomically mints a coupon under the
// program's issuance cap. The cap check and the increment happen in the same
// transaction as the coupon write, so two issuers racing for the last slot
// cannot both succeed. Retrying a completed issuance with identical
// parameters re-observes the minted coupon.
func (e *Engine) Issue(programID [32]byte, owner [20]byte, metadataCommitment [32]byte, proof []byte, inputs zkproof.PublicInputs) (*Coupon, error) {
	if owner == ([20]byte{}) {
		return nil, ErrInvalidOwner
	}

	// Proof verification is pure, so it runs outside the write transaction
	// against a snapshot; the transaction re-checks the bindings before
	// committing.
	var snapshot *registry.Program
	err := e.st.View(func(txn storage.Txn) error {
		program, err := loadProgram(txn, programID)
		if err != nil {
			return err
		}
		if _, err := loadActiveMerchant(txn, program.MerchantID); err != nil {
			return err
		}
		snapshot = program
		return nil
	})
	if err != nil {
		return nil, err
	}
	verificationKey, ok := snapshot.VerificationKey(snapshot.KeyVersion)
	if !ok {
		return nil, zkproof.ErrInvalidProof
	}
	computed := zkproof.IssuanceInputs(programID, owner, metadataCommitment, snapshot.KeyVersion)
	if inputs != computed {
		return nil, zkproof.ErrInvalidProof
	}
	if err := e.verifier.Verify(proof, computed, verificationKey); err != nil {
		return nil, zkproof.ErrInvalidProof
	}

	tokenID := TokenID(programID, owner, metadataCommitment)
	var (
		minted   *Coupon
		reissued bool
	)
	err = e.st.Update(func(txn storage.Txn) error {
		program, err := loadProgram(txn, programID)
		if err != nil {
			return err
		}
		if _, err := loadActiveMerchant(txn, program.MerchantID); err != nil {
			return err
		}
		if program.KeyVersion != snapshot.KeyVersion {
			// Key rotated between verification and commit.
			return zkproof.ErrInvalidProof
		}
		existing := new(Coupon)
		ok, err := txn.KVGet(couponKey(tokenID), existing)
		if err != nil {
			return err
		}
		if ok {
			minted = existing.Clone()
			reissued = true
			return nil
		}
		if program.IssuedCount >= program.MaxIssuance {
			return ErrIssuanceCapReached
		}
		program.IssuedCount++
		if err := txn.KVPut(registry.ProgramKey(programID), program); err != nil {
			return err
		}
		now := e.nowFn()
		record := &Coupon{
			TokenID:            tokenID,
			MerchantID:         program.MerchantID,
			ProgramID:          programID,
			Owner:              owner,
			MetadataCommitment: metadataCommitment,
			KeyVersion:         program.KeyVersion,
			IssuedAt:           now,
			ExpiresAt:          now + program.ValidityPeriod,
			Status:             StatusIssued,
		}
		if err := txn.KVPut(couponKey(tokenID), record); err != nil {
			return err
		}
		if err := txn.KVAppend(ownerIndexKey(owner), tokenID[:]); err != nil {
			return err
		}
		if err := txn.KVAppend(merchantIndexKey(program.MerchantID), tokenID[:]); err != nil {
			return err
		}
		if err := txn.KVAppend(allCouponsKey(), tokenID[:]); err != nil {
			return err
		}
		minted = record.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !reissued {
		e.emit(events.CouponIssued{
			TokenID:    minted.TokenID,
			ProgramID:  minted.ProgramID,
			MerchantID: minted.MerchantID,
			Owner:      minted.Owner,
			ExpiresAt:  minted.ExpiresAt,
		})
	}
	return minted, nil
}

// Get returns the coupon record for the identifier.
func (e *Engine) Get(tokenID [32]byte) (*Coupon, error) {
	record := new(Coupon)
	err := e.st.View(func(txn storage.Txn) error {
		ok, err := txn.KVGet(couponKey(tokenID), record)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCouponNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// IsValid reports whether the coupon is currently redeemable. Expiry is
// computed freshly from the stored timestamp: a coupon past its window
// reports false even when no write has touched it since expiry.
func (e *Engine) IsValid(tokenID [32]byte) (bool, error) {
	record, err := e.Get(tokenID)
	if err != nil {
		return false, err
	}
	return record.Status == StatusIssued && e.nowFn() < record.ExpiresAt, nil
}

// markExpired persists the Issued -> Expired transition when the validity
// window has elapsed. Idempotent; reports whether this call performed the
// transition.
func (e *Engine) markExpired(tokenID [32]byte) (bool, error) {
	transitioned := false
	err := e.st.Update(func(txn storage.Txn) error {
		record := new(Coupon)
		ok, err := txn.KVGet(couponKey(tokenID), record)
		if err != nil {
			return err
		}
		if !ok || record.Status != StatusIssued || e.nowFn() < record.ExpiresAt {
			return nil
		}
		record.Status = StatusExpired
		transitioned = true
		return txn.KVPut(couponKey(tokenID), record)
	})
	if err != nil {
		return false, err
	}
	if transitioned {
		e.emit(events.CouponExpired{TokenID: tokenID, ExpiredAt: e.nowFn()})
	}
	return transitioned, nil
}

// checkRedeemable maps the coupon's current state to the redemption
// precondition errors, materialising lazy expiry as a side effect.
func (e *Engine) checkRedeemable(record *Coupon) error {
	switch {
	case record.Status == StatusRedeemed:
		return ErrCouponAlreadyRedeemed
	case record.Status == StatusExpired:
		return ErrCouponExpired
	case e.nowFn() >= record.ExpiresAt:
		if _, err := e.markExpired(record.TokenID); err != nil {
			return err
		}
		return ErrCouponExpired
	default:
		return nil
	}
}

// InitiateRedemption mints a Redeem confirmation token bound to the coupon's
// owner wallet for out-of-band delivery. Multiple outstanding tokens for the
// same coupon are allowed; each is independently single-use.
func (e *Engine) InitiateRedemption(tokenID [32]byte, ttl time.Duration) (*confirm.Token, error) {
	record, err := e.Get(tokenID)
	if err != nil {
		return nil, err
	}
	if err := e.checkRedeemable(record); err != nil {
		return nil, err
	}
	return e.tokens.Issue(confirm.ActionRedeem, record.Owner, tokenID[:], ttl)
}

// Redeem validates the redemption proof and the confirmation token, then
// transitions the coupon to Redeemed. Token consumption and the state change
// commit in one transaction: both succeed or neither takes effect, which is
// the at-most-once redemption guarantee.
func (e *Engine) Redeem(tokenID [32]byte, proof []byte, inputs zkproof.PublicInputs, confirmationToken string) error {
	record, err := e.Get(tokenID)
	if err != nil {
		return err
	}
	if err := e.checkRedeemable(record); err != nil {
		return err
	}

	// The proof binds this exact coupon and its owner wallet; a proof minted
	// for another coupon fails the binding equality before verification runs.
	var verificationKey []byte
	err = e.st.View(func(txn storage.Txn) error {
		program := new(registry.Program)
		ok, err := txn.KVGet(registry.ProgramKey(record.ProgramID), program)
		if err != nil {
			return err
		}
		if !ok {
			return registry.ErrProgramNotFound
		}
		key, ok := program.VerificationKey(record.KeyVersion)
		if !ok {
			return zkproof.ErrInvalidProof
		}
		verificationKey = key
		return nil
	})
	if err != nil {
		return err
	}
	computed := zkproof.RedemptionInputs(tokenID, record.Owner, record.KeyVersion)
	if inputs != computed {
		return zkproof.ErrInvalidProof
	}
	if err := e.verifier.Verify(proof, computed, verificationKey); err != nil {
		return zkproof.ErrInvalidProof
	}

	var (
		redeemed *Coupon
		consumed *confirm.Token
	)
	err = e.st.Update(func(txn storage.Txn) error {
		current := new(Coupon)
		ok, err := txn.KVGet(couponKey(tokenID), current)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCouponNotFound
		}
		now := e.nowFn()
		switch {
		case current.Status == StatusRedeemed:
			return ErrCouponAlreadyRedeemed
		case current.Status == StatusExpired:
			return ErrCouponExpired
		case now >= current.ExpiresAt:
			return ErrCouponExpired
		}
		token, err := confirm.ConsumeTx(txn, confirmationToken, confirm.ActionRedeem, current.Owner, tokenID[:], now)
		if err != nil {
			return err
		}
		current.Status = StatusRedeemed
		current.RedeemedAt = now
		if err := txn.KVPut(couponKey(tokenID), current); err != nil {
			return err
		}
		redeemed = current.Clone()
		consumed = token
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCouponExpired) {
			// Materialise the lazy transition observed mid-redeem.
			if _, expireErr := e.markExpired(tokenID); expireErr != nil {
				return expireErr
			}
		}
		return err
	}
	e.emit(events.TokenConsumed{
		Token:  consumed.ID,
		Action: string(consumed.Action),
		Wallet: consumed.Wallet,
		UsedAt: consumed.UsedAt,
	})
	e.emit(events.CouponRedeemed{
		TokenID:    redeemed.TokenID,
		MerchantID: redeemed.MerchantID,
		Owner:      redeemed.Owner,
		RedeemedAt: redeemed.RedeemedAt,
	})
	return nil
}

// OwnerCoupons lists the coupons bound to a wallet in issuance order.
func (e *Engine) OwnerCoupons(owner [20]byte) ([]*Coupon, error) {
	return e.listCoupons(ownerIndexKey(owner))
}

// MerchantCoupons lists the coupons minted under a merchant in issuance
// order.
func (e *Engine) MerchantCoupons(merchantID string) ([]*Coupon, error) {
	return e.listCoupons(merchantIndexKey(merchantID))
}

func (e *Engine) listCoupons(indexKey []byte) ([]*Coupon, error) {
	var coupons []*Coupon
	err := e.st.View(func(txn storage.Txn) error {
		var ids [][]byte
		if err := txn.KVGetList(indexKey, &ids); err != nil {
			return err
		}
		coupons = make([]*Coupon, 0, len(ids))
		for _, raw := range ids {
			var id [32]byte
			copy(id[:], raw)
			record := new(Coupon)
			ok, err := txn.KVGet(couponKey(id), record)
			if err != nil {
				return err
			}
			if ok {
				coupons = append(coupons, record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return coupons, nil
}

// SweepExpired is the reconciliation pass that materialises Expired state for
// coupons whose validity window elapsed without being observed by an
// operation. Each transition commits in its own bounded transaction.
func (e *Engine) SweepExpired() (int, error) {
	var candidates [][32]byte
	err := e.st.View(func(txn storage.Txn) error {
		var ids [][]byte
		if err := txn.KVGetList(allCouponsKey(), &ids); err != nil {
			return err
		}
		now := e.nowFn()
		for _, raw := range ids {
			var id [32]byte
			copy(id[:], raw)
			record := new(Coupon)
			ok, err := txn.KVGet(couponKey(id), record)
			if err != nil {
				return err
			}
			if ok && record.Status == StatusIssued && now >= record.ExpiresAt {
				candidates = append(candidates, id)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, id := range candidates {
		transitioned, err := e.markExpired(id)
		if err != nil {
			return swept, err
		}
		if transitioned {
			swept++
		}
	}
	return swept, nil
}
