package coupon

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zkcoupon/native/confirm"
	"zkcoupon/native/registry"
	"zkcoupon/storage"
	"zkcoupon/zkproof"
)

type fixture struct {
	engine   *Engine
	registry *registry.Registry
	gateway  *confirm.Gateway
	verifier *zkproof.DevVerifier
	merchant *registry.Merchant
	program  *registry.Program
	now      int64
}

func newFixture(t *testing.T, validity int64, maxIssuance uint64) *fixture {
	t.Helper()
	st := storage.NewMemStore()
	t.Cleanup(func() { _ = st.Close() })

	verifier := zkproof.NewDevVerifier([]byte("test"))
	gateway := confirm.NewGateway(st)
	reg := registry.NewRegistry(st)
	engine := NewEngine(st, verifier, gateway)

	f := &fixture{
		engine:   engine,
		registry: reg,
		gateway:  gateway,
		verifier: verifier,
		now:      1_700_000_000,
	}
	clock := func() int64 { return f.now }
	engine.SetNowFunc(clock)
	gateway.SetNowFunc(clock)
	reg.SetNowFunc(clock)

	merchant, err := reg.RegisterMerchant("Acme", [20]byte{0xAA})
	require.NoError(t, err)
	program, err := reg.CreateProgram(merchant.ID, validity, maxIssuance, []byte("vk-1"))
	require.NoError(t, err)
	f.merchant = merchant
	f.program = program
	return f
}

func (f *fixture) issue(t *testing.T, owner [20]byte, metadata [32]byte) *Coupon {
	t.Helper()
	minted, err := f.issueErr(owner, metadata)
	require.NoError(t, err)
	return minted
}

func (f *fixture) issueErr(owner [20]byte, metadata [32]byte) (*Coupon, error) {
	inputs := zkproof.IssuanceInputs(f.program.ID, owner, metadata, f.program.KeyVersion)
	key, _ := f.program.VerificationKey(f.program.KeyVersion)
	proof := f.verifier.Prove(inputs, key)
	return f.engine.Issue(f.program.ID, owner, metadata, proof, inputs)
}

func (f *fixture) redeem(t *testing.T, minted *Coupon) error {
	t.Helper()
	token, err := f.engine.InitiateRedemption(minted.TokenID, 10*time.Minute)
	require.NoError(t, err)
	inputs := zkproof.RedemptionInputs(minted.TokenID, minted.Owner, minted.KeyVersion)
	key, _ := f.program.VerificationKey(minted.KeyVersion)
	proof := f.verifier.Prove(inputs, key)
	return f.engine.Redeem(minted.TokenID, proof, inputs, token.ID)
}

func TestIssueMintsCoupon(t *testing.T) {
	f := newFixture(t, 3600, 10)
	owner := [20]byte{1}
	metadata := [32]byte{2}

	minted := f.issue(t, owner, metadata)
	require.Equal(t, TokenID(f.program.ID, owner, metadata), minted.TokenID)
	require.Equal(t, StatusIssued, minted.Status)
	require.Equal(t, f.now+3600, minted.ExpiresAt)
	require.Equal(t, uint32(1), minted.KeyVersion)

	program, err := f.registry.Program(f.program.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), program.IssuedCount)

	valid, err := f.engine.IsValid(minted.TokenID)
	require.NoError(t, err)
	require.True(t, valid)
}

func TestIssueIsIdempotent(t *testing.T) {
	f := newFixture(t, 3600, 10)
	owner := [20]byte{1}
	metadata := [32]byte{2}

	first := f.issue(t, owner, metadata)
	second := f.issue(t, owner, metadata)
	require.Equal(t, first.TokenID, second.TokenID)
	require.Equal(t, first.IssuedAt, second.IssuedAt)

	// The retry must not consume a cap slot.
	program, err := f.registry.Program(f.program.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), program.IssuedCount)
}

func TestIssueRejectsInvalidProof(t *testing.T) {
	f := newFixture(t, 3600, 10)
	owner := [20]byte{1}
	metadata := [32]byte{2}

	inputs := zkproof.IssuanceInputs(f.program.ID, owner, metadata, f.program.KeyVersion)
	_, err := f.engine.Issue(f.program.ID, owner, metadata, []byte("garbage"), inputs)
	require.ErrorIs(t, err, zkproof.ErrInvalidProof)

	// A proof minted for a different owner fails the binding equality.
	key, _ := f.program.VerificationKey(f.program.KeyVersion)
	otherInputs := zkproof.IssuanceInputs(f.program.ID, [20]byte{9}, metadata, f.program.KeyVersion)
	proof := f.verifier.Prove(otherInputs, key)
	_, err = f.engine.Issue(f.program.ID, owner, metadata, proof, otherInputs)
	require.ErrorIs(t, err, zkproof.ErrInvalidProof)

	// Nothing was persisted.
	_, err = f.engine.Get(TokenID(f.program.ID, owner, metadata))
	require.ErrorIs(t, err, ErrCouponNotFound)
}

func TestIssueRejectsZeroOwner(t *testing.T) {
	f := newFixture(t, 3600, 10)
	inputs := zkproof.IssuanceInputs(f.program.ID, [20]byte{}, [32]byte{2}, 1)
	_, err := f.engine.Issue(f.program.ID, [20]byte{}, [32]byte{2}, []byte("x"), inputs)
	require.ErrorIs(t, err, ErrInvalidOwner)
}

func TestIssueRejectsInactiveMerchant(t *testing.T) {
	f := newFixture(t, 3600, 10)
	inactive := false
	_, err := f.registry.UpdateMerchantDetails(f.merchant.ID, registry.MerchantUpdate{Active: &inactive})
	require.NoError(t, err)

	_, err = f.issueErr([20]byte{1}, [32]byte{2})
	require.ErrorIs(t, err, registry.ErrMerchantInactive)
}

func TestIssueRejectsUnknownProgram(t *testing.T) {
	f := newFixture(t, 3600, 10)
	inputs := zkproof.IssuanceInputs([32]byte{9}, [20]byte{1}, [32]byte{2}, 1)
	_, err := f.engine.Issue([32]byte{9}, [20]byte{1}, [32]byte{2}, []byte("x"), inputs)
	require.ErrorIs(t, err, registry.ErrProgramNotFound)
}

func TestIssuanceCapEnforced(t *testing.T) {
	f := newFixture(t, 3600, 2)

	f.issue(t, [20]byte{1}, [32]byte{1})
	f.issue(t, [20]byte{2}, [32]byte{2})
	_, err := f.issueErr([20]byte{3}, [32]byte{3})
	require.ErrorIs(t, err, ErrIssuanceCapReached)
}

func TestIssuanceCapUnderConcurrency(t *testing.T) {
	f := newFixture(t, 3600, 1)

	const racers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		minted int
		capped int
	)
	for i := 0; i < racers; i++ {
		owner := [20]byte{byte(i + 1)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.issueErr(owner, [32]byte{0xFF})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				minted++
			case err == ErrIssuanceCapReached:
				capped++
			default:
				t.Errorf("unexpected issue error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, minted, "exactly one racer may win the last slot")
	require.Equal(t, racers-1, capped)

	program, err := f.registry.Program(f.program.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), program.IssuedCount)
}

func TestRedeemHappyPath(t *testing.T) {
	f := newFixture(t, 3600, 10)
	minted := f.issue(t, [20]byte{1}, [32]byte{2})

	require.NoError(t, f.redeem(t, minted))

	record, err := f.engine.Get(minted.TokenID)
	require.NoError(t, err)
	require.Equal(t, StatusRedeemed, record.Status)
	require.Equal(t, f.now, record.RedeemedAt)

	valid, err := f.engine.IsValid(minted.TokenID)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestRedeemRejectsSecondAttempt(t *testing.T) {
	f := newFixture(t, 3600, 10)
	minted := f.issue(t, [20]byte{1}, [32]byte{2})

	// Mint both confirmation tokens up front so the retry reaches Redeem
	// itself rather than failing at initiation.
	first, err := f.engine.InitiateRedemption(minted.TokenID, 10*time.Minute)
	require.NoError(t, err)
	second, err := f.engine.InitiateRedemption(minted.TokenID, 10*time.Minute)
	require.NoError(t, err)

	key, _ := f.program.VerificationKey(minted.KeyVersion)
	inputs := zkproof.RedemptionInputs(minted.TokenID, minted.Owner, minted.KeyVersion)
	proof := f.verifier.Prove(inputs, key)

	require.NoError(t, f.engine.Redeem(minted.TokenID, proof, inputs, first.ID))

	// Retrying with identical arguments and a fresh unused token still fails:
	// the coupon's terminal state, not the token, blocks the second spend.
	err = f.engine.Redeem(minted.TokenID, proof, inputs, second.ID)
	require.ErrorIs(t, err, ErrCouponAlreadyRedeemed)

	// The second token survives the rejected attempt untouched.
	stored, err := f.gateway.Token(second.ID)
	require.NoError(t, err)
	require.False(t, stored.Used)

	// Initiation also refuses once the coupon is redeemed.
	_, err = f.engine.InitiateRedemption(minted.TokenID, 10*time.Minute)
	require.ErrorIs(t, err, ErrCouponAlreadyRedeemed)
}

func TestRedeemRejectsInvalidProof(t *testing.T) {
	f := newFixture(t, 3600, 10)
	minted := f.issue(t, [20]byte{1}, [32]byte{2})
	token, err := f.engine.InitiateRedemption(minted.TokenID, 10*time.Minute)
	require.NoError(t, err)

	inputs := zkproof.RedemptionInputs(minted.TokenID, minted.Owner, minted.KeyVersion)
	err = f.engine.Redeem(minted.TokenID, []byte("garbage"), inputs, token.ID)
	require.ErrorIs(t, err, zkproof.ErrInvalidProof)

	// The failed attempt must leave both the coupon and the token reusable.
	record, err := f.engine.Get(minted.TokenID)
	require.NoError(t, err)
	require.Equal(t, StatusIssued, record.Status)
	stored, err := f.gateway.Token(token.ID)
	require.NoError(t, err)
	require.False(t, stored.Used)
}

func TestRedeemRejectsProofForOtherCoupon(t *testing.T) {
	f := newFixture(t, 3600, 10)
	minted := f.issue(t, [20]byte{1}, [32]byte{2})
	other := f.issue(t, [20]byte{3}, [32]byte{4})

	token, err := f.engine.InitiateRedemption(minted.TokenID, 10*time.Minute)
	require.NoError(t, err)

	key, _ := f.program.VerificationKey(minted.KeyVersion)
	inputs := zkproof.RedemptionInputs(other.TokenID, other.Owner, other.KeyVersion)
	proof := f.verifier.Prove(inputs, key)
	err = f.engine.Redeem(minted.TokenID, proof, inputs, token.ID)
	require.ErrorIs(t, err, zkproof.ErrInvalidProof)
}

func TestRedeemRejectsTokenForOtherCoupon(t *testing.T) {
	f := newFixture(t, 3600, 10)
	minted := f.issue(t, [20]byte{1}, [32]byte{2})
	other := f.issue(t, [20]byte{1}, [32]byte{4})

	// Token bound to the other coupon's payload.
	token, err := f.engine.InitiateRedemption(other.TokenID, 10*time.Minute)
	require.NoError(t, err)

	key, _ := f.program.VerificationKey(minted.KeyVersion)
	inputs := zkproof.RedemptionInputs(minted.TokenID, minted.Owner, minted.KeyVersion)
	proof := f.verifier.Prove(inputs, key)
	err = f.engine.Redeem(minted.TokenID, proof, inputs, token.ID)
	require.ErrorIs(t, err, confirm.ErrTokenMismatch)

	// The coupon stays issued when token consumption fails.
	record, err := f.engine.Get(minted.TokenID)
	require.NoError(t, err)
	require.Equal(t, StatusIssued, record.Status)
}

func TestRedeemRejectsUsedToken(t *testing.T) {
	f := newFixture(t, 3600, 10)
	minted := f.issue(t, [20]byte{1}, [32]byte{2})

	token, err := f.engine.InitiateRedemption(minted.TokenID, 10*time.Minute)
	require.NoError(t, err)
	_, err = f.gateway.Consume(token.ID, confirm.ActionRedeem, minted.Owner, minted.TokenID[:])
	require.NoError(t, err)

	key, _ := f.program.VerificationKey(minted.KeyVersion)
	inputs := zkproof.RedemptionInputs(minted.TokenID, minted.Owner, minted.KeyVersion)
	proof := f.verifier.Prove(inputs, key)
	err = f.engine.Redeem(minted.TokenID, proof, inputs, token.ID)
	require.ErrorIs(t, err, confirm.ErrTokenAlreadyUsed)
}

func TestRedeemAgainstRotatedKeyUsesIssuanceVersion(t *testing.T) {
	f := newFixture(t, 3600, 10)
	minted := f.issue(t, [20]byte{1}, [32]byte{2})

	// Rotate after issuance; the coupon still redeems against version 1.
	_, err := f.registry.RegisterVerificationKey(f.program.ID, f.merchant.ID, []byte("vk-2"))
	require.NoError(t, err)

	require.NoError(t, f.redeem(t, minted))
}

func TestExpiryIsLazy(t *testing.T) {
	f := newFixture(t, 100, 10)
	minted := f.issue(t, [20]byte{1}, [32]byte{2})

	f.now += 101

	// Reads compute expiry without writing.
	valid, err := f.engine.IsValid(minted.TokenID)
	require.NoError(t, err)
	require.False(t, valid)
	record, err := f.engine.Get(minted.TokenID)
	require.NoError(t, err)
	require.Equal(t, StatusIssued, record.Status)

	// A redemption attempt materialises the transition.
	_, err = f.engine.InitiateRedemption(minted.TokenID, 10*time.Minute)
	require.ErrorIs(t, err, ErrCouponExpired)
	record, err = f.engine.Get(minted.TokenID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, record.Status)
}

func TestRedeemExpiredCoupon(t *testing.T) {
	f := newFixture(t, 100, 10)
	minted := f.issue(t, [20]byte{1}, [32]byte{2})
	token, err := f.engine.InitiateRedemption(minted.TokenID, time.Hour)
	require.NoError(t, err)

	f.now += 101

	key, _ := f.program.VerificationKey(minted.KeyVersion)
	inputs := zkproof.RedemptionInputs(minted.TokenID, minted.Owner, minted.KeyVersion)
	proof := f.verifier.Prove(inputs, key)
	err = f.engine.Redeem(minted.TokenID, proof, inputs, token.ID)
	require.ErrorIs(t, err, ErrCouponExpired)

	record, err := f.engine.Get(minted.TokenID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, record.Status)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, 100, 10)
	a := f.issue(t, [20]byte{1}, [32]byte{1})
	b := f.issue(t, [20]byte{2}, [32]byte{2})
	require.NoError(t, f.redeem(t, b))

	f.now += 101

	swept, err := f.engine.SweepExpired()
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	record, err := f.engine.Get(a.TokenID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, record.Status)

	// Redeemed coupons are untouched, and the sweep is idempotent.
	record, err = f.engine.Get(b.TokenID)
	require.NoError(t, err)
	require.Equal(t, StatusRedeemed, record.Status)
	swept, err = f.engine.SweepExpired()
	require.NoError(t, err)
	require.Zero(t, swept)
}

func TestOwnerAndMerchantIndexes(t *testing.T) {
	f := newFixture(t, 3600, 10)
	owner := [20]byte{1}
	first := f.issue(t, owner, [32]byte{1})
	second := f.issue(t, owner, [32]byte{2})
	f.issue(t, [20]byte{2}, [32]byte{3})

	mine, err := f.engine.OwnerCoupons(owner)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, first.TokenID, mine[0].TokenID)
	require.Equal(t, second.TokenID, mine[1].TokenID)

	all, err := f.engine.MerchantCoupons(f.merchant.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestGetUnknownCoupon(t *testing.T) {
	f := newFixture(t, 3600, 10)
	_, err := f.engine.Get([32]byte{42})
	require.ErrorIs(t, err, ErrCouponNotFound)
	_, err = f.engine.IsValid([32]byte{42})
	require.ErrorIs(t, err, ErrCouponNotFound)
}
