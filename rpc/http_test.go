package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"zkcoupon/crypto"
	"zkcoupon/native/confirm"
	"zkcoupon/native/coupon"
	"zkcoupon/native/registry"
	"zkcoupon/native/wallet"
	"zkcoupon/services/notify"
	"zkcoupon/storage"
	"zkcoupon/zkproof"
)

// captureNotifier records every delivered confirmation token so the test can
// play the wallet owner's role in the out-of-band leg.
type captureNotifier struct {
	notices []notify.TokenNotice
}

func (c *captureNotifier) Deliver(_ context.Context, notice notify.TokenNotice) error {
	c.notices = append(c.notices, notice)
	return nil
}

type env struct {
	ts       *httptest.Server
	verifier *zkproof.DevVerifier
	captured *captureNotifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := storage.NewMemStore()
	t.Cleanup(func() { _ = st.Close() })

	verifier := zkproof.NewDevVerifier([]byte("rpc-test"))
	captured := &captureNotifier{}

	reg := registry.NewRegistry(st)
	tokens := confirm.NewGateway(st)
	tokens.SetEmitter(&notify.Bridge{Notifier: captured})
	wallets := wallet.NewDirectory(st, verifier)
	ledger := coupon.NewEngine(st, verifier, tokens)

	server := NewServer(reg, ledger, wallets, nil)
	server.SetConfirmationTTL(time.Minute)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &env{ts: ts, verifier: verifier, captured: captured}
}

func (e *env) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	return e.do(t, http.MethodPost, path, body, out)
}

func (e *env) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *env) get(t *testing.T, path string, out any) int {
	t.Helper()
	return e.do(t, http.MethodGet, path, nil, out)
}

type merchantResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type programResponse struct {
	ID         common.Hash `json:"id"`
	KeyVersion uint32      `json:"keyVersion"`
}

type walletResponse struct {
	Address common.Address `json:"address"`
}

type couponResponse struct {
	TokenID common.Hash `json:"tokenId"`
	Status  string      `json:"status"`
}

func TestFullCouponLifecycle(t *testing.T) {
	e := newEnv(t)
	verificationKey := []byte("vk-1")

	// Merchant onboarding.
	var merchant merchantResponse
	status := e.post(t, "/v1/merchants", map[string]any{
		"name":          "Acme Retail",
		"walletAddress": common.Address{0xAA}.Hex(),
	}, &merchant)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, merchant.Active)

	var program programResponse
	status = e.post(t, "/v1/programs", map[string]any{
		"merchantId":      merchant.ID,
		"validityPeriod":  3600,
		"maxIssuance":     10,
		"verificationKey": hexutil.Encode(verificationKey),
	}, &program)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, uint32(1), program.KeyVersion)

	// Wallet creation from a client-derived identity commitment.
	commitment, err := crypto.DeriveIdentityCommitment("alice@example.com", []byte("pepper"))
	require.NoError(t, err)
	var owner walletResponse
	status = e.post(t, "/v1/wallets", map[string]any{
		"identityCommitment": hexutil.Encode(commitment[:]),
		"recoveryKey":        hexutil.Encode([]byte("recovery-vk")),
	}, &owner)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, common.Address(wallet.AddressOf(commitment)), owner.Address)

	// Issuance with a proof bound to the exact context.
	metadata := common.Hash{0x22}
	issueInputs := zkproof.IssuanceInputs([32]byte(program.ID), [20]byte(owner.Address), [32]byte(metadata), 1)
	proof := e.verifier.Prove(issueInputs, verificationKey)

	var minted couponResponse
	status = e.post(t, "/v1/coupons", map[string]any{
		"programId":          program.ID,
		"owner":              owner.Address.Hex(),
		"metadataCommitment": metadata,
		"proof":              hexutil.Encode(proof),
		"publicInputs": map[string]any{
			"kind":               "issuance",
			"programId":          program.ID,
			"wallet":             owner.Address.Hex(),
			"metadataCommitment": metadata,
			"keyVersion":         1,
		},
	}, &minted)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "issued", minted.Status)

	var check struct {
		Valid bool `json:"valid"`
	}
	status = e.get(t, "/v1/coupons/"+minted.TokenID.Hex()+"/valid", &check)
	require.Equal(t, http.StatusOK, status)
	require.True(t, check.Valid)

	// Initiation returns pending and withholds the token value.
	var initiated struct {
		Status    string `json:"status"`
		ExpiresAt int64  `json:"expiresAt"`
	}
	status = e.post(t, "/v1/coupons/"+minted.TokenID.Hex()+"/redemption", nil, &initiated)
	require.Equal(t, http.StatusAccepted, status)
	require.Equal(t, "pending", initiated.Status)
	require.Len(t, e.captured.notices, 1, "token must travel out-of-band")
	confirmation := e.captured.notices[0].Token

	// Redemption with the proof and the delivered token.
	redeemInputs := zkproof.RedemptionInputs([32]byte(minted.TokenID), [20]byte(owner.Address), 1)
	redeemProof := e.verifier.Prove(redeemInputs, verificationKey)

	var redeemed couponResponse
	status = e.post(t, "/v1/coupons/"+minted.TokenID.Hex()+"/redeem", map[string]any{
		"proof": hexutil.Encode(redeemProof),
		"publicInputs": map[string]any{
			"kind":       "redemption",
			"tokenId":    minted.TokenID,
			"wallet":     owner.Address.Hex(),
			"keyVersion": 1,
		},
		"confirmationToken": confirmation,
	}, &redeemed)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "redeemed", redeemed.Status)

	// A second redemption conflicts.
	status = e.post(t, "/v1/coupons/"+minted.TokenID.Hex()+"/redeem", map[string]any{
		"proof": hexutil.Encode(redeemProof),
		"publicInputs": map[string]any{
			"kind":       "redemption",
			"tokenId":    minted.TokenID,
			"wallet":     owner.Address.Hex(),
			"keyVersion": 1,
		},
		"confirmationToken": confirmation,
	}, nil)
	require.Equal(t, http.StatusConflict, status)

	// Read surfaces.
	var mine []couponResponse
	status = e.get(t, fmt.Sprintf("/v1/wallets/%s/coupons", owner.Address.Hex()), &mine)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, mine, 1)

	var merchants []couponResponse
	status = e.get(t, "/v1/merchants/"+merchant.ID+"/coupons", &merchants)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, merchants, 1)
}

func TestErrorStatusMapping(t *testing.T) {
	e := newEnv(t)

	status := e.get(t, "/v1/merchants/missing", nil)
	require.Equal(t, http.StatusNotFound, status)

	missing := common.Hash{0x99}
	status = e.get(t, "/v1/coupons/"+missing.Hex(), nil)
	require.Equal(t, http.StatusNotFound, status)

	status = e.post(t, "/v1/merchants", map[string]any{
		"name":          "",
		"walletAddress": common.Address{0xAA}.Hex(),
	}, nil)
	require.Equal(t, http.StatusBadRequest, status)

	status = e.post(t, "/v1/programs", map[string]any{
		"merchantId":     "missing",
		"validityPeriod": 3600,
		"maxIssuance":    1,
	}, nil)
	require.Equal(t, http.StatusNotFound, status)

	status = e.get(t, "/v1/coupons/not-a-hash", nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestIssuanceRejectsBadProofWith422(t *testing.T) {
	e := newEnv(t)

	var merchant merchantResponse
	e.post(t, "/v1/merchants", map[string]any{
		"name":          "Acme",
		"walletAddress": common.Address{0xAA}.Hex(),
	}, &merchant)
	var program programResponse
	e.post(t, "/v1/programs", map[string]any{
		"merchantId":      merchant.ID,
		"validityPeriod":  3600,
		"maxIssuance":     10,
		"verificationKey": hexutil.Encode([]byte("vk-1")),
	}, &program)

	owner := common.Address{0x01}
	metadata := common.Hash{0x22}
	status := e.post(t, "/v1/coupons", map[string]any{
		"programId":          program.ID,
		"owner":              owner.Hex(),
		"metadataCommitment": metadata,
		"proof":              hexutil.Encode([]byte("garbage")),
		"publicInputs": map[string]any{
			"kind":               "issuance",
			"programId":          program.ID,
			"wallet":             owner.Hex(),
			"metadataCommitment": metadata,
			"keyVersion":         1,
		},
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestWalletCreationIsDeterministic(t *testing.T) {
	e := newEnv(t)

	commitment, err := crypto.DeriveIdentityCommitment("user@example.com", []byte("pepper"))
	require.NoError(t, err)
	body := map[string]any{
		"identityCommitment": hexutil.Encode(commitment[:]),
		"recoveryKey":        hexutil.Encode([]byte("recovery-vk")),
	}

	var first walletResponse
	status := e.post(t, "/v1/wallets", body, &first)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, common.Address(wallet.AddressOf(commitment)), first.Address)

	// Repeating the identical request must not mint a second wallet under a
	// different address; the commitment already resolves to the first one.
	status = e.post(t, "/v1/wallets", body, nil)
	require.Equal(t, http.StatusConflict, status)

	var looked walletResponse
	status = e.get(t, "/v1/wallets/by-commitment/"+hexutil.Encode(commitment[:]), &looked)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, first.Address, looked.Address)
}

func TestWalletCreationRejectsRawIdentifiers(t *testing.T) {
	e := newEnv(t)

	// Raw identifiers are not part of the wallet-creation contract; unknown
	// fields are rejected outright.
	status := e.post(t, "/v1/wallets", map[string]any{
		"email":       "user@example.com",
		"recoveryKey": hexutil.Encode([]byte("recovery-vk")),
	}, nil)
	require.Equal(t, http.StatusBadRequest, status)

	status = e.post(t, "/v1/wallets", map[string]any{
		"identityCommitment": hexutil.Encode([]byte("short")),
		"recoveryKey":        hexutil.Encode([]byte("recovery-vk")),
	}, nil)
	require.Equal(t, http.StatusBadRequest, status)

	commitment := bytes.Repeat([]byte{0x22}, 32)
	status = e.post(t, "/v1/wallets", map[string]any{
		"identityCommitment": hexutil.Encode(commitment),
	}, nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestWalletRecoveryOverHTTP(t *testing.T) {
	e := newEnv(t)

	recoveryKey := []byte("recovery-vk")
	identity := bytes.Repeat([]byte{0x22}, 32)

	var created walletResponse
	status := e.post(t, "/v1/wallets", map[string]any{
		"identityCommitment": hexutil.Encode(identity),
		"recoveryKey":        hexutil.Encode(recoveryKey),
	}, &created)
	require.Equal(t, http.StatusCreated, status)

	newIdentity := bytes.Repeat([]byte{0x33}, 32)
	var newCommitment [32]byte
	copy(newCommitment[:], newIdentity)
	proof := e.verifier.Prove(zkproof.RecoveryInputs([20]byte(created.Address), newCommitment), recoveryKey)

	var recovered walletResponse
	status = e.post(t, "/v1/wallets/"+created.Address.Hex()+"/recover", map[string]any{
		"newIdentityCommitment": hexutil.Encode(newIdentity),
		"recoveryProof":         hexutil.Encode(proof),
	}, &recovered)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, created.Address, recovered.Address)

	// The replacement commitment resolves; the stale one is 404.
	var looked walletResponse
	status = e.get(t, "/v1/wallets/by-commitment/"+hexutil.Encode(newIdentity), &looked)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, created.Address, looked.Address)
	status = e.get(t, "/v1/wallets/by-commitment/"+hexutil.Encode(identity), nil)
	require.Equal(t, http.StatusNotFound, status)
}
