// Package confirm implements the confirmation gateway: single-use,
// time-limited tokens binding a pending action to a wallet and payload. A
// token authorises at most one execution, enforced with an atomic
// check-and-set even under concurrent confirmation attempts.
package confirm

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"zkcoupon/core/events"
	"zkcoupon/storage"
)

// Action names the pending operation a token authorises. Tokens are never
// reused across actions.
type Action string

const (
	ActionRegister Action = "register"
	ActionLogin    Action = "login"
	ActionRedeem   Action = "redeem"
	ActionRecover  Action = "recover"
)

// Valid reports whether the action is one of the supported values.
func (a Action) Valid() bool {
	switch a {
	case ActionRegister, ActionLogin, ActionRedeem, ActionRecover:
		return true
	default:
		return false
	}
}

var (
	// ErrTokenNotFound is returned when the token does not exist.
	ErrTokenNotFound = errors.New("confirm: token not found")
	// ErrTokenExpired is returned when the token's TTL has elapsed.
	ErrTokenExpired = errors.New("confirm: token expired")
	// ErrTokenAlreadyUsed is returned when the token has been consumed before.
	ErrTokenAlreadyUsed = errors.New("confirm: token already used")
	// ErrTokenMismatch is returned when the token does not bind the expected
	// action, wallet or payload.
	ErrTokenMismatch = errors.New("confirm: token does not match pending action")
	// ErrInvalidAction is returned when issuing a token for an unknown action.
	ErrInvalidAction = errors.New("confirm: invalid action")
)

// Token is the persisted confirmation record. All fields are immutable after
// issuance except Used/UsedAt.
type Token struct {
	ID        string
	Action    Action
	Wallet    [20]byte
	Payload   []byte
	IssuedAt  int64
	ExpiresAt int64
	Used      bool
	UsedAt    int64
}

// Clone returns a copy of the token record.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Payload = append([]byte(nil), t.Payload...)
	return &clone
}

func tokenKey(id string) []byte {
	return append([]byte("confirm/token/"), id...)
}

// Gateway issues and consumes confirmation tokens.
type Gateway struct {
	st      storage.Store
	emitter events.Emitter
	nowFn   func() int64
	idFn    func() (string, error)
}

// NewGateway creates a gateway over the supplied store with a no-op emitter.
func NewGateway(st storage.Store) *Gateway {
	return &Gateway{
		st:      st,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		idFn:    randomTokenID,
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (g *Gateway) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (g *Gateway) SetNowFunc(now func() int64) {
	if now == nil {
		g.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	g.nowFn = now
}

// SetIDFunc overrides token identifier generation. Primarily intended for
// tests that need deterministic tokens.
func (g *Gateway) SetIDFunc(fn func() (string, error)) {
	if fn == nil {
		g.idFn = randomTokenID
		return
	}
	g.idFn = fn
}

func (g *Gateway) emit(evt events.Event) {
	if g == nil || g.emitter == nil || evt == nil {
		return
	}
	g.emitter.Emit(evt)
}

func randomTokenID() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// Issue mints a token in the pending state. A new token is minted per pending
// action even when prior tokens for the same wallet and action are still
// outstanding; each remains independently single-use.
func (g *Gateway) Issue(action Action, wallet [20]byte, payload []byte, ttl time.Duration) (*Token, error) {
	if !action.Valid() {
		return nil, ErrInvalidAction
	}
	if ttl <= 0 {
		return nil, errors.New("confirm: ttl must be positive")
	}
	id, err := g.idFn()
	if err != nil {
		return nil, err
	}
	now := g.nowFn()
	token := &Token{
		ID:        id,
		Action:    action,
		Wallet:    wallet,
		Payload:   append([]byte(nil), payload...),
		IssuedAt:  now,
		ExpiresAt: now + int64(ttl/time.Second),
	}
	if err := g.st.Update(func(txn storage.Txn) error {
		return txn.KVPut(tokenKey(id), token)
	}); err != nil {
		return nil, err
	}
	g.emit(events.TokenIssued{
		Token:     token.ID,
		Action:    string(token.Action),
		Wallet:    token.Wallet,
		ExpiresAt: token.ExpiresAt,
	})
	return token.Clone(), nil
}

// Consume validates and spends the token in a single atomic transaction.
func (g *Gateway) Consume(id string, action Action, wallet [20]byte, payload []byte) (*Token, error) {
	var consumed *Token
	err := g.st.Update(func(txn storage.Txn) error {
		token, err := ConsumeTx(txn, id, action, wallet, payload, g.nowFn())
		if err != nil {
			return err
		}
		consumed = token
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.emit(events.TokenConsumed{
		Token:  consumed.ID,
		Action: string(consumed.Action),
		Wallet: consumed.Wallet,
		UsedAt: consumed.UsedAt,
	})
	return consumed, nil
}

// ConsumeTx performs the single-use check-and-set inside an existing
// transaction. The coupon ledger calls this so token consumption and the
// coupon state change commit or abort together. A nil payload skips the
// payload binding check.
func ConsumeTx(txn storage.Txn, id string, action Action, wallet [20]byte, payload []byte, now int64) (*Token, error) {
	token := new(Token)
	ok, err := txn.KVGet(tokenKey(id), token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotFound
	}
	if now > token.ExpiresAt {
		return nil, ErrTokenExpired
	}
	if token.Used {
		return nil, ErrTokenAlreadyUsed
	}
	if token.Action != action || token.Wallet != wallet {
		return nil, ErrTokenMismatch
	}
	if payload != nil && !bytes.Equal(token.Payload, payload) {
		return nil, ErrTokenMismatch
	}
	token.Used = true
	token.UsedAt = now
	if err := txn.KVPut(tokenKey(id), token); err != nil {
		return nil, err
	}
	return token.Clone(), nil
}

// Token returns the stored token record without consuming it.
func (g *Gateway) Token(id string) (*Token, error) {
	token := new(Token)
	err := g.st.View(func(txn storage.Txn) error {
		ok, err := txn.KVGet(tokenKey(id), token)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTokenNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}
