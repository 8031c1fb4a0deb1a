package events

const (
	// TypeTokenIssued is emitted when a confirmation token is minted. The
	// notification boundary subscribes to this event for out-of-band delivery;
	// the core never sends messages itself.
	TypeTokenIssued = "confirm.token.issued"
	// TypeTokenConsumed is emitted when a confirmation token is consumed.
	TypeTokenConsumed = "confirm.token.consumed"
)

// TokenIssued captures a pending action awaiting out-of-band confirmation.
type TokenIssued struct {
	Token     string
	Action    string
	Wallet    [20]byte
	ExpiresAt int64
}

// EventType implements the Event interface.
func (TokenIssued) EventType() string { return TypeTokenIssued }

// TokenConsumed captures the single permitted consumption of a token.
type TokenConsumed struct {
	Token  string
	Action string
	Wallet [20]byte
	UsedAt int64
}

// EventType implements the Event interface.
func (TokenConsumed) EventType() string { return TypeTokenConsumed }
