package events

const (
	// TypeWalletCreated is emitted when a wallet is first created for an
	// identity commitment.
	TypeWalletCreated = "wallet.created"
	// TypeWalletRecovered is emitted when a wallet rebinds its identity
	// commitment through recovery.
	TypeWalletRecovered = "wallet.recovered"
)

// WalletCreated captures a new wallet binding.
type WalletCreated struct {
	Address [20]byte
}

// EventType implements the Event interface.
func (WalletCreated) EventType() string { return TypeWalletCreated }

// WalletRecovered captures a successful recovery. The commitments themselves
// are not echoed; subscribers only learn that authority moved.
type WalletRecovered struct {
	Address     [20]byte
	RecoveredAt int64
}

// EventType implements the Event interface.
func (WalletRecovered) EventType() string { return TypeWalletRecovered }
