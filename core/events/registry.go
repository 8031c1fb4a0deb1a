package events

const (
	// TypeMerchantRegistered is emitted when a merchant is first registered.
	TypeMerchantRegistered = "registry.merchant.registered"
	// TypeMerchantUpdated is emitted when a merchant's mutable details change,
	// including deactivation.
	TypeMerchantUpdated = "registry.merchant.updated"
	// TypeProgramCreated is emitted when a coupon program is created.
	TypeProgramCreated = "registry.program.created"
	// TypeVerificationKeyRotated is emitted when a program binds a new
	// verification key.
	TypeVerificationKeyRotated = "registry.program.key_rotated"
)

// MerchantRegistered captures the key metadata of a newly registered merchant.
type MerchantRegistered struct {
	ID     string
	Name   string
	Wallet [20]byte
}

// EventType implements the Event interface.
func (MerchantRegistered) EventType() string { return TypeMerchantRegistered }

// MerchantUpdated captures a merchant detail update.
type MerchantUpdated struct {
	ID     string
	Active bool
}

// EventType implements the Event interface.
func (MerchantUpdated) EventType() string { return TypeMerchantUpdated }

// ProgramCreated captures the creation of a coupon program.
type ProgramCreated struct {
	ID          [32]byte
	MerchantID  string
	MaxIssuance uint64
}

// EventType implements the Event interface.
func (ProgramCreated) EventType() string { return TypeProgramCreated }

// VerificationKeyRotated captures a verification-key rotation.
type VerificationKeyRotated struct {
	ProgramID  [32]byte
	KeyVersion uint32
}

// EventType implements the Event interface.
func (VerificationKeyRotated) EventType() string { return TypeVerificationKeyRotated }
