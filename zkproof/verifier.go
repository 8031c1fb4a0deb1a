// Package zkproof treats proof verification as an opaque capability: callers
// hand over proof bytes, the public-input binding and verification-key bytes,
// and receive a single pass/fail signal. The package never reports which check
// failed so a malicious prover cannot use it as an oracle.
package zkproof

import (
	"encoding/binary"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Kind tags the statement a proof is expected to establish. The binding hash
// folds the kind in, so a proof minted for one statement can never satisfy
// another.
type Kind uint8

const (
	// KindIssuance proves purchase eligibility against a program's rules
	// without revealing purchase contents.
	KindIssuance Kind = iota + 1
	// KindRedemption binds a specific coupon and wallet pair, preventing a
	// proof minted for one coupon from redeeming another.
	KindRedemption
	// KindRecovery proves control of a wallet's recovery secret.
	KindRecovery
)

// Valid reports whether the kind value is within the supported range.
func (k Kind) Valid() bool {
	switch k {
	case KindIssuance, KindRedemption, KindRecovery:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindIssuance:
		return "issuance"
	case KindRedemption:
		return "redemption"
	case KindRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// ErrInvalidProof is the only failure surfaced by verifiers. Malformed proofs,
// mismatched public inputs and unknown keys all collapse into it.
var ErrInvalidProof = errors.New("zkproof: invalid proof")

// PublicInputs carries the context a proof must be bound to. Fields that do
// not apply to a kind stay zero; the binding hash covers every field, so zero
// and absent are the same thing.
type PublicInputs struct {
	Kind               Kind
	ProgramID          [32]byte
	TokenID            [32]byte
	Wallet             [20]byte
	MetadataCommitment [32]byte
	KeyVersion         uint32
}

// Hash derives the canonical binding digest for the inputs. Verifying parties
// recompute this from the context they are about to act on and compare it by
// exact equality with the prover's claim.
func (p PublicInputs) Hash() [32]byte {
	var version [4]byte
	binary.BigEndian.PutUint32(version[:], p.KeyVersion)
	digest := ethcrypto.Keccak256(
		[]byte{byte(p.Kind)},
		p.ProgramID[:],
		p.TokenID[:],
		p.Wallet[:],
		p.MetadataCommitment[:],
		version[:],
	)
	var out [32]byte
	copy(out[:], digest)
	return out
}

// IssuanceInputs builds the binding for an issuance proof.
func IssuanceInputs(programID [32]byte, wallet [20]byte, metadataCommitment [32]byte, keyVersion uint32) PublicInputs {
	return PublicInputs{
		Kind:               KindIssuance,
		ProgramID:          programID,
		Wallet:             wallet,
		MetadataCommitment: metadataCommitment,
		KeyVersion:         keyVersion,
	}
}

// RedemptionInputs builds the binding for a redemption proof.
func RedemptionInputs(tokenID [32]byte, wallet [20]byte, keyVersion uint32) PublicInputs {
	return PublicInputs{
		Kind:       KindRedemption,
		TokenID:    tokenID,
		Wallet:     wallet,
		KeyVersion: keyVersion,
	}
}

// RecoveryInputs builds the binding for a wallet recovery proof. The new
// identity commitment rides in the metadata slot so the proof authorises one
// specific rebinding.
func RecoveryInputs(wallet [20]byte, newIdentityCommitment [32]byte) PublicInputs {
	return PublicInputs{
		Kind:               KindRecovery,
		Wallet:             wallet,
		MetadataCommitment: newIdentityCommitment,
	}
}

// Verifier validates a proof against a verification key and a public-input
// binding. Implementations must be pure functions of their inputs: no side
// effects, no shared mutable state, safe for unsynchronised concurrent use.
// Any failure returns ErrInvalidProof.
type Verifier interface {
	Verify(proof []byte, inputs PublicInputs, verificationKey []byte) error
}
