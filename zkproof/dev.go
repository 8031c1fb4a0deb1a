package zkproof

import (
	"crypto/hmac"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DevVerifier is a deterministic stand-in for the proving system used in
// tests and local development. A proof is the keccak digest of the secret,
// the verification key and the binding hash, which preserves the protocol
// properties the ledger cares about: proofs are bound to one exact context
// and cannot be replayed against another.
type DevVerifier struct {
	secret []byte
}

// NewDevVerifier returns a development verifier keyed by the given secret.
func NewDevVerifier(secret []byte) *DevVerifier {
	return &DevVerifier{secret: append([]byte(nil), secret...)}
}

// Prove mints the proof bytes Verify will accept for the given binding. Only
// tests and development tooling hold the secret required to call this.
func (v *DevVerifier) Prove(inputs PublicInputs, verificationKey []byte) []byte {
	hash := inputs.Hash()
	return ethcrypto.Keccak256(v.secret, verificationKey, hash[:])
}

// Verify implements the Verifier interface.
func (v *DevVerifier) Verify(proof []byte, inputs PublicInputs, verificationKey []byte) error {
	if len(proof) == 0 || len(verificationKey) == 0 || !inputs.Kind.Valid() {
		return ErrInvalidProof
	}
	if !hmac.Equal(proof, v.Prove(inputs, verificationKey)) {
		return ErrInvalidProof
	}
	return nil
}
