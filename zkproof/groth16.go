package zkproof

import (
	"bytes"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
)

// BindingCircuit exposes the single public input every coupon statement
// shares: the keccak binding over the protocol context. Production circuits
// extend it with the kind-specific private witness (purchase data for
// issuance, wallet secrets for redemption); the verifier side only ever
// touches the public half.
type BindingCircuit struct {
	InputsHash frontend.Variable `gnark:",public"`
}

// Define implements the frontend.Circuit interface.
func (c *BindingCircuit) Define(api frontend.API) error {
	api.AssertIsDifferent(c.InputsHash, 0)
	return nil
}

// Groth16Verifier checks Groth16 proofs over BN254 produced for a
// BindingCircuit-compatible statement. It is stateless and safe for
// concurrent use.
type Groth16Verifier struct{}

// NewGroth16Verifier returns the production proof verifier.
func NewGroth16Verifier() Groth16Verifier { return Groth16Verifier{} }

// Verify implements the Verifier interface. It deserialises the verification
// key and proof, rebuilds the public witness from the binding hash and runs
// the pairing check. Every failure path collapses into ErrInvalidProof.
func (Groth16Verifier) Verify(proof []byte, inputs PublicInputs, verificationKey []byte) error {
	if len(proof) == 0 || len(verificationKey) == 0 || !inputs.Kind.Valid() {
		return ErrInvalidProof
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(verificationKey)); err != nil {
		return ErrInvalidProof
	}
	parsed := groth16.NewProof(ecc.BN254)
	if _, err := parsed.ReadFrom(bytes.NewReader(proof)); err != nil {
		return ErrInvalidProof
	}
	public, err := bindingWitness(inputs)
	if err != nil {
		return ErrInvalidProof
	}
	if err := groth16.Verify(parsed, vk, public); err != nil {
		return ErrInvalidProof
	}
	return nil
}

func bindingWitness(inputs PublicInputs) (witness.Witness, error) {
	hash := inputs.Hash()
	element := new(big.Int).SetBytes(hash[:])
	element.Mod(element, ecc.BN254.ScalarField())
	assignment := &BindingCircuit{InputsHash: element}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, err
	}
	return w, nil
}
