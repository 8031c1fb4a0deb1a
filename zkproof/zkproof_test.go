package zkproof

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBindingHashCoversEveryField(t *testing.T) {
	base := PublicInputs{
		Kind:       KindIssuance,
		ProgramID:  [32]byte{1},
		TokenID:    [32]byte{2},
		Wallet:     [20]byte{3},
		KeyVersion: 1,
	}
	variants := []PublicInputs{
		func(p PublicInputs) PublicInputs { p.Kind = KindRedemption; return p }(base),
		func(p PublicInputs) PublicInputs { p.ProgramID[0] = 9; return p }(base),
		func(p PublicInputs) PublicInputs { p.TokenID[0] = 9; return p }(base),
		func(p PublicInputs) PublicInputs { p.Wallet[0] = 9; return p }(base),
		func(p PublicInputs) PublicInputs { p.MetadataCommitment[0] = 9; return p }(base),
		func(p PublicInputs) PublicInputs { p.KeyVersion = 2; return p }(base),
	}
	seen := map[[32]byte]bool{base.Hash(): true}
	for _, variant := range variants {
		hash := variant.Hash()
		require.False(t, seen[hash], "binding hash collision for %+v", variant)
		seen[hash] = true
	}
}

func TestDevVerifierAcceptsOwnProofs(t *testing.T) {
	verifier := NewDevVerifier([]byte("secret"))
	key := []byte("vk-1")
	inputs := IssuanceInputs([32]byte{1}, [20]byte{2}, [32]byte{3}, 1)

	proof := verifier.Prove(inputs, key)
	require.NoError(t, verifier.Verify(proof, inputs, key))
}

func TestDevVerifierRejectsContextSwap(t *testing.T) {
	verifier := NewDevVerifier([]byte("secret"))
	key := []byte("vk-1")
	inputs := IssuanceInputs([32]byte{1}, [20]byte{2}, [32]byte{3}, 1)
	proof := verifier.Prove(inputs, key)

	other := inputs
	other.Wallet = [20]byte{9}
	require.ErrorIs(t, verifier.Verify(proof, other, key), ErrInvalidProof)

	require.ErrorIs(t, verifier.Verify(proof, inputs, []byte("vk-2")), ErrInvalidProof)
	require.ErrorIs(t, verifier.Verify(nil, inputs, key), ErrInvalidProof)
	require.ErrorIs(t, verifier.Verify(proof, inputs, nil), ErrInvalidProof)
}

func TestDevVerifierRejectsOtherSecret(t *testing.T) {
	alice := NewDevVerifier([]byte("alice"))
	bob := NewDevVerifier([]byte("bob"))
	key := []byte("vk-1")
	inputs := RedemptionInputs([32]byte{1}, [20]byte{2}, 1)

	proof := alice.Prove(inputs, key)
	require.ErrorIs(t, bob.Verify(proof, inputs, key), ErrInvalidProof)
}

func TestGroth16VerifierRejectsGarbage(t *testing.T) {
	verifier := NewGroth16Verifier()
	inputs := RedemptionInputs([32]byte{1}, [20]byte{2}, 1)
	require.ErrorIs(t, verifier.Verify([]byte("not a proof"), inputs, []byte("not a key")), ErrInvalidProof)
	require.ErrorIs(t, verifier.Verify(nil, inputs, nil), ErrInvalidProof)
}

func TestKindValidation(t *testing.T) {
	require.True(t, KindIssuance.Valid())
	require.True(t, KindRedemption.Valid())
	require.True(t, KindRecovery.Valid())
	require.False(t, Kind(0).Valid())
	require.False(t, Kind(99).Valid())
}
