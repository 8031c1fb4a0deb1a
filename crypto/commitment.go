package crypto

import (
	"errors"
	"net/mail"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInvalidEmail is returned when the supplied address cannot be parsed.
	ErrInvalidEmail = errors.New("crypto: invalid email address")
)

// NormalizeEmail canonicalises an email address before hashing: NFKC
// normalisation, lowercasing and whitespace trimming. The same mailbox must
// always produce the same bytes or wallet addressing breaks.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", ErrInvalidEmail
	}
	// The rejected input is never echoed: raw addresses must not travel
	// beyond the derivation boundary, not even inside error values.
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", ErrInvalidEmail
	}
	normalized := norm.NFKC.String(strings.ToLower(parsed.Address))
	return normalized, nil
}

// DeriveIdentityCommitment maps an email to a one-way commitment. The salt
// keeps the digest outside rainbow-table reach; the raw address is never
// stored anywhere downstream of this call.
func DeriveIdentityCommitment(email string, salt []byte) ([32]byte, error) {
	var commitment [32]byte
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return commitment, err
	}
	digest := ethcrypto.Keccak256(salt, []byte(normalized))
	copy(commitment[:], digest)
	return commitment, nil
}

// WalletAddressFromCommitment derives the deterministic wallet address for an
// identity commitment. The derivation is one-way: the commitment cannot be
// recovered from the address, and the email cannot be recovered from either.
func WalletAddressFromCommitment(commitment [32]byte) [20]byte {
	var addr [20]byte
	digest := ethcrypto.Keccak256([]byte("zkcoupon/wallet/v1"), commitment[:])
	copy(addr[:], digest[12:])
	return addr
}
