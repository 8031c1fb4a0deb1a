package coupon

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Status represents the lifecycle states of a minted coupon. Transitions only
// move forward: Issued -> Redeemed or Issued -> Expired, both terminal.
// Rejected issuance attempts never persist a coupon at all.
type Status uint8

const (
	StatusIssued Status = iota + 1
	StatusRedeemed
	StatusExpired
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusIssued, StatusRedeemed, StatusExpired:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusIssued:
		return "issued"
	case StatusRedeemed:
		return "redeemed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Coupon captures a minted coupon. The identifier is the keccak256 hash of
// the program, owner and metadata commitment, which makes retried issuance
// calls re-observe the same coupon instead of minting twice. Owner is
// immutable after creation; coupons are not transferable.
type Coupon struct {
	TokenID            [32]byte
	MerchantID         string
	ProgramID          [32]byte
	Owner              [20]byte
	MetadataCommitment [32]byte
	KeyVersion         uint32
	IssuedAt           int64
	ExpiresAt          int64
	RedeemedAt         int64
	Status             Status
}

// Clone returns a copy of the coupon record so callers can safely mutate the
// copy without affecting the stored instance.
func (c *Coupon) Clone() *Coupon {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// TokenID derives the deterministic coupon identifier for an issuance
// context.
func TokenID(programID [32]byte, owner [20]byte, metadataCommitment [32]byte) [32]byte {
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(programID[:], owner[:], metadataCommitment[:]))
	return id
}

func couponKey(id [32]byte) []byte {
	return append([]byte("coupon/record/"), id[:]...)
}

func ownerIndexKey(owner [20]byte) []byte {
	return append([]byte("coupon/by-owner/"), owner[:]...)
}

func merchantIndexKey(merchantID string) []byte {
	return append([]byte("coupon/by-merchant/"), merchantID...)
}

func allCouponsKey() []byte {
	return []byte("coupon/all")
}
