package events

const (
	// TypeCouponIssued is emitted when a coupon is minted.
	TypeCouponIssued = "coupon.issued"
	// TypeCouponRedeemed is emitted when a coupon is redeemed.
	TypeCouponRedeemed = "coupon.redeemed"
	// TypeCouponExpired is emitted when a coupon's expiry is materialised,
	// either lazily during an operation or by the reconciliation sweep.
	TypeCouponExpired = "coupon.expired"
)

// CouponIssued captures a successful issuance.
type CouponIssued struct {
	TokenID    [32]byte
	ProgramID  [32]byte
	MerchantID string
	Owner      [20]byte
	ExpiresAt  int64
}

// EventType implements the Event interface.
func (CouponIssued) EventType() string { return TypeCouponIssued }

// CouponRedeemed captures a successful redemption.
type CouponRedeemed struct {
	TokenID    [32]byte
	MerchantID string
	Owner      [20]byte
	RedeemedAt int64
}

// EventType implements the Event interface.
func (CouponRedeemed) EventType() string { return TypeCouponRedeemed }

// CouponExpired captures a materialised expiry transition.
type CouponExpired struct {
	TokenID   [32]byte
	ExpiredAt int64
}

// EventType implements the Event interface.
func (CouponExpired) EventType() string { return TypeCouponExpired }
