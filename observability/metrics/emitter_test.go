package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"zkcoupon/core/events"
)

func TestEventObserverCountsExpiry(t *testing.T) {
	observer := NewEventObserver()
	before := testutil.ToFloat64(Coupon().couponsExpired)

	observer.Emit(events.CouponExpired{TokenID: [32]byte{1}, ExpiredAt: 42})
	observer.Emit(events.CouponExpired{TokenID: [32]byte{2}, ExpiredAt: 43})

	require.Equal(t, before+2, testutil.ToFloat64(Coupon().couponsExpired))
}

func TestEventObserverIgnoresOtherEvents(t *testing.T) {
	observer := NewEventObserver()
	before := testutil.ToFloat64(Coupon().couponsExpired)

	observer.Emit(events.CouponIssued{MerchantID: "m-1"})
	observer.Emit(events.CouponRedeemed{MerchantID: "m-1"})

	require.Equal(t, before, testutil.ToFloat64(Coupon().couponsExpired))
}
