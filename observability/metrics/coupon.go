package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CouponMetrics aggregates the protocol counters exposed on /metrics.
type CouponMetrics struct {
	couponsIssued      *prometheus.CounterVec
	issuanceRejected   *prometheus.CounterVec
	couponsRedeemed    *prometheus.CounterVec
	redemptionRejected *prometheus.CounterVec
	couponsExpired     prometheus.Counter
	tokensIssued       *prometheus.CounterVec
	tokensConsumed     *prometheus.CounterVec
}

var (
	couponOnce     sync.Once
	couponRegistry *CouponMetrics
)

// Coupon returns the process-wide coupon metric set, registering it on first
// use.
func Coupon() *CouponMetrics {
	couponOnce.Do(func() {
		couponRegistry = &CouponMetrics{
			couponsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "coupon_issued_total",
				Help: "Count of coupons minted by merchant.",
			}, []string{"merchant"}),
			issuanceRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "coupon_issuance_rejected_total",
				Help: "Count of rejected issuance attempts by reason.",
			}, []string{"reason"}),
			couponsRedeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "coupon_redeemed_total",
				Help: "Count of coupons redeemed by merchant.",
			}, []string{"merchant"}),
			redemptionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "coupon_redemption_rejected_total",
				Help: "Count of rejected redemption attempts by reason.",
			}, []string{"reason"}),
			couponsExpired: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "coupon_expired_total",
				Help: "Count of coupons transitioned to expired.",
			}),
			tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "confirm_token_issued_total",
				Help: "Count of confirmation tokens issued by action.",
			}, []string{"action"}),
			tokensConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "confirm_token_consumed_total",
				Help: "Count of confirmation tokens consumed by action.",
			}, []string{"action"}),
		}
		prometheus.MustRegister(
			couponRegistry.couponsIssued,
			couponRegistry.issuanceRejected,
			couponRegistry.couponsRedeemed,
			couponRegistry.redemptionRejected,
			couponRegistry.couponsExpired,
			couponRegistry.tokensIssued,
			couponRegistry.tokensConsumed,
		)
	})
	return couponRegistry
}

func (m *CouponMetrics) ObserveIssued(merchant string) {
	if m == nil {
		return
	}
	if merchant == "" {
		merchant = "unknown"
	}
	m.couponsIssued.WithLabelValues(merchant).Inc()
}

func (m *CouponMetrics) ObserveIssuanceRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.issuanceRejected.WithLabelValues(reason).Inc()
}

func (m *CouponMetrics) ObserveRedeemed(merchant string) {
	if m == nil {
		return
	}
	if merchant == "" {
		merchant = "unknown"
	}
	m.couponsRedeemed.WithLabelValues(merchant).Inc()
}

func (m *CouponMetrics) ObserveRedemptionRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.redemptionRejected.WithLabelValues(reason).Inc()
}

func (m *CouponMetrics) ObserveExpired() {
	if m == nil {
		return
	}
	m.couponsExpired.Inc()
}

func (m *CouponMetrics) ObserveTokenIssued(action string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.tokensIssued.WithLabelValues(action).Inc()
}

func (m *CouponMetrics) ObserveTokenConsumed(action string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.tokensConsumed.WithLabelValues(action).Inc()
}
