package metrics

import "zkcoupon/core/events"

// EventObserver counts lifecycle transitions that happen outside request
// handlers. Lazy expiry and the reconciliation sweep commit without an HTTP
// request in flight, so their counter is driven off the event stream.
type EventObserver struct {
	metrics *CouponMetrics
}

// NewEventObserver returns an emitter that feeds the coupon metric set.
func NewEventObserver() *EventObserver {
	return &EventObserver{metrics: Coupon()}
}

// Emit implements the events.Emitter interface.
func (o *EventObserver) Emit(evt events.Event) {
	if o == nil || o.metrics == nil {
		return
	}
	if _, ok := evt.(events.CouponExpired); ok {
		o.metrics.ObserveExpired()
	}
}
