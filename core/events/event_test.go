package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	seen []Event
}

func (r *recorder) Emit(evt Event) { r.seen = append(r.seen, evt) }

func TestMultiEmitterFansOut(t *testing.T) {
	a := &recorder{}
	b := &recorder{}
	multi := MultiEmitter{a, nil, b, NoopEmitter{}}

	multi.Emit(CouponIssued{MerchantID: "m-1"})
	multi.Emit(TokenConsumed{Token: "t-1"})

	require.Len(t, a.seen, 2)
	require.Len(t, b.seen, 2)
	require.Equal(t, TypeCouponIssued, a.seen[0].EventType())
	require.Equal(t, TypeTokenConsumed, b.seen[1].EventType())
}
