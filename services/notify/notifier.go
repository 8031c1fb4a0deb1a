// Package notify is the out-of-band delivery boundary. The core emits
// token-issued events; this package forwards them to whatever transport the
// operator wires in. The core never sends messages itself.
package notify

import (
	"context"
	"log/slog"

	"zkcoupon/core/events"
)

// TokenNotice captures the payload handed to delivery transports.
type TokenNotice struct {
	Token     string
	Action    string
	Wallet    [20]byte
	ExpiresAt int64
}

// Notifier abstracts delivery of confirmation tokens to wallet owners.
type Notifier interface {
	Deliver(ctx context.Context, notice TokenNotice) error
}

// LogNotifier logs notices instead of delivering them. Intended for
// development and testing.
type LogNotifier struct {
	Logger *slog.Logger
}

// Deliver logs the notice payload.
func (l *LogNotifier) Deliver(_ context.Context, notice TokenNotice) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("deliver confirmation token",
		"action", notice.Action,
		"token", notice.Token,
		"expires_at", notice.ExpiresAt,
	)
	return nil
}

// Bridge adapts an events.Emitter to a Notifier: every TokenIssued event is
// forwarded for delivery. Delivery failures are logged, not propagated — the
// issuing transaction has already committed and the token expires on its own
// schedule.
type Bridge struct {
	Notifier Notifier
	Logger   *slog.Logger
}

// Emit implements the events.Emitter interface.
func (b *Bridge) Emit(evt events.Event) {
	issued, ok := evt.(events.TokenIssued)
	if !ok || b == nil || b.Notifier == nil {
		return
	}
	notice := TokenNotice{
		Token:     issued.Token,
		Action:    issued.Action,
		Wallet:    issued.Wallet,
		ExpiresAt: issued.ExpiresAt,
	}
	if err := b.Notifier.Deliver(context.Background(), notice); err != nil {
		logger := b.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("confirmation token delivery failed", "error", err, "action", notice.Action)
	}
}
