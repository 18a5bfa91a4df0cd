package logging

import (
	"context"
	"log/slog"

	"zapvoice/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldPledgeID identifies a pledge across payment flow log lines.
	FieldPledgeID = "pledge_id"
	// FieldRecipient is the hex public key of the streamer being paid or announced.
	FieldRecipient = "recipient"
	// FieldSessionID identifies a browser widget session.
	FieldSessionID = "session_id"
	// FieldEventID is a Nostr event identifier (receipt, goal, profile).
	FieldEventID = "event_id"
	// FieldAmountSats is a payment or pledge amount in satoshis.
	FieldAmountSats = "amount_sats"
	// FieldRelay is a relay websocket URL.
	FieldRelay = "relay"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (e.g. "settlement_check_failed").
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.PledgeIDFromContext(ctx); ok {
		fields = append(fields, PledgeID(id))
	}
	if pk, ok := services.RecipientFromContext(ctx); ok {
		fields = append(fields, Recipient(pk))
	}
	if sid, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, sid))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
