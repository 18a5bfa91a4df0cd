package services

import "context"

type contextKey string

const (
	pledgeIDKey  contextKey = "pledge_id"
	recipientKey contextKey = "recipient"
	sessionIDKey contextKey = "session_id"
	requestIDKey contextKey = "request_id"
)

// WithPledgeID annotates context with the ledger identifier of a pledge.
func WithPledgeID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, pledgeIDKey, id)
}

// PledgeIDFromContext extracts the pledge identifier if present.
func PledgeIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(pledgeIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRecipient annotates context with the streamer's public key.
func WithRecipient(ctx context.Context, pubkey string) context.Context {
	if pubkey == "" {
		return ctx
	}
	return context.WithValue(ctx, recipientKey, pubkey)
}

// RecipientFromContext returns the recipient public key if present.
func RecipientFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(recipientKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSessionID annotates context with a widget session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the widget session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
