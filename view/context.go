package view

import "context"

type contextKey int

const (
	requestContextKey contextKey = iota
	responseContextKey
	requestIDContextKey
)

// RequestFromContext returns the request being executed, if any.
func RequestFromContext(ctx context.Context) (*Request, bool) {
	r, ok := ctx.Value(requestContextKey).(*Request)
	return r, ok
}

// ResponseFromContext returns the mutable response of the request being executed, if any.
func ResponseFromContext(ctx context.Context) (*TemporalResponse, bool) {
	r, ok := ctx.Value(responseContextKey).(*TemporalResponse)
	return r, ok
}

// RequestIDFromContext returns the id the view assigned to the request being executed.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func withExecutionContext(ctx context.Context, requestID string, r *Request, resp *TemporalResponse) context.Context {
	ctx = context.WithValue(ctx, requestIDContextKey, requestID)
	ctx = context.WithValue(ctx, requestContextKey, r)
	return context.WithValue(ctx, responseContextKey, resp)
}
