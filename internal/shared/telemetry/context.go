package telemetry

import "context"

type requestIDKey struct{}

// WithRequestID returns ctx carrying the request ID. An empty id leaves ctx
// untouched so a worker never clobbers an ID set upstream.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request ID carried by ctx, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
