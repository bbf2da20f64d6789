package httpclient

import "context"

type correlationIDKeyType struct{}

var correlationIDKey = correlationIDKeyType{}

// WithCorrelationID attaches a correlation id to ctx; outbound requests made
// through a client built by New propagate it as X-Correlation-ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// correlationIDFromContext returns the correlation id attached to ctx, or
// "" if none was set.
func correlationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}
