package eventing

import "context"

type contextKey string

const (
	contextKeyEnvelope contextKey = "eventing.envelope"
	contextKeyCorr     contextKey = "eventing.correlation_id"
)

// WithEnvelope attaches envelope metadata to context.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, contextKeyEnvelope, env)
}

// EnvelopeFromContext returns envelope metadata if available.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	value := ctx.Value(contextKeyEnvelope)
	env, ok := value.(Envelope)
	return env, ok
}

// WithCorrelationID sets the request correlation id in context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, contextKeyCorr, correlationID)
}

// MetaFromContext builds envelope metadata from context. The acting
// identity is not carried here; services stamp it from the
// authenticated caller.
func MetaFromContext(ctx context.Context) Meta {
	meta := Meta{}
	if value := ctx.Value(contextKeyCorr); value != nil {
		if corr, ok := value.(string); ok {
			meta.CorrelationID = corr
		}
	}
	return meta
}
