package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer scope used for store spans.
const InstrumentationName = "github.com/nimburion/docstore/store"

// StoreSpanOption configures a store span.
type StoreSpanOption func(*storeSpanOptions)

type storeSpanOptions struct {
	attributes []attribute.KeyValue
}

// WithKeyCount records how many keys the operation touches.
func WithKeyCount(n int) StoreSpanOption {
	return func(opts *storeSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("docstore.keys", n))
	}
}

// WithKey records the single key an operation targets.
func WithKey(key string) StoreSpanOption {
	return func(opts *storeSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("docstore.key", key))
	}
}

// WithAttempt records the connection attempt number.
func WithAttempt(n int) StoreSpanOption {
	return func(opts *storeSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("docstore.attempt", n))
	}
}

// StartStoreSpan starts a client span named "<backend> <operation>" on the
// global tracer provider.
func StartStoreSpan(ctx context.Context, backend, operation string, opts ...StoreSpanOption) (context.Context, trace.Span) {
	spanOpts := &storeSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("db.system", backend),
			attribute.String("db.operation", operation),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	ctx, span := otel.Tracer(InstrumentationName).Start(ctx, fmt.Sprintf("%s %s", backend, operation), trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// End records err on the span, or marks it successful, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}

// RecordError records an error in the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
