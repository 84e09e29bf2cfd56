// Package context carries correlation identifiers for logs and spans.
package context

import "context"

type key int

const (
	requestIDKey key = iota
	orderIDKey
	ownerIDKey
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithOrderID tags ctx with the order being priced or reconciled.
func WithOrderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, orderIDKey, id)
}

func OrderIDFromContext(ctx context.Context) string {
	return stringValue(ctx, orderIDKey)
}

// WithOwnerID tags ctx with the seller or platform a payout is computed for.
func WithOwnerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ownerIDKey, id)
}

func OwnerIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ownerIDKey)
}

func stringValue(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(k).(string)
	return v
}
