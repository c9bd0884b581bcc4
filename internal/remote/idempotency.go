package remote

import "context"

type idempotencyKey struct{}

// WithIdempotencyKey attaches the key a Dispatcher forwards with the call,
// letting the server drop a duplicate delivery of the same action.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key attached by WithIdempotencyKey.
func IdempotencyKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey{}).(string)
	return key, ok
}
