package tools

import "context"

type idempotencyKeyCtx struct{}

// WithIdempotencyKey attaches a key that stays the same across retries of
// one tool call. Handlers with side effects derive their upstream request
// keys from it.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKey returns the key set by WithIdempotencyKey, or "".
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}
