package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency frees a key so a failed request can be retried
	ClearIdempotency(ctx context.Context, key string) error

	// AcquireLock takes a short-lived exclusive lock, returns false if held elsewhere
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// ReleaseLock drops the lock only if token still owns it
	ReleaseLock(ctx context.Context, key, token string) error
}
