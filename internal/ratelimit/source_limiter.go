package ratelimit

import (
	"context"
	"time"
)

const (
	sourceFetchKey   = "provwatch:ratelimit:source"
	sourceFetchRate  = 2.0
	sourceFetchBurst = 5
)

// SourceFetchLimiter throttles outbound calls to the provisioning
// record source. When redis is not configured every call passes.
type SourceFetchLimiter struct {
	bucket *TokenBucket
}

func NewSourceFetchLimiter(bucket *TokenBucket) *SourceFetchLimiter {
	return &SourceFetchLimiter{bucket: bucket}
}

// Wait blocks until a token is available or ctx is done.
func (l *SourceFetchLimiter) Wait(ctx context.Context) error {
	if l == nil || l.bucket == nil {
		return nil
	}
	for {
		res, err := l.bucket.Allow(ctx, sourceFetchKey, sourceFetchRate, sourceFetchBurst)
		if err != nil {
			// Redis trouble should not stop reconciliation.
			return nil
		}
		if res.Allowed {
			return nil
		}
		wait := res.RetryAfter
		if wait <= 0 {
			wait = 100 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
