package rankclaim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// baseRetryDelay is the wait after the first failed attempt; it doubles per attempt.
const baseRetryDelay = 10 * time.Millisecond

// EnsureBucket opens the rank-claim bucket, creating it if needed.
//
// Every process of a group calls this at startup, so creation races are
// normal: whoever loses gets ErrBucketExists and opens the winner's bucket.
// Any other failure is retried with exponential backoff.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration (Bucket and TTL matter most)
//   - maxRetries: Maximum number of attempts (3 when <= 0)
//
// Returns:
//   - jetstream.KeyValue: The bucket
//   - error: Context error, or the last failure after all attempts
func EnsureBucket(ctx context.Context, js jetstream.JetStream, config jetstream.KeyValueConfig, maxRetries int) (jetstream.KeyValue, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	delay := baseRetryDelay
	for attempt := 1; ; attempt++ {
		kv, err := openOrCreate(ctx, js, config)
		if err == nil {
			return kv, nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rank bucket %s: %w", config.Bucket, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("rank bucket %s unavailable after %d attempts: %w", config.Bucket, maxRetries, lastErr)
}

func openOrCreate(ctx context.Context, js jetstream.JetStream, config jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := js.CreateKeyValue(ctx, config)
	if !errors.Is(err, jetstream.ErrBucketExists) {
		return kv, err
	}

	kv, err = js.KeyValue(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists but cannot be opened: %w", err)
	}

	return kv, nil
}
