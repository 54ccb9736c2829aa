// Package ranking implements the Ranking Queue Publisher of spec §4.I: a
// single at-least-once enqueue operation with bounded retry, behind which
// a terminal failure logs an operational alert rather than rolling back
// any state.
package ranking

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/prerankio/preranking-engine/common/backoff"
	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/internal/errkind"
)

const queueKey = "preranking:ranking:queue"

// Publisher enqueues a structurally-idempotent payload for the ranking
// consumer.
type Publisher interface {
	Enqueue(ctx context.Context, payload domain.RankingPayload) error
}

// rpushClient is the narrow subset of redis.Cmdable the publisher needs,
// mirroring store.simpleClient's mockability pattern.
type rpushClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

var _ rpushClient = (*redis.Client)(nil)

// RedisPublisher pushes payloads onto a Redis list, retrying transient
// failures with bounded exponential back-off before declaring the intent
// lost (spec §4.I).
type RedisPublisher struct {
	client     rpushClient
	maxRetries int
	timeout    time.Duration // bounds the whole enqueue operation, retries included; 0 means none
}

// NewRedisPublisher wraps client. maxRetries bounds the retry budget
// before a terminal "intent marked lost" log line is emitted. timeout
// bounds the entire Enqueue call, including all backoff waits and retries
// (spec §6's enqueue_timeout_ms, default 2s) — pass 0 to leave Enqueue
// bounded only by the caller's context.
func NewRedisPublisher(client rpushClient, maxRetries int, timeout time.Duration) *RedisPublisher {
	return &RedisPublisher{client: client, maxRetries: maxRetries, timeout: timeout}
}

// Enqueue implements Publisher.
func (p *RedisPublisher) Enqueue(ctx context.Context, payload domain.RankingPayload) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return errkind.Wrap(errkind.Internal, "encode ranking payload for %s: %v", payload.IntentID, err)
	}

	retry := backoff.NewExponential(100*time.Millisecond, 5*time.Second, 250*time.Millisecond)
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errkind.Wrap(errkind.TransientUpstream, "enqueue %s cancelled during backoff: %v", payload.IntentID, ctx.Err())
			case <-time.After(retry.NextDuration()):
			}
		}
		if err := p.client.RPush(ctx, queueKey, raw).Err(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	log.Error("ranking: exhausted retry budget, intent marked lost", "intent_id", payload.IntentID, "err", lastErr)
	return errkind.Wrap(errkind.TerminalEvent, "enqueue %s: retry budget exhausted: %v", payload.IntentID, lastErr)
}

var _ Publisher = (*RedisPublisher)(nil)
