package ranking

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/internal/errkind"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestEnqueuePushesPayload(t *testing.T) {
	client := newTestClient(t)
	pub := NewRedisPublisher(client, 3, 0)

	payload := domain.RankingPayload{IntentID: "in-1", TotalSolutionsSubmitted: 2}
	require.NoError(t, pub.Enqueue(context.Background(), payload))

	length, err := client.LLen(context.Background(), queueKey).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, length)
}

type failingClient struct {
	failures int
	calls    int
}

func (f *failingClient) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.calls++
	cmd := redis.NewIntCmd(ctx)
	if f.calls <= f.failures {
		cmd.SetErr(context.DeadlineExceeded)
		return cmd
	}
	cmd.SetVal(1)
	return cmd
}

func TestEnqueueRetriesTransientFailures(t *testing.T) {
	client := &failingClient{failures: 2}
	pub := NewRedisPublisher(client, 5, 0)
	require.NoError(t, pub.Enqueue(context.Background(), domain.RankingPayload{IntentID: "in-1"}))
	require.Equal(t, 3, client.calls)
}

func TestEnqueueExhaustsRetryBudget(t *testing.T) {
	client := &failingClient{failures: 100}
	pub := NewRedisPublisher(client, 2, 0)
	err := pub.Enqueue(context.Background(), domain.RankingPayload{IntentID: "in-1"})
	require.Error(t, err)
	require.Equal(t, 3, client.calls) // initial attempt + 2 retries
	// Exhausting the retry budget is an operational terminal-event outcome
	// (spec §7), not a process-fatal bootstrap failure.
	require.True(t, errors.Is(err, errkind.TerminalEvent))
	require.False(t, errors.Is(err, errkind.Fatal))
}
