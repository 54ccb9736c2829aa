package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prerankio/preranking-engine/blobstore"
	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/pipeline"
	"github.com/prerankio/preranking-engine/store"
	"github.com/prerankio/preranking-engine/validate"
)

type stubFetcher struct {
	intent   domain.Intent
	solution domain.Solution
}

func (s stubFetcher) FetchIntent(ctx context.Context, blobID string) (domain.Intent, error) {
	return s.intent, nil
}
func (s stubFetcher) FetchSolution(ctx context.Context, blobID string) (domain.Solution, error) {
	return s.solution, nil
}

type stubSimulator struct{ dryRun domain.DryRun }

func (s stubSimulator) DryRun(ctx context.Context, txBytes []byte) (domain.DryRun, error) {
	return s.dryRun, nil
}

type noopParser struct{}

func (noopParser) Parse(txBytes []byte) validate.ParsedSolution { return validate.ParsedSolution{} }

type recordingPublisher struct {
	payloads []domain.RankingPayload
}

func (p *recordingPublisher) Enqueue(ctx context.Context, payload domain.RankingPayload) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

func newCoordinator(fetcher blobstore.Fetcher, sim stubSimulator, publisher *recordingPublisher) (*Coordinator, *store.IntentStore) {
	pl := pipeline.New(fetcher, sim, noopParser{})
	intentStore := store.NewIntentStore(store.NewMemStore())
	c := New(fetcher, pl, intentStore, publisher, DefaultConfig())
	return c, intentStore
}

func TestIntentSubmittedThenSolutionPassedThenManualFlush(t *testing.T) {
	fetcher := stubFetcher{
		intent:   domain.Intent{IntentID: "in-1", UserAddress: "0xabc", WindowEndMs: 99999999999},
		solution: domain.Solution{SolutionID: "sol-1"},
	}
	sim := stubSimulator{dryRun: domain.DryRun{Status: domain.RunOK}}
	publisher := &recordingPublisher{}
	c, _ := newCoordinator(fetcher, sim, publisher)

	ctx := context.Background()
	require.NoError(t, c.HandleIntentSubmitted(ctx, domain.IntentSubmittedEvent{
		IntentID: "in-1", BlobID: "blob-1", WindowEndMs: 99999999999,
	}))
	require.Equal(t, 1, c.ActiveCount())

	require.NoError(t, c.HandleSolutionSubmitted(ctx, domain.SolutionSubmittedEvent{
		IntentID: "in-1", SolutionID: "sol-1", BlobID: "sblob-1", SubmittedAtMs: 1,
	}))

	c.Flush(ctx, "in-1")

	require.Len(t, publisher.payloads, 1)
	require.Equal(t, "in-1", publisher.payloads[0].IntentID)
	require.Len(t, publisher.payloads[0].PassedSolutions, 1)
	require.Equal(t, 0, c.ActiveCount())
}

func TestFlushWithNoPassedDeletesTreeAndSkipsEnqueue(t *testing.T) {
	fetcher := stubFetcher{intent: domain.Intent{IntentID: "in-2", WindowEndMs: 99999999999}}
	sim := stubSimulator{}
	publisher := &recordingPublisher{}
	c, intentStore := newCoordinator(fetcher, sim, publisher)

	ctx := context.Background()
	require.NoError(t, c.HandleIntentSubmitted(ctx, domain.IntentSubmittedEvent{
		IntentID: "in-2", BlobID: "blob-2", WindowEndMs: 99999999999,
	}))

	c.Flush(ctx, "in-2")

	require.Empty(t, publisher.payloads, "empty-set policy: nothing enqueued when passed_count == 0")
	_, ok, err := intentStore.GetIntent(ctx, "in-2")
	require.NoError(t, err)
	require.False(t, ok, "intent tree must be deleted on empty-passed flush")
}

func TestFlushIsAtMostOnceUnderConcurrentCAS(t *testing.T) {
	fetcher := stubFetcher{intent: domain.Intent{IntentID: "in-3", WindowEndMs: 99999999999}}
	sim := stubSimulator{}
	publisher := &recordingPublisher{}
	c, _ := newCoordinator(fetcher, sim, publisher)

	ctx := context.Background()
	require.NoError(t, c.HandleIntentSubmitted(ctx, domain.IntentSubmittedEvent{
		IntentID: "in-3", BlobID: "blob-3", WindowEndMs: 99999999999,
	}))

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			c.Flush(ctx, "in-3")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	require.Equal(t, 0, c.ActiveCount())
}

func TestSolutionForUnknownIntentIsDroppedNotErrored(t *testing.T) {
	fetcher := stubFetcher{}
	sim := stubSimulator{}
	publisher := &recordingPublisher{}
	c, _ := newCoordinator(fetcher, sim, publisher)

	err := c.HandleSolutionSubmitted(context.Background(), domain.SolutionSubmittedEvent{
		IntentID: "ghost", SolutionID: "sol-x",
	})
	require.NoError(t, err)
}

func TestTimerFiresFlushAtWindowClose(t *testing.T) {
	originalNow := nowMs
	fixed := int64(1000)
	nowMs = func() int64 { return fixed }
	defer func() { nowMs = originalNow }()

	fetcher := stubFetcher{intent: domain.Intent{IntentID: "in-4", WindowEndMs: 1010}}
	sim := stubSimulator{}
	publisher := &recordingPublisher{}
	c, _ := newCoordinator(fetcher, sim, publisher)

	ctx := context.Background()
	require.NoError(t, c.HandleIntentSubmitted(ctx, domain.IntentSubmittedEvent{
		IntentID: "in-4", BlobID: "blob-4", WindowEndMs: 1010,
	}))

	ch := make(chan string, 1)
	sub := c.SubscribeFlushes(ch)
	defer sub.Unsubscribe()

	select {
	case intentID := <-ch:
		require.Equal(t, "in-4", intentID)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire flush within bound")
	}
}
