// Package coordinator implements the Intent Lifecycle Coordinator of spec
// §4.H: per-intent state (ACCEPTING/FLUSHING/TERMINATED), a single-shot
// window timer, and the flush procedure that hands a passed-solution
// payload to the Ranking Queue Publisher.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/prerankio/preranking-engine/blobstore"
	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/pipeline"
	"github.com/prerankio/preranking-engine/ranking"
	"github.com/prerankio/preranking-engine/store"
)

// State is an IntentContext's position in the ACCEPTING -> FLUSHING ->
// TERMINATED machine (spec §3).
type State int32

const (
	StateAccepting State = iota
	StateFlushing
	StateTerminated
)

// Config governs the coordinator's TTLs and deletion policy (spec §6).
type Config struct {
	RecordTTL          time.Duration // default 1h
	FlushOnEmptyPassed bool          // default false: skip enqueue when passed_count == 0
	EagerDelete        bool          // delete intent tree immediately after flush, vs. TTL-only
}

// DefaultConfig mirrors spec §6's stated defaults.
func DefaultConfig() Config {
	return Config{RecordTTL: time.Hour, FlushOnEmptyPassed: false, EagerDelete: false}
}

// IntentContext is the coordinator's live per-intent state. The lifecycle
// state is an atomic; mu guards the counters and orders each solution's
// state check and record write against the flush's counter read (spec §5's
// ordering guarantees).
type IntentContext struct {
	intentID string
	intent   domain.Intent

	state       atomic.Int32
	mu          sync.Mutex // guards passedCount/failedCount and each solution's record write
	passedCount int
	failedCount int
	timer       *time.Timer
}

// Coordinator owns the active-intents map and wires the pipeline, stores,
// and publisher together.
type Coordinator struct {
	fetcher   blobstore.Fetcher
	pipeline  *pipeline.Pipeline
	intents   *store.IntentStore
	publisher ranking.Publisher
	cfg       Config

	mu     sync.Mutex
	active map[string]*IntentContext

	flushFeed event.Feed
}

// New wires a Coordinator.
func New(fetcher blobstore.Fetcher, pl *pipeline.Pipeline, intents *store.IntentStore, publisher ranking.Publisher, cfg Config) *Coordinator {
	return &Coordinator{
		fetcher:   fetcher,
		pipeline:  pl,
		intents:   intents,
		publisher: publisher,
		cfg:       cfg,
		active:    make(map[string]*IntentContext),
	}
}

// SubscribeFlushes returns a subscription delivering the intent_id of every
// completed flush, for operational observation and tests.
func (c *Coordinator) SubscribeFlushes(ch chan<- string) event.Subscription {
	return c.flushFeed.Subscribe(ch)
}

// nowMs is overridable in tests; production callers leave it at its
// default (time.Now in epoch milliseconds).
var nowMs = func() int64 { return time.Now().UnixMilli() }

// HandleIntentSubmitted implements spec §4.H's IntentSubmitted procedure.
func (c *Coordinator) HandleIntentSubmitted(ctx context.Context, ev domain.IntentSubmittedEvent) error {
	intent, err := c.fetcher.FetchIntent(ctx, ev.BlobID)
	if err != nil {
		log.Warn("coordinator: terminal fetch failure for submitted intent, dropping", "intent_id", ev.IntentID, "err", err)
		return nil
	}

	if err := c.intents.PutIntent(ctx, intent, c.cfg.RecordTTL); err != nil {
		return err
	}

	ic := &IntentContext{intentID: ev.IntentID, intent: intent}
	ic.state.Store(int32(StateAccepting))

	delay := time.Duration(ev.WindowEndMs-nowMs()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	ic.timer = time.AfterFunc(delay, func() {
		c.flush(context.Background(), ic)
	})

	c.mu.Lock()
	c.active[ev.IntentID] = ic
	c.mu.Unlock()
	return nil
}

// HandleSolutionSubmitted implements spec §4.H's SolutionSubmitted
// procedure. The pipeline run itself (blob fetch, simulate, validate) is
// deliberately done without holding ic.mu, so that concurrently-dispatched
// solutions for the same intent (spec §5) actually overlap; ic.mu only
// guards the short state-check-and-record-write around it.
func (c *Coordinator) HandleSolutionSubmitted(ctx context.Context, ev domain.SolutionSubmittedEvent) error {
	c.mu.Lock()
	ic, ok := c.active[ev.IntentID]
	c.mu.Unlock()
	if !ok {
		log.Warn("coordinator: solution for unknown or already-flushed intent, dropping", "intent_id", ev.IntentID, "solution_id", ev.SolutionID)
		return nil
	}

	if State(ic.state.Load()) != StateAccepting {
		log.Warn("coordinator: solution arrived after flush started, dropping", "intent_id", ev.IntentID, "solution_id", ev.SolutionID)
		return nil
	}

	outcome := c.pipeline.Run(ctx, ic.intent, ev.BlobID, ev.SubmittedAtMs, ic.intent.WindowEndMs)

	ic.mu.Lock()
	defer ic.mu.Unlock()
	if State(ic.state.Load()) != StateAccepting {
		// Flush started while this solution was mid-pipeline; its result
		// arrived too late to count (spec §5: no post-flush writes).
		log.Warn("coordinator: solution result arrived after flush started, dropping", "intent_id", ev.IntentID, "solution_id", ev.SolutionID)
		return nil
	}

	switch {
	case outcome.Passed != nil:
		if err := c.intents.PutPassed(ctx, ev.IntentID, *outcome.Passed, c.cfg.RecordTTL); err != nil {
			return err
		}
		ic.passedCount++
	case outcome.Failed != nil:
		if outcome.Failed.SolutionID == "" {
			outcome.Failed.SolutionID = ev.SolutionID
		}
		if err := c.intents.PutFailed(ctx, ev.IntentID, *outcome.Failed, c.cfg.RecordTTL); err != nil {
			return err
		}
		ic.failedCount++
	}
	return nil
}

// Flush bypasses the timer, running the same CAS-gated procedure (spec
// §4.H "Manual trigger").
func (c *Coordinator) Flush(ctx context.Context, intentID string) {
	c.mu.Lock()
	ic, ok := c.active[intentID]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.flush(ctx, ic)
}

// flush runs spec §4.H's flush procedure. The state CAS admits a single
// caller; ic.mu is held only while the counters are read, which waits out
// any solution result being recorded at that moment.
func (c *Coordinator) flush(ctx context.Context, ic *IntentContext) {
	if !ic.state.CompareAndSwap(int32(StateAccepting), int32(StateFlushing)) {
		return // another flush already won the CAS
	}
	ic.timer.Stop()

	ic.mu.Lock()
	passedCount := ic.passedCount
	failedCount := ic.failedCount
	ic.mu.Unlock()

	if passedCount == 0 && !c.cfg.FlushOnEmptyPassed {
		if err := c.intents.DeleteIntentTree(ctx, ic.intentID); err != nil {
			log.Error("coordinator: failed to delete empty intent tree", "intent_id", ic.intentID, "err", err)
		}
	} else {
		passed, err := c.intents.ListPassed(ctx, ic.intentID)
		if err != nil {
			log.Error("coordinator: failed to list passed solutions at flush", "intent_id", ic.intentID, "err", err)
		} else {
			payload := domain.RankingPayload{
				IntentID:                ic.intentID,
				Intent:                  ic.intent,
				PassedSolutions:         passed,
				TotalSolutionsSubmitted: len(passed) + failedCount,
				WindowClosedAt:          nowMs(),
			}
			if err := c.publisher.Enqueue(ctx, payload); err != nil {
				log.Error("coordinator: ranking enqueue failed after retry budget", "intent_id", ic.intentID, "err", err)
			}
		}
		if c.cfg.EagerDelete {
			if err := c.intents.DeleteIntentTree(ctx, ic.intentID); err != nil {
				log.Error("coordinator: eager delete failed", "intent_id", ic.intentID, "err", err)
			}
		}
	}

	ic.state.Store(int32(StateTerminated))

	c.mu.Lock()
	delete(c.active, ic.intentID)
	c.mu.Unlock()

	c.flushFeed.Send(ic.intentID)
}

// ActiveCount returns the number of intents currently tracked (for
// metrics).
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
