// Package chainevents implements the Event Ingestor of spec §4.C: a
// cursor-driven poll loop merging two event streams in ascending order and
// handing each event to the coordinator before the cursor is allowed past
// it.
package chainevents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/internal/errkind"
	"github.com/prerankio/preranking-engine/internal/wireformat"
	"github.com/prerankio/preranking-engine/store"
)

// Source issues bounded, ascending, cursor-relative queries against a
// blockchain-style event log. Each stream is filtered server-side by a
// package identifier; only that stream's cursor semantics are this
// interface's concern.
type Source interface {
	// PollIntentSubmitted returns up to limit IntentSubmitted events with
	// cursor strictly after after, in ascending cursor order.
	PollIntentSubmitted(ctx context.Context, after domain.Cursor, limit int) ([]rawEvent, error)
	// PollSolutionSubmitted is the SolutionSubmitted analogue.
	PollSolutionSubmitted(ctx context.Context, after domain.Cursor, limit int) ([]rawEvent, error)
}

// rawEvent is the tolerant wire shape returned by a Source before
// kind-specific decoding.
type rawEvent struct {
	Cursor domain.Cursor
	Body   []byte
}

// Handler receives parsed events in ascending cursor order and blocks for
// as long as backpressure requires; its return value gates cursor advance.
type Handler interface {
	Handle(ctx context.Context, event domain.Event) error
}

// Config governs poll cadence, batch sizing, and solution fan-out (spec §6).
type Config struct {
	PollInterval time.Duration // default 2s
	BatchLimit   int           // default 50

	// Concurrency bounds how many SolutionSubmitted events in one batch are
	// dispatched to the handler at once (spec §5: "concurrent across
	// distinct intents, and ... concurrent across solutions within the
	// same intent"). IntentSubmitted events always run first and
	// sequentially within a batch, since a solution in the same batch may
	// reference an intent from that same batch. Values < 1 behave as 1.
	Concurrency int
}

// DefaultConfig mirrors spec §6's stated defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 2 * time.Second, BatchLimit: 50, Concurrency: 8}
}

// Ingestor runs the poll loop described in spec §4.C.
type Ingestor struct {
	source  Source
	handler Handler
	cursors *store.CursorStore
	cfg     Config

	cursor domain.Cursor
}

// New builds an Ingestor. It does not start polling until Run is called.
func New(source Source, handler Handler, cursors *store.CursorStore, cfg Config) *Ingestor {
	return &Ingestor{
		source:  source,
		handler: handler,
		cursors: cursors,
		cfg:     cfg,
	}
}

// Run seeds the in-memory cursor from the Cursor Store and then polls on
// cfg.PollInterval until ctx is cancelled.
func (ing *Ingestor) Run(ctx context.Context) error {
	if seeded, ok, err := ing.cursors.Load(ctx); err != nil {
		return errkind.Wrap(errkind.Fatal, "seed cursor: %v", err)
	} else if ok {
		ing.cursor = seeded
	}

	ticker := time.NewTicker(ing.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ing.tick(ctx); err != nil {
				if errkind.IsRetryable(err) {
					log.Warn("chainevents: transient poll failure, continuing next tick", "err", err)
					continue
				}
				return err
			}
		}
	}
}

// tick executes one full cycle of spec §4.C steps 2-5.
func (ing *Ingestor) tick(ctx context.Context) error {
	intentRaws, err := ing.source.PollIntentSubmitted(ctx, ing.cursor, ing.cfg.BatchLimit)
	if err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "poll intent_submitted: %v", err)
	}
	solutionRaws, err := ing.source.PollSolutionSubmitted(ctx, ing.cursor, ing.cfg.BatchLimit)
	if err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "poll solution_submitted: %v", err)
	}

	intentEvents, err := decodeIntentEvents(intentRaws)
	if err != nil {
		return errkind.Wrap(errkind.Internal, "decode intent_submitted batch: %v", err)
	}
	solutionEvents, err := decodeSolutionEvents(solutionRaws)
	if err != nil {
		return errkind.Wrap(errkind.Internal, "decode solution_submitted batch: %v", err)
	}

	merged := mergeAscending(intentEvents, solutionEvents)
	if len(merged) == 0 {
		return nil
	}

	results := make([]error, len(merged))

	// IntentSubmitted events run first, sequentially, in ascending cursor
	// order: a SolutionSubmitted event later in this same batch may name an
	// intent_id only just introduced by one of these, so the coordinator's
	// active-map entry must exist before any solution dispatch starts.
	// intentCutoff is the index of the first intent failure, or len(merged)
	// if every intent in the batch succeeded.
	intentCutoff := len(merged)
	for i, event := range merged {
		if event.Kind != domain.KindIntentSubmitted {
			continue
		}
		if err := ing.handler.Handle(ctx, event); err != nil {
			results[i] = err
			intentCutoff = i
			break
		}
	}

	// SolutionSubmitted events strictly before intentCutoff are dispatched
	// concurrently, bounded by cfg.Concurrency (spec §5). Events at or past
	// intentCutoff are left unattempted, matching the original stop-at-
	// first-failure semantics: the next tick re-polls and re-delivers them.
	concurrency := ing.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, event := range merged {
		if i >= intentCutoff || event.Kind != domain.KindSolutionSubmitted {
			continue
		}
		i, event := i, event
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = ing.handler.Handle(ctx, event)
		}()
	}
	wg.Wait()

	// Advance the cursor across the contiguous ascending-order prefix that
	// actually succeeded, stopping at the first failure or unattempted
	// event — a later goroutine's success never lets the cursor skip over
	// an earlier failure.
	for i, event := range merged {
		if results[i] != nil {
			return errkind.Wrap(errkind.TransientUpstream, "handoff %v at cursor %+v: %v", event.Kind, event.EventCursor(), results[i])
		}
		ing.cursor = event.EventCursor()
	}

	if err := ing.cursors.Store(ctx, ing.cursor); err != nil {
		// The durable cursor did not move; next tick re-polls from the old
		// position and re-delivers the tail (idempotent at the (intent_id,
		// solution_id) grain, spec §4.C failure semantics).
		return errkind.Wrap(errkind.TransientUpstream, "store cursor: %v", err)
	}
	return nil
}

func decodeIntentEvents(raws []rawEvent) ([]domain.Event, error) {
	out := make([]domain.Event, 0, len(raws))
	for _, r := range raws {
		var body domain.IntentSubmittedEvent
		if err := wireformat.DecodeTolerant(r.Body, &body); err != nil {
			return nil, fmt.Errorf("intent_submitted at %+v: %w", r.Cursor, err)
		}
		body.Cursor = r.Cursor
		out = append(out, domain.Event{Kind: domain.KindIntentSubmitted, Intent: &body})
	}
	return out, nil
}

func decodeSolutionEvents(raws []rawEvent) ([]domain.Event, error) {
	out := make([]domain.Event, 0, len(raws))
	for _, r := range raws {
		var body domain.SolutionSubmittedEvent
		if err := wireformat.DecodeTolerant(r.Body, &body); err != nil {
			return nil, fmt.Errorf("solution_submitted at %+v: %w", r.Cursor, err)
		}
		body.Cursor = r.Cursor
		out = append(out, domain.Event{Kind: domain.KindSolutionSubmitted, Solution: &body})
	}
	return out, nil
}

// mergeAscending merges two already-ascending event slices into one
// ascending-by-cursor sequence (spec §4.C step 4: "in ascending order
// across both streams").
func mergeAscending(a, b []domain.Event) []domain.Event {
	out := make([]domain.Event, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].EventCursor().Before(b[j].EventCursor()) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
