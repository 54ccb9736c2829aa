package chainevents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/store"
)

type fakeSource struct {
	mu        sync.Mutex
	intents   []rawEvent
	solutions []rawEvent
}

func (f *fakeSource) PollIntentSubmitted(ctx context.Context, after domain.Cursor, limit int) ([]rawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filterAfter(f.intents, after), nil
}

func (f *fakeSource) PollSolutionSubmitted(ctx context.Context, after domain.Cursor, limit int) ([]rawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filterAfter(f.solutions, after), nil
}

func filterAfter(all []rawEvent, after domain.Cursor) []rawEvent {
	out := make([]rawEvent, 0, len(all))
	for _, e := range all {
		if after.Before(e.Cursor) {
			out = append(out, e)
		}
	}
	return out
}

type recordingHandler struct {
	mu     sync.Mutex
	events []domain.Event
}

func (h *recordingHandler) Handle(ctx context.Context, event domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func TestTickMergesStreamsInAscendingCursorOrder(t *testing.T) {
	source := &fakeSource{
		intents: []rawEvent{
			{Cursor: domain.Cursor{EventSeq: 1}, Body: []byte(`{"intent_id":"in-1","blob_id":"b1","window_end_ms":1000}`)},
			{Cursor: domain.Cursor{EventSeq: 3}, Body: []byte(`{"intent_id":"in-2","blob_id":"b2","window_end_ms":2000}`)},
		},
		solutions: []rawEvent{
			{Cursor: domain.Cursor{EventSeq: 2}, Body: []byte(`{"intent_id":"in-1","solution_id":"sol-1","blob_id":"sb1","submitted_at_ms":500}`)},
		},
	}
	handler := &recordingHandler{}
	cursors := store.NewCursorStore(store.NewMemStore())
	ing := New(source, handler, cursors, Config{PollInterval: time.Hour, BatchLimit: 50})

	require.NoError(t, ing.tick(context.Background()))

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.events, 3)
	require.Equal(t, domain.KindIntentSubmitted, handler.events[0].Kind)
	require.Equal(t, domain.KindSolutionSubmitted, handler.events[1].Kind)
	require.Equal(t, domain.KindIntentSubmitted, handler.events[2].Kind)
	require.EqualValues(t, 1, handler.events[0].EventCursor().EventSeq)
	require.EqualValues(t, 2, handler.events[1].EventCursor().EventSeq)
	require.EqualValues(t, 3, handler.events[2].EventCursor().EventSeq)

	persisted, ok, err := cursors.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 3, persisted.EventSeq)
}

func TestTickAcceptsTolerantCamelCaseFields(t *testing.T) {
	source := &fakeSource{
		intents: []rawEvent{
			{Cursor: domain.Cursor{EventSeq: 1}, Body: []byte(`{"intentId":"in-1","blobId":"b1","windowEndMs":1000}`)},
		},
	}
	handler := &recordingHandler{}
	cursors := store.NewCursorStore(store.NewMemStore())
	ing := New(source, handler, cursors, Config{PollInterval: time.Hour, BatchLimit: 50})

	require.NoError(t, ing.tick(context.Background()))

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.events, 1)
	require.Equal(t, "in-1", handler.events[0].Intent.IntentID)
}

func TestTickDoesNotAdvanceCursorPastFailedHandoff(t *testing.T) {
	source := &fakeSource{
		intents: []rawEvent{
			{Cursor: domain.Cursor{EventSeq: 1}, Body: []byte(`{"intent_id":"in-1","blob_id":"b1","window_end_ms":1000}`)},
			{Cursor: domain.Cursor{EventSeq: 2}, Body: []byte(`{"intent_id":"in-2","blob_id":"b2","window_end_ms":2000}`)},
		},
	}
	handler := &failAfterNHandler{allow: 1}
	cursors := store.NewCursorStore(store.NewMemStore())
	ing := New(source, handler, cursors, Config{PollInterval: time.Hour, BatchLimit: 50})

	err := ing.tick(context.Background())
	require.Error(t, err)

	_, ok, err := cursors.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok, "cursor must not be stored when a handoff mid-batch fails")
}

type failAfterNHandler struct {
	allow int
	count int
}

func (h *failAfterNHandler) Handle(ctx context.Context, event domain.Event) error {
	if h.count >= h.allow {
		return context.DeadlineExceeded
	}
	h.count++
	return nil
}
