package store

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/internal/errkind"
)

const cursorKey = "preranking:cursor"

// CursorStore persists the ingestor's durable position (spec §4.A). It has
// no TTL — the cursor is created once and never deleted.
type CursorStore struct {
	kv KeyedStore
}

// NewCursorStore wraps a KeyedStore.
func NewCursorStore(kv KeyedStore) *CursorStore {
	return &CursorStore{kv: kv}
}

// Load returns the last durably stored cursor, or ok=false if none exists
// yet (first start).
func (s *CursorStore) Load(ctx context.Context) (cursor domain.Cursor, ok bool, err error) {
	raw, found, err := s.kv.Get(ctx, cursorKey)
	if err != nil {
		return domain.Cursor{}, false, errkind.Wrap(errkind.TransientUpstream, "load cursor: %v", err)
	}
	if !found {
		return domain.Cursor{}, false, nil
	}
	var c domain.Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Cursor{}, false, errkind.Wrap(errkind.Internal, "decode stored cursor: %v", err)
	}
	return c, true, nil
}

// Store durably persists cursor. A failed store leaves the previously
// persisted value intact (spec §4.A) — the caller's in-memory cursor must
// not be advanced until this returns nil.
func (s *CursorStore) Store(ctx context.Context, cursor domain.Cursor) error {
	raw, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	if err := s.kv.Set(ctx, cursorKey, raw, 0); err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "store cursor: %v", err)
	}
	return nil
}
