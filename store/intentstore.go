package store

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/internal/errkind"
)

// IntentStore is the per-intent keyed record store of spec §4.B: intent
// body, passed/failed sets, and per-solution records. (intent_id,
// solution_id) is the primary key for result records (spec invariant 2).
type IntentStore struct {
	kv KeyedStore
}

// NewIntentStore wraps a KeyedStore.
func NewIntentStore(kv KeyedStore) *IntentStore {
	return &IntentStore{kv: kv}
}

func intentKey(intentID string) string    { return "preranking:intent:" + intentID }
func passedSetKey(intentID string) string { return "preranking:intent:" + intentID + ":passed" }
func failedSetKey(intentID string) string { return "preranking:intent:" + intentID + ":failed" }
func passedRecordKey(intentID, solutionID string) string {
	return "preranking:intent:" + intentID + ":passed:" + solutionID
}
func failedRecordKey(intentID, solutionID string) string {
	return "preranking:intent:" + intentID + ":failed:" + solutionID
}

// PutIntent persists the intent body.
func (s *IntentStore) PutIntent(ctx context.Context, intent domain.Intent, ttl time.Duration) error {
	raw, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	if err := s.kv.Set(ctx, intentKey(intent.IntentID), raw, ttl); err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "put intent %s: %v", intent.IntentID, err)
	}
	return nil
}

// GetIntent returns the intent body, or ok=false if absent/expired.
func (s *IntentStore) GetIntent(ctx context.Context, intentID string) (domain.Intent, bool, error) {
	raw, ok, err := s.kv.Get(ctx, intentKey(intentID))
	if err != nil {
		return domain.Intent{}, false, errkind.Wrap(errkind.TransientUpstream, "get intent %s: %v", intentID, err)
	}
	if !ok {
		return domain.Intent{}, false, nil
	}
	var intent domain.Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return domain.Intent{}, false, errkind.Wrap(errkind.Internal, "decode intent %s: %v", intentID, err)
	}
	return intent, true, nil
}

// PutPassed writes the passed record and adds solutionID to the passed set.
// These are two store operations; a crash between them can leave the
// record written but not yet counted — list_passed (backed by the set) is
// the source of truth for what gets flushed, so a record without a set
// entry is simply invisible, never double-counted.
func (s *IntentStore) PutPassed(ctx context.Context, intentID string, record domain.PassedRecord, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode passed record: %w", err)
	}
	if err := s.kv.Set(ctx, passedRecordKey(intentID, record.SolutionID), raw, ttl); err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "put passed record %s/%s: %v", intentID, record.SolutionID, err)
	}
	if err := s.kv.SetAdd(ctx, passedSetKey(intentID), record.SolutionID); err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "add passed set member %s/%s: %v", intentID, record.SolutionID, err)
	}
	return nil
}

// PutFailed writes the failed record and adds solutionID to the failed set.
func (s *IntentStore) PutFailed(ctx context.Context, intentID string, record domain.FailedRecord, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode failed record: %w", err)
	}
	if err := s.kv.Set(ctx, failedRecordKey(intentID, record.SolutionID), raw, ttl); err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "put failed record %s/%s: %v", intentID, record.SolutionID, err)
	}
	if err := s.kv.SetAdd(ctx, failedSetKey(intentID), record.SolutionID); err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "add failed set member %s/%s: %v", intentID, record.SolutionID, err)
	}
	return nil
}

// ListPassed returns every passed record currently visible for intentID.
func (s *IntentStore) ListPassed(ctx context.Context, intentID string) ([]domain.PassedRecord, error) {
	members, err := s.kv.SetMembers(ctx, passedSetKey(intentID))
	if err != nil {
		return nil, errkind.Wrap(errkind.TransientUpstream, "list passed members %s: %v", intentID, err)
	}
	out := make([]domain.PassedRecord, 0, len(members))
	for _, solutionID := range members {
		raw, ok, err := s.kv.Get(ctx, passedRecordKey(intentID, solutionID))
		if err != nil {
			return nil, errkind.Wrap(errkind.TransientUpstream, "get passed record %s/%s: %v", intentID, solutionID, err)
		}
		if !ok {
			// Record expired between set-add and read; skip rather than fail
			// the whole flush (spec §4.B: "modulo TTL").
			continue
		}
		var record domain.PassedRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, errkind.Wrap(errkind.Internal, "decode passed record %s/%s: %v", intentID, solutionID, err)
		}
		out = append(out, record)
	}
	return out, nil
}

// CountFailed returns the cardinality of the failed set.
func (s *IntentStore) CountFailed(ctx context.Context, intentID string) (int, error) {
	n, err := s.kv.SetCard(ctx, failedSetKey(intentID))
	if err != nil {
		return 0, errkind.Wrap(errkind.TransientUpstream, "count failed %s: %v", intentID, err)
	}
	return int(n), nil
}

// CountPassed returns the cardinality of the passed set (spec invariant 5).
func (s *IntentStore) CountPassed(ctx context.Context, intentID string) (int, error) {
	n, err := s.kv.SetCard(ctx, passedSetKey(intentID))
	if err != nil {
		return 0, errkind.Wrap(errkind.TransientUpstream, "count passed %s: %v", intentID, err)
	}
	return int(n), nil
}

// DeleteIntentTree removes the intent body, both sets, and every
// per-solution record it can enumerate. Best-effort on the per-record keys:
// it enumerates members before deleting the sets, so a record written
// concurrently with this call may be orphaned rather than deleted — an
// acceptable bound given the TTL on every key (spec §4.B).
func (s *IntentStore) DeleteIntentTree(ctx context.Context, intentID string) error {
	passedMembers, err := s.kv.SetMembers(ctx, passedSetKey(intentID))
	if err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "enumerate passed for delete %s: %v", intentID, err)
	}
	failedMembers, err := s.kv.SetMembers(ctx, failedSetKey(intentID))
	if err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "enumerate failed for delete %s: %v", intentID, err)
	}

	keys := []string{intentKey(intentID), passedSetKey(intentID), failedSetKey(intentID)}
	for _, solutionID := range passedMembers {
		keys = append(keys, passedRecordKey(intentID, solutionID))
	}
	for _, solutionID := range failedMembers {
		keys = append(keys, failedRecordKey(intentID, solutionID))
	}
	if err := s.kv.Del(ctx, keys...); err != nil {
		return errkind.Wrap(errkind.TransientUpstream, "delete intent tree %s: %v", intentID, err)
	}
	return nil
}
