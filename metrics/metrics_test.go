package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordPollUpdatesGauges(t *testing.T) {
	m := New()
	m.RecordPoll(42, 1234)
	require.EqualValues(t, 42, m.CursorEventSeq.Snapshot().Value())
	require.EqualValues(t, 1234, m.LastPollTs.Snapshot().Value())
}

func TestRecordOutcomeTalliesPassFail(t *testing.T) {
	m := New()
	m.RecordOutcome(true, 5*time.Millisecond)
	m.RecordOutcome(false, 3*time.Millisecond)
	require.EqualValues(t, 1, m.SolutionsPassed.Snapshot().Count())
	require.EqualValues(t, 1, m.SolutionsFailed.Snapshot().Count())
}

func TestRecordFlushUpdatesActiveIntentGauge(t *testing.T) {
	m := New()
	m.RecordFlush(7)
	require.EqualValues(t, 7, m.ActiveIntentCount.Snapshot().Value())
}
