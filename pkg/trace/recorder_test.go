package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

type captureAppender struct {
	events []*contracts.TraceEvent
	err    error
}

func (a *captureAppender) AppendTraceEvent(_ context.Context, ev *contracts.TraceEvent) error {
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, ev)
	return nil
}

func TestRecorderStampsRunIdentity(t *testing.T) {
	app := &captureAppender{}
	rec := NewRecorder(app, "tx-1", "orchestrator", false)
	require.NotEmpty(t, rec.RunID())
	assert.False(t, rec.CaptureModelIO())

	require.NoError(t, rec.Completed(context.Background(), contracts.PhaseModelCall, "done", map[string]any{"attempt": 0}))
	require.NoError(t, rec.Failed(context.Background(), contracts.PhaseOutputGates, "rejected", nil))
	require.NoError(t, rec.Warning(context.Background(), contracts.PhaseOutputGates, "advisory", nil))

	require.Len(t, app.events, 3)
	for _, ev := range app.events {
		assert.Equal(t, rec.RunID(), ev.TraceRunID)
		assert.Equal(t, "tx-1", ev.TransmissionID)
		assert.Equal(t, "orchestrator", ev.Actor)
	}
	assert.Equal(t, "completed", app.events[0].Status)
	assert.Equal(t, "failed", app.events[1].Status)
	assert.Equal(t, "warning", app.events[2].Status)
}

// A store write failure surfaces to the caller; trace is not best-effort.
func TestRecorderPropagatesStoreError(t *testing.T) {
	rec := NewRecorder(&captureAppender{err: assert.AnError}, "tx-1", "orchestrator", false)
	assert.ErrorIs(t, rec.Completed(context.Background(), contracts.PhaseModelCall, "done", nil), assert.AnError)
}

func TestRecorderCaptureModelIOFlag(t *testing.T) {
	rec := NewRecorder(&captureAppender{}, "tx-1", "orchestrator", true)
	assert.True(t, rec.CaptureModelIO())
}

func TestRecorderDistinctRunIDs(t *testing.T) {
	app := &captureAppender{}
	a := NewRecorder(app, "tx-1", "orchestrator", false)
	b := NewRecorder(app, "tx-1", "orchestrator", false)
	assert.NotEqual(t, a.RunID(), b.RunID())
}
