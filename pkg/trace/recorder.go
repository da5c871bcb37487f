// Package trace records the append-only audit trail of a transmission.
// Every pipeline phase appends events through one Recorder; the store
// assigns the per-transmission monotonic sequence number at append time.
package trace

import (
	"context"

	"github.com/google/uuid"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Appender is the single store operation the recorder needs.
type Appender interface {
	AppendTraceEvent(ctx context.Context, ev *contracts.TraceEvent) error
}

// Recorder binds a trace run to a transmission. A store write failure is
// surfaced to the caller and aborts the pipeline; the trace contract is
// not best-effort.
type Recorder struct {
	store          Appender
	runID          string
	transmissionID string
	actor          string
	captureModelIO bool
}

// NewRecorder opens a new trace run for the transmission.
func NewRecorder(store Appender, transmissionID, actor string, captureModelIO bool) *Recorder {
	return &Recorder{
		store:          store,
		runID:          uuid.NewString(),
		transmissionID: transmissionID,
		actor:          actor,
		captureModelIO: captureModelIO,
	}
}

// RunID returns the trace run identifier.
func (r *Recorder) RunID() string { return r.runID }

// CaptureModelIO reports whether raw model input/output may be attached to
// trace metadata for this run.
func (r *Recorder) CaptureModelIO() bool { return r.captureModelIO }

// Event appends one trace event.
func (r *Recorder) Event(ctx context.Context, phase contracts.Phase, status, summary string, metadata map[string]any) error {
	return r.store.AppendTraceEvent(ctx, &contracts.TraceEvent{
		TraceRunID:     r.runID,
		TransmissionID: r.transmissionID,
		Actor:          r.actor,
		Phase:          phase,
		Status:         status,
		Summary:        summary,
		Metadata:       metadata,
	})
}

// Completed appends a completed event.
func (r *Recorder) Completed(ctx context.Context, phase contracts.Phase, summary string, metadata map[string]any) error {
	return r.Event(ctx, phase, "completed", summary, metadata)
}

// Failed appends a failed event.
func (r *Recorder) Failed(ctx context.Context, phase contracts.Phase, summary string, metadata map[string]any) error {
	return r.Event(ctx, phase, "failed", summary, metadata)
}

// Warning appends a warning event.
func (r *Recorder) Warning(ctx context.Context, phase contracts.Phase, summary string, metadata map[string]any) error {
	return r.Event(ctx, phase, "warning", summary, metadata)
}
