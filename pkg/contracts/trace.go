package contracts

import "time"

// Phase is an orchestration phase name as it appears on trace events.
type Phase string

const (
	PhaseEvidenceIntake        Phase = "evidence_intake"
	PhaseGateNormalizeModality Phase = "gate_normalize_modality"
	PhaseGateURLExtraction     Phase = "gate_url_extraction"
	PhaseGateIntent            Phase = "gate_intent"
	PhaseGateSentinel          Phase = "gate_sentinel"
	PhaseGateLattice           Phase = "gate_lattice"
	PhaseModelCall             Phase = "model_call"
	PhaseOutputGates           Phase = "output_gates"
)

// PhaseOrder is the authoritative relative ordering of pipeline phases.
// Phases need not be contiguous in a trace but must appear in this order.
var PhaseOrder = []Phase{
	PhaseEvidenceIntake,
	PhaseGateNormalizeModality,
	PhaseGateURLExtraction,
	PhaseGateIntent,
	PhaseGateSentinel,
	PhaseGateLattice,
	PhaseModelCall,
	PhaseOutputGates,
}

// PhaseRank returns the index of p in the authoritative order, or -1 for
// phases outside the ordering contract.
func PhaseRank(p Phase) int {
	for i, q := range PhaseOrder {
		if q == p {
			return i
		}
	}
	return -1
}

// TraceEvent is one append-only audit record inside a trace run.
// Seq is a per-transmission monotonic counter assigned at append time.
type TraceEvent struct {
	ID             string         `json:"id"`
	TraceRunID     string         `json:"traceRunId"`
	TransmissionID string         `json:"transmissionId"`
	Seq            uint64         `json:"seq"`
	Actor          string         `json:"actor"`
	Phase          Phase          `json:"phase"`
	Status         string         `json:"status"` // started | completed | failed | warning
	Summary        string         `json:"summary"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// TraceRun binds an ordered event sequence to a transmission.
type TraceRun struct {
	ID             string    `json:"traceRunId"`
	TransmissionID string    `json:"transmissionId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TraceSummary is the bounded per-run digest returned to clients.
type TraceSummary struct {
	TraceRunID string   `json:"traceRunId"`
	Events     int      `json:"events"`
	Phases     []string `json:"phases"`
	Failed     bool     `json:"failed"`
}

// Well-known trace metadata kinds. These are part of the observability
// contract; metadata remains a free-form mapping otherwise.
const (
	TraceKindOutputEnvelope   = "output_envelope"
	TraceKindPostLinter       = "post_linter"
	TraceKindDriverBlock      = "driver_block"
	TraceKindLibrarianGate    = "librarian_gate"
	TraceKindEvidenceBinding  = "evidence_binding"
	TraceKindEvidenceBudget   = "evidence_budget"
	TraceKindEvidenceProvider = "evidence_provider"
	TraceKindJournalOffer     = "journal_offer"
	TraceKindMementoQuality   = "memento_quality"
	TraceKindBreakpoint       = "breakpoint_engine"
)

// GateStatus is the tri-state outcome of a single input gate.
type GateStatus string

const (
	GatePass GateStatus = "pass"
	GateFail GateStatus = "fail"
	GateWarn GateStatus = "warn"
)

// GateOutput is the uniform result contract for input gates.
type GateOutput struct {
	GateName string         `json:"gateName"`
	Status   GateStatus     `json:"status"`
	Summary  string         `json:"summary"`
	IsUrgent bool           `json:"is_urgent,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
