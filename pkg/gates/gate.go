// Package gates runs the input gate chain in its authoritative order:
// normalize_modality, url_extraction, intent, sentinel, lattice. Each gate
// emits a uniform GateOutput; only the sentinel gate may raise urgency,
// and urgency flags from any other gate are discarded with a warning.
package gates

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/lattice"
)

// SentinelGateName is the only gate allowed to escalate urgency.
const SentinelGateName = "sentinel"

// Input is the mutable context threaded through the chain. Gates read the
// fields earlier gates populated.
type Input struct {
	Message           string
	NormalizedMessage string
	UserID            string
	ThreadID          string
	Evidence          *contracts.Evidence

	// Populated by gates as the chain advances.
	URLs   []string
	Intent string // support | task | question | chat
	Risk   string // low | med | high

	LatticeItems []lattice.Item
	LatticeMeta  *lattice.Meta
}

// Gate is one input gate.
type Gate interface {
	Name() string
	Run(ctx context.Context, in *Input) (contracts.GateOutput, error)
}

// ChainResult aggregates the chain outcome.
type ChainResult struct {
	Outputs        []contracts.GateOutput
	SafetyIsUrgent bool
	Intent         string
	Risk           string
	Normalized     string
	LatticeItems   []lattice.Item
	LatticeMeta    *lattice.Meta
}

// Chain is the fixed-order gate sequence.
type Chain struct {
	gates  []Gate
	logger *slog.Logger
}

// NewChain builds the authoritative chain. The lattice engine may be nil
// when retrieval is disabled; the lattice gate then reports a miss.
func NewChain(engine *lattice.Engine, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		logger: logger.With("component", "gates"),
		gates: []Gate{
			&NormalizeModality{},
			&URLExtraction{},
			&IntentGate{},
			&Sentinel{},
			&LatticeGate{Engine: engine},
		},
	}
}

// Gates exposes the ordered gate list for trace emission.
func (c *Chain) Gates() []Gate { return c.gates }

// Run executes every gate in order. OnGate is invoked after each gate so
// the orchestrator can append the trace event inside the phase ordering
// contract; a callback error aborts the chain.
func (c *Chain) Run(ctx context.Context, in *Input, onGate func(ctx context.Context, out contracts.GateOutput) error) (*ChainResult, error) {
	res := &ChainResult{Risk: "low"}
	for _, g := range c.gates {
		out, err := g.Run(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("gate %s: %w", g.Name(), err)
		}
		out.GateName = g.Name()

		// Urgency source invariant: discard non-sentinel urgency.
		if out.IsUrgent && g.Name() != SentinelGateName {
			c.logger.Warn("discarding urgency flag from non-sentinel gate", "gate", g.Name())
			out.IsUrgent = false
		}
		if g.Name() == SentinelGateName && out.IsUrgent {
			res.SafetyIsUrgent = true
		}

		res.Outputs = append(res.Outputs, out)
		if onGate != nil {
			if err := onGate(ctx, out); err != nil {
				return nil, err
			}
		}
	}
	res.Intent = in.Intent
	res.Risk = in.Risk
	res.Normalized = in.NormalizedMessage
	res.LatticeItems = in.LatticeItems
	res.LatticeMeta = in.LatticeMeta
	return res, nil
}

// PhaseFor maps a gate name to its trace phase.
func PhaseFor(gateName string) contracts.Phase {
	return contracts.Phase("gate_" + gateName)
}
