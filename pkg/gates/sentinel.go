package gates

import (
	"context"
	"strings"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Sentinel is the safety gate and the exclusive source of urgency
// escalation. It derives the risk level every later component consumes.
type Sentinel struct{}

func (g *Sentinel) Name() string { return SentinelGateName }

var highRiskMarkers = []string{
	"self-harm", "self harm", "suicide", "kill myself", "hurt myself",
	"end my life", "crisis",
}

var medRiskMarkers = []string{
	"violence", "abuse", "hate", "escalate", "unsafe", "threat",
	"panic", "emergency",
}

func (g *Sentinel) Run(_ context.Context, in *Input) (contracts.GateOutput, error) {
	msg := strings.ToLower(in.NormalizedMessage)

	risk := "low"
	urgent := false
	switch {
	case containsAny(msg, highRiskMarkers):
		risk = "high"
		urgent = true
	case containsAny(msg, medRiskMarkers):
		risk = "med"
	}
	in.Risk = risk

	status := contracts.GatePass
	summary := "no safety concern"
	if risk != "low" {
		status = contracts.GateWarn
		summary = "safety concern detected, risk " + risk
	}

	return contracts.GateOutput{
		Status:   status,
		Summary:  summary,
		IsUrgent: urgent,
		Metadata: map[string]any{"risk": risk},
	}, nil
}
