package orchestrator

import (
	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/prompt"
)

// ResolveMode derives the persona/mode routing for a packet. A forced
// persona overrides routing; an unknown forced persona falls back to
// System-mode but keeps the requested label.
func ResolveMode(forcedPersona string, profile *prompt.Profile) contracts.ModeDecision {
	if forcedPersona == "" {
		return contracts.ModeDecision{
			ModeLabel: profile.DefaultMode,
			Reasons:   []string{"default_routing"},
		}
	}

	decision := contracts.ModeDecision{
		PersonaLabel: forcedPersona,
		Reasons:      []string{"forced_persona"},
	}
	if p := profile.Find(forcedPersona); p != nil {
		decision.ModeLabel = p.ModeLabel
		if decision.ModeLabel == "" {
			decision.ModeLabel = profile.DefaultMode
		}
	} else {
		decision.ModeLabel = "System-mode"
		decision.Reasons = append(decision.Reasons, "unknown_persona_default")
	}
	return decision
}
