package gates

import (
	"context"
	"strings"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// IntentGate classifies the packet into a coarse intent bucket. The
// routing is keyword-driven and deterministic; support intent combined
// with "should i" later widens policy capsule loading.
type IntentGate struct{}

func (g *IntentGate) Name() string { return "intent" }

var supportMarkers = []string{
	"i feel", "i'm feeling", "im feeling", "overwhelmed", "anxious",
	"worried", "stressed", "struggling", "should i",
}

var taskMarkers = []string{
	"remind me", "schedule", "add to", "create a", "set up", "todo",
}

func (g *IntentGate) Run(_ context.Context, in *Input) (contracts.GateOutput, error) {
	msg := strings.ToLower(in.NormalizedMessage)

	intent := "chat"
	switch {
	case containsAny(msg, supportMarkers):
		intent = "support"
	case containsAny(msg, taskMarkers):
		intent = "task"
	case strings.HasSuffix(strings.TrimSpace(msg), "?"):
		intent = "question"
	}
	in.Intent = intent

	return contracts.GateOutput{
		Status:   contracts.GatePass,
		Summary:  "intent " + intent,
		Metadata: map[string]any{"intent": intent},
	}, nil
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
