package gates

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// NormalizeModality canonicalizes the user message: Unicode NFC, control
// characters stripped, whitespace runs collapsed. Always passes; the
// normalized text is what every later gate sees.
type NormalizeModality struct{}

func (g *NormalizeModality) Name() string { return "normalize_modality" }

func (g *NormalizeModality) Run(_ context.Context, in *Input) (contracts.GateOutput, error) {
	normalized := norm.NFC.String(in.Message)
	normalized = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, normalized)
	normalized = strings.Join(strings.Fields(normalized), " ")

	in.NormalizedMessage = normalized
	return contracts.GateOutput{
		Status:  contracts.GatePass,
		Summary: "message normalized",
		Metadata: map[string]any{
			"changed": normalized != in.Message,
			"length":  len(normalized),
		},
	}, nil
}
