package linter

import (
	"fmt"
	"strings"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Violation is one failed rule.
type Violation struct {
	BlockID string   `json:"blockId"`
	Type    RuleType `json:"type"`
	Pattern string   `json:"pattern"`
}

// Result is a lint pass over assistant text.
type Result struct {
	RulesEvaluated int         `json:"rulesEvaluated"`
	Violations     []Violation `json:"violations,omitempty"`
}

// OK reports a clean pass.
func (r *Result) OK() bool { return len(r.Violations) == 0 }

// Lint evaluates every block's rules against the assistant text. Mode off
// skips evaluation entirely; mode selection between strict and warn is
// the caller's enforcement concern.
func Lint(assistantText string, blocks []contracts.DriverBlock, mode contracts.EnforcementMode) *Result {
	res := &Result{}
	if mode == contracts.EnforceOff {
		return res
	}

	haystack := strings.ToLower(assistantText)
	for _, block := range blocks {
		for _, rule := range ParseBlock(block) {
			res.RulesEvaluated++
			if v := evaluate(haystack, rule); v != nil {
				res.Violations = append(res.Violations, *v)
			}
		}
	}
	return res
}

func evaluate(haystack string, rule Rule) *Violation {
	switch rule.Type {
	case MustNot:
		for _, alt := range rule.Alternatives {
			if strings.Contains(haystack, strings.ToLower(alt)) {
				return &Violation{BlockID: rule.BlockID, Type: rule.Type, Pattern: alt}
			}
		}
	case MustHave:
		if !strings.Contains(haystack, strings.ToLower(rule.Alternatives[0])) {
			return &Violation{BlockID: rule.BlockID, Type: rule.Type, Pattern: rule.Alternatives[0]}
		}
	case MustHaveAny:
		for _, alt := range rule.Alternatives {
			if strings.Contains(haystack, strings.ToLower(alt)) {
				return nil
			}
		}
		return &Violation{BlockID: rule.BlockID, Type: rule.Type, Pattern: strings.Join(rule.Alternatives, " / ")}
	}
	return nil
}

// CorrectionPreamble renders lint violations as a corrective instruction
// for the single regeneration attempt.
func CorrectionPreamble(violations []Violation) string {
	var sb strings.Builder
	sb.WriteString("Your previous reply violated response policy. Regenerate the reply observing every rule below.\n")
	for _, v := range violations {
		switch v.Type {
		case MustNot:
			fmt.Fprintf(&sb, "- Do not include: %q (block %s)\n", v.Pattern, v.BlockID)
		default:
			fmt.Fprintf(&sb, "- You must include: %q (block %s)\n", v.Pattern, v.BlockID)
		}
	}
	return sb.String()
}
