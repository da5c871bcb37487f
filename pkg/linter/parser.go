// Package linter applies driver-block validator rules to assistant text.
// The "Validators:" section of a driver block is a tiny configuration
// language: Must-not / Must-have / Must lines with double-quoted patterns
// and slash-delimited alternatives. Parsing is tolerant of surrounding
// prose; evaluation is a case-insensitive substring match.
package linter

import (
	"regexp"
	"strings"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// RuleType after normalization: Must: parses as must-have; alternatives
// turn must-have into must-have-any.
type RuleType string

const (
	MustNot     RuleType = "must-not"
	MustHave    RuleType = "must-have"
	MustHaveAny RuleType = "must-have-any"
)

// Rule is one parsed validator rule.
type Rule struct {
	BlockID      string
	Type         RuleType
	Alternatives []string // 1..n patterns; any match satisfies/violates
}

var (
	ruleLine   = regexp.MustCompile(`^\s*-\s*(Must-not|Must-have|Must)\s*:\s*(.+)$`)
	quotedText = regexp.MustCompile(`"([^"]*)"`)
)

// ParseBlock extracts the validator rules from a driver block definition.
// Blocks without a Validators: section yield no rules.
func ParseBlock(block contracts.DriverBlock) []Rule {
	_, section, found := strings.Cut(block.Definition, "Validators:")
	if !found {
		return nil
	}

	var rules []Rule
	for _, line := range strings.Split(section, "\n") {
		m := ruleLine.FindStringSubmatch(line)
		if m == nil {
			// A non-rule, non-blank line ends the section.
			if strings.TrimSpace(line) != "" && !strings.HasPrefix(strings.TrimSpace(line), "-") {
				break
			}
			continue
		}

		var alternatives []string
		for _, q := range quotedText.FindAllStringSubmatch(m[2], -1) {
			alternatives = append(alternatives, expandSlashes(q[1])...)
		}
		if len(alternatives) == 0 {
			continue
		}

		rt := MustHave
		if m[1] == "Must-not" {
			rt = MustNot
		} else if len(alternatives) > 1 {
			rt = MustHaveAny
		}
		if rt == MustNot && len(alternatives) > 1 {
			// must-not with alternatives still violates on any match;
			// the type stays must-not.
			rt = MustNot
		}

		rules = append(rules, Rule{
			BlockID:      block.ID,
			Type:         rt,
			Alternatives: alternatives,
		})
	}
	return rules
}

// expandSlashes splits a quoted pattern on "/". When the first segment
// contains a space, its pre-space prefix is shared across the remaining
// alternatives: "check in/out" expands to ["check in", "check out"].
func expandSlashes(pattern string) []string {
	parts := strings.Split(pattern, "/")
	if len(parts) == 1 {
		return []string{pattern}
	}
	first := parts[0]
	prefix := ""
	if idx := strings.LastIndex(first, " "); idx >= 0 {
		prefix = first[:idx+1]
	}
	out := []string{first}
	for _, p := range parts[1:] {
		out = append(out, prefix+p)
	}
	return out
}
