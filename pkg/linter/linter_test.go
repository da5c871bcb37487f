package linter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

func block(id, definition string) contracts.DriverBlock {
	return contracts.DriverBlock{ID: id, Title: id, Definition: definition}
}

func TestParseBlockNoValidators(t *testing.T) {
	assert.Empty(t, ParseBlock(block("b1", "Just prose, no rules here.")))
}

func TestParseBlockRules(t *testing.T) {
	def := `Tone guidance prose.
Validators:
- Must-not: "as an ai"
- Must-have: "right now"
- Must: "breathe" or "pause"
`
	rules := ParseBlock(block("b1", def))
	require.Len(t, rules, 3)
	assert.Equal(t, MustNot, rules[0].Type)
	assert.Equal(t, []string{"as an ai"}, rules[0].Alternatives)
	assert.Equal(t, MustHave, rules[1].Type)
	assert.Equal(t, MustHaveAny, rules[2].Type)
	assert.Equal(t, []string{"breathe", "pause"}, rules[2].Alternatives)
}

func TestParseBlockSectionEndsAtProse(t *testing.T) {
	def := `Validators:
- Must-not: "foo"
Closing prose ends the section.
- Must-not: "bar"
`
	rules := ParseBlock(block("b1", def))
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"foo"}, rules[0].Alternatives)
}

func TestExpandSlashes(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"plain", []string{"plain"}},
		{"a/b/c", []string{"a", "b", "c"}},
		// A spaced first segment shares its prefix across alternatives.
		{"check in/out", []string{"check in", "check out"}},
		{"calm down/across", []string{"calm down", "calm across"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, expandSlashes(tc.in), tc.in)
	}
}

func TestLintModeOff(t *testing.T) {
	blocks := []contracts.DriverBlock{block("b1", `Validators:
- Must-not: "forbidden"
`)}
	res := Lint("totally forbidden text", blocks, contracts.EnforceOff)
	assert.True(t, res.OK())
	assert.Zero(t, res.RulesEvaluated)
}

func TestLintMustNot(t *testing.T) {
	blocks := []contracts.DriverBlock{block("b1", `Validators:
- Must-not: "as an AI"
`)}
	res := Lint("Well, as an ai model I cannot", blocks, contracts.EnforceStrict)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, MustNot, res.Violations[0].Type)
	assert.Equal(t, "b1", res.Violations[0].BlockID)

	res = Lint("a clean reply", blocks, contracts.EnforceStrict)
	assert.True(t, res.OK())
}

func TestLintMustHave(t *testing.T) {
	blocks := []contracts.DriverBlock{block("b1", `Validators:
- Must-have: "one small step"
`)}
	res := Lint("Try one small step today.", blocks, contracts.EnforceStrict)
	assert.True(t, res.OK())

	res = Lint("Generic advice.", blocks, contracts.EnforceStrict)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, MustHave, res.Violations[0].Type)
}

func TestLintMustHaveAny(t *testing.T) {
	blocks := []contracts.DriverBlock{block("b1", `Validators:
- Must: "breathe" or "ground/pause"
`)}
	assert.True(t, Lint("Take a moment to pause.", blocks, contracts.EnforceStrict).OK())
	assert.False(t, Lint("Nothing matching here.", blocks, contracts.EnforceStrict).OK())
}

func TestCorrectionPreamble(t *testing.T) {
	preamble := CorrectionPreamble([]Violation{
		{BlockID: "b1", Type: MustNot, Pattern: "as an ai"},
		{BlockID: "b2", Type: MustHave, Pattern: "one small step"},
	})
	assert.Contains(t, preamble, `Do not include: "as an ai"`)
	assert.Contains(t, preamble, `You must include: "one small step"`)
	assert.Contains(t, preamble, "block b1")
}
