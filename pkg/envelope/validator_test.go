package envelope

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

func TestParseMinimalEnvelope(t *testing.T) {
	res, pf := Parse([]byte(`{"assistant_text":"hello there"}`), 0)
	require.Nil(t, pf)
	require.NotNil(t, res.Envelope)
	assert.Equal(t, "hello there", res.Envelope.AssistantText)
	assert.Nil(t, res.Envelope.Meta)
	assert.Empty(t, res.DroppedMetaKeys)
}

func TestParseInvalidJSON(t *testing.T) {
	_, pf := Parse([]byte(`{"assistant_text":`), 0)
	require.NotNil(t, pf)
	assert.Equal(t, contracts.ParseInvalidJSON, pf.Reason)
}

func TestParseMissingAssistantText(t *testing.T) {
	_, pf := Parse([]byte(`{"meta":{}}`), 0)
	require.NotNil(t, pf)
	assert.Equal(t, contracts.ParseSchemaInvalid, pf.Reason)
	assert.NotEmpty(t, pf.Issues)
}

func TestParseRejectsUnknownTopLevelField(t *testing.T) {
	_, pf := Parse([]byte(`{"assistant_text":"hi","extra":true}`), 0)
	require.NotNil(t, pf)
	assert.Equal(t, contracts.ParseSchemaInvalid, pf.Reason)
}

func TestParsePayloadTooLarge(t *testing.T) {
	big, err := json.Marshal(map[string]string{
		"assistant_text": strings.Repeat("a", MaxEnvelopeBytes),
	})
	require.NoError(t, err)
	_, pf := Parse(big, 0)
	require.NotNil(t, pf)
	assert.Equal(t, contracts.ParsePayloadTooLarge, pf.Reason)
}

func TestParseDropsUnknownMetaKeys(t *testing.T) {
	raw := `{"assistant_text":"hi","meta":{"display_hint":"ghost_card","ghost_kind":"memory_artifact","ghost_title":"t","wild_key":1}}`
	res, pf := Parse([]byte(raw), 0)
	require.Nil(t, pf)
	assert.Equal(t, []string{"wild_key"}, res.DroppedMetaKeys)
	require.NotNil(t, res.Envelope.Meta)
	assert.Equal(t, contracts.GhostMemoryArtifact, res.Envelope.Meta.GhostKind)
}

func TestParseAliasesMetaVersion(t *testing.T) {
	raw := `{"assistant_text":"hi","meta":{"metaVersion":"v1"}}`
	res, pf := Parse([]byte(raw), 0)
	require.Nil(t, pf)
	assert.Equal(t, contracts.MetaVersionV1, res.Envelope.Meta.MetaVersion)
}

func TestParseAliasesGhostType(t *testing.T) {
	raw := `{"assistant_text":"hi","meta":{"ghost_type":"journal","ghost_title":"t"}}`
	res, pf := Parse([]byte(raw), 0)
	require.Nil(t, pf)
	require.NotNil(t, res.Envelope.Meta)
	assert.Equal(t, contracts.GhostJournalMoment, res.Envelope.Meta.GhostKind)
}

func TestParseDefaultsMetaVersion(t *testing.T) {
	res, pf := Parse([]byte(`{"assistant_text":"hi","meta":{"display_hint":"inline"}}`), 0)
	require.Nil(t, pf)
	assert.Equal(t, contracts.MetaVersionV1, res.Envelope.Meta.MetaVersion)
}

// Ghost keys escalate full-schema failures from advisory to blocking.
func TestParseGhostCardSchemaIsBlocking(t *testing.T) {
	raw := `{"assistant_text":"hi","meta":{"ghost_kind":"not_a_known_kind","ghost_title":"t"}}`
	_, pf := Parse([]byte(raw), 0)
	require.NotNil(t, pf)
	assert.Equal(t, contracts.ParseSchemaInvalid, pf.Reason)
}

func TestParseFullSchemaWarningWithoutGhostKeys(t *testing.T) {
	// calendar_event without suggested_start_at trips the full schema only.
	raw := `{"assistant_text":"hi","meta":{"capture_suggestion":{"kind":"calendar_event","title":"dentist"}}}`
	res, pf := Parse([]byte(raw), 0)
	require.Nil(t, pf)
	assert.NotEmpty(t, res.FullSchemaWarning)
}

func TestValidateCaptureSuggestion(t *testing.T) {
	cases := []struct {
		name string
		cs   *contracts.CaptureSuggestion
		ok   bool
	}{
		{"nil", nil, true},
		{"calendar with start", &contracts.CaptureSuggestion{Kind: "calendar_event", SuggestedStartAt: "2026-08-24T10:00:00Z"}, true},
		{"calendar missing start", &contracts.CaptureSuggestion{Kind: "calendar_event"}, false},
		{"calendar with date", &contracts.CaptureSuggestion{Kind: "calendar_event", SuggestedStartAt: "2026-08-24T10:00:00Z", SuggestedDate: "2026-08-24"}, false},
		{"journal clean", &contracts.CaptureSuggestion{Kind: "journal_entry"}, true},
		{"journal with start", &contracts.CaptureSuggestion{Kind: "journal_entry", SuggestedStartAt: "2026-08-24T10:00:00Z"}, false},
		{"reminder with start", &contracts.CaptureSuggestion{Kind: "reminder", SuggestedStartAt: "2026-08-24T10:00:00Z"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCaptureSuggestion(tc.cs)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestMarshalEgressStampsMetaVersion(t *testing.T) {
	env := &contracts.OutputEnvelope{
		AssistantText: "hi",
		Meta:          &contracts.EnvelopeMeta{DisplayHint: "inline"},
	}
	raw, err := MarshalEgress(env)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	meta, ok := doc["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, contracts.MetaVersionV1, meta["meta_version"])
	for k := range meta {
		assert.True(t, contracts.IsAllowedMetaKey(k), "egress leaked meta key %q", k)
	}
}

func TestContentHashStable(t *testing.T) {
	env := &contracts.OutputEnvelope{
		AssistantText: "hi",
		Meta: &contracts.EnvelopeMeta{
			UsedEvidenceIDs: []string{"ev-1"},
			DisplayHint:     "inline",
		},
	}
	h1, err := ContentHash(env)
	require.NoError(t, err)
	h2, err := ContentHash(env)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}
