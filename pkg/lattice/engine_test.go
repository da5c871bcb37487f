package lattice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolLabsHQ/solserver-sub002/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueryTerms(t *testing.T) {
	assert.Nil(t, QueryTerms(""))
	assert.Equal(t, []string{"hello", "world"}, QueryTerms("Hello, hello world! It is"))

	terms := QueryTerms("alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima mike november")
	assert.Len(t, terms, maxTerms)
}

func TestRetrieveDisabled(t *testing.T) {
	eng := NewEngine(Config{Enabled: false}, store.NewMemoryStore(), nil, testLogger())
	items, meta := eng.Retrieve(context.Background(), Query{UserID: "u1", Message: "hello world"})
	assert.Empty(t, items)
	assert.Equal(t, "miss", meta.Status)
	assert.Contains(t, meta.RetrievalTrace, "precondition_unmet")
}

func TestRetrieveLexicalHit(t *testing.T) {
	st := store.NewMemoryStore()
	st.SeedArtifacts(store.MemoryArtifact{
		ID: "art-1", UserID: "u1", Title: "otter facts",
		Text: "otters hold hands while sleeping", Lifecycle: "pinned",
	})

	eng := NewEngine(Config{Enabled: true}, st, nil, testLogger())
	items, meta := eng.Retrieve(context.Background(), Query{UserID: "u1", Message: "tell me about otters and otter facts"})
	require.NotEmpty(t, items)
	assert.Equal(t, "hit", meta.Status)
	assert.Equal(t, "memory", items[0].Kind)
	assert.Equal(t, "art-1", items[0].ID)
	assert.Equal(t, 1, meta.Counts["memory"])
	assert.Greater(t, meta.BytesTotal, 0)
}

func TestRetrieveOtherUserInvisible(t *testing.T) {
	st := store.NewMemoryStore()
	st.SeedArtifacts(store.MemoryArtifact{
		ID: "art-1", UserID: "someone-else", Title: "otter facts", Text: "x", Lifecycle: "pinned",
	})
	eng := NewEngine(Config{Enabled: true}, st, nil, testLogger())
	items, meta := eng.Retrieve(context.Background(), Query{UserID: "u1", Message: "otter facts please"})
	assert.Empty(t, items)
	assert.Equal(t, "miss", meta.Status)
}

func TestRetrieveVectorReplacesLexical(t *testing.T) {
	st := store.NewMemoryStore()
	st.SeedArtifacts(store.MemoryArtifact{
		ID: "art-1", UserID: "u1", Title: "project notes",
		Text: "notes about the garden project", Lifecycle: "pinned",
	})

	emb := NewHashEmbedder()
	vec, err := emb.Embed(context.Background(), "garden project notes")
	require.NoError(t, err)
	st.SeedArtifacts(store.MemoryArtifact{
		ID: "art-2", UserID: "u1", Title: "vector twin",
		Text: "garden project notes", Lifecycle: "pinned", Embedding: vec,
	})

	eng := NewEngine(Config{
		Enabled: true, VecEnabled: true, VecQueryEnabled: true, VecMaxDistance: 0.5,
	}, st, emb, testLogger())

	items, meta := eng.Retrieve(context.Background(), Query{UserID: "u1", Message: "garden project notes"})
	require.NotEmpty(t, items)
	assert.Equal(t, "hit", meta.Status)
	found := false
	for _, tr := range meta.RetrievalTrace {
		if strings.HasPrefix(tr, "vector:") {
			found = true
		}
	}
	assert.True(t, found, "retrieval trace should record the vector pass: %v", meta.RetrievalTrace)
}

func TestRetrievePolicyCapsules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capsules.json")
	bundle := capsuleBundle{Capsules: []Capsule{
		{ID: "ADR-001", Title: "journal consent", Snippet: "journaling requires explicit consent", Tags: []string{"journal"}},
		{ID: "POL-002", Title: "privacy baseline", Snippet: "privacy defaults", Tags: []string{"privacy"}},
	}}
	raw, err := json.Marshal(bundle)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	st := store.NewMemoryStore()
	st.SeedArtifacts(store.MemoryArtifact{
		ID: "art-1", UserID: "u1", Title: "journal history", Text: "past journal entries", Lifecycle: "pinned",
	})

	eng := NewEngine(Config{Enabled: true, PolicyBundlePath: path}, st, nil, testLogger())
	items, meta := eng.Retrieve(context.Background(), Query{
		UserID: "u1", Message: "should i journal about this?", Risk: "low", Intent: "support",
	})
	require.NotEmpty(t, items)
	assert.Equal(t, 1, meta.Counts["policy"])
	var kinds []string
	for _, it := range items {
		kinds = append(kinds, it.Kind)
	}
	assert.Contains(t, kinds, "policy")
}

func TestCapsulesEligible(t *testing.T) {
	assert.True(t, capsulesEligible(Query{Risk: "high"}))
	assert.True(t, capsulesEligible(Query{Risk: "med"}))
	assert.True(t, capsulesEligible(Query{Risk: "low", Message: "what is the privacy rule"}))
	assert.True(t, capsulesEligible(Query{Risk: "low", Intent: "support", Message: "should i quit"}))
	assert.False(t, capsulesEligible(Query{Risk: "low", Message: "nice weather today"}))
}

func TestSelectCapsulesOrderingAndCaps(t *testing.T) {
	var caps []Capsule
	for i := 0; i < 6; i++ {
		caps = append(caps, Capsule{ID: fmt.Sprintf("ADR-%03d", i+1), Title: "journal", Snippet: "journal"})
	}
	caps = append(caps, Capsule{ID: "POL-1", Title: "journal journal", Snippet: "journal"})

	selected := selectCapsules(caps, []string{"journal"})
	require.Len(t, selected, maxADRCapsules+1)
	for i := 0; i < maxADRCapsules; i++ {
		assert.True(t, strings.HasPrefix(selected[i].ID, "ADR-"))
	}
	assert.Equal(t, "POL-1", selected[maxADRCapsules].ID)
}

func TestAssembleByteBudget(t *testing.T) {
	big := strings.Repeat("m", 300)
	var arts []store.MemoryArtifact
	for i := 0; i < 40; i++ {
		arts = append(arts, store.MemoryArtifact{ID: "a", Title: big})
	}
	items, total, capped := assemble(arts, nil)
	assert.True(t, capped)
	assert.LessOrEqual(t, total, MaxAssemblyBytes)
	assert.NotEmpty(t, items)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	emb := NewHashEmbedder()
	a, err := emb.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	b, err := emb.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}
