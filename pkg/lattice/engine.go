// Package lattice performs per-user memory retrieval for the prompt pack:
// lexical search over pinned memory artifacts, an optional vector pass
// that replaces lexical results when it hits, and policy capsule loading
// for risk- or keyword-eligible messages. Assembly is byte-budgeted.
package lattice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SolLabsHQ/solserver-sub002/pkg/store"
)

// Byte budget for assembled items; overflow stops assembly with a warning.
const MaxAssemblyBytes = 8 * 1024

// Query-term extraction bounds.
const (
	minTermLen = 3
	maxTerms   = 12
)

const lexicalLimit = 6

// Item is one assembled retrieval item.
type Item struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"` // memory | policy | memento | bookmark
	Summary string `json:"summary"`
}

// Meta is the retrieval audit record attached to the lattice gate trace
// and to meta.lattice on the final envelope.
type Meta struct {
	Status         string         `json:"status"` // hit | miss | fail
	RetrievalTrace []string       `json:"retrieval_trace"`
	Counts         map[string]int `json:"counts"`
	BytesTotal     int            `json:"bytes_total"`
	Scores         []float64      `json:"scores,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	DurationMs     int64          `json:"duration_ms"`
}

// Searcher is the store subset the engine consumes.
type Searcher interface {
	SearchMemoryArtifactsLexical(ctx context.Context, userID string, terms []string, lifecycle string, limit int) ([]store.MemoryArtifact, error)
	SearchMemoryArtifactsVector(ctx context.Context, userID string, vector []float32, lifecycle string, limit int, maxDistance float64) ([]store.MemoryArtifact, error)
}

// Embedder produces query vectors. The default is deterministic so the
// retrieval trace is reproducible in tests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config controls the engine. Flags map 1:1 to the LATTICE_* env vars.
type Config struct {
	Enabled          bool
	VecEnabled       bool
	VecQueryEnabled  bool
	VecMaxDistance   float64
	PolicyBundlePath string
}

// Query is one retrieval request.
type Query struct {
	UserID  string
	Message string
	Risk    string
	Intent  string
}

// Engine runs lattice retrieval.
type Engine struct {
	cfg      Config
	store    Searcher
	embedder Embedder
	capsules *capsuleCache
	logger   *slog.Logger
}

// NewEngine builds a retrieval engine.
func NewEngine(cfg Config, st Searcher, emb Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if emb == nil {
		emb = NewHashEmbedder()
	}
	return &Engine{
		cfg:      cfg,
		store:    st,
		embedder: emb,
		capsules: newCapsuleCache(cfg.PolicyBundlePath),
		logger:   logger.With("component", "lattice"),
	}
}

// Retrieve runs the full lookup. It never returns an error: retrieval
// failures degrade to status=fail with the cause in the trace, because
// the chat pipeline must not die on a memory lookup.
func (e *Engine) Retrieve(ctx context.Context, q Query) ([]Item, *Meta) {
	started := time.Now()
	meta := &Meta{Status: "miss", Counts: map[string]int{}}
	defer func() { meta.DurationMs = time.Since(started).Milliseconds() }()

	terms := QueryTerms(q.Message)
	if !e.cfg.Enabled || q.UserID == "" || len(terms) == 0 {
		meta.RetrievalTrace = append(meta.RetrievalTrace, "precondition_unmet")
		return nil, meta
	}

	arts, err := e.store.SearchMemoryArtifactsLexical(ctx, q.UserID, terms, "pinned", lexicalLimit)
	if err != nil {
		e.logger.Warn("lexical search failed", "error", err)
		meta.Status = "fail"
		meta.RetrievalTrace = append(meta.RetrievalTrace, "lexical_error")
		return nil, meta
	}
	meta.RetrievalTrace = append(meta.RetrievalTrace, fmt.Sprintf("lexical:%d", len(arts)))

	if e.cfg.VecEnabled && e.cfg.VecQueryEnabled {
		vec, embErr := e.embedder.Embed(ctx, q.Message)
		if embErr != nil {
			e.logger.Warn("embedding failed, keeping lexical results", "error", embErr)
			meta.RetrievalTrace = append(meta.RetrievalTrace, "vector_embed_error")
		} else {
			hits, vErr := e.store.SearchMemoryArtifactsVector(ctx, q.UserID, vec, "pinned", lexicalLimit, e.cfg.VecMaxDistance)
			if vErr != nil {
				e.logger.Warn("vector search failed, keeping lexical results", "error", vErr)
				meta.RetrievalTrace = append(meta.RetrievalTrace, "vector_error")
			} else {
				meta.RetrievalTrace = append(meta.RetrievalTrace, fmt.Sprintf("vector:%d", len(hits)))
				if len(hits) > 0 {
					arts = hits
				}
			}
		}
	}

	caps := e.loadCapsules(q, terms, meta)

	items, bytesTotal, capped := assemble(arts, caps)
	meta.BytesTotal = bytesTotal
	meta.Counts["memory"] = 0
	meta.Counts["policy"] = 0
	for _, it := range items {
		meta.Counts[it.Kind]++
	}
	for _, a := range arts {
		if a.Score > 0 {
			meta.Scores = append(meta.Scores, a.Score)
		}
	}
	if capped {
		meta.Warnings = append(meta.Warnings, "lattice_bytes_capped")
	}
	if len(items) > 0 {
		meta.Status = "hit"
	}
	return items, meta
}

func (e *Engine) loadCapsules(q Query, terms []string, meta *Meta) []Capsule {
	if !capsulesEligible(q) {
		return nil
	}
	caps, err := e.capsules.load()
	if err != nil {
		e.logger.Warn("policy capsule load failed", "error", err)
		meta.RetrievalTrace = append(meta.RetrievalTrace, "capsules_error")
		return nil
	}
	selected := selectCapsules(caps, terms)
	meta.RetrievalTrace = append(meta.RetrievalTrace, fmt.Sprintf("capsules:%d", len(selected)))
	return selected
}

// capsuleKeywords is the fixed eligibility keyword set.
var capsuleKeywords = []string{
	"policy", "safety", "constraint", "governance", "rule", "journal",
	"consent", "self-harm", "suicide", "violence", "abuse", "hate",
	"escalate", "crisis", "privacy", "security",
}

func capsulesEligible(q Query) bool {
	if q.Risk == "med" || q.Risk == "high" {
		return true
	}
	msg := strings.ToLower(q.Message)
	for _, kw := range capsuleKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return q.Intent == "support" && strings.Contains(msg, "should i")
}

// QueryTerms lowercases, keeps alphanumeric tokens of three or more
// characters, deduplicates, and caps at twelve.
func QueryTerms(message string) []string {
	raw := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, t := range raw {
		if len(t) < minTermLen || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxTerms {
			break
		}
	}
	return out
}

// assemble concatenates memory items then capsules under the byte budget.
func assemble(arts []store.MemoryArtifact, caps []Capsule) ([]Item, int, bool) {
	var items []Item
	total := 0
	capped := false

	push := func(it Item) bool {
		n := len(it.ID) + len(it.Summary)
		if total+n > MaxAssemblyBytes {
			capped = true
			return false
		}
		total += n
		items = append(items, it)
		return true
	}

	for _, a := range arts {
		summary := a.Title
		if summary == "" {
			summary = a.Text
		}
		if len(summary) > 280 {
			summary = summary[:280]
		}
		if !push(Item{ID: a.ID, Kind: "memory", Summary: summary}) {
			return items, total, capped
		}
	}
	for _, c := range caps {
		if !push(Item{ID: c.ID, Kind: "policy", Summary: c.Title + ": " + c.Snippet}) {
			return items, total, capped
		}
	}
	return items, total, capped
}
