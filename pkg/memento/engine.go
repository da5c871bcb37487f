package memento

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/store"
)

// Storage is the store subset the engine needs.
type Storage interface {
	GetThreadMementoLatest(ctx context.Context, threadID string) (*contracts.ThreadMementoLatest, error)
	UpsertThreadMementoLatest(ctx context.Context, m *contracts.ThreadMementoLatest) error
}

// UpdateInput carries one completed turn into the engine.
type UpdateInput struct {
	ThreadID      string
	UserMessage   string
	AssistantText string
	Shape         *contracts.MementoShape
	AffectSignal  *contracts.AffectSignal
	EndMessageID  string
}

// UpdateResult reports what the turn did to the memento.
type UpdateResult struct {
	Breakpoint     Decision `json:"breakpoint"`
	Frozen         bool     `json:"frozen"`
	NewAffectPoint bool     `json:"newAffectPoint"`
	ShapeChanged   bool     `json:"shapeChanged"`
	FirstTurn      bool     `json:"firstTurn"`
	Persisted      bool     `json:"persisted"`
}

// Engine applies turn updates to per-thread mementos. The in-process
// cache is authoritative between turns; the store is only written when
// the persistence predicate passes. Concurrent updates for one thread are
// serialized by the store's single-writer assumption.
type Engine struct {
	store  Storage
	rollup RollupFunc
	clock  func() time.Time

	mu    sync.RWMutex
	cache map[string]*contracts.ThreadMementoLatest
}

// NewEngine creates a memento engine with the default rollup rule.
func NewEngine(st Storage) *Engine {
	return &Engine{
		store:  st,
		rollup: DefaultRollup,
		clock:  time.Now,
		cache:  make(map[string]*contracts.ThreadMementoLatest),
	}
}

// WithRollup overrides the injected affect rollup rule.
func (e *Engine) WithRollup(fn RollupFunc) *Engine {
	e.rollup = fn
	return e
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Current returns the cached or persisted memento, or nil when the thread
// has none yet.
func (e *Engine) Current(ctx context.Context, threadID string) (*contracts.ThreadMementoLatest, error) {
	e.mu.RLock()
	cached := e.cache[threadID]
	e.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	m, err := e.store.GetThreadMementoLatest(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[threadID] = m
	e.mu.Unlock()
	return m, nil
}

// Update applies one completed turn: breakpoint decision, peak-freeze,
// shape merge, affect rollup, then the persistence predicate. The cache
// is always updated; the store only on meaningful change.
func (e *Engine) Update(ctx context.Context, in UpdateInput) (*contracts.ThreadMementoLatest, *UpdateResult, error) {
	prev, err := e.Current(ctx, in.ThreadID)
	if err != nil {
		return nil, nil, err
	}
	now := e.clock().UTC()

	res := &UpdateResult{FirstTurn: prev == nil}
	res.Breakpoint = DecideBreakpoint(in.UserMessage, in.AffectSignal)
	res.Frozen = PeakFrozen(prev, res.Breakpoint)

	var prevShape *contracts.MementoShape
	if prev != nil {
		prevShape = prev.Shape()
	}
	merged := MergeShape(in.Shape, prevShape, res.Frozen, in.UserMessage, in.AssistantText)
	res.ShapeChanged = ShapeChanged(merged, prevShape)

	next := &contracts.ThreadMementoLatest{
		ThreadID:  in.ThreadID,
		Arc:       merged.Arc,
		Active:    merged.Active,
		Parked:    merged.Parked,
		Decisions: merged.Decisions,
		Next:      merged.Next,
		UpdatedAt: now,
	}
	if prev != nil {
		next.MementoID = prev.MementoID
		next.CreatedTs = prev.CreatedTs
		next.Affect.Points = append([]contracts.AffectPoint(nil), prev.Affect.Points...)
	} else {
		next.MementoID = uuid.NewString()
		next.CreatedTs = now
	}

	if point := BuildAffectPoint(in.AffectSignal, in.EndMessageID, now); point != nil {
		res.NewAffectPoint = true
		next.Affect.Points = append(next.Affect.Points, *point)
		if len(next.Affect.Points) > contracts.AffectPointsCap {
			next.Affect.Points = next.Affect.Points[len(next.Affect.Points)-contracts.AffectPointsCap:]
		}
	}
	if len(next.Affect.Points) > 0 {
		next.Affect.Rollup = e.rollup(next.Affect.Points, now)
	} else if prev != nil {
		next.Affect.Rollup = prev.Affect.Rollup
	}

	// Cache always; store only on meaningful change.
	e.mu.Lock()
	e.cache[in.ThreadID] = next
	e.mu.Unlock()

	if res.NewAffectPoint || res.ShapeChanged || res.FirstTurn {
		if err := e.store.UpsertThreadMementoLatest(ctx, next); err != nil {
			return nil, nil, err
		}
		res.Persisted = true
	}
	return next, res, nil
}
