package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// MemoryStore is the in-memory Store used by tests and single-process dev
// runs. All writes are serialized by one mutex, which preserves the
// single-writer-per-transmission assumption the pipeline relies on.
type MemoryStore struct {
	mu            sync.RWMutex
	transmissions map[string]*contracts.Transmission
	envelopes     map[string][]byte
	chatResults   map[string]string
	attempts      map[string][]contracts.DeliveryAttempt
	usage         map[string][]contracts.UsageRecord
	traces        map[string][]contracts.TraceEvent
	traceSeq      map[string]uint64
	evidence      map[string]*contracts.Evidence
	mementos      map[string]*contracts.ThreadMementoLatest
	artifacts     []MemoryArtifact
	topology      *TopologyKey
	mementoWrites map[string]int

	failures map[string]error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transmissions: make(map[string]*contracts.Transmission),
		envelopes:     make(map[string][]byte),
		chatResults:   make(map[string]string),
		attempts:      make(map[string][]contracts.DeliveryAttempt),
		usage:         make(map[string][]contracts.UsageRecord),
		traces:        make(map[string][]contracts.TraceEvent),
		traceSeq:      make(map[string]uint64),
		evidence:      make(map[string]*contracts.Evidence),
		mementos:      make(map[string]*contracts.ThreadMementoLatest),
		mementoWrites: make(map[string]int),
		failures:      make(map[string]error),
	}
}

// FailOn makes the named operation return err; used by pipeline-abort
// tests. Pass nil to clear.
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *MemoryStore) failure(op string) error {
	return s.failures[op]
}

// SeedArtifacts loads memory artifacts for lattice search tests.
func (s *MemoryStore) SeedArtifacts(arts ...MemoryArtifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, arts...)
}

func (s *MemoryStore) CreateTransmission(_ context.Context, t *contracts.Transmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("createTransmission"); err != nil {
		return err
	}
	cp := *t
	s.transmissions[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTransmission(_ context.Context, id string) (*contracts.Transmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transmissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpdateTransmissionStatus(_ context.Context, id string, status contracts.TransmissionStatus, statusCode int, retryable bool, errorCode, errorDetail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("updateTransmissionStatus"); err != nil {
		return err
	}
	t, ok := s.transmissions[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	t.StatusCode = statusCode
	t.Retryable = retryable
	t.ErrorCode = errorCode
	t.ErrorDetail = errorDetail
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateTransmissionPolicy(_ context.Context, id string, policy contracts.NotificationPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("updateTransmissionPolicy"); err != nil {
		return err
	}
	t, ok := s.transmissions[id]
	if !ok {
		return ErrNotFound
	}
	t.NotificationPolicy = policy
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetTransmissionOutputEnvelope(_ context.Context, id string, envelopeJSON []byte, envelopeHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("setTransmissionOutputEnvelope"); err != nil {
		return err
	}
	t, ok := s.transmissions[id]
	if !ok {
		return ErrNotFound
	}
	s.envelopes[id] = append([]byte(nil), envelopeJSON...)
	t.EnvelopeHash = envelopeHash
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// GetOutputEnvelope returns the persisted envelope JSON, if any.
func (s *MemoryStore) GetOutputEnvelope(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.envelopes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *MemoryStore) SetChatResult(_ context.Context, id string, assistantText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("setChatResult"); err != nil {
		return err
	}
	s.chatResults[id] = assistantText
	return nil
}

// GetChatResult returns the persisted assistant text.
func (s *MemoryStore) GetChatResult(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.chatResults[id]
	if !ok {
		return "", ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) AppendDeliveryAttempt(_ context.Context, a *contracts.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("appendDeliveryAttempt"); err != nil {
		return err
	}
	s.attempts[a.TransmissionID] = append(s.attempts[a.TransmissionID], *a)
	return nil
}

// GetDeliveryAttempts returns the recorded attempts for a transmission.
func (s *MemoryStore) GetDeliveryAttempts(_ context.Context, id string) []contracts.DeliveryAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.DeliveryAttempt(nil), s.attempts[id]...)
}

func (s *MemoryStore) RecordUsage(_ context.Context, u *contracts.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("recordUsage"); err != nil {
		return err
	}
	s.usage[u.TransmissionID] = append(s.usage[u.TransmissionID], *u)
	return nil
}

func (s *MemoryStore) AppendTraceEvent(_ context.Context, ev *contracts.TraceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("appendTraceEvent"); err != nil {
		return err
	}
	s.traceSeq[ev.TransmissionID]++
	ev.Seq = s.traceSeq[ev.TransmissionID]
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	s.traces[ev.TransmissionID] = append(s.traces[ev.TransmissionID], *ev)
	return nil
}

func (s *MemoryStore) GetTraceEvents(_ context.Context, transmissionID string, limit int) ([]contracts.TraceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.traces[transmissionID]
	if limit > 0 && len(evs) > limit {
		evs = evs[:limit]
	}
	return append([]contracts.TraceEvent(nil), evs...), nil
}

func (s *MemoryStore) GetTraceSummary(_ context.Context, transmissionID string) (*contracts.TraceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.traces[transmissionID]
	sum := &contracts.TraceSummary{}
	seen := make(map[string]bool)
	for _, ev := range evs {
		if sum.TraceRunID == "" {
			sum.TraceRunID = ev.TraceRunID
		}
		sum.Events++
		if !seen[string(ev.Phase)] {
			seen[string(ev.Phase)] = true
			sum.Phases = append(sum.Phases, string(ev.Phase))
		}
		if ev.Status == "failed" {
			sum.Failed = true
		}
	}
	return sum, nil
}

func (s *MemoryStore) SaveEvidence(_ context.Context, transmissionID string, ev *contracts.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("saveEvidence"); err != nil {
		return err
	}
	s.evidence[transmissionID] = ev
	return nil
}

func (s *MemoryStore) SearchMemoryArtifactsLexical(_ context.Context, userID string, terms []string, lifecycle string, limit int) ([]MemoryArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var candidates []MemoryArtifact
	for _, a := range s.artifacts {
		if a.UserID == userID && a.Lifecycle == lifecycle {
			candidates = append(candidates, a)
		}
	}
	return rankLexical(terms, candidates, limit), nil
}

func (s *MemoryStore) SearchMemoryArtifactsVector(_ context.Context, userID string, vector []float32, lifecycle string, limit int, maxDistance float64) ([]MemoryArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []MemoryArtifact
	for _, a := range s.artifacts {
		if a.UserID != userID || a.Lifecycle != lifecycle || len(a.Embedding) == 0 {
			continue
		}
		d := cosineDistance(vector, a.Embedding)
		if maxDistance > 0 && d > maxDistance {
			continue
		}
		a.Distance = d
		hits = append(hits, a)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) GetThreadMementoLatest(_ context.Context, threadID string) (*contracts.ThreadMementoLatest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mementos[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) UpsertThreadMementoLatest(_ context.Context, m *contracts.ThreadMementoLatest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("upsertThreadMementoLatest"); err != nil {
		return err
	}
	cp := *m
	s.mementos[m.ThreadID] = &cp
	s.mementoWrites[m.ThreadID]++
	return nil
}

// MementoWrites counts upserts for a thread; persistence-predicate tests
// use it to assert the store was not touched.
func (s *MemoryStore) MementoWrites(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mementoWrites[threadID]
}

func (s *MemoryStore) EnsureTopologyKeyPrimary(_ context.Context, createdBy, dbPath string) (*TopologyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topology == nil {
		s.topology = &TopologyKey{
			TopologyKey: uuid.NewString(),
			CreatedAtMs: time.Now().UnixMilli(),
			CreatedBy:   createdBy,
			DBPath:      dbPath,
		}
		return s.topology, nil
	}
	if s.topology.DBPath != dbPath {
		return nil, ErrTopologyMismatch
	}
	cp := *s.topology
	return &cp, nil
}
