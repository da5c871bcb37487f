// Package store defines the persistence contract of the control plane and
// its two implementations: sqlite for deployments and an in-memory store
// for tests. Both preserve the single-writer-per-transmission assumption —
// status writes are linearizable per transmission and trace sequence
// numbers are assigned under the store's write lock.
package store

import (
	"context"
	"errors"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrTopologyMismatch means the persisted topology key disagrees with
	// the process's expectation — a deployment misconfiguration.
	ErrTopologyMismatch = errors.New("topology key mismatch")
)

// MemoryArtifact is a per-user memory row searchable by the lattice.
type MemoryArtifact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags,omitempty"`
	Lifecycle string    `json:"lifecycle"` // pinned | ephemeral
	Embedding []float32 `json:"embedding,omitempty"`

	// Result-only fields.
	Score    float64 `json:"score,omitempty"`
	Distance float64 `json:"distance,omitempty"`
}

// TopologyKey identifies the primary process group owning the database.
type TopologyKey struct {
	TopologyKey string `json:"topologyKey"`
	CreatedAtMs int64  `json:"createdAtMs"`
	CreatedBy   string `json:"createdBy"`
	DBPath      string `json:"dbPath"`
}

// Store is the persistence contract the orchestrator consumes.
type Store interface {
	CreateTransmission(ctx context.Context, t *contracts.Transmission) error
	UpdateTransmissionStatus(ctx context.Context, id string, status contracts.TransmissionStatus, statusCode int, retryable bool, errorCode, errorDetail string) error
	UpdateTransmissionPolicy(ctx context.Context, id string, policy contracts.NotificationPolicy) error
	SetTransmissionOutputEnvelope(ctx context.Context, id string, envelopeJSON []byte, envelopeHash string) error
	SetChatResult(ctx context.Context, id string, assistantText string) error
	AppendDeliveryAttempt(ctx context.Context, a *contracts.DeliveryAttempt) error
	RecordUsage(ctx context.Context, u *contracts.UsageRecord) error

	// AppendTraceEvent assigns ev.Seq (monotonic per transmission) and
	// persists the event. Append-only.
	AppendTraceEvent(ctx context.Context, ev *contracts.TraceEvent) error
	GetTraceEvents(ctx context.Context, transmissionID string, limit int) ([]contracts.TraceEvent, error)
	GetTraceSummary(ctx context.Context, transmissionID string) (*contracts.TraceSummary, error)

	SaveEvidence(ctx context.Context, transmissionID string, ev *contracts.Evidence) error

	SearchMemoryArtifactsLexical(ctx context.Context, userID string, terms []string, lifecycle string, limit int) ([]MemoryArtifact, error)
	SearchMemoryArtifactsVector(ctx context.Context, userID string, vector []float32, lifecycle string, limit int, maxDistance float64) ([]MemoryArtifact, error)

	GetThreadMementoLatest(ctx context.Context, threadID string) (*contracts.ThreadMementoLatest, error)
	UpsertThreadMementoLatest(ctx context.Context, m *contracts.ThreadMementoLatest) error

	// EnsureTopologyKeyPrimary creates the topology key on first boot and
	// verifies it on subsequent boots, fail-closed on mismatch.
	EnsureTopologyKeyPrimary(ctx context.Context, createdBy, dbPath string) (*TopologyKey, error)
}

// GetTransmission is implemented by both stores; it is split out of Store
// because only the HTTP surface and tests read transmissions back.
type TransmissionReader interface {
	GetTransmission(ctx context.Context, id string) (*contracts.Transmission, error)
}
