// Package contracts defines the shared semantic types of the chat control
// plane — transmissions, trace events, evidence, envelopes, mementos — and
// the structured error taxonomy surfaced at the HTTP boundary.
//
// Types here are wire-level: JSON tags follow the external contract, not
// Go conventions. Behavior lives in the component packages.
package contracts

import "time"

// TransmissionStatus is the lifecycle state of one delivery attempt chain.
type TransmissionStatus string

const (
	TransmissionCreated    TransmissionStatus = "created"
	TransmissionProcessing TransmissionStatus = "processing"
	TransmissionCompleted  TransmissionStatus = "completed"
	TransmissionFailed     TransmissionStatus = "failed"
)

// NotificationPolicy controls how the client surfaces the final assistant
// message. Only the sentinel gate may escalate to urgent.
type NotificationPolicy string

const (
	NotificationSilent NotificationPolicy = "silent"
	NotificationAlert  NotificationPolicy = "alert"
	NotificationUrgent NotificationPolicy = "urgent"
)

// Transmission is one attempt to deliver an assistant response for a chat
// packet. Created at request admission, mutated only by the orchestrator,
// persisted on every status change.
type Transmission struct {
	ID                 string             `json:"transmissionId"`
	ThreadID           string             `json:"threadId"`
	ClientRequestID    string             `json:"clientRequestId,omitempty"`
	ForcedPersona      string             `json:"forced_persona,omitempty"`
	NotificationPolicy NotificationPolicy `json:"notification_policy"`
	Status             TransmissionStatus `json:"status"`
	StatusCode         int                `json:"statusCode,omitempty"`
	Retryable          bool               `json:"retryable"`
	ErrorCode          string             `json:"errorCode,omitempty"`
	ErrorDetail        string             `json:"errorDetail,omitempty"`
	EnvelopeHash       string             `json:"envelopeHash,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// DeliveryAttempt records one model invocation within a transmission.
type DeliveryAttempt struct {
	TransmissionID string    `json:"transmissionId"`
	Attempt        int       `json:"attempt"` // 0 = main, 1 = correction or contract retry
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	Status         string    `json:"status"` // succeeded | failed
	ErrorCode      string    `json:"errorCode,omitempty"`
	LatencyMs      int64     `json:"latencyMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UsageRecord captures token accounting for one transmission.
type UsageRecord struct {
	TransmissionID  string    `json:"transmissionId"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	PromptChars     int       `json:"promptChars"`
	CompletionChars int       `json:"completionChars"`
	Attempts        int       `json:"attempts"`
	RecordedAt      time.Time `json:"recordedAt"`
}

// ModeDecision is the resolved persona/mode routing for a packet.
type ModeDecision struct {
	ModeLabel    string   `json:"modeLabel"`
	PersonaLabel string   `json:"personaLabel"`
	Reasons      []string `json:"reasons"`
}
