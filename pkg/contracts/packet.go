package contracts

// ThreadContextMode controls whether the memento quality repair loop may
// trigger a corrective regeneration.
type ThreadContextMode string

const (
	ThreadContextAuto ThreadContextMode = "auto"
	ThreadContextOff  ThreadContextMode = "off"
)

// TraceConfig tunes trace capture for one packet.
type TraceConfig struct {
	CaptureModelIO bool `json:"captureModelIO,omitempty"`
}

// ProviderHints let a client steer provider selection within policy.
type ProviderHints struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// PacketInput is the request envelope for POST /v1/chat.
type PacketInput struct {
	ThreadID           string               `json:"threadId"`
	PacketType         string               `json:"packetType,omitempty"` // chat | worker | simulate
	Message            string               `json:"message"`
	Evidence           *Evidence            `json:"evidence,omitempty"`
	ThreadMementoRef   string               `json:"threadMementoRef,omitempty"`
	ThreadMemento      *ThreadMementoLatest `json:"threadMemento,omitempty"`
	ProviderHints      *ProviderHints       `json:"providerHints,omitempty"`
	NotificationPolicy NotificationPolicy   `json:"notification_policy,omitempty"`
	TraceConfig        *TraceConfig         `json:"traceConfig,omitempty"`
	ThreadContextMode  ThreadContextMode    `json:"threadContextMode,omitempty"`
	ForcedPersona      string               `json:"forcedPersona,omitempty"`
	ForceEvidence      bool                 `json:"forceEvidence,omitempty"`
	UserID             string               `json:"userId,omitempty"`
	ClientRequestID    string               `json:"clientRequestId,omitempty"`
	Simulate           int                  `json:"simulate,omitempty"` // 202 requests async completion
}
