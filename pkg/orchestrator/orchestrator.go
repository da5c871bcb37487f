// Package orchestrator drives the chat pipeline: evidence intake, the
// input gate chain, lattice retrieval, prompt assembly, the model call,
// output gates, the post-output linter, memento update, journal offer,
// and persistence. Phases run sequentially within a request; the model
// is invoked at most twice.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SolLabsHQ/solserver-sub002/pkg/config"
	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/envelope"
	"github.com/SolLabsHQ/solserver-sub002/pkg/evidence"
	"github.com/SolLabsHQ/solserver-sub002/pkg/gates"
	"github.com/SolLabsHQ/solserver-sub002/pkg/intake"
	"github.com/SolLabsHQ/solserver-sub002/pkg/journal"
	"github.com/SolLabsHQ/solserver-sub002/pkg/lattice"
	"github.com/SolLabsHQ/solserver-sub002/pkg/llm"
	"github.com/SolLabsHQ/solserver-sub002/pkg/memento"
	"github.com/SolLabsHQ/solserver-sub002/pkg/observability"
	"github.com/SolLabsHQ/solserver-sub002/pkg/prompt"
	"github.com/SolLabsHQ/solserver-sub002/pkg/sse"
	"github.com/SolLabsHQ/solserver-sub002/pkg/store"
	"github.com/SolLabsHQ/solserver-sub002/pkg/trace"
)

// maxAttempts bounds model invocations per request across the contract
// and correction retry paths combined.
const maxAttempts = 2

// ChatResponse is the success payload of a completed pipeline run.
type ChatResponse struct {
	OK                 bool                           `json:"ok"`
	TransmissionID     string                         `json:"transmissionId"`
	ModeDecision       contracts.ModeDecision         `json:"modeDecision"`
	Assistant          string                         `json:"assistant"`
	OutputEnvelope     *contracts.OutputEnvelope      `json:"outputEnvelope"`
	ThreadMemento      *contracts.ThreadMementoLatest `json:"threadMemento,omitempty"`
	DriverBlocks       prompt.BlockStats              `json:"driverBlocks"`
	Evidence           *contracts.Evidence            `json:"evidence,omitempty"`
	EvidenceSummary    contracts.EvidenceSummary      `json:"evidenceSummary"`
	EvidenceWarnings   []string                       `json:"evidenceWarnings,omitempty"`
	Trace              *contracts.TraceSummary        `json:"trace,omitempty"`
	NotificationPolicy contracts.NotificationPolicy   `json:"notification_policy"`
	ForcedPersona      string                         `json:"forced_persona,omitempty"`
	AttemptsUsed       int                            `json:"attemptsUsed"`
}

// PendingResponse is the 202 payload of the async-simulate branch.
type PendingResponse struct {
	OK               bool                           `json:"ok"`
	TransmissionID   string                         `json:"transmissionId"`
	Status           string                         `json:"status"`
	Pending          bool                           `json:"pending"`
	Simulated        bool                           `json:"simulated"`
	CheckAfterMs     int64                          `json:"checkAfterMs"`
	DriverBlocks     prompt.BlockStats              `json:"driverBlocks"`
	Evidence         *contracts.Evidence            `json:"evidence,omitempty"`
	EvidenceSummary  contracts.EvidenceSummary      `json:"evidenceSummary"`
	EvidenceWarnings []string                       `json:"evidenceWarnings,omitempty"`
	ThreadMemento    *contracts.ThreadMementoLatest `json:"threadMemento,omitempty"`
}

// PipelineError is a terminal pipeline failure with its HTTP mapping.
type PipelineError struct {
	Status         int
	Code           string
	Detail         string
	TransmissionID string
	TraceRunID     string
	Retryable      bool
	Assistant      string
	Validation     *contracts.EvidenceValidationError
	RetryAfterMs   int64
}

func (e *PipelineError) Error() string { return e.Code }

// Orchestrator owns the pipeline dependencies.
type Orchestrator struct {
	cfg      *config.Config
	store    store.Store
	chain    *gates.Chain
	intake   *intake.Processor
	bundles  *prompt.BundleLoader
	profile  *prompt.Profile
	client   llm.Client
	packs    evidence.PackProvider
	mementos *memento.Engine
	hub      *sse.Hub
	obs      *observability.Provider
	logger   *slog.Logger
	clock    func() time.Time

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// Deps bundles construction inputs.
type Deps struct {
	Config        *config.Config
	Store         store.Store
	LatticeEngine *lattice.Engine
	Client        llm.Client
	PackProvider  evidence.PackProvider
	Bundles       *prompt.BundleLoader
	Profile       *prompt.Profile
	Hub           *sse.Hub
	Observability *observability.Provider
	Logger        *slog.Logger
}

func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profile := d.Profile
	if profile == nil {
		profile = prompt.DefaultProfile()
	}
	packs := d.PackProvider
	if packs == nil {
		packs = evidence.LocalProvider{}
	}
	hub := d.Hub
	if hub == nil {
		hub = sse.NewHub()
	}
	obs := d.Observability
	if obs == nil {
		obs, _ = observability.New(context.Background(), &observability.Config{Enabled: false})
	}
	return &Orchestrator{
		cfg:      d.Config,
		store:    d.Store,
		chain:    gates.NewChain(d.LatticeEngine, logger),
		intake:   intake.NewProcessor(nil),
		bundles:  d.Bundles,
		profile:  profile,
		client:   d.Client,
		packs:    packs,
		mementos: memento.NewEngine(d.Store),
		hub:      hub,
		obs:      obs,
		logger:   logger.With("component", "orchestrator"),
		clock:    time.Now,
		inflight: make(map[string]struct{}),
	}
}

// WithClock overrides the clock for deterministic tests.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	o.intake = o.intake.WithClock(clock)
	o.mementos = o.mementos.WithClock(clock)
	return o
}

// Hub exposes the SSE hub for the HTTP surface.
func (o *Orchestrator) Hub() *sse.Hub { return o.hub }

// Mementos exposes the memento engine for the HTTP surface and tests.
func (o *Orchestrator) Mementos() *memento.Engine { return o.mementos }

// Run executes the full pipeline synchronously.
func (o *Orchestrator) Run(ctx context.Context, packet *contracts.PacketInput) (*ChatResponse, *PipelineError) {
	start := o.clock()
	o.obs.RecordRequest(ctx)

	resp, perr := o.run(ctx, packet)

	o.obs.RecordDuration(ctx, o.clock().Sub(start))
	if perr != nil {
		o.obs.RecordError(ctx, perr.Code)
	}
	return resp, perr
}

// RunAsync admits the packet, returns the 202 shape, and completes the
// pipeline in a detached task. The in-flight set enforces at-most-once
// background completion per transmission.
func (o *Orchestrator) RunAsync(ctx context.Context, packet *contracts.PacketInput) (*PendingResponse, *PipelineError) {
	txn, perr := o.admit(ctx, packet)
	if perr != nil {
		return nil, perr
	}

	rec := trace.NewRecorder(o.store, txn.ID, "orchestrator", packet.TraceConfig != nil && packet.TraceConfig.CaptureModelIO)

	intakeRes, perr := o.runIntake(ctx, rec, txn, packet)
	if perr != nil {
		return nil, perr
	}

	bundle := o.loadBundle()
	memState, memErr := o.mementos.Current(ctx, packet.ThreadID)
	if memErr != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), memErr)
	}

	o.inflightMu.Lock()
	if _, running := o.inflight[txn.ID]; running {
		o.inflightMu.Unlock()
		return nil, &PipelineError{Status: 409, Code: "duplicate_transmission", TransmissionID: txn.ID}
	}
	o.inflight[txn.ID] = struct{}{}
	o.inflightMu.Unlock()

	go func() {
		defer func() {
			o.inflightMu.Lock()
			delete(o.inflight, txn.ID)
			o.inflightMu.Unlock()
		}()
		bg := context.Background()
		if _, bgErr := o.complete(bg, rec, txn, packet, intakeRes); bgErr != nil {
			o.logger.Warn("background pipeline failed",
				"transmission_id", txn.ID, "error", bgErr.Code)
		}
	}()

	stats := prompt.BlockStats{}
	if bundle != nil {
		// Report bundle size without assembling; dropped/trimmed are
		// assembly-time facts and stay zero here.
		stats.Accepted = len(bundle.Blocks)
	}
	return &PendingResponse{
		OK:               true,
		TransmissionID:   txn.ID,
		Status:           string(contracts.TransmissionCreated),
		Pending:          true,
		Simulated:        true,
		CheckAfterMs:     1500,
		DriverBlocks:     stats,
		Evidence:         intakeRes.Evidence,
		EvidenceSummary:  intakeRes.Summary,
		EvidenceWarnings: intakeRes.Warnings,
		ThreadMemento:    memState,
	}, nil
}

// run is the synchronous pipeline: admit, intake, then complete.
func (o *Orchestrator) run(ctx context.Context, packet *contracts.PacketInput) (*ChatResponse, *PipelineError) {
	txn, perr := o.admit(ctx, packet)
	if perr != nil {
		return nil, perr
	}
	rec := trace.NewRecorder(o.store, txn.ID, "orchestrator", packet.TraceConfig != nil && packet.TraceConfig.CaptureModelIO)

	intakeRes, perr := o.runIntake(ctx, rec, txn, packet)
	if perr != nil {
		return nil, perr
	}
	return o.complete(ctx, rec, txn, packet, intakeRes)
}

// admit creates the transmission with its admission-time policy.
func (o *Orchestrator) admit(ctx context.Context, packet *contracts.PacketInput) (*contracts.Transmission, *PipelineError) {
	now := o.clock().UTC()
	txn := &contracts.Transmission{
		ID:                 uuid.NewString(),
		ThreadID:           packet.ThreadID,
		ClientRequestID:    packet.ClientRequestID,
		ForcedPersona:      packet.ForcedPersona,
		NotificationPolicy: DefaultPolicy(packet.PacketType, packet.Simulate == 202, packet.NotificationPolicy),
		Status:             contracts.TransmissionCreated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := o.store.CreateTransmission(ctx, txn); err != nil {
		return nil, o.storeFailure(txn.ID, "", err)
	}
	return txn, nil
}

// runIntake validates and merges evidence, emitting the intake phase.
func (o *Orchestrator) runIntake(ctx context.Context, rec *trace.Recorder, txn *contracts.Transmission, packet *contracts.PacketInput) (*intake.Result, *PipelineError) {
	ctx, span := o.obs.StartPhase(ctx, string(contracts.PhaseEvidenceIntake))
	defer span.End()

	res, verr := o.intake.Process(packet.Message, packet.Evidence)
	if verr != nil {
		_ = rec.Failed(ctx, contracts.PhaseEvidenceIntake, "evidence validation failed", map[string]any{
			"code": verr.Code,
		})
		_ = o.store.UpdateTransmissionStatus(ctx, txn.ID, contracts.TransmissionFailed, 400, false, "invalid_request", verr.Message)
		return nil, &PipelineError{
			Status:         400,
			Code:           "invalid_request",
			TransmissionID: txn.ID,
			TraceRunID:     rec.RunID(),
			Validation:     verr,
		}
	}

	if res.Evidence != nil {
		if err := o.store.SaveEvidence(ctx, txn.ID, res.Evidence); err != nil {
			return nil, o.storeFailure(txn.ID, rec.RunID(), err)
		}
	}
	if err := rec.Completed(ctx, contracts.PhaseEvidenceIntake, "evidence intake complete", map[string]any{
		"captures":      res.Summary.Captures,
		"supports":      res.Summary.Supports,
		"claims":        res.Summary.Claims,
		"auto_captures": res.Summary.AutoCaptures,
	}); err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}
	return res, nil
}

// complete runs everything after intake: gates, prompt, attempts, output
// gates, memento, journal, and persistence.
func (o *Orchestrator) complete(ctx context.Context, rec *trace.Recorder, txn *contracts.Transmission, packet *contracts.PacketInput, intakeRes *intake.Result) (*ChatResponse, *PipelineError) {
	if err := o.store.UpdateTransmissionStatus(ctx, txn.ID, contracts.TransmissionProcessing, 0, false, "", ""); err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}

	mode := ResolveMode(packet.ForcedPersona, o.profile)

	// Input gates, each emitting its own phase event.
	gateIn := &gates.Input{
		Message:  packet.Message,
		UserID:   packet.UserID,
		ThreadID: packet.ThreadID,
		Evidence: intakeRes.Evidence,
	}
	chainRes, err := o.chain.Run(ctx, gateIn, func(ctx context.Context, out contracts.GateOutput) error {
		status := "completed"
		if out.Status == contracts.GateWarn {
			status = "warning"
		}
		return rec.Event(ctx, gates.PhaseFor(out.GateName), status, out.Summary, out.Metadata)
	})
	if err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}

	// Notification policy settles once the sentinel verdict is known.
	final := FinalPolicy(txn.NotificationPolicy, packet.NotificationPolicy, chainRes.SafetyIsUrgent, mode.PersonaLabel)
	if final != txn.NotificationPolicy {
		txn.NotificationPolicy = final
		if err := o.store.UpdateTransmissionPolicy(ctx, txn.ID, final); err != nil {
			return nil, o.storeFailure(txn.ID, rec.RunID(), err)
		}
	}

	// Evidence provider decision and pack resolution.
	decision := evidence.Decide(packet.ForceEvidence, o.cfg.EvidenceProviderForce, o.cfg.IsProduction(), intakeRes.Evidence)
	var pack *contracts.EvidencePack
	if decision.Allowed {
		resolved, packErr := o.packs.ResolvePack(ctx, txn.ID, intakeRes.Evidence)
		if packErr != nil {
			_ = rec.Failed(ctx, contracts.PhaseModelCall, "evidence provider failed", map[string]any{
				"kind": contracts.TraceKindEvidenceProvider, "reason": decision.Reason,
			})
			_ = o.store.UpdateTransmissionStatus(ctx, txn.ID, contracts.TransmissionFailed, 500, true, contracts.ErrEvidenceProviderFailed, packErr.Error())
			return nil, &PipelineError{
				Status: 500, Code: contracts.ErrEvidenceProviderFailed,
				TransmissionID: txn.ID, TraceRunID: rec.RunID(), Retryable: true,
			}
		}
		pack = resolved
	}

	bundle := o.loadBundle()
	var blocks []contracts.DriverBlock
	if bundle != nil {
		blocks = bundle.Blocks
	}
	memState, memErr := o.mementos.Current(ctx, packet.ThreadID)
	if memErr != nil {
		o.logger.Warn("memento read failed, assembling without thread state",
			"transmission_id", txn.ID, "thread_id", packet.ThreadID, "error", memErr)
	}
	if memState == nil && packet.ThreadMemento != nil {
		memState = packet.ThreadMemento
	}

	assembleInput := prompt.Input{
		ModeLabel:    mode.ModeLabel,
		Persona:      o.profile.Find(mode.PersonaLabel),
		Blocks:       blocks,
		LatticeItems: chainRes.LatticeItems,
		Memento:      memState,
		EvidencePack: pack,
		UserMessage:  chainRes.Normalized,
	}
	pk := prompt.Assemble(assembleInput)

	o.hub.Publish(packet.UserID, sse.Event{
		Type: sse.EventRunStarted, TransmissionID: txn.ID, ThreadID: packet.ThreadID,
		Data: map[string]any{"provider": o.cfg.LLMProvider, "model": o.cfg.OpenAIModel},
	})

	att := &attemptState{
		orch:       o,
		rec:        rec,
		txn:        txn,
		packet:     packet,
		mode:       mode,
		pack:       pack,
		promptIn:   assembleInput,
		promptPack: pk,
		decision:   decision,
	}
	env, perr := att.execute(ctx)
	if perr != nil {
		return nil, perr
	}

	// Memento update and journal offer run on the accepted envelope.
	memUpdated, memRes, memErr := o.mementos.Update(ctx, memento.UpdateInput{
		ThreadID:      packet.ThreadID,
		UserMessage:   chainRes.Normalized,
		AssistantText: env.AssistantText,
		Shape:         metaShape(env),
		AffectSignal:  metaAffect(env),
		EndMessageID:  txn.ID,
	})
	if memErr != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), memErr)
	}
	if err := rec.Completed(ctx, contracts.PhaseOutputGates, "breakpoint decided", map[string]any{
		"kind":      contracts.TraceKindBreakpoint,
		"decision":  string(memRes.Breakpoint),
		"frozen":    memRes.Frozen,
		"persisted": memRes.Persisted,
	}); err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}

	var rollup *contracts.AffectRollup
	if memUpdated != nil {
		rollup = memUpdated.Affect.Rollup
	}
	offerRec := journal.Classify(journal.Input{
		Signal:       metaAffect(env),
		Rollup:       rollup,
		Risk:         chainRes.Risk,
		Mode:         mode.ModeLabel,
		EndMessageID: txn.ID,
	})
	if err := rec.Completed(ctx, contracts.PhaseOutputGates, "journal offer classified", map[string]any{
		"kind":     contracts.TraceKindJournalOffer,
		"eligible": offerRec.OfferEligible,
		"reasons":  offerRec.ReasonCodes,
	}); err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}

	// Final meta stamps: evidence derivations, lattice timings, journal
	// offer, notification policy.
	if env.Meta == nil {
		env.Meta = &contracts.EnvelopeMeta{}
	}
	evidence.Finalize(env.Meta, pack, txn.ID)
	if chainRes.LatticeMeta != nil {
		env.Meta.Lattice = map[string]any{
			"status":     chainRes.LatticeMeta.Status,
			"counts":     chainRes.LatticeMeta.Counts,
			"bytesTotal": chainRes.LatticeMeta.BytesTotal,
			"durationMs": chainRes.LatticeMeta.DurationMs,
		}
	}
	if offer := journal.Offer(offerRec); offer != nil {
		env.Meta.JournalOffer = offer
	}
	env.Meta.NotificationPolicy = string(txn.NotificationPolicy)

	// Persist the final envelope exactly once.
	egress, err := envelope.MarshalEgress(env)
	if err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}
	hash, err := envelope.ContentHash(env)
	if err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}
	if err := o.store.SetChatResult(ctx, txn.ID, env.AssistantText); err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}
	if err := o.store.SetTransmissionOutputEnvelope(ctx, txn.ID, egress, hash); err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}
	if err := o.store.RecordUsage(ctx, &contracts.UsageRecord{
		TransmissionID:  txn.ID,
		Provider:        att.provider,
		Model:           att.model,
		PromptChars:     len(att.promptPack.Text),
		CompletionChars: len(env.AssistantText),
		Attempts:        att.attemptsUsed,
		RecordedAt:      o.clock().UTC(),
	}); err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}
	if err := rec.Completed(ctx, contracts.PhaseOutputGates, "output envelope persisted", map[string]any{
		"kind": contracts.TraceKindOutputEnvelope,
		"hash": hash,
	}); err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}
	if err := o.store.UpdateTransmissionStatus(ctx, txn.ID, contracts.TransmissionCompleted, 200, false, "", ""); err != nil {
		return nil, o.storeFailure(txn.ID, rec.RunID(), err)
	}

	o.hub.Publish(packet.UserID, sse.Event{
		Type: sse.EventAssistantFinalReady, TransmissionID: txn.ID, ThreadID: packet.ThreadID,
		Data: map[string]any{"transmission_status": string(contracts.TransmissionCompleted)},
	})

	summary, _ := o.store.GetTraceSummary(ctx, txn.ID)
	return &ChatResponse{
		OK:                 true,
		TransmissionID:     txn.ID,
		ModeDecision:       mode,
		Assistant:          env.AssistantText,
		OutputEnvelope:     env,
		ThreadMemento:      memUpdated,
		DriverBlocks:       att.promptPack.Stats,
		Evidence:           intakeRes.Evidence,
		EvidenceSummary:    intakeRes.Summary,
		EvidenceWarnings:   intakeRes.Warnings,
		Trace:              summary,
		NotificationPolicy: txn.NotificationPolicy,
		ForcedPersona:      packet.ForcedPersona,
		AttemptsUsed:       att.attemptsUsed,
	}, nil
}

func (o *Orchestrator) loadBundle() *contracts.DriverBlockBundle {
	if o.bundles == nil {
		return nil
	}
	bundle, err := o.bundles.Load()
	if err != nil {
		o.logger.Warn("driver bundle load failed", "error", err)
		return nil
	}
	return bundle
}

// storeFailure maps a persistence failure to the 500 taxonomy. Status
// writes after a store failure are best-effort.
func (o *Orchestrator) storeFailure(transmissionID, traceRunID string, err error) *PipelineError {
	o.logger.Error("store write failed, aborting pipeline",
		"transmission_id", transmissionID, "error", err)
	return &PipelineError{
		Status:         500,
		Code:           "internal_error",
		Detail:         err.Error(),
		TransmissionID: transmissionID,
		TraceRunID:     traceRunID,
		Retryable:      true,
	}
}

func metaShape(env *contracts.OutputEnvelope) *contracts.MementoShape {
	if env.Meta == nil {
		return nil
	}
	return env.Meta.Shape
}

func metaAffect(env *contracts.OutputEnvelope) *contracts.AffectSignal {
	if env.Meta == nil {
		return nil
	}
	return env.Meta.AffectSignal
}
