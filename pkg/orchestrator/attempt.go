package orchestrator

import (
	"context"
	"net/http"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/envelope"
	"github.com/SolLabsHQ/solserver-sub002/pkg/evidence"
	"github.com/SolLabsHQ/solserver-sub002/pkg/linter"
	"github.com/SolLabsHQ/solserver-sub002/pkg/llm"
	"github.com/SolLabsHQ/solserver-sub002/pkg/memento"
	"github.com/SolLabsHQ/solserver-sub002/pkg/prompt"
	"github.com/SolLabsHQ/solserver-sub002/pkg/sse"
	"github.com/SolLabsHQ/solserver-sub002/pkg/trace"
)

// attemptState is the bounded regeneration state machine: attempt 0,
// then at most one retry — output-contract retry on parse failure or a
// correction retry on lint failure, never both.
type attemptState struct {
	orch       *Orchestrator
	rec        *trace.Recorder
	txn        *contracts.Transmission
	packet     *contracts.PacketInput
	mode       contracts.ModeDecision
	pack       *contracts.EvidencePack
	promptIn   prompt.Input
	promptPack *prompt.Pack
	decision   evidence.Decision

	provider     string
	model        string
	attemptsUsed int
}

// attemptFailure classifies why one attempt was rejected, so the outer
// policy can decide whether a retry path applies.
type attemptFailure struct {
	kind     string // parse | gate | lint | provider | store
	parse    *envelope.ParseFailure
	gate     *contracts.GateError
	lint     *linter.Result
	pipeline *PipelineError
}

// execute runs the state machine and returns the accepted envelope.
func (s *attemptState) execute(ctx context.Context) (*contracts.OutputEnvelope, *PipelineError) {
	env, fail := s.runOnce(ctx, 0, s.promptPack, "")
	if fail != nil {
		switch {
		case fail.kind == "parse" && s.canContractRetry(fail.parse):
			retryEnv, retryFail := s.runOnce(ctx, 1, s.promptPack, s.orch.cfg.ContractRetryModel)
			if retryFail != nil {
				return nil, s.terminal(ctx, retryFail)
			}
			return retryEnv, nil

		case fail.kind == "lint":
			correction := s.promptIn
			correction.CorrectionPreamble = linter.CorrectionPreamble(fail.lint.Violations)
			pk := prompt.Assemble(correction)
			retryEnv, retryFail := s.runOnce(ctx, 1, pk, "")
			if retryFail != nil {
				return nil, s.terminal(ctx, retryFail)
			}
			return retryEnv, nil

		default:
			return nil, s.terminal(ctx, fail)
		}
	}

	// Memento quality repair: one corrective regeneration, accepted only
	// if the candidate passes the full gate sequence; otherwise the
	// original stands.
	quality := memento.EvaluateQuality(metaShape(env), metaAffect(env), s.packet.Message)
	_ = s.rec.Completed(ctx, contracts.PhaseOutputGates, "memento quality evaluated", map[string]any{
		"kind":   contracts.TraceKindMementoQuality,
		"issues": quality.Issues(),
	})
	if quality.NeedsRepair() && s.threadContextAuto() && s.attemptsUsed < maxAttempts {
		repair := s.promptIn
		repair.CorrectionPreamble = memento.RepairPreamble(quality)
		pk := prompt.Assemble(repair)
		if candidate, candidateFail := s.runOnce(ctx, 1, pk, ""); candidateFail == nil {
			return candidate, nil
		}
		_ = s.rec.Warning(ctx, contracts.PhaseOutputGates, "quality repair rejected, keeping first attempt", map[string]any{
			"kind": contracts.TraceKindMementoQuality,
		})
	}
	return env, nil
}

// runOnce is one full attempt: model call, envelope parse, output gates,
// lint. The sequence is identical for both attempts.
func (s *attemptState) runOnce(ctx context.Context, attempt int, pk *prompt.Pack, modelOverride string) (*contracts.OutputEnvelope, *attemptFailure) {
	resp, perr := s.invoke(ctx, attempt, pk, modelOverride)
	if perr != nil {
		return nil, &attemptFailure{kind: "provider", pipeline: perr}
	}

	parsed, pf := envelope.Parse([]byte(resp.RawText), attempt)
	if pf != nil {
		_ = s.rec.Failed(ctx, contracts.PhaseOutputGates, "envelope rejected", map[string]any{
			"kind":    contracts.TraceKindOutputEnvelope,
			"reason":  pf.Reason,
			"issues":  len(pf.Issues),
			"attempt": attempt,
		})
		return nil, &attemptFailure{kind: "parse", parse: pf}
	}
	env := parsed.Envelope
	if len(parsed.FullSchemaWarning) > 0 {
		_ = s.rec.Warning(ctx, contracts.PhaseOutputGates, "full schema advisory failure", map[string]any{
			"kind":   contracts.TraceKindOutputEnvelope,
			"issues": len(parsed.FullSchemaWarning),
		})
	}
	if len(parsed.DroppedMetaKeys) > 0 {
		_ = s.rec.Warning(ctx, contracts.PhaseOutputGates, "dropped unknown meta keys", map[string]any{
			"kind": contracts.TraceKindOutputEnvelope,
			"keys": parsed.DroppedMetaKeys,
		})
	}

	if gErr := s.outputGates(ctx, env); gErr != nil {
		return nil, &attemptFailure{kind: "gate", gate: gErr}
	}

	lintRes := linter.Lint(env.AssistantText, pk.Blocks, s.orch.cfg.Enforcement())
	status := "completed"
	if !lintRes.OK() {
		status = "warning"
	}
	_ = s.rec.Event(ctx, contracts.PhaseOutputGates, status, "post-output lint", map[string]any{
		"kind":       contracts.TraceKindPostLinter,
		"rules":      lintRes.RulesEvaluated,
		"violations": len(lintRes.Violations),
		"attempt":    attempt,
	})
	if !lintRes.OK() && s.orch.cfg.Enforcement() == contracts.EnforceStrict {
		return nil, &attemptFailure{kind: "lint", lint: lintRes}
	}
	return env, nil
}

// invoke performs one model call and records its delivery attempt.
func (s *attemptState) invoke(ctx context.Context, attempt int, pk *prompt.Pack, modelOverride string) (*llm.Response, *PipelineError) {
	ctx, span := s.orch.obs.StartPhase(ctx, string(contracts.PhaseModelCall))
	defer span.End()

	started := s.orch.clock()
	s.attemptsUsed++
	s.orch.obs.RecordAttempt(ctx, attempt)

	resp, err := s.orch.client.Generate(ctx, llm.Request{
		PromptText: pk.Text,
		ModeLabel:  s.mode.ModeLabel,
		Model:      modelOverride,
	})
	latency := s.orch.clock().Sub(started).Milliseconds()

	da := &contracts.DeliveryAttempt{
		TransmissionID: s.txn.ID,
		Attempt:        attempt,
		CreatedAt:      s.orch.clock().UTC(),
		LatencyMs:      latency,
	}
	if err != nil {
		da.Status = "failed"
		perr := s.providerFailure(ctx, err, da)
		_ = s.orch.store.AppendDeliveryAttempt(ctx, da)
		return nil, perr
	}

	s.provider = resp.Provider
	s.model = resp.Model
	da.Provider = resp.Provider
	da.Model = resp.Model
	da.Status = "succeeded"
	if appendErr := s.orch.store.AppendDeliveryAttempt(ctx, da); appendErr != nil {
		return nil, s.orch.storeFailure(s.txn.ID, s.rec.RunID(), appendErr)
	}

	meta := map[string]any{"attempt": attempt, "latency_ms": latency, "model": resp.Model}
	if s.rec.CaptureModelIO() {
		meta["raw_output"] = resp.RawText
	}
	if traceErr := s.rec.Completed(ctx, contracts.PhaseModelCall, "model call complete", meta); traceErr != nil {
		return nil, s.orch.storeFailure(s.txn.ID, s.rec.RunID(), traceErr)
	}
	return resp, nil
}

// outputGates runs librarian, binding, and budget in order. The librarian
// only applies to ghost-card envelopes.
func (s *attemptState) outputGates(ctx context.Context, env *contracts.OutputEnvelope) *contracts.GateError {
	ctx, span := s.orch.obs.StartPhase(ctx, string(contracts.PhaseOutputGates))
	defer span.End()

	if env.Meta == nil {
		return nil
	}

	if env.Meta.DisplayHint == contracts.DisplayHintGhostCard {
		gate := evidence.ApplyLibrarian(env.Meta, s.pack)
		_ = s.rec.Completed(ctx, contracts.PhaseOutputGates, "librarian applied", map[string]any{
			"kind":               contracts.TraceKindLibrarianGate,
			"verdict":            gate.Verdict,
			"pruned_refs":        gate.PrunedRefs,
			"unsupported_claims": gate.UnsupportedClaims,
		})
	}

	if gErr := evidence.CheckBinding(env.Meta, s.pack); gErr != nil {
		_ = s.rec.Failed(ctx, contracts.PhaseOutputGates, "evidence binding failed", map[string]any{
			"kind":   contracts.TraceKindEvidenceBinding,
			"reason": gErr.Reason,
		})
		return gErr
	}
	_ = s.rec.Completed(ctx, contracts.PhaseOutputGates, "evidence binding ok", map[string]any{
		"kind": contracts.TraceKindEvidenceBinding,
	})

	if gErr := evidence.CheckBudget(env.Meta, s.pack); gErr != nil {
		_ = s.rec.Failed(ctx, contracts.PhaseOutputGates, "evidence budget exceeded", map[string]any{
			"kind":   contracts.TraceKindEvidenceBudget,
			"reason": gErr.Reason,
		})
		return gErr
	}
	_ = s.rec.Completed(ctx, contracts.PhaseOutputGates, "evidence budget ok", map[string]any{
		"kind": contracts.TraceKindEvidenceBudget,
	})
	return nil
}

// canContractRetry implements the output-contract retry gate: env flag
// set, openai provider, retryable parse reason, first attempt only.
func (s *attemptState) canContractRetry(pf *envelope.ParseFailure) bool {
	if !s.orch.cfg.ContractRetryEnabled || s.attemptsUsed >= maxAttempts {
		return false
	}
	if s.orch.cfg.LLMProvider != "openai" {
		return false
	}
	for _, reason := range s.orch.cfg.ContractRetryReasons() {
		if pf.Reason == reason {
			return true
		}
	}
	return false
}

func (s *attemptState) threadContextAuto() bool {
	return s.packet.ThreadContextMode == "" || s.packet.ThreadContextMode == contracts.ThreadContextAuto
}

// terminal maps a final attempt failure to its HTTP error, persisting the
// stub assistant for gate failures.
func (s *attemptState) terminal(ctx context.Context, fail *attemptFailure) *PipelineError {
	switch fail.kind {
	case "provider", "store":
		return fail.pipeline
	case "parse":
		return s.failGate(ctx, contracts.ErrOutputContractFailed, fail.parse.Error())
	case "gate":
		return s.failGate(ctx, fail.gate.Code, fail.gate.Error())
	case "lint":
		return s.failGate(ctx, contracts.ErrDriverBlockEnforcementFailed, "driver block enforcement failed")
	default:
		return &PipelineError{Status: 500, Code: "internal_error", TransmissionID: s.txn.ID, TraceRunID: s.rec.RunID()}
	}
}

// failGate finalizes a 422: stub assistant persisted, failed status, and
// the assistant_failed event on the user stream.
func (s *attemptState) failGate(ctx context.Context, code, detail string) *PipelineError {
	_ = s.orch.store.SetChatResult(ctx, s.txn.ID, contracts.StubAssistantText)
	_ = s.orch.store.UpdateTransmissionStatus(ctx, s.txn.ID, contracts.TransmissionFailed, 422, false, code, detail)
	perr := &PipelineError{
		Status:         422,
		Code:           code,
		Detail:         detail,
		TransmissionID: s.txn.ID,
		TraceRunID:     s.rec.RunID(),
		Assistant:      contracts.StubAssistantText,
	}
	s.orch.hub.Publish(s.packet.UserID, sse.Event{
		Type:           sse.EventAssistantFailed,
		TransmissionID: s.txn.ID,
		ThreadID:       s.packet.ThreadID,
		Data:           sseFailureData(perr, false),
	})
	return perr
}

// providerFailure maps a provider or config error to its HTTP shape and
// persists the failed status.
func (s *attemptState) providerFailure(ctx context.Context, err error, da *contracts.DeliveryAttempt) *PipelineError {
	status := http.StatusBadGateway
	code := contracts.ErrProviderFailed
	retryable := true
	timeout := false
	var retryAfter int64

	switch e := err.(type) {
	case *contracts.ProviderError:
		code = e.Code
		retryable = e.Retryable
		retryAfter = e.RetryAfterMs
		timeout = e.Timeout
		switch {
		case e.Timeout:
			status = http.StatusGatewayTimeout
		case e.Code == contracts.ErrProviderInvalidRequest:
			status = http.StatusBadGateway
			retryable = false
		}
	case *contracts.ConfigError:
		code = e.Code
		status = http.StatusInternalServerError
		retryable = false
	}
	da.ErrorCode = code

	_ = s.rec.Failed(ctx, contracts.PhaseModelCall, "model call failed", map[string]any{
		"error": code, "retryable": retryable,
	})
	_ = s.orch.store.UpdateTransmissionStatus(ctx, s.txn.ID, contracts.TransmissionFailed, status, retryable, code, err.Error())
	perr := &PipelineError{
		Status:         status,
		Code:           code,
		Detail:         err.Error(),
		TransmissionID: s.txn.ID,
		TraceRunID:     s.rec.RunID(),
		Retryable:      retryable,
		RetryAfterMs:   retryAfter,
	}
	s.orch.hub.Publish(s.packet.UserID, sse.Event{
		Type:           sse.EventAssistantFailed,
		TransmissionID: s.txn.ID,
		ThreadID:       s.packet.ThreadID,
		Data:           sseFailureData(perr, timeout),
	})
	return perr
}
