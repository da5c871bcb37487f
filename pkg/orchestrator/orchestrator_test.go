package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolLabsHQ/solserver-sub002/pkg/config"
	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/llm"
	"github.com/SolLabsHQ/solserver-sub002/pkg/prompt"
	"github.com/SolLabsHQ/solserver-sub002/pkg/sse"
	"github.com/SolLabsHQ/solserver-sub002/pkg/store"
)

func devConfig() *config.Config {
	return &config.Config{Env: "dev", LLMProvider: "fake"}
}

func testOrchestrator(cfg *config.Config, st store.Store, fake *llm.FakeClient) *Orchestrator {
	return New(Deps{
		Config: cfg,
		Store:  st,
		Client: fake,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// fullEnvelope carries shape and affect_signal so the quality check has
// nothing to repair.
func fullEnvelope(text string) string {
	doc := map[string]any{
		"assistant_text": text,
		"meta": map[string]any{
			"shape": map[string]any{
				"arc":       "support",
				"active":    []string{"job search"},
				"parked":    []string{},
				"decisions": []string{"apply friday"},
				"next":      []string{"draft resume"},
			},
			"affect_signal": map[string]any{
				"label": "overwhelm", "intensity": 0.7, "confidence": 0.8,
			},
		},
	}
	raw, _ := json.Marshal(doc)
	return string(raw)
}

func snippetEvidence() *contracts.Evidence {
	return &contracts.Evidence{
		Supports: []contracts.Support{
			{ID: "ev-1", Type: contracts.SupportTextSnippet, Text: "alpha", CreatedAt: "2026-08-24T10:00:00Z"},
		},
	}
}

func traceByKind(evs []contracts.TraceEvent, kind string) *contracts.TraceEvent {
	for i := range evs {
		if evs[i].Metadata["kind"] == kind {
			return &evs[i]
		}
	}
	return nil
}

func TestRunHappyPath(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: fullEnvelope("Here is the plan.")})
	o := testOrchestrator(devConfig(), st, fake)
	ctx := context.Background()

	resp, perr := o.Run(ctx, &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "hello there, today feels like a lot",
	})
	require.Nil(t, perr)
	assert.True(t, resp.OK)
	assert.Equal(t, "Here is the plan.", resp.Assistant)
	assert.Equal(t, 1, resp.AttemptsUsed)
	assert.Equal(t, contracts.NotificationAlert, resp.NotificationPolicy)
	assert.Equal(t, "System-mode", resp.ModeDecision.ModeLabel)

	require.NotNil(t, resp.OutputEnvelope.Meta)
	assert.Equal(t, "alert", resp.OutputEnvelope.Meta.NotificationPolicy)
	assert.Equal(t, contracts.MetaVersionV1, resp.OutputEnvelope.Meta.MetaVersion)

	require.NotNil(t, resp.ThreadMemento)
	assert.Contains(t, resp.ThreadMemento.Decisions, "apply friday")

	txn, err := st.GetTransmission(ctx, resp.TransmissionID)
	require.NoError(t, err)
	assert.Equal(t, contracts.TransmissionCompleted, txn.Status)
	assert.Equal(t, 200, txn.StatusCode)
	assert.NotEmpty(t, txn.EnvelopeHash)

	text, err := st.GetChatResult(ctx, resp.TransmissionID)
	require.NoError(t, err)
	assert.Equal(t, "Here is the plan.", text)
}

// Every pipeline phase appears in the trace, in the authoritative order,
// with strictly increasing sequence numbers.
func TestRunTracePhaseOrdering(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: fullEnvelope("ok")})
	o := testOrchestrator(devConfig(), st, fake)
	ctx := context.Background()

	resp, perr := o.Run(ctx, &contracts.PacketInput{ThreadID: "t1", UserID: "u1", Message: "hello"})
	require.Nil(t, perr)

	evs, err := st.GetTraceEvents(ctx, resp.TransmissionID, 0)
	require.NoError(t, err)

	seen := map[contracts.Phase]bool{}
	lastRank := -1
	var lastSeq uint64
	for _, ev := range evs {
		rank := contracts.PhaseRank(ev.Phase)
		require.GreaterOrEqual(t, rank, 0, "phase %s outside the ordering contract", ev.Phase)
		assert.GreaterOrEqual(t, rank, lastRank, "phase %s out of order", ev.Phase)
		lastRank = rank
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq
		seen[ev.Phase] = true
	}
	for _, p := range contracts.PhaseOrder {
		assert.True(t, seen[p], "missing phase %s", p)
	}
}

func TestRunSentinelEscalatesPolicy(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: fullEnvelope("I'm here with you.")})
	o := testOrchestrator(devConfig(), st, fake)

	resp, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "i am in crisis and need help",
	})
	require.Nil(t, perr)
	assert.Equal(t, contracts.NotificationUrgent, resp.NotificationPolicy)
	assert.Equal(t, "urgent", resp.OutputEnvelope.Meta.NotificationPolicy)
}

func TestRunBindingFailure(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{
		RawText: `{"assistant_text":"Claimed.","meta":{"claims":[{"claim_id":"c1","claim_text":"x","evidence_refs":[{"evidence_id":"ev-999"}]}]}}`,
	})
	o := testOrchestrator(devConfig(), st, fake)
	ctx := context.Background()

	_, perr := o.Run(ctx, &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "check my notes", Evidence: snippetEvidence(),
	})
	require.NotNil(t, perr)
	assert.Equal(t, 422, perr.Status)
	assert.Equal(t, contracts.ErrEvidenceBindingFailed, perr.Code)
	assert.Equal(t, contracts.StubAssistantText, perr.Assistant)

	text, err := st.GetChatResult(ctx, perr.TransmissionID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StubAssistantText, text)

	evs, err := st.GetTraceEvents(ctx, perr.TransmissionID, 0)
	require.NoError(t, err)
	ev := traceByKind(evs, contracts.TraceKindEvidenceBinding)
	require.NotNil(t, ev)
	assert.Equal(t, "failed", ev.Status)
	assert.Equal(t, "invalid_binding", ev.Metadata["reason"])
}

func TestRunBudgetOverflow(t *testing.T) {
	claims := make([]map[string]any, 9)
	for i := range claims {
		claims[i] = map[string]any{
			"claim_id":      fmt.Sprintf("c%d", i+1),
			"claim_text":    "x",
			"evidence_refs": []map[string]any{{"evidence_id": "ev-1"}},
		}
	}
	raw, err := json.Marshal(map[string]any{"assistant_text": "x", "meta": map[string]any{"claims": claims}})
	require.NoError(t, err)

	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: string(raw)})
	o := testOrchestrator(devConfig(), st, fake)
	ctx := context.Background()

	_, perr := o.Run(ctx, &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "check my notes", Evidence: snippetEvidence(),
	})
	require.NotNil(t, perr)
	assert.Equal(t, 422, perr.Status)
	assert.Equal(t, contracts.ErrEvidenceBudgetExceeded, perr.Code)

	evs, err := st.GetTraceEvents(ctx, perr.TransmissionID, 0)
	require.NoError(t, err)
	ev := traceByKind(evs, contracts.TraceKindEvidenceBudget)
	require.NotNil(t, ev)
	assert.Equal(t, "failed", ev.Status)
	assert.Equal(t, "max_claims", ev.Metadata["reason"])
}

func writeDriverBundle(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drivers.json")
	body := `{"format_version":"1.0.0","blocks":[{"id":"b1","title":"Momentum","definition":"Close with momentum.\n\nValidators:\n- Must-have: \"one small step\""}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunCorrectionRetrySucceeds(t *testing.T) {
	cfg := devConfig()
	cfg.EnforcementMode = contracts.EnforceStrict
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(
		llm.ScriptedReply{RawText: fullEnvelope("Good luck out there.")},
		llm.ScriptedReply{RawText: fullEnvelope("Try one small step tonight.")},
	)
	o := New(Deps{
		Config:  cfg,
		Store:   st,
		Client:  fake,
		Bundles: prompt.NewBundleLoader(writeDriverBundle(t)),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	resp, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "hello",
	})
	require.Nil(t, perr)
	assert.Equal(t, 2, resp.AttemptsUsed)
	assert.Equal(t, "Try one small step tonight.", resp.Assistant)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].PromptText, `You must include: "one small step"`)
}

// Two attempts is the hard ceiling; a second violation is terminal.
func TestRunCorrectionRetryExhausted(t *testing.T) {
	cfg := devConfig()
	cfg.EnforcementMode = contracts.EnforceStrict
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(
		llm.ScriptedReply{RawText: fullEnvelope("Good luck out there.")},
		llm.ScriptedReply{RawText: fullEnvelope("Still no closing line.")},
	)
	o := New(Deps{
		Config:  cfg,
		Store:   st,
		Client:  fake,
		Bundles: prompt.NewBundleLoader(writeDriverBundle(t)),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "hello",
	})
	require.NotNil(t, perr)
	assert.Equal(t, 422, perr.Status)
	assert.Equal(t, contracts.ErrDriverBlockEnforcementFailed, perr.Code)
	assert.Equal(t, contracts.StubAssistantText, perr.Assistant)
	assert.Len(t, fake.Calls(), 2)
}

func TestRunContractRetrySucceeds(t *testing.T) {
	cfg := devConfig()
	cfg.LLMProvider = "openai"
	cfg.ContractRetryEnabled = true
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(
		llm.ScriptedReply{RawText: `not json at all`},
		llm.ScriptedReply{RawText: fullEnvelope("Second try parsed.")},
	)
	o := testOrchestrator(cfg, st, fake)

	resp, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "hello",
	})
	require.Nil(t, perr)
	assert.Equal(t, 2, resp.AttemptsUsed)
	assert.Equal(t, "Second try parsed.", resp.Assistant)
}

func TestRunParseFailureWithoutRetry(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: `not json at all`})
	o := testOrchestrator(devConfig(), st, fake)

	_, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "hello",
	})
	require.NotNil(t, perr)
	assert.Equal(t, 422, perr.Status)
	assert.Equal(t, contracts.ErrOutputContractFailed, perr.Code)
	assert.Equal(t, contracts.StubAssistantText, perr.Assistant)
	assert.Len(t, fake.Calls(), 1)
}

func TestRunGhostCardLibrarian(t *testing.T) {
	raw := `{"assistant_text":"Saved a note.","meta":{` +
		`"display_hint":"ghost_card","ghost_kind":"memory_artifact",` +
		`"ghost_title":"Alpha note","ghost_body":"Alpha is noted.",` +
		`"claims":[` +
		`{"claim_id":"c1","claim_text":"a","evidence_refs":[{"evidence_id":"ev-1","span_id":"ev-1:0"},{"evidence_id":"ev-1","span_id":"nope"}]},` +
		`{"claim_id":"c2","claim_text":"b","evidence_refs":[{"evidence_id":"ev-1"},{"evidence_id":"ev-1"}]},` +
		`{"claim_id":"c3","claim_text":"c","evidence_refs":[{"evidence_id":"ev-404"}]}]}}`

	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: raw})
	o := testOrchestrator(devConfig(), st, fake)

	resp, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "note this down", Evidence: snippetEvidence(),
	})
	require.Nil(t, perr)

	meta := resp.OutputEnvelope.Meta
	require.NotNil(t, meta.LibrarianGate)
	assert.Equal(t, 3, meta.LibrarianGate.PrunedRefs)
	assert.Equal(t, 1, meta.LibrarianGate.UnsupportedClaims)
	assert.Equal(t, "flag", meta.LibrarianGate.Verdict)
	assert.Len(t, meta.Claims, 2)
	assert.Equal(t, []string{"ev-1"}, meta.UsedEvidenceIDs)
	assert.Equal(t, "pack_"+resp.TransmissionID, meta.EvidencePackID)
}

func TestRunForcedPersona(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: fullEnvelope("Be direct.")})
	o := testOrchestrator(devConfig(), st, fake)

	resp, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "hello", ForcedPersona: "diogenes",
	})
	require.Nil(t, perr)
	assert.Equal(t, "diogenes", resp.ModeDecision.PersonaLabel)
	assert.Equal(t, "System-mode", resp.ModeDecision.ModeLabel)
	assert.Contains(t, resp.ModeDecision.Reasons, "forced_persona")
	assert.Equal(t, "diogenes", resp.ForcedPersona)
}

// A reply with no thread-state meta triggers one corrective regeneration;
// the repaired candidate is accepted.
func TestRunQualityRepair(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(
		llm.ScriptedReply{RawText: `{"assistant_text":"Bare reply."}`},
		llm.ScriptedReply{RawText: fullEnvelope("Repaired reply.")},
	)
	o := testOrchestrator(devConfig(), st, fake)

	resp, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "hello",
	})
	require.Nil(t, perr)
	assert.Equal(t, 2, resp.AttemptsUsed)
	assert.Equal(t, "Repaired reply.", resp.Assistant)
	require.NotNil(t, resp.OutputEnvelope.Meta)
	assert.NotNil(t, resp.OutputEnvelope.Meta.Shape)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].PromptText, "omitted required thread-state metadata")
}

func TestRunQualityRepairOffByContextMode(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: `{"assistant_text":"Bare reply."}`})
	o := testOrchestrator(devConfig(), st, fake)

	resp, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "hello",
		ThreadContextMode: contracts.ThreadContextOff,
	})
	require.Nil(t, perr)
	assert.Equal(t, 1, resp.AttemptsUsed)
	assert.Equal(t, "Bare reply.", resp.Assistant)
}

func TestRunProviderFailure(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{Err: &contracts.ProviderError{
		Code: contracts.ErrProviderUpstreamFailed, Retryable: true,
	}})
	o := testOrchestrator(devConfig(), st, fake)
	ctx := context.Background()

	_, perr := o.Run(ctx, &contracts.PacketInput{ThreadID: "t1", UserID: "u1", Message: "hello"})
	require.NotNil(t, perr)
	assert.Equal(t, 502, perr.Status)
	assert.Equal(t, contracts.ErrProviderUpstreamFailed, perr.Code)
	assert.True(t, perr.Retryable)

	txn, err := st.GetTransmission(ctx, perr.TransmissionID)
	require.NoError(t, err)
	assert.Equal(t, contracts.TransmissionFailed, txn.Status)
	assert.Equal(t, contracts.ErrProviderUpstreamFailed, txn.ErrorCode)
}

// drainEvents empties a subscriber channel without blocking; the pipeline
// is synchronous, so everything published sits in the buffer by the time
// Run returns.
func drainEvents(ch chan sse.Event) []sse.Event {
	var out []sse.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventByType(evs []sse.Event, typ string) *sse.Event {
	for i := range evs {
		if evs[i].Type == typ {
			return &evs[i]
		}
	}
	return nil
}

func TestRunStreamLifecycleEvents(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: fullEnvelope("done")})
	o := testOrchestrator(devConfig(), st, fake)
	ch := o.Hub().Subscribe("u1")
	defer o.Hub().Unsubscribe("u1", ch)

	resp, perr := o.Run(context.Background(), &contracts.PacketInput{ThreadID: "t1", UserID: "u1", Message: "hello"})
	require.Nil(t, perr)

	evs := drainEvents(ch)
	require.Len(t, evs, 2)

	started := eventByType(evs, sse.EventRunStarted)
	require.NotNil(t, started)
	assert.Equal(t, resp.TransmissionID, started.TransmissionID)
	assert.Equal(t, "fake", started.Data["provider"])
	assert.Contains(t, started.Data, "model")

	ready := eventByType(evs, sse.EventAssistantFinalReady)
	require.NotNil(t, ready)
	assert.Equal(t, "completed", ready.Data["transmission_status"])
}

func TestRunStreamGateFailurePayload(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{
		RawText: `{"assistant_text":"Claimed.","meta":{"claims":[{"claim_id":"c1","claim_text":"x","evidence_refs":[{"evidence_id":"ev-999"}]}]}}`,
	})
	o := testOrchestrator(devConfig(), st, fake)
	ch := o.Hub().Subscribe("u1")
	defer o.Hub().Unsubscribe("u1", ch)

	_, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "check my notes", Evidence: snippetEvidence(),
	})
	require.NotNil(t, perr)

	failed := eventByType(drainEvents(ch), sse.EventAssistantFailed)
	require.NotNil(t, failed)
	assert.Equal(t, contracts.SSEGateRegenExhausted, failed.Data["code"])
	assert.Equal(t, contracts.ErrEvidenceBindingFailed, failed.Data["category"])
	assert.Equal(t, false, failed.Data["retryable"])
	assert.NotContains(t, failed.Data, "retry_after_ms")
}

func TestRunStreamParseFailurePayload(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: "not json at all"})
	o := testOrchestrator(devConfig(), st, fake)
	ch := o.Hub().Subscribe("u1")
	defer o.Hub().Unsubscribe("u1", ch)

	_, perr := o.Run(context.Background(), &contracts.PacketInput{ThreadID: "t1", UserID: "u1", Message: "hello"})
	require.NotNil(t, perr)
	assert.Equal(t, 422, perr.Status)

	failed := eventByType(drainEvents(ch), sse.EventAssistantFailed)
	require.NotNil(t, failed)
	assert.Equal(t, contracts.SSEOutputEnvelopeInvalid, failed.Data["code"])
	assert.Equal(t, contracts.ErrOutputContractFailed, failed.Data["category"])
}

func TestRunStreamProviderTimeoutPayload(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{Err: &contracts.ProviderError{
		Code: contracts.ErrProviderUpstreamFailed, Retryable: true, Timeout: true, RetryAfterMs: 3000,
	}})
	o := testOrchestrator(devConfig(), st, fake)
	ch := o.Hub().Subscribe("u1")
	defer o.Hub().Unsubscribe("u1", ch)

	_, perr := o.Run(context.Background(), &contracts.PacketInput{ThreadID: "t1", UserID: "u1", Message: "hello"})
	require.NotNil(t, perr)
	assert.Equal(t, 504, perr.Status)

	failed := eventByType(drainEvents(ch), sse.EventAssistantFailed)
	require.NotNil(t, failed)
	assert.Equal(t, contracts.SSEProviderTimeout, failed.Data["code"])
	assert.Equal(t, contracts.ErrProviderUpstreamFailed, failed.Data["category"])
	assert.Equal(t, true, failed.Data["retryable"])
	assert.EqualValues(t, 3000, failed.Data["retry_after_ms"])
}

func TestRunIntakeValidationFailure(t *testing.T) {
	st := store.NewMemoryStore()
	o := testOrchestrator(devConfig(), st, llm.NewFakeClient())

	_, perr := o.Run(context.Background(), &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "hello",
		Evidence: &contracts.Evidence{
			Supports: []contracts.Support{{ID: "s1", Type: "mystery", CreatedAt: "2026-08-24T10:00:00Z"}},
		},
	})
	require.NotNil(t, perr)
	assert.Equal(t, 400, perr.Status)
	assert.Equal(t, "invalid_request", perr.Code)
	require.NotNil(t, perr.Validation)
}

func TestRunAsyncPendingShape(t *testing.T) {
	st := store.NewMemoryStore()
	fake := llm.NewFakeClient().Script(llm.ScriptedReply{RawText: fullEnvelope("Done in the background.")})
	o := testOrchestrator(devConfig(), st, fake)
	ctx := context.Background()

	pending, perr := o.RunAsync(ctx, &contracts.PacketInput{
		ThreadID: "t1", UserID: "u1", Message: "hello", Simulate: 202,
	})
	require.Nil(t, perr)
	assert.True(t, pending.OK)
	assert.True(t, pending.Pending)
	assert.True(t, pending.Simulated)
	assert.Equal(t, "created", pending.Status)
	assert.Equal(t, int64(1500), pending.CheckAfterMs)

	assert.Eventually(t, func() bool {
		txn, err := st.GetTransmission(ctx, pending.TransmissionID)
		return err == nil && txn.Status == contracts.TransmissionCompleted
	}, 2*time.Second, 10*time.Millisecond)

	txn, err := st.GetTransmission(ctx, pending.TransmissionID)
	require.NoError(t, err)
	assert.Equal(t, contracts.NotificationSilent, txn.NotificationPolicy)

	text, err := st.GetChatResult(ctx, pending.TransmissionID)
	require.NoError(t, err)
	assert.Equal(t, "Done in the background.", text)
}
