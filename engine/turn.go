// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nanoforge/conversant/approval"
	"github.com/nanoforge/conversant/llm"
	"github.com/nanoforge/conversant/tools"
)

// nudgeText is the injected continuation message used when a model turn
// produces neither content nor tool calls (SPEC_FULL.md §4.F "nudge-on-empty").
const nudgeText = "Please continue."

// RunResult is what Run returns once a turn settles into IDLE or CANCELLED.
// Err is non-nil only for a cancelled turn, which settles with an Err of
// KindCancelled rather than a Go error, since cancellation is an ordinary
// turn outcome, not an engine malfunction. An aborted turn (non-interactive
// approval required, the self-correction iteration cap exceeded, a fatal
// invariant violation) instead makes Run return a nil *RunResult and an
// *EngineError as its Go error.
type RunResult struct {
	State   TurnState
	Content string
	Err     *EngineError
}

// SessionStore manages session lookup for multi-session hosts (e.g. the
// editor bridge addressing a session by id). A single-session CLI can ignore
// this and hold its *Session directly.
type SessionStore interface {
	Get(id string) (*Session, bool)
	Put(session *Session)
	Delete(id string)
	List() []string
}

// InMemorySessionStore is a process-local SessionStore.
//
// Thread Safety: InMemorySessionStore is safe for concurrent use.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemorySessionStore creates an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*Session)}
}

func (s *InMemorySessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *InMemorySessionStore) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
}

func (s *InMemorySessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *InMemorySessionStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Engine is the Conversation Engine (SPEC_FULL.md §4.F): the orchestrator
// that drives the per-turn state machine across the tool registry, the LLM
// client, and the approval gate, optionally advertising file changes to an
// editor bridge and tracking context-window pressure via a tokenizer.
//
// Thread Safety: an Engine is shared across sessions; per-session state
// (the message log, the cancellation token) lives on Session, not here. Two
// goroutines must not call Run concurrently for the same Session.
type Engine struct {
	registry    *tools.Registry
	executor    *tools.Executor
	client      llm.Client
	gate        *approval.Gate
	sessions    SessionStore
	sm          *StateMachine
	metrics     *TurnMetrics
	sink        EventSink
	tokenizer   Tokenizer
	bridge      Bridge
	checkpoints CheckpointStore
	preflight   approval.PreflightGate

	systemPrompt string
	maxTokens    int
	logger       *slog.Logger
}

// EngineOption configures an Engine built by NewEngine.
type EngineOption func(*Engine)

// WithExecutor overrides the default executor built from the registry.
func WithExecutor(e *tools.Executor) EngineOption {
	return func(eng *Engine) { eng.executor = e }
}

// WithConfirmFunc sets the function that prompts a human (terminal or
// editor) for a decision on a confirm-required call. If never set, the
// engine rejects every confirm-required call by default — a fail-safe, not
// a usable interactive configuration.
func WithConfirmFunc(f approval.ConfirmFunc) EngineOption {
	return func(eng *Engine) { eng.gate = approval.NewGate(f) }
}

// WithEventSink attaches the typed output-event subscriber (SPEC_FULL.md §9's
// replacement for the ambient global message queue).
func WithEventSink(sink EventSink) EngineOption {
	return func(eng *Engine) { eng.sink = sink }
}

// WithTokenizer attaches context-window pressure accounting (§4.G). Optional;
// nil disables pressure warnings entirely.
func WithTokenizer(t Tokenizer) EngineOption {
	return func(eng *Engine) { eng.tokenizer = t }
}

// WithBridge attaches the editor bridge (§4.E). Optional; nil (or omitting
// this option) leaves the engine operating bridge-less, per spec.
func WithBridge(b Bridge) EngineOption {
	return func(eng *Engine) { eng.bridge = b }
}

// WithCheckpointStore attaches the checkpoint store (§4.H). Optional; nil
// (or omitting this option) disables SaveCheckpoint/RestoreCheckpoint,
// which return ErrNoCheckpointStore.
func WithCheckpointStore(s CheckpointStore) EngineOption {
	return func(eng *Engine) { eng.checkpoints = s }
}

// WithSessionStore overrides the default in-memory session store.
func WithSessionStore(store SessionStore) EngineOption {
	return func(eng *Engine) { eng.sessions = store }
}

// WithMetrics attaches the Prometheus turn/cancellation/tool-call counters.
func WithMetrics(m *TurnMetrics) EngineOption {
	return func(eng *Engine) { eng.metrics = m }
}

// WithSystemPrompt sets the system prompt sent with every request.
func WithSystemPrompt(prompt string) EngineOption {
	return func(eng *Engine) { eng.systemPrompt = prompt }
}

// WithMaxTokens bounds the LLM response length requested per turn.
func WithMaxTokens(n int) EngineOption {
	return func(eng *Engine) { eng.maxTokens = n }
}

// WithLogger overrides the engine's logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(eng *Engine) { eng.logger = logger }
}

// WithPreflightGate attaches a dangerous-path/dangerous-command/file-size
// pre-check that screens every confirm-required call before it reaches
// ConfirmFunc (§4.E). Optional; applies regardless of option order relative
// to WithConfirmFunc.
func WithPreflightGate(p approval.PreflightGate) EngineOption {
	return func(eng *Engine) { eng.preflight = p }
}

// defaultConfirmFunc rejects every confirm-required call. Safe-by-default:
// an engine wired without WithConfirmFunc cannot silently auto-approve
// side-effecting calls.
func defaultConfirmFunc(_ context.Context, _ tools.ToolCall, _ tools.ToolDefinition) (approval.DecisionState, error) {
	return approval.DecisionRejected, nil
}

// NewEngine wires a Conversation Engine around a tool registry and an LLM
// client, the two mandatory collaborators; every other dependency has a
// safe default and may be overridden via options.
func NewEngine(registry *tools.Registry, client llm.Client, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:     registry,
		executor:     tools.NewExecutor(registry, nil),
		client:       client,
		gate:         approval.NewGate(defaultConfirmFunc),
		sessions:     NewInMemorySessionStore(),
		sm:           DefaultStateMachine,
		sink:         NoopEventSink{},
		bridge:       NoopBridge{},
		systemPrompt: "",
		maxTokens:    4096,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.preflight != nil {
		e.gate.SetPreflight(e.preflight)
	}
	e.logger = e.logger.With(slog.String("subsystem", "engine"))
	return e
}

// toApprovalMode converts the engine's Mode into the approval package's
// locally-defined Mode, keeping approval a leaf package with no dependency
// on engine (see DESIGN.md's architecture note).
func toApprovalMode(m Mode) approval.Mode {
	switch m {
	case ModeAutoAccept:
		return approval.ModeAutoAccept
	case ModePlan:
		return approval.ModePlan
	default:
		return approval.ModeNormal
	}
}

// Close releases resources the engine's optional dependencies hold, in
// particular the tokenizer's native encoding tables (§4.G: "Tokenizer
// instances may hold native resources and must support an explicit release
// call"). Safe to call once no Run call is in flight; safe to call even if
// no tokenizer was attached.
func (e *Engine) Close() error {
	if e.tokenizer == nil {
		return nil
	}
	return e.tokenizer.Release()
}

// Run drives one user turn to completion: APPEND_USER, then STREAM and the
// rest of the per-turn state machine, looping internally until the turn
// settles at IDLE or CANCELLED. userInput is appended as a user message
// unless empty (Continue-style re-entry after an external event, not used by
// the base turn loop today but kept for callers that drive the engine from
// an already-populated log).
func (e *Engine) Run(ctx context.Context, session *Session, userInput string) (*RunResult, error) {
	if session == nil {
		return nil, ErrInvalidSession
	}
	if _, known := e.sessions.Get(session.ID()); !known {
		e.gate.Reset()
	}
	e.sessions.Put(session)
	session.ResetTurnSequence()
	tok := session.Cancellation().NewTurn(ctx)

	if err := e.transition(session, StateAppendUser); err != nil {
		return nil, err
	}
	if userInput != "" {
		if err := e.appendUser(session, userInput); err != nil {
			return nil, err
		}
	}

	result, err := e.runLoop(tok.Context(), session, tok)
	if e.metrics != nil {
		outcome := "idle"
		switch {
		case err != nil:
			outcome = "error"
		case result != nil && result.Err != nil:
			outcome = string(result.Err.Kind)
		}
		e.metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	}
	return result, err
}

func (e *Engine) appendUser(session *Session, content string) error {
	if err := session.Append(Message{Role: RoleUser, Content: content}); err != nil {
		return NewEngineError(KindFatal, err, "append user message")
	}
	emit(e.sink, OutputUser, content)
	return nil
}

func (e *Engine) transition(session *Session, to TurnState) error {
	if err := e.sm.Transition(session, to); err != nil {
		return NewEngineError(KindFatal, err, "invalid turn-state transition")
	}
	return nil
}

// runLoop repeats STREAM rounds until the turn settles; this is the
// re-architected form of spec §9's "retryable self-correction is recursion
// in the source" guidance — an explicit loop with a policy-driven cap
// instead of recursion.
func (e *Engine) runLoop(ctx context.Context, session *Session, tok *Token) (*RunResult, error) {
	iterations := 0
	maxIter := session.Config().MaxTurnIterations

	for {
		select {
		case <-tok.Done():
			result, _, err := e.settleCancelled(session)
			return result, err
		default:
		}

		iterations++
		if iterations > maxIter {
			session.SetState(StateIdle)
			return nil, NewEngineError(KindLLMTransport, ErrTurnIterationLimit, fmt.Sprintf("exceeded %d self-correction iterations", maxIter))
		}

		result, settled, err := e.runRound(ctx, session, tok)
		if err != nil {
			return nil, err
		}
		if settled {
			if e.metrics != nil {
				e.metrics.TurnIterations.Observe(float64(iterations))
			}
			session.recordTurn()
			return result, nil
		}
	}
}

// runRound executes one pass of STREAM through APPEND_TOOL_RESULTS (or
// nudges / loops back to STREAM), returning settled=true once the turn has
// reached IDLE or CANCELLED.
func (e *Engine) runRound(ctx context.Context, session *Session, tok *Token) (*RunResult, bool, error) {
	if err := e.transition(session, StateStream); err != nil {
		return nil, false, err
	}

	req := llm.NewRequest(e.systemPrompt, toLLMMessages(session.Messages()), e.registry.List(), e.maxTokens)
	events, err := e.client.Stream(ctx, req)
	if err != nil {
		return nil, false, NewEngineError(KindLLMTransport, ErrLLMTransport, err.Error())
	}

	resp, err := e.consumeStream(tok, events)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return e.settleCancelled(session)
		}
		return nil, false, NewEngineError(KindLLMTransport, ErrLLMTransport, err.Error())
	}

	if err := e.transition(session, StateParseContent); err != nil {
		return nil, false, err
	}
	parser := tools.NewParser(session.NextCallID)
	parsed := parser.Parse(resp.Content)

	if parsed.ParseError != nil {
		return e.handleParseError(session, resp, parsed)
	}

	if err := e.transition(session, StateMergeCalls); err != nil {
		return nil, false, err
	}
	merged, err := mergeCalls(parser, resp.ToolCalls, parsed.Calls)
	if err != nil {
		return nil, false, NewEngineError(KindMalformedToolCall, ErrMalformedToolCall, err.Error())
	}

	if err := e.transition(session, StateFilter); err != nil {
		return nil, false, err
	}
	valid, unknownResults, assistantCalls := e.filterCalls(merged)

	autoExecuted := make(map[string]ToolResult, len(resp.AutoExecutedMessages))
	for _, m := range resp.AutoExecutedMessages {
		autoExecuted[m.ToolCallID] = ToolResult{ToolCallID: m.ToolCallID, Name: m.Name, Content: m.Content, IsError: m.IsError}
	}
	if len(autoExecuted) > 0 {
		remaining := valid[:0]
		for _, call := range valid {
			if _, done := autoExecuted[call.ID]; done {
				continue
			}
			remaining = append(remaining, call)
		}
		valid = remaining
	}

	content := strings.TrimSpace(parsed.CleanedContent)

	if err := e.transition(session, StateAppendAssistant); err != nil {
		return nil, false, err
	}
	if content != "" || len(assistantCalls) > 0 {
		if err := session.Append(Message{Role: RoleAssistant, Content: content, ToolCalls: assistantCalls}); err != nil {
			return nil, false, NewEngineError(KindFatal, err, "append assistant message")
		}
	}

	if err := e.transition(session, StateSplit); err != nil {
		return nil, false, err
	}
	partition := approval.PartitionCalls(e.registry, toApprovalMode(session.Config().Mode), valid)

	if err := e.transition(session, StateExecute); err != nil {
		return nil, false, err
	}
	results := make(map[string]ToolResult, len(merged))
	for _, r := range unknownResults {
		results[r.ToolCallID] = r
	}
	for id, r := range autoExecuted {
		results[id] = r
	}

	select {
	case <-tok.Done():
		return e.settleCancelled(session)
	default:
	}
	if len(partition.Direct) > 0 {
		var resultsMu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, call := range partition.Direct {
			call := call
			g.Go(func() error {
				tr := e.executeDirect(gctx, session, call)
				resultsMu.Lock()
				results[call.ID] = tr
				resultsMu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := e.transition(session, StateConfirm); err != nil {
		return nil, false, err
	}
	for _, call := range partition.RequireConfirm {
		select {
		case <-tok.Done():
			return e.settleCancelled(session)
		default:
		}
		tr, abort, abortErr := e.confirmAndExecute(ctx, session, call)
		if abort {
			return nil, false, abortErr
		}
		results[call.ID] = tr
	}

	if err := e.transition(session, StateAppendToolResults); err != nil {
		return nil, false, err
	}
	appended := 0
	for _, tc := range assistantCalls {
		tr, ok := results[tc.ID]
		if !ok {
			continue
		}
		if err := session.Append(Message{Role: RoleTool, Content: tr.Content, ToolCallID: tr.ToolCallID, Name: tr.Name}); err != nil {
			return nil, false, NewEngineError(KindFatal, err, "append tool result")
		}
		emitToolResult(e.sink, tr.Name, tr.Content, tr.IsError)
		appended++
	}

	e.checkContextPressure(session)

	switch {
	case appended > 0:
		return nil, false, nil
	case content != "":
		if err := e.transition(session, StateIdle); err != nil {
			return nil, false, err
		}
		emit(e.sink, OutputAssistant, content)
		return &RunResult{State: StateIdle, Content: content}, true, nil
	default:
		if err := e.transition(session, StateAppendUser); err != nil {
			return nil, false, err
		}
		if err := e.appendUser(session, nudgeText); err != nil {
			return nil, false, err
		}
		emit(e.sink, OutputNudge, nudgeText)
		return nil, false, nil
	}
}

// handleParseError implements PARSE_CONTENT's malformed-call branch: the raw
// assistant content is preserved verbatim in the log, and a remediation
// message is injected so the model can retry in a recognized format.
func (e *Engine) handleParseError(session *Session, resp *llm.Response, parsed tools.ParseResult) (*RunResult, bool, error) {
	if err := e.transition(session, StateAppendAssistant); err != nil {
		return nil, false, err
	}
	raw := strings.TrimSpace(resp.Content)
	if raw != "" {
		if err := session.Append(Message{Role: RoleAssistant, Content: raw}); err != nil {
			return nil, false, NewEngineError(KindFatal, err, "append raw assistant message")
		}
	}
	emit(e.sink, OutputWarning, parsed.ParseError.Message)

	if err := e.appendUser(session, parsed.ParseError.Remediation); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// consumeStream drains the LLM's event channel into its final aggregate
// response, forwarding content deltas to the event sink as they arrive and
// aborting with ErrCancelled the instant the turn's token fires.
func (e *Engine) consumeStream(tok *Token, events <-chan llm.StreamEvent) (*llm.Response, error) {
	var final *llm.Response
	for final == nil {
		select {
		case <-tok.Done():
			return nil, ErrCancelled
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("llm stream closed without a final response")
			}
			switch ev.Type {
			case llm.EventContentDelta:
				emit(e.sink, OutputAssistant, ev.ContentDelta)
			case llm.EventToolCall:
				// No-op: the terminal EventDone's Response.ToolCalls carries
				// the complete, already-assembled list.
			case llm.EventAutoExecuted:
				if ev.AutoExecuted != nil {
					emitToolResult(e.sink, ev.AutoExecuted.Name, ev.AutoExecuted.Content, ev.AutoExecuted.IsError)
				}
			case llm.EventDone:
				final = ev.Final
			case llm.EventError:
				return nil, ev.Err
			}
		}
	}
	return final, nil
}

// mergeCalls implements MERGE_CALLS: provider-structured calls (converted
// through the parser's FunctionCallResponse path so ids are assigned
// consistently) unioned with calls recognized in assistant free text, then
// deduplicated by id and by (name, canonical(arguments)).
func mergeCalls(parser *tools.Parser, providerCalls []llm.ToolCall, parsedCalls []tools.ToolCall) ([]tools.ToolCall, error) {
	frcs := make([]tools.FunctionCallResponse, 0, len(providerCalls))
	for _, tc := range providerCalls {
		var frc tools.FunctionCallResponse
		frc.ID = tc.ID
		frc.Function.Name = tc.Name
		frc.Function.Arguments = tc.Arguments
		frcs = append(frcs, frc)
	}
	converted, err := parser.ParseFunctionCalls(frcs)
	if err != nil {
		return nil, err
	}
	return dedupeCalls(append(converted, parsedCalls...)), nil
}

func dedupeCalls(calls []tools.ToolCall) []tools.ToolCall {
	seenID := make(map[string]bool, len(calls))
	seenKey := make(map[string]bool, len(calls))
	out := make([]tools.ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.ID != "" && seenID[c.ID] {
			continue
		}
		key := c.Name + "\x00" + c.Canonical()
		if seenKey[key] {
			continue
		}
		if c.ID != "" {
			seenID[c.ID] = true
		}
		seenKey[key] = true
		out = append(out, c)
	}
	return out
}

// filterCalls implements FILTER: drops empty-name calls, synthesizes an
// error tool-result for any call whose name is not in the registry, and
// returns the still-valid calls alongside the full set converted to
// engine.ToolCall for the assistant message (unknown calls must still appear
// there so their synthesized error result has somewhere to pair against).
func (e *Engine) filterCalls(merged []tools.ToolCall) (valid []tools.ToolCall, unknownResults []ToolResult, assistantCalls []ToolCall) {
	for _, c := range merged {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		assistantCalls = append(assistantCalls, ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Params, Raw: c.Raw})

		if _, ok := e.registry.Get(c.Name); !ok {
			unknownResults = append(unknownResults, ToolResult{
				ToolCallID: c.ID,
				Name:       c.Name,
				Content:    fmt.Sprintf("%sunknown tool %q; available tools: %s", ErrorMarker, c.Name, strings.Join(e.registry.Names(), ", ")),
				IsError:    true,
			})
			continue
		}
		valid = append(valid, c)
	}
	return valid, unknownResults, assistantCalls
}

// executeDirect runs EXECUTE for one direct-cleared call, advertising the
// change to the editor bridge first when one is attached (bridge silence is
// not an error: per §4.E the engine's own path governs when the bridge
// doesn't resolve it).
func (e *Engine) executeDirect(ctx context.Context, session *Session, call tools.ToolCall) ToolResult {
	_, _ = e.maybeAdvertise(ctx, session, call)
	return e.execute(ctx, session, call)
}

// confirmAndExecute drives CONFIRM for one call requiring approval. abort is
// true when the conversation must stop (non-interactive mode hit a call
// still requiring approval after the mode partition); abortErr is the
// EngineError to return from Run in that case.
func (e *Engine) confirmAndExecute(ctx context.Context, session *Session, call tools.ToolCall) (result ToolResult, abort bool, abortErr error) {
	def, _ := e.registry.Get(call.Name)

	bridgeApproved, bridgeResolved := e.maybeAdvertise(ctx, session, call)

	var decision approval.DecisionState
	if bridgeResolved {
		// The bridge is authoritative when it resolves the change: skip the
		// local gate entirely rather than asking the user again (spec §4.E/
		// §4.F, scenario 6).
		decision = approval.DecisionRejected
		if bridgeApproved {
			decision = approval.DecisionApproved
		}
	} else {
		var err error
		decision, err = e.gate.Decide(ctx, call, def, session.Config().NonInteractive)
		if err != nil {
			if errors.Is(err, approval.ErrApprovalRequiredNonInteractive) {
				tr := ToolResult{
					ToolCallID: call.ID,
					Name:       call.Name,
					Content:    ErrorMarker + "approval required in non-interactive mode; aborting",
					IsError:    true,
				}
				_ = session.Append(Message{Role: RoleTool, Content: tr.Content, ToolCallID: tr.ToolCallID, Name: tr.Name})
				emitToolResult(e.sink, tr.Name, tr.Content, true)
				session.SetState(StateIdle)
				return ToolResult{}, true, NewEngineError(KindApprovalDenied, ErrNonInteractiveApprovalRequired, "non-interactive mode cannot satisfy a required approval").WithToolID(call.ID)
			}
			return ToolResult{}, true, NewEngineError(KindFatal, ErrFatalInvariant, err.Error())
		}
	}

	if decision == approval.DecisionRejected {
		session.recordToolCall(true)
		return ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    approval.RejectionContent,
			IsError:    true,
		}, false, nil
	}

	return e.execute(ctx, session, call), false, nil
}

// maybeAdvertise sends a file_change preview to the editor bridge before
// local execution and returns the bridge's decision. The bridge decides
// relevance: a tool call this editor isn't interested in simply falls
// through (ok=false) and the engine's own approval path governs; when ok is
// true, the bridge's decision is authoritative and approved is the final
// answer, per §4.E/§4.F.
func (e *Engine) maybeAdvertise(ctx context.Context, session *Session, call tools.ToolCall) (approved bool, ok bool) {
	if e.bridge == nil {
		return false, false
	}
	def, found := e.registry.Get(call.Name)
	if !found {
		return false, false
	}
	args, err := call.ParamsMap()
	if err != nil {
		return false, false
	}
	return e.bridge.Advertise(ctx, FileChange{
		ToolName:   call.Name,
		ToolCallID: call.ID,
		NewContent: def.Preview(args),
		TurnID:     session.ID(),
	})
}

func (e *Engine) execute(ctx context.Context, session *Session, call tools.ToolCall) ToolResult {
	res, err := e.executor.Execute(ctx, call)
	if err != nil {
		session.recordToolCall(true)
		return ToolResult{ToolCallID: call.ID, Name: call.Name, Content: ErrorMarker + err.Error(), IsError: true}
	}
	session.recordToolCall(res.IsError)
	if e.metrics != nil {
		outcome := "ok"
		if res.IsError {
			outcome = "error"
		}
		e.metrics.ToolCallsTotal.WithLabelValues(call.Name, outcome).Inc()
	}
	return ToolResult{ToolCallID: call.ID, Name: call.Name, Content: res.Content, IsError: res.IsError}
}

// settleCancelled implements the Cancelled branch reachable from any
// in-flight state: emit the fixed transcript notice, skip appending any
// partial assistant content, close pending bridge changes for this turn, and
// land in IDLE.
func (e *Engine) settleCancelled(session *Session) (*RunResult, bool, error) {
	reason := session.Cancellation().Current().Reason()

	e.bridge.ClosePending(context.Background(), session.ID())
	session.recordCancellation()
	emit(e.sink, OutputInfo, "Interrupted by user.")

	session.SetState(StateCancelled)
	session.SetState(StateIdle)

	return &RunResult{
		State: StateIdle,
		Err:   NewEngineError(KindCancelled, ErrCancelled, string(reason)),
	}, true, nil
}

// checkContextPressure implements §4.G's context accounting at the end of
// every STREAM round, after that round's tool results are appended, so a
// multi-round turn can emit more than one warning: sums Tokenizer.Count
// across the system prompt and history and
// emits a warning or critical event once the configured thresholds are
// crossed. A nil Tokenizer disables this entirely.
func (e *Engine) checkContextPressure(session *Session) {
	if e.tokenizer == nil {
		return
	}
	model := e.client.Model()
	limit, ok := e.tokenizer.ModelLimit(model)
	if !ok || limit <= 0 {
		return
	}

	total := 0
	if e.systemPrompt != "" {
		total += e.tokenizer.Count(Message{Role: RoleSystem, Content: e.systemPrompt})
	}
	for _, m := range session.Messages() {
		total += e.tokenizer.Count(m)
	}

	pct := total * 100 / limit
	cfg := session.Config()
	switch {
	case pct >= cfg.ContextCriticalPercent:
		session.recordContextPressure(true)
		emit(e.sink, OutputWarning, fmt.Sprintf("context window %d%% full (critical) — consider /clear", pct))
	case pct >= cfg.ContextWarnPercent:
		session.recordContextPressure(false)
		emit(e.sink, OutputWarning, fmt.Sprintf("context window %d%% full", pct))
	}
}

// toLLMMessages converts the session's log into the LLM client's wire
// shape. A RoleTool Message carries exactly one ToolCallID/Content pair in
// engine's model, so it becomes an llm.Message with a single ToolResults
// entry; RoleAssistant carries its ToolCalls across verbatim.
func toLLMMessages(msgs []Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleTool:
			out = append(out, llm.Message{
				Role: "tool",
				ToolResults: []llm.ToolCallResult{{
					ToolCallID: m.ToolCallID,
					Content:    m.Content,
					IsError:    strings.HasPrefix(m.Content, ErrorMarker),
				}},
			})
		case RoleAssistant:
			lm := llm.Message{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				lm.ToolCalls = append(lm.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: string(tc.Arguments)})
			}
			out = append(out, lm)
		default:
			out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
		}
	}
	return out
}
