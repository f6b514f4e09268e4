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
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// configValidator is stateless and safe for concurrent use, so Config.
// Validate shares one instance across every session the way the teacher's
// SessionConfig.Validate() shares its package-level validator.
var configValidator = validator.New()

// Config holds tunable parameters for a Session, validated with
// go-playground/validator struct tags the same way the teacher's
// SessionConfig.Validate() does.
type Config struct {
	// Mode is the approval gate's partition policy.
	Mode Mode `validate:"required,oneof=normal auto-accept plan"`

	// NonInteractive aborts the conversation on any remaining
	// approval-required call instead of prompting.
	NonInteractive bool

	// ContextWarnPercent/ContextCriticalPercent are token-budget-utilization
	// thresholds (0-100) at which the engine emits a pressure warning.
	ContextWarnPercent     int `validate:"gte=0,lte=100"`
	ContextCriticalPercent int `validate:"gte=0,lte=100,gtefield=ContextWarnPercent"`

	// MaxTurnIterations bounds the self-correction loop (STREAM re-entries)
	// to prevent pathological model behavior from exhausting the turn
	// budget. See SPEC_FULL.md §9 re-architecture guidance.
	MaxTurnIterations int `validate:"gte=1"`
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:                   ModeNormal,
		NonInteractive:         false,
		ContextWarnPercent:     70,
		ContextCriticalPercent: 90,
		MaxTurnIterations:      10,
	}
}

// Validate checks the configuration against its struct tags, returning
// ErrInvalidSession (wrapping the validator's field-level errors) on
// failure.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return nil
}

// Session is the ConversationState described in the data model: an ordered
// message log, the set of in-flight tool-call ids, a cancellation
// controller, a mode, and the non-interactive flag. The Conversation Engine
// exclusively owns the message log and the cancellation token; the Tool
// Registry is shared read-only; the Editor Bridge owns its own connection
// set and pending-change map (neither is Session state).
//
// Thread Safety: Session serializes all mutation behind mu; readers take a
// snapshot via Messages().
type Session struct {
	mu sync.RWMutex

	id    string
	state TurnState

	config *Config

	messages      []Message
	inFlightCalls map[string]struct{}

	// turnSeq synthesizes deterministic tool-call ids (call_<seq>) when the
	// parser encounters a call with no id; reset at the start of every turn.
	turnSeq int

	metrics      SessionMetrics
	createdAt    time.Time
	lastActiveAt time.Time

	cancel *Controller
}

// NewSession creates a session with the given configuration (defaults if
// nil) and a fresh id.
func NewSession(config *Config, metrics *TurnMetrics) (*Session, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Session{
		id:            uuid.NewString(),
		state:         StateIdle,
		config:        config,
		messages:      make([]Message, 0, 16),
		inFlightCalls: make(map[string]struct{}),
		createdAt:     now,
		lastActiveAt:  now,
		cancel:        NewController(metrics, nil),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the session's configuration. The returned pointer must not
// be mutated; Config is conceptually immutable after NewSession.
func (s *Session) Config() *Config { return s.config }

// Cancellation returns the session's cancellation controller.
func (s *Session) Cancellation() *Controller { return s.cancel }

// State returns the current turn state.
func (s *Session) State() TurnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState updates the current turn state and bumps LastActiveAt.
func (s *Session) SetState(state TurnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastActiveAt = time.Now()
}

// Append adds a message to the log. This is the single writer: Append is
// the only method that mutates the log, enforcing the one-writer discipline
// from SPEC_FULL.md §5. Returns ErrEmptyAssistantMessage (a Fatal-kind
// invariant violation) if an assistant message with neither content nor
// tool calls is appended.
func (s *Session) Append(m Message) error {
	if !m.Valid() {
		return ErrEmptyAssistantMessage
	}
	m.Timestamp = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	s.lastActiveAt = time.Now()

	for _, tc := range m.ToolCalls {
		s.inFlightCalls[tc.ID] = struct{}{}
	}
	if m.Role == RoleTool && m.ToolCallID != "" {
		delete(s.inFlightCalls, m.ToolCallID)
	}
	return nil
}

// Messages returns a snapshot of the message log. The returned slice is a
// copy; mutating it does not affect the session.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ReplaceMessages swaps the entire log, used only by compaction (which
// produces a new log) and checkpoint restore (which replaces the entire
// log). This is the one sanctioned exception to "append only."
func (s *Session) ReplaceMessages(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]Message(nil), msgs...)
	s.lastActiveAt = time.Now()
}

// InFlightToolCallIDs returns the set of tool_call_ids that have been
// appended in an assistant message but have no corresponding tool_result
// yet.
func (s *Session) InFlightToolCallIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.inFlightCalls))
	for id := range s.inFlightCalls {
		ids = append(ids, id)
	}
	return ids
}

// NextCallID synthesizes a deterministic tool-call id for a turn:
// call_<turn-monotonic-seq>, per SPEC_FULL.md §4.B.
func (s *Session) NextCallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnSeq++
	return fmt.Sprintf("call_%d", s.turnSeq)
}

// ResetTurnSequence restarts the call-id counter; invoked at APPEND_USER for
// each new user turn so ids are unique within a turn as the data model
// requires (not necessarily across turns).
func (s *Session) ResetTurnSequence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnSeq = 0
}

// Metrics returns a copy of the session's metrics.
func (s *Session) Metrics() SessionMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// recordTurn increments the turn counter. Called once per settled turn.
func (s *Session) recordTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.TurnsRun++
}

// recordToolCall increments tool-call counters.
func (s *Session) recordToolCall(isError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ToolCalls++
	if isError {
		s.metrics.ToolErrors++
	}
}

// recordCancellation increments the cancellation counter.
func (s *Session) recordCancellation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Cancellations++
}

// recordContextPressure increments the appropriate pressure counter.
func (s *Session) recordContextPressure(critical bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if critical {
		s.metrics.ContextPressureCritial++
	} else {
		s.metrics.ContextPressureWarns++
	}
}

// ToSessionState returns an externally-visible snapshot of the session, for
// status reporting (e.g. the bridge's `status` message).
func (s *Session) ToSessionState() *SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &SessionState{
		ID:           s.id,
		Mode:         s.config.Mode,
		State:        s.state,
		MessageCount: len(s.messages),
		CreatedAt:    s.createdAt,
		LastActiveAt: s.lastActiveAt,
	}
}
