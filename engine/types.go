// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements the conversation engine: the control loop that
// drives a streaming LLM chat against a registry of callable tools, mediates
// user approval of side-effecting tool calls, and publishes file-change
// previews to an external editor.
//
// The engine runs a state machine per user turn: APPEND_USER, STREAM,
// PARSE_CONTENT, MERGE_CALLS, FILTER, APPEND_ASSISTANT, SPLIT, EXECUTE,
// CONFIRM, APPEND_TOOL_RESULTS, looping back to STREAM or settling in IDLE
// or CANCELLED.
//
// Thread Safety:
//
//	A Session's message log has a single-writer discipline: only the turn
//	loop appends to it. Readers take a snapshot via Session.Messages.
package engine

import (
	"encoding/json"
	"time"
)

// TurnState is a state in the per-turn state machine described in the
// conversation engine's control-flow diagram.
type TurnState string

const (
	// StateAppendUser appends the user's input (or a self-correction
	// injection) to the message log.
	StateAppendUser TurnState = "APPEND_USER"

	// StateStream is streaming a chat completion from the LLM client.
	StateStream TurnState = "STREAM"

	// StateParseContent extracts tool calls from assistant free text.
	StateParseContent TurnState = "PARSE_CONTENT"

	// StateMergeCalls unions provider-structured calls with parsed calls.
	StateMergeCalls TurnState = "MERGE_CALLS"

	// StateFilter drops calls with an empty name and resolves unknown tool
	// names; deduplication has already happened in MERGE_CALLS.
	StateFilter TurnState = "FILTER"

	// StateAppendAssistant appends the assistant message for this round.
	StateAppendAssistant TurnState = "APPEND_ASSISTANT"

	// StateSplit partitions calls into direct vs. confirm-required via the
	// approval gate.
	StateSplit TurnState = "SPLIT"

	// StateExecute runs the direct-execute tool calls.
	StateExecute TurnState = "EXECUTE"

	// StateConfirm drives per-call user/editor decisions for calls requiring
	// approval.
	StateConfirm TurnState = "CONFIRM"

	// StateAppendToolResults appends tool-result messages for calls executed
	// (directly or after confirmation) this iteration.
	StateAppendToolResults TurnState = "APPEND_TOOL_RESULTS"

	// StateIdle is the resting state between turns.
	StateIdle TurnState = "IDLE"

	// StateCancelled is a terminal-for-the-turn state reached when the
	// cancellation token fires.
	StateCancelled TurnState = "CANCELLED"
)

// IsTerminal reports whether state ends the current turn without looping
// back to STREAM.
func (s TurnState) IsTerminal() bool {
	return s == StateIdle || s == StateCancelled
}

// Role is a Message's role. One of system, user, assistant, tool.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Mode controls the approval gate's partition policy for a turn.
type Mode string

const (
	// ModeNormal requires approval for any tool whose policy demands it.
	ModeNormal Mode = "normal"

	// ModeAutoAccept auto-executes everything except the shell-execution
	// tool, which always requires approval.
	ModeAutoAccept Mode = "auto-accept"

	// ModePlan forces approval regardless of per-tool policy.
	ModePlan Mode = "plan"
)

// ToolCall is (id, name, arguments). id is unique within a turn. Arguments
// may arrive already-parsed (from a provider's structured tool_calls) or as
// a string to be parsed lazily (from assistant free text); Raw always holds
// the string-encoded form so canonicalization is consistent regardless of
// origin.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	// Raw is the original string form of Arguments, used for canonicalization
	// and for forwarding to a validator that only understands raw JSON.
	Raw string `json:"-"`
}

// ArgumentsMap decodes Arguments into a map. Returns an empty, non-nil map
// if Arguments is empty.
func (tc ToolCall) ArgumentsMap() (map[string]any, error) {
	if len(tc.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(tc.Arguments, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Canonical returns a canonical string form of Arguments suitable for
// functional-identity comparison: `(name, canonical(arguments))`. Keys are
// sorted by json.Marshal of a map decode; malformed arguments fall back to
// the raw trimmed string so dedup is still well-defined.
func (tc ToolCall) Canonical() string {
	m, err := tc.ArgumentsMap()
	if err != nil {
		return tc.Raw
	}
	b, err := json.Marshal(m)
	if err != nil {
		return tc.Raw
	}
	return string(b)
}

// ToolResult is (tool_call_id, name, content, isError). Errors are surfaced
// as a normal tool message whose content begins with a recognized error
// marker (see ErrorMarker), enabling the model to self-correct.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// ErrorMarker prefixes ToolResult.Content when IsError is true, so a model
// reading the transcript can recognize a failed call without an out-of-band
// signal.
const ErrorMarker = "Error: "

// Message is one entry in the conversation log. An assistant message must
// contain non-empty Content OR at least one ToolCall; never both empty.
// A tool message carries ToolCallID, Name, and an opaque Content string.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are set only on RoleTool messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	// Timestamp records when the message was appended, used by checkpoints
	// and the typed event stream; not part of the wire contract sent to
	// providers.
	Timestamp time.Time `json:"-"`
}

// Valid enforces the assistant-must-have-content-or-calls invariant for
// assistant messages; all other roles are unconstrained by this check.
func (m Message) Valid() bool {
	if m.Role != RoleAssistant {
		return true
	}
	return m.Content != "" || len(m.ToolCalls) > 0
}

// SessionMetrics accumulates per-session counters, read via Session.Metrics;
// the Prometheus counters are kept separately, on TurnMetrics.
// This is a supplemented feature (see SPEC_FULL.md) grounded on the
// teacher's own SessionMetrics/cancel-metrics shape; it is not part of the
// conversation log and is not persisted in checkpoints.
type SessionMetrics struct {
	TurnsRun               int
	ToolCalls              int
	ToolErrors             int
	Cancellations          int
	ContextPressureWarns   int
	ContextPressureCritial int
}

// SessionState is the externally visible snapshot of a Session, safe to
// serialize for status reporting (e.g. the bridge's `status` message).
type SessionState struct {
	ID           string    `json:"id"`
	Mode         Mode      `json:"mode"`
	State        TurnState `json:"state"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}
