// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint produces and consumes the opaque artifact that
// preserves a conversation across process restarts: message sequence,
// optional tool-execution records, and optional file snapshots keyed by
// relative path (SPEC_FULL.md §4.H). It never imports package engine; the
// wiring-site adapter in cmd/conversant converts between engine.Message and
// checkpoint.Message so this package stays a leaf.
package checkpoint

import "time"

// SchemaVersion is the current artifact encoding version. Bumping it is a
// migration point: Restore rejects an artifact whose SchemaVersion it does
// not know how to read via ErrSchemaVersionMismatch, rather than guessing at
// a layout it was never tested against.
const SchemaVersion = 1

// Message mirrors engine.Message's round-trippable fields. It intentionally
// does not import package engine (see package doc); the wiring-site adapter
// converts between the two.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// ToolCall mirrors engine.ToolCall.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolExecution is an audit record of one tool invocation: what ran, with
// what arguments, what it returned, and when. Distinct from the tool-result
// Message already present in Messages, per the artifact contract's
// toolExecutions[] field; kept for callers that want execution history
// without re-deriving it from message-log scanning.
type ToolExecution struct {
	Name      string    `json:"name"`
	Arguments string    `json:"arguments"`
	Result    string    `json:"result"`
	IsError   bool      `json:"is_error"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata describes a checkpoint without requiring the full artifact to be
// decoded. Returned by List so callers can present a selection menu cheaply.
type Metadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
}

// Artifact is the full, self-describing checkpoint payload. Implementations
// pick the encoding (this one uses JSON, see store.go); the contract is
// round-trippability of every field.
type Artifact struct {
	SchemaVersion  int               `json:"schema_version"`
	Metadata       Metadata          `json:"metadata"`
	Messages       []Message         `json:"messages"`
	ToolExecutions []ToolExecution   `json:"tool_executions,omitempty"`
	FileSnapshots  map[string]string `json:"file_snapshots,omitempty"`
}
