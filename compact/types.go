// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compact implements the History Compactor (SPEC_FULL.md §4.I): a
// pure function that shrinks a conversation's message log while preserving
// its shape. It never imports package engine; the wiring-site adapter in
// cmd/conversant converts between engine.Message and compact.Message, the
// same leaf-package discipline checkpoint and tokenizer follow.
package compact

import "time"

// Role mirrors engine.Role. Only RoleSystem and RoleTool get distinct
// treatment here; RoleUser and RoleAssistant share the body-truncation path.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ErrorMarker mirrors engine.ErrorMarker: the prefix a tool-result's Content
// carries when it reports a failure. Compaction preserves this prefix so a
// summarized tool result still reads as an error to the model.
const ErrorMarker = "Error: "

// ToolCall mirrors engine.ToolCall's round-trippable fields. Compaction
// never rewrites a ToolCall; it is carried verbatim whenever its owning
// assistant message is compacted.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message mirrors engine.Message. See the package doc for why this type
// exists instead of importing engine.Message directly.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
	Timestamp  time.Time
}

// Mode selects how aggressively Compact shrinks eligible messages, per
// SPEC_FULL.md §6's `compaction.mode` configuration option.
type Mode string

const (
	// ModeOff disables compaction; Compact returns the log unchanged.
	ModeOff Mode = "off"

	// ModeConservative keeps the most context: large bodies and tool
	// results are only trimmed once they are quite long.
	ModeConservative Mode = "conservative"

	// ModeDefault is a balanced middle ground.
	ModeDefault Mode = "default"

	// ModeAggressive shrinks eligible messages to the smallest bounds,
	// trading context for message-log size.
	ModeAggressive Mode = "aggressive"
)

// budget is the pair of size bounds a Mode applies to tool results and to
// user/assistant prose bodies.
type budget struct {
	toolResult int
	body       int
}

// budgets maps each non-off Mode to its character bounds. These are
// character counts, not token counts: compaction is a pure function with no
// access to a Tokenizer (SPEC_FULL.md §4.G is a separate, I/O-capable
// component), so it uses a cheap, deterministic proxy instead.
var budgets = map[Mode]budget{
	ModeConservative: {toolResult: 4000, body: 6000},
	ModeDefault:      {toolResult: 1200, body: 2000},
	ModeAggressive:   {toolResult: 400, body: 800},
}

// DefaultKeepRecent is the default number of trailing user/assistant pairs
// always preserved, matching SPEC_FULL.md §6's `compaction.keepRecent`
// default.
const DefaultKeepRecent = 2

// Options configures a Compact call.
type Options struct {
	// Mode selects the compaction strategy. The zero value is ModeOff.
	Mode Mode

	// KeepRecent is K, the number of trailing user/assistant pairs always
	// preserved verbatim. Values below 1 are treated as DefaultKeepRecent.
	KeepRecent int
}

// Stats reports what Compact did, per SPEC_FULL.md §4.I's "returns a
// statistics record" requirement.
type Stats struct {
	MessagesBefore int
	MessagesAfter  int

	// ToolResultsSummarized counts RoleTool messages whose Content was
	// shortened.
	ToolResultsSummarized int

	// BodiesTruncated counts user/assistant messages whose Content was
	// shortened (including the prose portion of a tool-calling assistant
	// message).
	BodiesTruncated int

	// CharsRemoved is the total character count removed across every
	// summarized or truncated message.
	CharsRemoved int
}
