// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import "encoding/json"

// ProtocolVersion is sent in connection_ack so a mismatched editor client
// can refuse to speak to an incompatible bridge instead of failing on the
// first malformed message.
const ProtocolVersion = 1

// Message type strings, both directions. Kept as exported constants so a
// caller building an editor-side test double (or this repo's own tests)
// never has to spell the wire string out twice.
const (
	// Emitted by the bridge.
	TypeConnectionAck    = "connection_ack"
	TypeFileChange       = "file_change"
	TypeToolCall         = "tool_call"
	TypeAssistantMessage = "assistant_message"
	TypeStatus           = "status"
	TypeDiagnosticsReq   = "diagnostics_request"
	TypeCloseDiff        = "close_diff"

	// Accepted by the bridge.
	TypeSendPrompt      = "send_prompt"
	TypeApplyChange     = "apply_change"
	TypeRejectChange    = "reject_change"
	TypeGetStatus       = "get_status"
	TypeContext         = "context"
	TypeDiagnosticsResp = "diagnostics_response"
)

// FileChange is a proposed file modification, advertised to connected
// editors before the engine applies it locally. This mirrors
// engine.FileChange field-for-field; the two stay structurally distinct so
// this package never imports engine (engine depends on Bridge through its
// own local interface, not the reverse) — the wiring site converts between
// them.
type FileChange struct {
	Path            string
	OriginalContent string
	NewContent      string
	ToolName        string
	ToolCallID      string
	TurnID          string
}

// Diagnostic is one entry of a diagnostics_response payload (an editor's
// linter/compiler output for a file).
type Diagnostic struct {
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// PromptContext is the optional context object accompanying send_prompt.
type PromptContext struct {
	WorkspaceFolder string   `json:"workspaceFolder,omitempty"`
	OpenFiles       []string `json:"openFiles,omitempty"`
	ActiveFile      string   `json:"activeFile,omitempty"`
}

// inbound is every message shape an editor client may send, as one flat
// struct discriminated by Type — the same flattened-request idiom the
// teacher's WSRequest used for its action/mode-routed messages.
type inbound struct {
	Type string `json:"type"`

	// send_prompt
	Prompt  string         `json:"prompt,omitempty"`
	Context *PromptContext `json:"context,omitempty"`

	// apply_change / reject_change
	ID string `json:"id,omitempty"`

	// context
	WorkspaceFolder string       `json:"workspaceFolder,omitempty"`
	OpenFiles       []string     `json:"openFiles,omitempty"`
	ActiveFile      string       `json:"activeFile,omitempty"`
	Diagnostics     []Diagnostic `json:"diagnostics,omitempty"`
}

// outbound is every message shape the bridge sends, as one flat struct
// discriminated by Type, mirroring the teacher's WSResponse idiom.
type outbound struct {
	Type string `json:"type"`

	// file_change
	ID              string          `json:"id,omitempty"`
	Path            string          `json:"path,omitempty"`
	OriginalContent string          `json:"originalContent,omitempty"`
	NewContent      string          `json:"newContent,omitempty"`
	ToolName        string          `json:"toolName,omitempty"`
	ToolArgs        json.RawMessage `json:"toolArgs,omitempty"`

	// tool_call
	Name   string          `json:"name,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Status string          `json:"status,omitempty"`

	// assistant_message
	Content      string `json:"content,omitempty"`
	IsGenerating bool   `json:"isGenerating,omitempty"`

	// status
	Connected        bool   `json:"connected,omitempty"`
	Model            string `json:"model,omitempty"`
	Provider         string `json:"provider,omitempty"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`

	// connection_ack
	ProtocolVersion int    `json:"protocolVersion,omitempty"`
	CliVersion      string `json:"cliVersion,omitempty"`
}
