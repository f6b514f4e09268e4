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

import "time"

// OutputKind discriminates an OutputEvent, replacing the ambient
// process-wide message queue the teacher uses for chat rendering (SPEC_FULL.md
// §9) with a typed stream the turn loop publishes to explicitly.
type OutputKind string

const (
	OutputUser       OutputKind = "user"
	OutputAssistant  OutputKind = "assistant"
	OutputToolResult OutputKind = "tool-result"
	OutputInfo       OutputKind = "info"
	OutputWarning    OutputKind = "warning"
	OutputError      OutputKind = "error"
	OutputNudge      OutputKind = "nudge"
)

// OutputEvent is one item on the engine's output stream. It mirrors, but is
// distinct from, a logged Message: not every OutputEvent corresponds to a
// conversation-log append (an interrupted-by-user notice, for instance, is
// never sent back to the model).
type OutputEvent struct {
	Kind      OutputKind
	Content   string
	ToolName  string
	IsError   bool
	Timestamp time.Time
}

// EventSink receives the engine's output stream. Implementations must return
// promptly; Emit runs synchronously from the turn loop.
type EventSink interface {
	Emit(ev OutputEvent)
}

// NoopEventSink discards every event, used when a caller has no UI adapter
// attached (e.g. batch/non-interactive runs, or tests that only assert on
// the returned RunResult).
type NoopEventSink struct{}

func (NoopEventSink) Emit(OutputEvent) {}

// emit is the turn loop's single call site for publishing to the sink,
// stamping Timestamp so callers never need to.
func emit(sink EventSink, kind OutputKind, content string) {
	if sink == nil {
		return
	}
	sink.Emit(OutputEvent{Kind: kind, Content: content, Timestamp: time.Now()})
}

func emitToolResult(sink EventSink, toolName, content string, isError bool) {
	if sink == nil {
		return
	}
	sink.Emit(OutputEvent{
		Kind:      OutputToolResult,
		Content:   content,
		ToolName:  toolName,
		IsError:   isError,
		Timestamp: time.Now(),
	})
}
