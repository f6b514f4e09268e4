// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/nanoforge/conversant/compact"
	"github.com/nanoforge/conversant/engine"
)

// compactSession runs the History Compactor over session's current message
// log and replaces it with the result, mirroring the way checkpoint restore
// uses Session.ReplaceMessages: compaction produces a new log wholesale
// rather than mutating the existing one in place.
func compactSession(session *engine.Session, mode compact.Mode, keepRecent int) compact.Stats {
	before := toCompactMessages(session.Messages())

	after, stats := compact.Compact(before, compact.Options{Mode: mode, KeepRecent: keepRecent})

	session.ReplaceMessages(toEngineMessages(after))
	return stats
}

func toCompactMessages(messages []engine.Message) []compact.Message {
	out := make([]compact.Message, len(messages))
	for i, m := range messages {
		out[i] = compact.Message{
			Role:       compact.Role(m.Role),
			Content:    m.Content,
			ToolCalls:  toCompactToolCalls(m.ToolCalls),
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
			Timestamp:  m.Timestamp,
		}
	}
	return out
}

func toCompactToolCalls(calls []engine.ToolCall) []compact.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]compact.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = compact.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Canonical()}
	}
	return out
}

func toEngineMessages(messages []compact.Message) []engine.Message {
	out := make([]engine.Message, len(messages))
	for i, m := range messages {
		out[i] = engine.Message{
			Role:       engine.Role(m.Role),
			Content:    m.Content,
			ToolCalls:  toEngineToolCalls(m.ToolCalls),
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
			Timestamp:  m.Timestamp,
		}
	}
	return out
}

func toEngineToolCalls(calls []compact.ToolCall) []engine.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]engine.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = engine.ToolCall{ID: c.ID, Name: c.Name, Arguments: []byte(c.Arguments), Raw: c.Arguments}
	}
	return out
}
