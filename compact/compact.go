// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compact

import "fmt"

// Compact shrinks messages per opts and returns the new log plus a
// statistics record. It is a pure function: no I/O, no shared state, safe
// to call from any goroutine on any input.
//
// Always preserved, verbatim: every RoleSystem message regardless of
// position, and the last opts.KeepRecent user/assistant pairs (the "recent
// window"). Everything else is eligible for compaction:
//   - RoleTool messages are summarized, keeping ErrorMarker and the
//     resolution status recognizable.
//   - RoleUser/RoleAssistant messages with long Content are truncated to a
//     bounded length.
//   - RoleAssistant messages carrying ToolCalls keep the calls verbatim;
//     only their Content (prose) is compressed.
//
// Compact never removes a message or reorders the log; len(result) ==
// len(messages) always, and every RoleSystem message survives untouched,
// satisfying the testable property in spec §8.
func Compact(messages []Message, opts Options) ([]Message, Stats) {
	stats := Stats{MessagesBefore: len(messages), MessagesAfter: len(messages)}

	if opts.Mode == "" || opts.Mode == ModeOff {
		return messages, stats
	}
	b, ok := budgets[opts.Mode]
	if !ok {
		return messages, stats
	}

	keepRecent := opts.KeepRecent
	if keepRecent < 1 {
		keepRecent = DefaultKeepRecent
	}
	recentFrom := recentWindowStart(messages, keepRecent)

	out := make([]Message, len(messages))
	for i, m := range messages {
		if m.Role == RoleSystem || i >= recentFrom {
			out[i] = m
			continue
		}
		out[i] = compactOne(m, b, &stats)
	}

	return out, stats
}

// recentWindowStart returns the index of the first message in the trailing
// window of keepRecent user/assistant pairs. A "pair" is a user message and
// every message that follows it up to (not including) the next user
// message, so tool calls and their results made in response to a user turn
// stay grouped with it. If the log has fewer than keepRecent user messages,
// the entire log is the recent window (index 0).
func recentWindowStart(messages []Message, keepRecent int) int {
	seen := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != RoleUser {
			continue
		}
		seen++
		if seen == keepRecent {
			return i
		}
	}
	return 0
}

// compactOne applies the per-role compaction rule to a single eligible
// message, updating stats as it goes.
func compactOne(m Message, b budget, stats *Stats) Message {
	switch m.Role {
	case RoleTool:
		summarized, changed, removed := summarizeToolResult(m.Content, b.toolResult)
		if changed {
			stats.ToolResultsSummarized++
			stats.CharsRemoved += removed
			m.Content = summarized
		}
		return m

	case RoleUser, RoleAssistant:
		if m.Content == "" {
			return m
		}
		truncated, changed, removed := truncateBody(m.Content, b.body)
		if changed {
			stats.BodiesTruncated++
			stats.CharsRemoved += removed
			m.Content = truncated
		}
		return m

	default:
		return m
	}
}

// summarizeToolResult shrinks a tool result's Content to budget characters
// plus elideMiddle's omission marker, keeping the ErrorMarker prefix (and
// therefore the success/failure status a reader or model would infer from
// it) intact.
// Long content is elided head-and-tail rather than simply truncated from
// the end, since the final lines of a tool result (e.g. a command's exit
// status) are often as informative as the first.
func summarizeToolResult(content string, budget int) (result string, changed bool, removed int) {
	if len(content) <= budget {
		return content, false, 0
	}

	isError := len(content) >= len(ErrorMarker) && content[:len(ErrorMarker)] == ErrorMarker
	body := content
	if isError {
		body = content[len(ErrorMarker):]
	}

	summarized := elideMiddle(body, budget-len(ErrorMarker)*boolToInt(isError))
	if isError {
		summarized = ErrorMarker + summarized
	}
	return summarized, true, len(content) - len(summarized)
}

// truncateBody shrinks a user/assistant message's prose to budget
// characters plus the omission marker, via the same head/tail elision as
// summarizeToolResult, minus
// the error-marker handling that is specific to tool results.
func truncateBody(content string, budget int) (result string, changed bool, removed int) {
	if len(content) <= budget {
		return content, false, 0
	}
	elided := elideMiddle(content, budget)
	return elided, true, len(content) - len(elided)
}

// elideMiddle keeps the first 2/3 and last 1/3 of budget characters of s,
// joined by a marker naming how much was dropped. The marker comes on top of
// the budget characters, so when s exceeds budget by fewer characters than
// the marker's length, the result is longer than s.
func elideMiddle(s string, budget int) string {
	if budget <= 0 {
		budget = 1
	}
	if len(s) <= budget {
		return s
	}

	headLen := budget * 2 / 3
	tailLen := budget - headLen
	head := s[:headLen]
	tail := s[len(s)-tailLen:]
	omitted := len(s) - headLen - tailLen
	return fmt.Sprintf("%s\n... [%d chars omitted] ...\n%s", head, omitted, tail)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
