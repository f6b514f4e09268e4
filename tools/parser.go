// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// ToolCall is one call recognized in assistant free text, before it is
// merged with any provider-structured calls. ID is assigned by the Parser's
// IDFunc, not by the model.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
	Raw    string          `json:"raw"`
}

// ParamsMap deserializes Params into a map, or an empty map if Params is
// empty.
func (tc ToolCall) ParamsMap() (map[string]any, error) {
	if len(tc.Params) == 0 {
		return make(map[string]any), nil
	}
	var result map[string]any
	if err := json.Unmarshal(tc.Params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Canonical returns args sorted and re-marshaled, the dedup key's second
// component: (name, canonical(arguments)).
func (tc ToolCall) Canonical() string {
	args, err := tc.ParamsMap()
	if err != nil {
		return tc.Raw
	}
	return canonicalArgs(args)
}

// canonicalArgs produces a stable string encoding of an arguments map,
// independent of key insertion order, for functional-identity comparisons
// and cache keys.
func canonicalArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		b, _ := json.Marshal(args[k])
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.Write(b)
	}
	sb.WriteByte('}')
	return sb.String()
}

// ParseError describes why Parse could not extract a clean set of calls: a
// recognized form was detected but malformed. Remediation is a short
// instruction suitable for injecting back into the conversation so the
// model can self-correct (APPEND_ASSISTANT -> STREAM loop).
type ParseError struct {
	Message     string
	Remediation string
}

func (e *ParseError) Error() string { return e.Message }

// ParseResult is Parse's output: the calls recognized, the content with
// recognized call markup stripped, and an optional error describing a
// detected-but-malformed call.
type ParseResult struct {
	Calls          []ToolCall
	CleanedContent string
	ParseError     *ParseError
}

// IDFunc synthesizes a deterministic tool-call id, normally
// Session.NextCallID.
type IDFunc func() string

// Parser extracts tool calls from assistant free text. Parsing is pure: no
// I/O, deterministic for a given input and IDFunc sequence, safe to call
// repeatedly in a single turn (PARSE_CONTENT may run once per STREAM
// re-entry).
//
// Recognized forms are tried in priority order and the first to match wins:
// an XML-tagged block is authoritative whenever one is detected, even if a
// JSON-shaped fragment also appears in the same text. Thread Safety: Parser
// holds no mutable state beyond IDFunc and is safe for concurrent use if
// IDFunc is.
type Parser struct {
	nextID IDFunc
}

// NewParser creates a Parser. If nextID is nil, Parse synthesizes ids from a
// private counter (only suitable for tests; production callers must pass
// Session.NextCallID so ids are unique and auditable within the turn).
func NewParser(nextID IDFunc) *Parser {
	if nextID == nil {
		var n int
		nextID = func() string {
			n++
			return "call_" + itoa(n)
		}
	}
	return &Parser{nextID: nextID}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

// Parse extracts tool calls from text, trying recognized forms in priority
// order: (1) XML-tagged invocations, (2) a single JSON object wrapping
// {name, arguments}, possibly fenced, (3) multiple JSON objects spanning
// several lines, (4) inline compact-JSON fragments. Calls are deduplicated
// by (name, canonical(arguments)) before being returned. Cleaning is
// idempotent: Parse(result.CleanedContent).Calls is always empty.
func (p *Parser) Parse(text string) ParseResult {
	if strings.TrimSpace(text) == "" {
		return ParseResult{CleanedContent: text}
	}

	if calls, cleaned, found := p.parseAnthropicXML(text); found {
		return p.finish(calls, cleaned, nil)
	}
	if calls, cleaned, found := p.parseGenericXML(text); found {
		return p.finish(calls, cleaned, nil)
	}

	if call, cleaned, found, malformed := p.parseSingleJSON(text); found {
		if malformed != nil {
			return ParseResult{CleanedContent: text, ParseError: malformed}
		}
		return p.finish([]ToolCall{call}, cleaned, nil)
	}

	if calls, cleaned, found := p.parseMultilineJSON(text); found {
		return p.finish(calls, cleaned, nil)
	}

	if calls, cleaned, found := p.parseInlineJSON(text); found {
		return p.finish(calls, cleaned, nil)
	}

	return ParseResult{CleanedContent: text}
}

// finish assigns deterministic ids and deduplicates by (name, canonical
// arguments)), preserving first-occurrence order.
func (p *Parser) finish(calls []ToolCall, cleaned string, perr *ParseError) ParseResult {
	seen := make(map[string]bool, len(calls))
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		c.ID = p.nextID()
		key := c.Name + "\x00" + c.Canonical()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return ParseResult{Calls: out, CleanedContent: strings.TrimSpace(cleaned), ParseError: perr}
}

// Generic XML: <tool_call><name>x</name><params>{...}</params></tool_call>
var xmlToolCallRegex = regexp.MustCompile(`(?s)<tool_call>\s*<name>\s*([^<]+)\s*</name>\s*<params>\s*(.*?)\s*</params>\s*</tool_call>`)

func (p *Parser) parseGenericXML(text string) ([]ToolCall, string, bool) {
	matches := xmlToolCallRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, text, false
	}

	var calls []ToolCall
	remaining := text
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		fullStart, fullEnd := m[0], m[1]
		name := strings.TrimSpace(text[m[2]:m[3]])
		paramsStr := strings.TrimSpace(text[m[4]:m[5]])

		var params json.RawMessage
		switch {
		case paramsStr == "":
			params = json.RawMessage("{}")
		case json.Valid([]byte(paramsStr)):
			params = json.RawMessage(paramsStr)
		default:
			continue
		}

		calls = append([]ToolCall{{Name: name, Params: params, Raw: text[fullStart:fullEnd]}}, calls...)
		remaining = remaining[:fullStart] + remaining[fullEnd:]
	}
	return calls, remaining, len(calls) > 0
}

// Anthropic-style: <function_calls><invoke name="x"><parameter name="k">v</parameter></invoke></function_calls>
var anthropicFunctionCallsRegex = regexp.MustCompile(`(?s)<(?:antml:)?function_calls>\s*(.*?)\s*</(?:antml:)?function_calls>`)
var anthropicInvokeRegex = regexp.MustCompile(`(?s)<(?:antml:)?invoke\s+name="([^"]+)">\s*(.*?)\s*</(?:antml:)?invoke>`)
var anthropicParamRegex = regexp.MustCompile(`(?s)<(?:antml:)?parameter\s+name="([^"]+)">\s*(.*?)\s*</(?:antml:)?parameter>`)

func (p *Parser) parseAnthropicXML(text string) ([]ToolCall, string, bool) {
	blocks := anthropicFunctionCallsRegex.FindAllStringSubmatchIndex(text, -1)
	if len(blocks) == 0 {
		return nil, text, false
	}

	var calls []ToolCall
	remaining := text
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		blockStart, blockEnd := b[0], b[1]
		innerText := text[b[2]:b[3]]

		for _, invoke := range anthropicInvokeRegex.FindAllStringSubmatch(innerText, -1) {
			name, body := invoke[1], invoke[2]
			params := make(map[string]any)
			for _, pm := range anthropicParamRegex.FindAllStringSubmatch(body, -1) {
				var value any
				trimmed := strings.TrimSpace(pm[2])
				if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
					value = trimmed
				}
				params[pm[1]] = value
			}
			paramsJSON, _ := json.Marshal(params)
			calls = append(calls, ToolCall{Name: name, Params: paramsJSON, Raw: text[blockStart:blockEnd]})
		}
		remaining = remaining[:blockStart] + remaining[blockEnd:]
	}
	return calls, remaining, len(calls) > 0
}

// Tier 2: a single JSON object, optionally fenced in ``` ```, wrapping
// {"name": "...", "arguments": {...}}. Unfenced, the object must start a line
// and run to the end of the text; prose before it is kept as content. An
// empty object ({}) is ignored, not treated as a malformed call.
var fencedJSONRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
var bareObjectRegex = regexp.MustCompile(`(?s)(?:^|\n)\s*(\{.*\})\s*$`)

func (p *Parser) parseSingleJSON(text string) (ToolCall, string, bool, *ParseError) {
	var raw, body string
	if m := fencedJSONRegex.FindStringSubmatch(text); m != nil {
		raw, body = m[0], m[1]
	} else if m := bareObjectRegex.FindStringSubmatch(text); m != nil {
		raw, body = m[0], m[1]
	} else {
		return ToolCall{}, text, false, nil
	}

	var decoded struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return ToolCall{}, "", false, nil
	}
	if decoded.Name == "" {
		if strings.TrimSpace(body) == "{}" {
			return ToolCall{}, text, false, nil
		}
		return ToolCall{}, "", true, &ParseError{
			Message:     "detected a JSON object without a \"name\" field",
			Remediation: "To call a tool, respond with a JSON object of the form {\"name\": \"<tool name>\", \"arguments\": {...}}.",
		}
	}

	params := decoded.Arguments
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	cleaned := strings.Replace(text, raw, "", 1)
	return ToolCall{Name: decoded.Name, Params: params, Raw: raw}, cleaned, true, nil
}

// Tier 3: multiple JSON objects of the same {name, arguments} shape spread
// across several lines of the response.
var multilineJSONRegex = regexp.MustCompile(`(?s)\{\s*"name"\s*:\s*"[^"]+"\s*,\s*"arguments"\s*:\s*\{.*?\}\s*\}`)

func (p *Parser) parseMultilineJSON(text string) ([]ToolCall, string, bool) {
	matches := multilineJSONRegex.FindAllStringIndex(text, -1)
	if len(matches) < 2 {
		return nil, text, false
	}

	var calls []ToolCall
	remaining := text
	for i := len(matches) - 1; i >= 0; i-- {
		start, end := matches[i][0], matches[i][1]
		raw := text[start:end]

		var decoded struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			continue
		}
		calls = append([]ToolCall{{Name: decoded.Name, Params: decoded.Arguments, Raw: raw}}, calls...)
		remaining = remaining[:start] + remaining[end:]
	}
	return calls, remaining, len(calls) > 0
}

// Tier 4: a compact inline fragment, e.g. {"tool":"x","params":{...}}
// embedded in a sentence. Lowest priority: only tried once no XML or
// {name,arguments} form matched.
var inlineJSONRegex = regexp.MustCompile(`\{[^{}]*"tool"\s*:\s*"([^"]+)"[^{}]*"params"\s*:\s*(\{[^{}]*\})[^{}]*\}`)

func (p *Parser) parseInlineJSON(text string) ([]ToolCall, string, bool) {
	matches := inlineJSONRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, text, false
	}

	var calls []ToolCall
	remaining := text
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		fullStart, fullEnd := m[0], m[1]
		name := text[m[2]:m[3]]
		paramsStr := text[m[4]:m[5]]

		var params json.RawMessage
		if json.Valid([]byte(paramsStr)) {
			params = json.RawMessage(paramsStr)
		} else {
			params = json.RawMessage("{}")
		}
		calls = append([]ToolCall{{Name: name, Params: params, Raw: text[fullStart:fullEnd]}}, calls...)
		remaining = remaining[:fullStart] + remaining[fullEnd:]
	}
	return calls, remaining, len(calls) > 0
}

// FunctionCallResponse is an OpenAI-style structured function call from an
// API response, parsed directly (not via text recognition) in MERGE_CALLS.
type FunctionCallResponse struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ParseFunctionCalls converts provider-structured function calls into
// ToolCalls, assigning a deterministic id when the provider left one blank.
func (p *Parser) ParseFunctionCalls(toolCalls []FunctionCallResponse) ([]ToolCall, error) {
	if len(toolCalls) == 0 {
		return nil, nil
	}

	result := make([]ToolCall, 0, len(toolCalls))
	for _, tc := range toolCalls {
		id := tc.ID
		if id == "" {
			id = p.nextID()
		}

		var params json.RawMessage
		if tc.Function.Arguments != "" {
			if !json.Valid([]byte(tc.Function.Arguments)) {
				return nil, &ParseError{
					Message:     "invalid arguments JSON for " + tc.Function.Name,
					Remediation: "Arguments must be a JSON object.",
				}
			}
			params = json.RawMessage(tc.Function.Arguments)
		} else {
			params = json.RawMessage("{}")
		}

		result = append(result, ToolCall{ID: id, Name: tc.Function.Name, Params: params, Raw: tc.Function.Arguments})
	}
	return result, nil
}
