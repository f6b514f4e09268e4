// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nanoforge/conversant/tools"
)

// OllamaClient implements Client against a local Ollama server's native
// /api/chat endpoint, which streams newline-delimited JSON objects.
//
// Thread Safety: OllamaClient is safe for concurrent use; each Stream call
// opens its own HTTP request.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates a client against baseURL (e.g. http://localhost:11434)
// for model.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 0}, // streaming: bounded by ctx, not a fixed timeout
	}
}

func (c *OllamaClient) Name() string  { return "ollama" }
func (c *OllamaClient) Model() string { return c.model }

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

type ollamaChatChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func convertToOllamaMessages(req *Request) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, ollamaMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		content := m.Content
		if m.Role == "tool" && len(m.ToolResults) > 0 {
			for _, tr := range m.ToolResults {
				if tr.Content != "" {
					content = tr.Content
				}
			}
		}
		out = append(out, ollamaMessage{Role: m.Role, Content: content})
	}
	return out
}

func convertToOllamaTools(defs []tools.ToolDefinition) []ollamaTool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]ollamaTool, 0, len(defs))
	for _, d := range defs {
		t := ollamaTool{Type: "function"}
		t.Function.Name = d.Name
		t.Function.Description = d.Description
		t.Function.Parameters = d.Schema
		out = append(out, t)
	}
	return out
}

// Stream opens a streaming chat request and emits a StreamEvent per
// newline-delimited chunk Ollama returns.
func (c *OllamaClient) Stream(ctx context.Context, request *Request) (<-chan StreamEvent, error) {
	body := ollamaChatRequest{
		Model:     c.model,
		Messages:  convertToOllamaMessages(request),
		Tools:     convertToOllamaTools(request.Tools),
		Stream:    true,
		KeepAlive: request.KeepAlive,
	}
	if request.Temperature > 0 {
		body.Options = map[string]any{"temperature": request.Temperature}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: unexpected status %d", resp.StatusCode)
	}

	events := make(chan StreamEvent, 8)
	start := time.Now()

	go func() {
		defer resp.Body.Close()
		defer close(events)

		var content bytes.Buffer
		var calls []ToolCall
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				events <- StreamEvent{Type: EventError, Err: ctx.Err()}
				return
			default:
			}

			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var chunk ollamaChatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				slog.Warn("ollama: malformed stream chunk", "error", err)
				continue
			}

			if chunk.Message.Content != "" {
				content.WriteString(chunk.Message.Content)
				events <- StreamEvent{Type: EventContentDelta, ContentDelta: chunk.Message.Content}
			}
			for _, tc := range chunk.Message.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Function.Arguments)
				call := ToolCall{Name: tc.Function.Name, Arguments: string(argsJSON)}
				calls = append(calls, call)
				events <- StreamEvent{Type: EventToolCall, ToolCall: &call}
			}

			if chunk.Done {
				events <- StreamEvent{Type: EventDone, Final: &Response{
					Content:    content.String(),
					ToolCalls:  calls,
					StopReason: "end",
					Duration:   time.Since(start),
					Model:      c.model,
				}}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			events <- StreamEvent{Type: EventError, Err: fmt.Errorf("ollama: stream read failed: %w", err)}
			return
		}
		events <- StreamEvent{Type: EventDone, Final: &Response{
			Content:    content.String(),
			ToolCalls:  calls,
			StopReason: "end",
			Duration:   time.Since(start),
			Model:      c.model,
		}}
	}()

	return events, nil
}

// Complete drains Stream to a single Response.
func (c *OllamaClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	events, err := c.Stream(ctx, request)
	if err != nil {
		return nil, err
	}
	return CollectStream(events)
}
