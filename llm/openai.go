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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/nanoforge/conversant/tools"
)

// OpenAIClient implements Client against an OpenAI-compatible chat
// completions API.
//
// Thread Safety: OpenAIClient is safe for concurrent use; go-openai's
// client has no mutable per-request state.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client from OPENAI_API_KEY (falling back to the
// /run/secrets/openai_api_key Podman secret file) and OPENAI_MODEL
// (defaulting to gpt-4o-mini).
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL") // e.g., "gpt-4o"
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

func (o *OpenAIClient) Name() string  { return "openai" }
func (o *OpenAIClient) Model() string { return o.model }

func toOpenAIMessages(req *Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "tool":
			for _, tr := range m.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case "assistant":
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, msg)
		default:
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

func toOpenAITools(defs []tools.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		var params any
		if len(d.Schema) > 0 {
			_ = json.Unmarshal(d.Schema, &params)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func (o *OpenAIClient) buildRequest(request *Request) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(request),
		Tools:       toOpenAITools(request.Tools),
		Temperature: float32(request.Temperature),
		Stop:        request.StopSequences,
	}
	if request.MaxTokens > 0 {
		req.MaxCompletionTokens = request.MaxTokens
	}
	return req
}

// Stream opens a streaming chat completion and emits one StreamEvent per
// delta chunk, accumulating partial tool-call argument fragments by index
// the way the OpenAI streaming wire format requires.
func (o *OpenAIClient) Stream(ctx context.Context, request *Request) (<-chan StreamEvent, error) {
	req := o.buildRequest(request)
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: stream request failed: %w", err)
	}

	events := make(chan StreamEvent, 8)
	start := time.Now()

	go func() {
		defer stream.Close()
		defer close(events)

		var content strings.Builder
		toolCallsByIndex := map[int]*ToolCall{}
		var order []int
		var stopReason string

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				events <- StreamEvent{Type: EventError, Err: fmt.Errorf("openai: stream recv failed: %w", err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.FinishReason != "" {
				stopReason = string(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				events <- StreamEvent{Type: EventContentDelta, ContentDelta: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				existing, ok := toolCallsByIndex[idx]
				if !ok {
					existing = &ToolCall{ID: tc.ID, Name: tc.Function.Name}
					toolCallsByIndex[idx] = existing
					order = append(order, idx)
				}
				existing.Arguments += tc.Function.Arguments
			}
		}

		var calls []ToolCall
		for _, idx := range order {
			tc := toolCallsByIndex[idx]
			calls = append(calls, *tc)
			events <- StreamEvent{Type: EventToolCall, ToolCall: tc}
		}

		events <- StreamEvent{Type: EventDone, Final: &Response{
			Content:    content.String(),
			ToolCalls:  calls,
			StopReason: stopReason,
			Duration:   time.Since(start),
			Model:      o.model,
		}}
	}()

	return events, nil
}

// Complete drains Stream to a single Response.
func (o *OpenAIClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	events, err := o.Stream(ctx, request)
	if err != nil {
		return nil, err
	}
	return CollectStream(events)
}
