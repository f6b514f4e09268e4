// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the LLM Client Abstraction: a polymorphic streaming chat
// contract that providers (Ollama, OpenAI-compatible APIs, mocks) implement
// identically from the conversation engine's point of view.
//
// Rather than exposing provider callbacks (onToolExecuted, onFinish), Stream
// hands the caller a channel of typed StreamEvents terminated by a final
// aggregate Response — the engine's STREAM state ranges over the channel,
// appends content deltas, and reads the terminal event for the assistant
// message and any provider-structured tool calls.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/nanoforge/conversant/tools"
)

// Client defines the interface for LLM interactions. Implementations must
// be safe for concurrent use.
type Client interface {
	// Stream sends request and returns a channel of StreamEvents. The
	// channel is closed after an EventDone or EventError event; the caller
	// must drain it even after cancelling ctx; Stream closes it
	// from the provider goroutine once the underlying transport settles.
	Stream(ctx context.Context, request *Request) (<-chan StreamEvent, error)

	// Complete is a synchronous convenience wrapper that consumes Stream to
	// completion and returns the final Response; equivalent to ranging over
	// Stream and discarding intermediate deltas.
	Complete(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g., "anthropic", "openai").
	Name() string

	// Model returns the model being used.
	Model() string
}

// StreamEventType discriminates a StreamEvent's payload.
type StreamEventType string

const (
	// EventContentDelta carries an incremental chunk of assistant text.
	EventContentDelta StreamEventType = "content_delta"

	// EventToolCall carries one complete provider-structured tool call.
	EventToolCall StreamEventType = "tool_call"

	// EventAutoExecuted carries one tool turn the provider executed and
	// resolved on its own (e.g. a provider-native tool), delivered as it
	// completes. Per spec, each EventAutoExecuted for a given call precedes
	// that call's entry in the final Response.AutoExecutedMessages.
	EventAutoExecuted StreamEventType = "auto_executed"

	// EventDone carries the final aggregated Response; no further events
	// follow on the channel.
	EventDone StreamEventType = "done"

	// EventError carries a terminal transport error; no further events
	// follow on the channel. Maps to engine.KindLLMTransport.
	EventError StreamEventType = "error"
)

// StreamEvent is one item yielded by Client.Stream.
type StreamEvent struct {
	Type         StreamEventType
	ContentDelta string
	ToolCall     *ToolCall
	AutoExecuted *AutoExecutedMessage
	Final        *Response
	Err          error
}

// AutoExecutedMessage is one tool turn the provider resolved on its own
// (e.g. a provider-native tool such as web search or code execution)
// without the engine ever dispatching it through the tool registry. The
// engine appends these to the session log and counts them in token
// accounting exactly like a locally-executed tool result.
type AutoExecutedMessage struct {
	// ToolCallID links back to the assistant message's tool call.
	ToolCallID string `json:"tool_call_id"`

	// Name is the tool name the provider executed.
	Name string `json:"name"`

	// Content is the result content.
	Content string `json:"content"`

	// IsError indicates if this is an error result.
	IsError bool `json:"is_error,omitempty"`
}

// CollectStream drains a Stream channel into a single Response, the
// behavior Complete implementations typically delegate to.
func CollectStream(events <-chan StreamEvent) (*Response, error) {
	var content strings.Builder
	var calls []ToolCall
	var autoExecuted []AutoExecutedMessage

	for ev := range events {
		switch ev.Type {
		case EventContentDelta:
			content.WriteString(ev.ContentDelta)
		case EventToolCall:
			if ev.ToolCall != nil {
				calls = append(calls, *ev.ToolCall)
			}
		case EventAutoExecuted:
			if ev.AutoExecuted != nil {
				autoExecuted = append(autoExecuted, *ev.AutoExecuted)
			}
		case EventDone:
			final := ev.Final
			if final == nil {
				final = &Response{}
			}
			if final.Content == "" {
				final.Content = content.String()
			}
			if len(final.ToolCalls) == 0 {
				final.ToolCalls = calls
			}
			if len(final.AutoExecutedMessages) == 0 {
				final.AutoExecutedMessages = autoExecuted
			}
			return final, nil
		case EventError:
			return nil, ev.Err
		}
	}
	return &Response{Content: content.String(), ToolCalls: calls, AutoExecutedMessages: autoExecuted}, nil
}

// ToolChoice specifies how the model should select tools.
//
// The tool_choice parameter controls whether and which tools the model calls.
// This enables forcing tool usage at the API level rather than relying on prompts.
type ToolChoice struct {
	// Type controls tool selection behavior:
	// - "auto": Model decides whether to call tools (default)
	// - "any": Model MUST call at least one tool
	// - "tool": Model MUST call the specific named tool
	// - "none": Model cannot call tools (text response only)
	Type string `json:"type"`

	// Name is required when Type is "tool". Specifies which tool to force.
	Name string `json:"name,omitempty"`
}

// ToolChoiceAuto allows the model to decide whether to call tools.
func ToolChoiceAuto() *ToolChoice {
	return &ToolChoice{Type: "auto"}
}

// ToolChoiceAny forces the model to call at least one tool.
func ToolChoiceAny() *ToolChoice {
	return &ToolChoice{Type: "any"}
}

// ToolChoiceRequired forces the model to call a specific tool by name.
func ToolChoiceRequired(toolName string) *ToolChoice {
	return &ToolChoice{Type: "tool", Name: toolName}
}

// ToolChoiceNone prevents the model from calling any tools.
func ToolChoiceNone() *ToolChoice {
	return &ToolChoice{Type: "none"}
}

// Request represents a completion request to the LLM.
type Request struct {
	// SystemPrompt is the system message.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// Tools defines available tools for the LLM.
	Tools []tools.ToolDefinition `json:"tools,omitempty"`

	// ToolChoice controls tool selection behavior.
	// If nil, defaults to "auto" (model decides).
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`

	// MaxTokens limits the response length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `json:"temperature,omitempty"`

	// StopSequences defines sequences that stop generation.
	StopSequences []string `json:"stop_sequences,omitempty"`

	// ModelOverride allows using a different model for this request.
	// Used for multi-model scenarios (e.g., tool routing with a fast model).
	// Empty string means use the client's default model.
	ModelOverride string `json:"model_override,omitempty"`

	// KeepAlive controls how long the model stays loaded in VRAM.
	// Values: "-1" = infinite, "5m" = 5 minutes (default), "0" = unload immediately.
	// Used to prevent model thrashing when alternating between models.
	KeepAlive string `json:"keep_alive,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	// Role is "user", "assistant", "system", or "tool".
	Role string `json:"role"`

	// Content is the text content.
	Content string `json:"content"`

	// ToolCalls contains tool invocations (for assistant messages).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResults contains tool results (for tool messages).
	ToolResults []ToolCallResult `json:"tool_results,omitempty"`
}

// ToolCall represents a tool invocation by the LLM.
type ToolCall struct {
	// ID is a unique identifier for this call.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments are the tool arguments as JSON.
	Arguments string `json:"arguments"`
}

// ToolCallResult contains the result of a tool call.
type ToolCallResult struct {
	// ToolCallID links back to the tool call.
	ToolCallID string `json:"tool_call_id"`

	// Content is the result content.
	Content string `json:"content"`

	// IsError indicates if this is an error result.
	IsError bool `json:"is_error,omitempty"`
}

// Response represents an LLM response.
type Response struct {
	// Content is the text response.
	Content string `json:"content"`

	// ToolCalls contains any tool calls the LLM wants to make.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// AutoExecutedMessages contains tool turns the provider already executed
	// and resolved itself, in completion order. The engine appends these to
	// the session log alongside locally-executed tool results instead of
	// dispatching them through the tool registry again.
	AutoExecutedMessages []AutoExecutedMessage `json:"auto_executed_messages,omitempty"`

	// StopReason indicates why generation stopped.
	// Values: "end", "max_tokens", "tool_use", "stop_sequence"
	StopReason string `json:"stop_reason"`

	// TokensUsed is the total tokens consumed (input + output).
	TokensUsed int `json:"tokens_used"`

	// InputTokens is the input token count.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the output token count.
	OutputTokens int `json:"output_tokens"`

	// Duration is how long the request took.
	Duration time.Duration `json:"duration"`

	// Model is the model that generated this response.
	Model string `json:"model,omitempty"`
}

// HasToolCalls returns true if the response contains tool calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// NewRequest builds a Request from a system prompt, a conversation log
// expressed in llm.Message form, and the tool definitions to advertise.
// Converting from engine.Message to llm.Message is the caller's (engine's)
// job, since this package must not import engine.
func NewRequest(systemPrompt string, messages []Message, availableTools []tools.ToolDefinition, maxTokens int) *Request {
	return &Request{
		SystemPrompt: systemPrompt,
		Messages:     messages,
		Tools:        availableTools,
		MaxTokens:    maxTokens,
		Temperature:  0.7,
	}
}
