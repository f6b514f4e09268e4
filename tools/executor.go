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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sentinel errors for the executor.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrValidationFailed indicates argument validation failed.
	ErrValidationFailed = errors.New("argument validation failed")

	// ErrExecutionFailed indicates the tool handler returned an error.
	ErrExecutionFailed = errors.New("tool execution failed")

	// ErrTimeout indicates the tool execution timed out.
	ErrTimeout = errors.New("tool execution timed out")
)

// ExecutorOptions configures the Executor.
type ExecutorOptions struct {
	// DefaultTimeout bounds every Handler call; ToolDefinition has no
	// per-tool timeout.
	DefaultTimeout time.Duration

	// MaxOutputChars truncates handler output longer than this, appending a
	// truncation notice so the model knows content was cut.
	MaxOutputChars int

	// EnableCaching memoizes successful, side-effect-free calls by
	// (name, canonical(arguments)) for CacheTTL.
	EnableCaching bool
	CacheTTL      time.Duration
}

// DefaultExecutorOptions returns sensible defaults.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		DefaultTimeout: 30 * time.Second,
		MaxOutputChars: 16_000,
		EnableCaching:  true,
		CacheTTL:       2 * time.Minute,
	}
}

// Executor runs the EXECUTE state's direct-execute tool calls: it resolves a
// call against the registry, validates its arguments, runs the handler under
// a deadline, and truncates oversized output. It has no knowledge of
// approval — that partition happens upstream, in the approval package.
//
// Thread Safety: Executor is safe for concurrent use.
type Executor struct {
	registry *Registry
	options  ExecutorOptions
	cache    *resultCache
}

// NewExecutor creates a tool executor bound to registry.
func NewExecutor(registry *Registry, opts *ExecutorOptions) *Executor {
	options := DefaultExecutorOptions()
	if opts != nil {
		options = *opts
	}

	e := &Executor{registry: registry, options: options}
	if options.EnableCaching {
		e.cache = newResultCache(options.CacheTTL)
	}
	return e
}

// ExecResult is the outcome of running one tool call's handler.
type ExecResult struct {
	Content  string
	IsError  bool
	Duration time.Duration
	Cached   bool
}

// Execute resolves call.Name against the registry, validates its arguments,
// and runs the handler. A validation failure, a timeout, or a handler
// error all produce an ExecResult with IsError set rather than a
// Go error — callers append it as a tool-result message regardless of
// outcome, per the data model's "errors are a normal tool message" rule.
// Execute returns a non-nil error only for ErrToolNotFound, since an unknown
// tool should already have been filtered out by FILTER before EXECUTE runs.
func (e *Executor) Execute(ctx context.Context, call ToolCall) (ExecResult, error) {
	def, ok := e.registry.Get(call.Name)
	if !ok {
		return ExecResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	args, err := call.ParamsMap()
	if err != nil {
		return ExecResult{Content: fmt.Sprintf("%v: malformed arguments: %v", ErrValidationFailed, err), IsError: true}, nil
	}

	if err := def.Validate(args); err != nil {
		return ExecResult{Content: fmt.Sprintf("%v: %v", ErrValidationFailed, err), IsError: true}, nil
	}

	logger := slog.With("tool", call.Name, "call_id", call.ID)

	if e.cache != nil {
		if cached, ok := e.cache.get(call.Name, args); ok {
			logger.Debug("tool result cache hit")
			cached.Cached = true
			return cached, nil
		}
	}

	timeout := e.options.DefaultTimeout
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	content, err := def.Handler(runCtx, args)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("tool execution timed out", "timeout", timeout)
			return ExecResult{
				Content:  fmt.Sprintf("%v: %s did not complete within %s", ErrTimeout, call.Name, timeout),
				IsError:  true,
				Duration: duration,
			}, nil
		}
		logger.Warn("tool execution failed", "error", err)
		return ExecResult{
			Content:  fmt.Sprintf("%v: %v", ErrExecutionFailed, err),
			IsError:  true,
			Duration: duration,
		}, nil
	}

	result := ExecResult{Content: e.truncate(content), Duration: duration}

	if e.cache != nil {
		e.cache.set(call.Name, args, result)
	}

	return result, nil
}

func (e *Executor) truncate(content string) string {
	if e.options.MaxOutputChars <= 0 || len(content) <= e.options.MaxOutputChars {
		return content
	}
	return content[:e.options.MaxOutputChars] + fmt.Sprintf("\n... [truncated, %d bytes omitted]", len(content)-e.options.MaxOutputChars)
}

// resultCache memoizes ExecResults by (tool name, canonical arguments).
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result  ExecResult
	expires time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *resultCache) key(name string, args map[string]any) string {
	return name + "|" + canonicalArgs(args)
}

func (c *resultCache) get(name string, args map[string]any) (ExecResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[c.key(name, args)]
	if !ok || time.Now().After(entry.expires) {
		return ExecResult{}, false
	}
	return entry.result, true
}

func (c *resultCache) set(name string, args map[string]any, result ExecResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(name, args)] = cacheEntry{result: result, expires: time.Now().Add(c.ttl)}
}
