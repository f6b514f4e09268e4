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

import (
	"context"
	"log/slog"
	"sync"
)

// CancelReason records why a turn was cancelled, surfaced in transcript
// messages and metrics labels.
type CancelReason string

const (
	// ReasonUserInterrupt is an explicit user cancellation (Ctrl+C or
	// equivalent); double-escape in terminal input clears the input instead
	// and never produces this reason.
	ReasonUserInterrupt CancelReason = "user_interrupt"

	// ReasonNewTurn is emitted when a cancellation token is replaced because
	// a new user turn started while the previous one was still notionally
	// live (defensive; the engine should have already settled the prior turn).
	ReasonNewTurn CancelReason = "new_turn"

	// ReasonShutdown is a process-level shutdown.
	ReasonShutdown CancelReason = "shutdown"
)

// Lane is a cooperating actor that must observe cancellation. The engine
// fans a single per-turn cancel signal out to every registered lane: the
// LLM stream, the approval gate's pending prompt, and the editor bridge's
// advertised-but-unresolved file changes for this turn.
type Lane interface {
	// CancelTurn is invoked once per cancelled turn. Implementations must
	// return promptly; CancelTurn runs synchronously from the turn loop's
	// cancellation path and must not block on further I/O.
	CancelTurn(reason CancelReason)
}

// Token is the single cancellation signal for one user turn. A Token's
// lifespan equals one user-initiated turn; the Controller replaces it on
// each new user message.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	reason CancelReason
}

// Done returns a channel closed when the token fires.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Err returns the context error once the token has fired, nil otherwise.
func (t *Token) Err() error { return t.ctx.Err() }

// Reason returns the reason the token fired, or "" if it has not fired.
func (t *Token) Reason() CancelReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Context returns the token's context, suitable for passing to blocking
// calls (LLM streaming reads, tool handler execution) so they can select on
// ctx.Done() alongside their own I/O.
func (t *Token) Context() context.Context { return t.ctx }

// fire cancels the token's context and records the reason. Idempotent.
func (t *Token) fire(reason CancelReason) {
	t.mu.Lock()
	if t.reason == "" {
		t.reason = reason
	}
	t.mu.Unlock()
	t.cancel()
}

// Controller owns the current turn's Token and the set of lanes that must
// be notified when it fires. One Controller per Session.
//
// Thread Safety: safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	current *Token
	lanes   []Lane
	metrics *TurnMetrics
	logger  *slog.Logger
}

// NewController creates a cancellation controller with no active token.
// Call NewTurn before the first turn starts.
func NewController(metrics *TurnMetrics, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{metrics: metrics, logger: logger.With(slog.String("subsystem", "cancel"))}
}

// RegisterLane adds a lane to be notified on every future cancellation.
// Lanes persist across turns (the LLM client, approval gate, and bridge are
// constructed once); only the Token itself is per-turn.
func (c *Controller) RegisterLane(l Lane) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lanes = append(c.lanes, l)
}

// NewTurn replaces the current token with a fresh one for a new user turn,
// discarding (without firing) any previous token — the prior turn must
// already have settled into IDLE or CANCELLED before this is called.
func (c *Controller) NewTurn(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	tok := &Token{ctx: ctx, cancel: cancel}

	c.mu.Lock()
	c.current = tok
	c.mu.Unlock()

	return tok
}

// Cancel fires the current turn's token, if any, and fans the signal out to
// every registered lane.
func (c *Controller) Cancel(reason CancelReason) {
	c.mu.Lock()
	tok := c.current
	lanes := append([]Lane(nil), c.lanes...)
	c.mu.Unlock()

	if tok == nil {
		return
	}
	tok.fire(reason)

	if c.metrics != nil {
		c.metrics.CancelTotal.WithLabelValues(string(reason)).Inc()
	}

	for _, lane := range lanes {
		lane.CancelTurn(reason)
	}

	c.logger.Info("turn cancelled", slog.String("reason", string(reason)), slog.Int("lanes", len(lanes)))
}

// Current returns the most recent turn's token, or nil before the first
// NewTurn. The token is not cleared when its turn settles.
func (c *Controller) Current() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
