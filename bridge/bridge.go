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

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// defaultMaxPortAttempts is how many sequential ports past the requested
// one the bridge tries before giving up. Failure to bind is non-fatal: the
// engine simply operates without a bridge.
const defaultMaxPortAttempts = 10

// defaultPendingTTL bounds how long an advertised file_change waits for a
// decision before the bridge evicts it.
const defaultPendingTTL = 2 * time.Minute

// defaultPendingCapacity bounds how many file_change advertisements may be
// outstanding at once across all connected editors.
const defaultPendingCapacity = 64

var upgrader = websocket.Upgrader{
	// Loopback-only binding (see Listen) already rejects remote peers; the
	// origin check stays permissive since a local editor extension's
	// request origin isn't meaningfully verifiable.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1 << 20,
	WriteBufferSize: 1 << 20,
}

// StatusInfo answers get_status requests from a connected editor.
type StatusInfo struct {
	Connected        bool
	Model            string
	Provider         string
	WorkingDirectory string
}

// Config configures a Bridge before Listen is called.
type Config struct {
	// Host is the bind address; must resolve to loopback. Empty defaults to
	// 127.0.0.1.
	Host string

	// Port is the first port tried. 0 lets the OS pick, skipping fallback.
	Port int

	// MaxPortAttempts bounds the sequential fallback search starting at Port.
	MaxPortAttempts int

	// PendingTTL bounds how long an unresolved file_change lives.
	PendingTTL time.Duration

	// PendingCapacity bounds outstanding file_change advertisements.
	PendingCapacity int

	// ProtocolVersion is sent in connection_ack.
	ProtocolVersion int

	// CliVersion is sent in connection_ack.
	CliVersion string
}

// DefaultConfig returns a Config with the bridge's documented defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            8787,
		MaxPortAttempts: defaultMaxPortAttempts,
		PendingTTL:      defaultPendingTTL,
		PendingCapacity: defaultPendingCapacity,
		ProtocolVersion: ProtocolVersion,
		CliVersion:      "dev",
	}
}

// Bridge is a loopback-only WebSocket server exposing the editor protocol:
// it advertises pending file changes and collects approve/reject
// decisions, accepts injected prompts and workspace context, and answers
// status/diagnostics requests. It owns its listener, its connection set,
// and its pending-change map.
//
// A Bridge does not satisfy any engine interface itself — it has no
// dependency on package engine, so it stays a leaf package. The wiring
// site (cmd/conversant) adapts *Bridge to engine.Bridge, converting
// between engine.FileChange and bridge.FileChange at the boundary.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Bridge struct {
	cfg    Config
	logger *slog.Logger
	clock  ClockChecker

	pending *pendingStore

	connLimiter *rate.Limiter // throttles new-connection upgrades (reconnect storms)
	bcLimiter   *rate.Limiter // throttles non-critical broadcasts (tool_call, assistant_message)

	onPrompt      func(prompt string, ctx *PromptContext)
	onEditorCtx   func(ctx PromptContext, diagnostics []Diagnostic)
	onDiagnostics func(path string, diagnostics []Diagnostic)
	statusFn      func() StatusInfo

	mu         sync.Mutex
	conns      map[*websocket.Conn]struct{}
	listener   net.Listener
	server     *http.Server
	actualPort int
	closeOnce  sync.Once
	evictStop  chan struct{}
}

// Option configures a Bridge at construction time.
type Option func(*Bridge)

// WithOnPrompt registers the callback invoked when an editor sends
// send_prompt; the engine side injects it as a user message.
func WithOnPrompt(f func(prompt string, ctx *PromptContext)) Option {
	return func(b *Bridge) { b.onPrompt = f }
}

// WithEditorContext registers the callback invoked when an editor sends a
// context message (workspace folder, open files, active file, diagnostics).
func WithEditorContext(f func(ctx PromptContext, diagnostics []Diagnostic)) Option {
	return func(b *Bridge) { b.onEditorCtx = f }
}

// WithOnDiagnostics registers the callback invoked when an editor responds
// to a diagnostics_request this bridge emitted.
func WithOnDiagnostics(f func(path string, diagnostics []Diagnostic)) Option {
	return func(b *Bridge) { b.onDiagnostics = f }
}

// WithStatusFn registers the function answering get_status requests.
func WithStatusFn(f func() StatusInfo) Option {
	return func(b *Bridge) { b.statusFn = f }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the TTL eviction clock checker, used in tests to
// simulate clock jumps without sleeping.
func WithClock(c ClockChecker) Option {
	return func(b *Bridge) {
		if c != nil {
			b.clock = c
		}
	}
}

// NewBridge constructs a Bridge. Listen must be called before it accepts
// connections.
func NewBridge(cfg Config, opts ...Option) *Bridge {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.MaxPortAttempts <= 0 {
		cfg.MaxPortAttempts = defaultMaxPortAttempts
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultPendingTTL
	}
	if cfg.PendingCapacity <= 0 {
		cfg.PendingCapacity = defaultPendingCapacity
	}

	b := &Bridge{
		cfg:         cfg,
		logger:      slog.Default(),
		clock:       NewClockChecker(),
		conns:       make(map[*websocket.Conn]struct{}),
		connLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		bcLimiter:   rate.NewLimiter(rate.Every(10*time.Millisecond), 20),
		statusFn:    func() StatusInfo { return StatusInfo{} },
		evictStop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.pending = newPendingStore(cfg.PendingCapacity, cfg.PendingTTL, b.clock)
	b.logger = b.logger.With(slog.String("subsystem", "bridge"))
	return b
}

// Listen binds the first available port starting at cfg.Port, trying up to
// MaxPortAttempts sequential ports, and starts serving. It returns an error
// only once every attempt has failed; callers treat that as non-fatal and
// run without a bridge.
func (b *Bridge) Listen(ctx context.Context) error {
	var lastErr error
	for i := 0; i < b.cfg.MaxPortAttempts; i++ {
		port := b.cfg.Port + i
		addr := fmt.Sprintf("%s:%d", b.cfg.Host, port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		b.listener = ln
		b.actualPort = port
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			b.actualPort = tcp.Port
		}
		break
	}
	if b.listener == nil {
		return fmt.Errorf("bridge: no port available in range [%d, %d): %w",
			b.cfg.Port, b.cfg.Port+b.cfg.MaxPortAttempts, lastErr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleConn)
	b.server = &http.Server{Handler: mux}

	go func() {
		if err := b.server.Serve(b.listener); err != nil && err != http.ErrServerClosed {
			b.logger.Error("bridge server stopped", slog.String("error", err.Error()))
		}
	}()
	go b.evictLoop(ctx)

	b.logger.Info("editor bridge listening", slog.Int("port", b.actualPort))
	return nil
}

// Port returns the port actually bound, valid after Listen succeeds.
func (b *Bridge) Port() int { return b.actualPort }

// Close shuts down the listener and every open connection.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.evictStop)
		if b.server != nil {
			err = b.server.Close()
		}
		b.mu.Lock()
		for c := range b.conns {
			_ = c.Close()
		}
		b.conns = make(map[*websocket.Conn]struct{})
		b.mu.Unlock()
	})
	return err
}

func (b *Bridge) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.evictStop:
			return
		case <-ticker.C:
			for _, p := range b.pending.evictExpired() {
				b.broadcastCritical(outbound{Type: TypeCloseDiff, ID: p.ID})
			}
		}
	}
}

func (b *Bridge) handleConn(w http.ResponseWriter, r *http.Request) {
	if !b.connLimiter.Allow() {
		http.Error(w, "too many reconnect attempts", http.StatusTooManyRequests)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	b.mu.Lock()
	b.conns[ws] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.conns, ws)
		b.mu.Unlock()
	}()

	b.logger.Info("editor connected")

	if err := ws.WriteJSON(outbound{
		Type:            TypeConnectionAck,
		ProtocolVersion: b.cfg.ProtocolVersion,
		CliVersion:      b.cfg.CliVersion,
	}); err != nil {
		return
	}

	for {
		var msg inbound
		if err := ws.ReadJSON(&msg); err != nil {
			b.logger.Info("editor disconnected", slog.String("error", err.Error()))
			return
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) dispatch(msg inbound) {
	switch msg.Type {
	case TypeSendPrompt:
		if b.onPrompt != nil {
			b.onPrompt(msg.Prompt, msg.Context)
		}

	case TypeApplyChange:
		b.pending.resolve(msg.ID, true)

	case TypeRejectChange:
		b.pending.resolve(msg.ID, false)

	case TypeGetStatus:
		info := b.statusFn()
		b.broadcastCritical(outbound{
			Type:             TypeStatus,
			Connected:        info.Connected,
			Model:            info.Model,
			Provider:         info.Provider,
			WorkingDirectory: info.WorkingDirectory,
		})

	case TypeContext:
		if b.onEditorCtx != nil {
			b.onEditorCtx(PromptContext{
				WorkspaceFolder: msg.WorkspaceFolder,
				OpenFiles:       msg.OpenFiles,
				ActiveFile:      msg.ActiveFile,
			}, msg.Diagnostics)
		}

	case TypeDiagnosticsResp:
		if b.onDiagnostics != nil {
			b.onDiagnostics(msg.ActiveFile, msg.Diagnostics)
		}

	default:
		b.logger.Warn("unrecognized message from editor", slog.String("type", msg.Type))
	}
}

// broadcastCritical sends to every connected editor unconditionally.
// file_change, close_diff and status replies each resolve something a
// caller is waiting on, so throttling them would be a correctness bug, not
// just a missed UI update.
func (b *Bridge) broadcastCritical(msg outbound) {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(msg); err != nil {
			b.logger.Warn("broadcast failed, dropping connection", slog.String("error", err.Error()))
			b.mu.Lock()
			delete(b.conns, c)
			b.mu.Unlock()
			_ = c.Close()
		}
	}
}

// broadcastBestEffort sends advisory messages (tool_call progress,
// assistant_message deltas) subject to the broadcast limiter: a dropped
// status update is never the only record of anything, unlike a file_change.
func (b *Bridge) broadcastBestEffort(msg outbound) {
	if !b.bcLimiter.Allow() {
		return
	}
	b.broadcastCritical(msg)
}

// Advertise sends a file_change to every connected editor and blocks until
// apply_change/reject_change resolves it, a cancelled turn's ClosePending
// closes it, TTL/capacity eviction drops it, or ctx is cancelled. ok is
// true only when an explicit apply/reject decision arrived.
func (b *Bridge) Advertise(ctx context.Context, change FileChange) (approved bool, ok bool) {
	if b.numConns() == 0 {
		return false, false
	}

	id := uuid.NewString()
	p := &PendingEditorChange{
		ID:      id,
		TurnID:  change.TurnID,
		Change:  change,
		Created: time.Now(),
		Expires: time.Now().Add(b.cfg.PendingTTL),
		decide:  make(chan bool, 1),
	}

	if evicted := b.pending.add(p); evicted != nil {
		b.broadcastCritical(outbound{Type: TypeCloseDiff, ID: evicted.ID})
	}

	b.broadcastCritical(outbound{
		Type:            TypeFileChange,
		ID:              id,
		Path:            change.Path,
		OriginalContent: change.OriginalContent,
		NewContent:      change.NewContent,
		ToolName:        change.ToolName,
	})

	select {
	case decision, sent := <-p.decide:
		if !sent {
			return false, false
		}
		return decision, true
	case <-ctx.Done():
		b.pending.resolve(id, false)
		return false, false
	}
}

// ClosePending tells the bridge to close_diff every pending change
// originated by turnID. Used when a turn is cancelled.
func (b *Bridge) ClosePending(ctx context.Context, turnID string) {
	for _, p := range b.pending.closeByTurn(turnID) {
		b.broadcastCritical(outbound{Type: TypeCloseDiff, ID: p.ID})
	}
}

// NotifyToolCall broadcasts a tool_call progress update.
func (b *Bridge) NotifyToolCall(id, name, status string) {
	b.broadcastBestEffort(outbound{Type: TypeToolCall, ID: id, Name: name, Status: status})
}

// NotifyAssistant broadcasts a streamed assistant content delta.
func (b *Bridge) NotifyAssistant(content string, isGenerating bool) {
	b.broadcastBestEffort(outbound{Type: TypeAssistantMessage, Content: content, IsGenerating: isGenerating})
}

// RequestDiagnostics asks connected editors for diagnostics on path (or the
// whole workspace if path is empty). Responses arrive asynchronously via
// the onDiagnostics callback.
func (b *Bridge) RequestDiagnostics(path string) {
	b.broadcastCritical(outbound{Type: TypeDiagnosticsReq, Path: path})
}

func (b *Bridge) numConns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}
