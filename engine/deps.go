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
	"time"
)

// Tokenizer estimates token counts for context-window pressure accounting
// (SPEC_FULL.md §4.G). The engine depends only on this interface so the
// concrete BPE-backed implementation (package tokenizer) stays a leaf that
// never imports engine.
type Tokenizer interface {
	// Count estimates the token cost of one message.
	Count(m Message) int

	// ModelLimit returns the best-effort context window size for model, and
	// whether a limit is known.
	ModelLimit(model string) (int, bool)

	// Release frees any native resources the tokenizer holds. The engine
	// calls it exactly once, in a guaranteed-release scope (Engine.Close),
	// regardless of how a session's turns ended. A tokenizer backed purely
	// by Go (no cgo, no file handles) can implement this as a no-op.
	Release() error
}

// FileChange is a proposed file modification the engine advertises to the
// editor bridge before local execution, so an attached editor can render a
// diff. Mirrors PendingEditorChange's (path, originalContent, newContent,
// toolName) fields; the bridge owns id assignment and TTL/capacity eviction.
type FileChange struct {
	Path            string
	OriginalContent string
	NewContent      string
	ToolName        string
	ToolCallID      string

	// TurnID identifies the turn (the owning Session's ID) this change was
	// advertised during, so ClosePending can find and close_diff every
	// change a cancelled turn left unresolved.
	TurnID string
}

// Bridge is the subset of the Editor Bridge (SPEC_FULL.md §4.E) the turn
// loop depends on. A nil Bridge is valid: the engine operates without one,
// per spec ("failure is non-fatal, the engine operates without the bridge").
type Bridge interface {
	// Advertise sends a file_change to any connected editor and waits for a
	// decision or ctx cancellation. ok is false if no bridge client resolved
	// the change (disconnected, not attached, or it fell through to TTL
	// eviction) — in which case the engine's own approval path governs.
	Advertise(ctx context.Context, change FileChange) (approved bool, ok bool)

	// ClosePending tells the bridge to close_diff every pending change this
	// turn originated, used on cancellation.
	ClosePending(ctx context.Context, turnID string)
}

// NoopBridge never resolves a change, so Advertise always falls through to
// the engine's own approval path. Used when editor.enabled is false.
type NoopBridge struct{}

func (NoopBridge) Advertise(context.Context, FileChange) (bool, bool) { return false, false }
func (NoopBridge) ClosePending(context.Context, string)               {}

// CheckpointMetadata describes a checkpoint without requiring its full
// message log to be decoded, used for selection/listing (SPEC_FULL.md §4.H).
type CheckpointMetadata struct {
	ID           string
	Name         string
	CreatedAt    time.Time
	Provider     string
	Model        string
	MessageCount int
}

// ToolExecution is an audit record of one tool invocation, kept alongside
// (not instead of) the tool-result Message already present in the restored
// log.
type ToolExecution struct {
	Name      string
	Arguments string
	Result    string
	IsError   bool
	Timestamp time.Time
}

// RestoreOptions controls CheckpointStore.Restore's validation and backup
// behavior.
type RestoreOptions struct {
	// ValidateIntegrity asks the store to verify the artifact was not
	// corrupted in storage.
	ValidateIntegrity bool

	// BackupCurrent saves CurrentMessages as its own checkpoint before the
	// restore is returned, so a bad restore can itself be undone. Ignored if
	// CurrentMessages is nil.
	BackupCurrent   bool
	CurrentMessages []Message
	CurrentMeta     CheckpointMetadata
}

// CheckpointStore produces and consumes the opaque conversation artifact
// (SPEC_FULL.md §4.H). The engine treats Restore's returned messages as a
// full replacement of its message log via Session.ReplaceMessages; it has no
// other opinion about how or where the artifact is stored.
type CheckpointStore interface {
	// Save persists messages (plus optional tool-execution records and file
	// snapshots keyed by relative path) under a new checkpoint id, returning
	// that id.
	Save(ctx context.Context, name string, meta CheckpointMetadata, messages []Message, toolExecutions []ToolExecution, fileSnapshots map[string]string) (id string, err error)

	// Restore loads the checkpoint stored under id.
	Restore(ctx context.Context, id string, opts RestoreOptions) (messages []Message, meta CheckpointMetadata, toolExecutions []ToolExecution, fileSnapshots map[string]string, err error)

	// List returns metadata for every stored checkpoint.
	List(ctx context.Context) ([]CheckpointMetadata, error)

	// Delete removes the checkpoint stored under id.
	Delete(ctx context.Context, id string) error
}
