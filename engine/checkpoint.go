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

import "context"

// SaveCheckpoint persists session's current message log as a named
// checkpoint (SPEC_FULL.md §4.H). Provider and model come from the engine's
// attached LLM client so the caller never has to thread them through.
func (e *Engine) SaveCheckpoint(ctx context.Context, session *Session, name string) (string, error) {
	if e.checkpoints == nil {
		return "", ErrNoCheckpointStore
	}

	messages := session.Messages()
	meta := CheckpointMetadata{
		MessageCount: len(messages),
	}
	if e.client != nil {
		meta.Provider = e.client.Name()
		meta.Model = e.client.Model()
	}

	return e.checkpoints.Save(ctx, name, meta, messages, nil, nil)
}

// RestoreCheckpoint loads the checkpoint stored under id and replaces
// session's entire message log with it — the engine has no partial-restore
// concept, per §4.H ("the engine treats a restore as a replacement of its
// entire message log"). When opts.BackupCurrent is set, session's message
// log at the time of the call is saved as its own checkpoint first.
func (e *Engine) RestoreCheckpoint(ctx context.Context, session *Session, id string, opts RestoreOptions) (CheckpointMetadata, error) {
	if e.checkpoints == nil {
		return CheckpointMetadata{}, ErrNoCheckpointStore
	}

	if opts.BackupCurrent {
		opts.CurrentMessages = session.Messages()
	}

	messages, meta, _, _, err := e.checkpoints.Restore(ctx, id, opts)
	if err != nil {
		return CheckpointMetadata{}, err
	}

	session.ReplaceMessages(messages)
	return meta, nil
}

// ListCheckpoints returns metadata for every stored checkpoint, for
// presenting a selection menu.
func (e *Engine) ListCheckpoints(ctx context.Context) ([]CheckpointMetadata, error) {
	if e.checkpoints == nil {
		return nil, ErrNoCheckpointStore
	}
	return e.checkpoints.List(ctx)
}
