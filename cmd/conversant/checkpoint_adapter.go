// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"

	"github.com/nanoforge/conversant/checkpoint"
	"github.com/nanoforge/conversant/engine"
)

// checkpointAdapter satisfies engine.CheckpointStore by delegating to a
// concrete *checkpoint.Store, converting between engine.Message/
// engine.CheckpointMetadata and their checkpoint-package mirrors.
type checkpointAdapter struct {
	s *checkpoint.Store
}

func newCheckpointAdapter(s *checkpoint.Store) engine.CheckpointStore {
	return &checkpointAdapter{s: s}
}

func toCheckpointMessages(msgs []engine.Message) []checkpoint.Message {
	out := make([]checkpoint.Message, len(msgs))
	for i, m := range msgs {
		calls := make([]checkpoint.ToolCall, len(m.ToolCalls))
		for j, tc := range m.ToolCalls {
			calls[j] = checkpoint.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: string(tc.Arguments)}
		}
		out[i] = checkpoint.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCalls:  calls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
			Timestamp:  m.Timestamp,
		}
	}
	return out
}

func fromCheckpointMessages(msgs []checkpoint.Message) []engine.Message {
	out := make([]engine.Message, len(msgs))
	for i, m := range msgs {
		calls := make([]engine.ToolCall, len(m.ToolCalls))
		for j, tc := range m.ToolCalls {
			calls[j] = engine.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: json.RawMessage(tc.Arguments), Raw: tc.Arguments}
		}
		out[i] = engine.Message{
			Role:       engine.Role(m.Role),
			Content:    m.Content,
			ToolCalls:  calls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
			Timestamp:  m.Timestamp,
		}
	}
	return out
}

func toCheckpointToolExecutions(execs []engine.ToolExecution) []checkpoint.ToolExecution {
	out := make([]checkpoint.ToolExecution, len(execs))
	for i, e := range execs {
		out[i] = checkpoint.ToolExecution{
			Name:      e.Name,
			Arguments: e.Arguments,
			Result:    e.Result,
			IsError:   e.IsError,
			Timestamp: e.Timestamp,
		}
	}
	return out
}

func fromCheckpointToolExecutions(execs []checkpoint.ToolExecution) []engine.ToolExecution {
	out := make([]engine.ToolExecution, len(execs))
	for i, e := range execs {
		out[i] = engine.ToolExecution{
			Name:      e.Name,
			Arguments: e.Arguments,
			Result:    e.Result,
			IsError:   e.IsError,
			Timestamp: e.Timestamp,
		}
	}
	return out
}

func toCheckpointMeta(m engine.CheckpointMetadata) checkpoint.Metadata {
	return checkpoint.Metadata{
		ID:           m.ID,
		Name:         m.Name,
		CreatedAt:    m.CreatedAt,
		Provider:     m.Provider,
		Model:        m.Model,
		MessageCount: m.MessageCount,
	}
}

func fromCheckpointMeta(m checkpoint.Metadata) engine.CheckpointMetadata {
	return engine.CheckpointMetadata{
		ID:           m.ID,
		Name:         m.Name,
		CreatedAt:    m.CreatedAt,
		Provider:     m.Provider,
		Model:        m.Model,
		MessageCount: m.MessageCount,
	}
}

func (a *checkpointAdapter) Save(ctx context.Context, name string, meta engine.CheckpointMetadata, messages []engine.Message, toolExecutions []engine.ToolExecution, fileSnapshots map[string]string) (string, error) {
	return a.s.Save(ctx, name, toCheckpointMeta(meta), toCheckpointMessages(messages), toCheckpointToolExecutions(toolExecutions), fileSnapshots)
}

func (a *checkpointAdapter) Restore(ctx context.Context, id string, opts engine.RestoreOptions) ([]engine.Message, engine.CheckpointMetadata, []engine.ToolExecution, map[string]string, error) {
	restoreOpts := checkpoint.RestoreOptions{ValidateIntegrity: opts.ValidateIntegrity, BackupCurrent: opts.BackupCurrent}
	if opts.BackupCurrent {
		restoreOpts.CurrentState = &checkpoint.Artifact{
			Metadata: toCheckpointMeta(opts.CurrentMeta),
			Messages: toCheckpointMessages(opts.CurrentMessages),
		}
	}

	artifact, err := a.s.Restore(ctx, id, restoreOpts)
	if err != nil {
		return nil, engine.CheckpointMetadata{}, nil, nil, err
	}

	return fromCheckpointMessages(artifact.Messages),
		fromCheckpointMeta(artifact.Metadata),
		fromCheckpointToolExecutions(artifact.ToolExecutions),
		artifact.FileSnapshots,
		nil
}

func (a *checkpointAdapter) List(ctx context.Context) ([]engine.CheckpointMetadata, error) {
	metas, err := a.s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]engine.CheckpointMetadata, len(metas))
	for i, m := range metas {
		out[i] = fromCheckpointMeta(m)
	}
	return out, nil
}

func (a *checkpointAdapter) Delete(ctx context.Context, id string) error {
	return a.s.Delete(ctx, id)
}
