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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, args map[string]any) (string, error) {
	return "ok", nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ToolDefinition{Name: "read_file", Handler: echoHandler}))

	def, ok := r.Get("read_file")
	require.True(t, ok)
	assert.Equal(t, "read_file", def.Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ToolDefinition{Name: "write_file", Handler: echoHandler}))

	err := r.Register(ToolDefinition{Name: "write_file", Handler: echoHandler})
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(ToolDefinition{Handler: echoHandler})
	assert.ErrorIs(t, err, ErrEmptyToolName)
}

func TestRegistryListIsStableOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ToolDefinition{Name: "b", Handler: echoHandler}))
	require.NoError(t, r.Register(ToolDefinition{Name: "a", Handler: echoHandler}))

	names := r.Names()
	assert.Equal(t, []string{"b", "a"}, names)

	// Calling List again must reproduce the same order.
	first := r.List()
	second := r.List()
	assert.Equal(t, first, second)
}

func TestResolveApprovalFailsSafeOnPanic(t *testing.T) {
	r := NewRegistry()
	def := ToolDefinition{
		Name:    "danger",
		Handler: echoHandler,
		Approval: ApprovalIf(func(args map[string]any) bool {
			panic("boom")
		}),
	}
	require.NoError(t, r.Register(def))

	assert.True(t, r.ResolveApproval(def, map[string]any{}))
}

func TestResolveApprovalConstantPolicies(t *testing.T) {
	always := ToolDefinition{Name: "shell", Approval: AlwaysRequireApproval()}
	never := ToolDefinition{Name: "list_dir", Approval: NeverRequireApproval()}

	assert.True(t, always.Approval.Resolve(nil))
	assert.False(t, never.Approval.Resolve(nil))
}
