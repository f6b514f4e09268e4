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
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDuplicateTool is returned by Registry.Register when a tool name is
// already registered.
var ErrDuplicateTool = errors.New("tools: duplicate tool name")

// ErrEmptyToolName is returned by Registry.Register when a definition has no
// name.
var ErrEmptyToolName = errors.New("tools: empty tool name")

// Handler executes a tool call's side effect and returns its result content.
// A non-nil error is wrapped into an error ToolResult by the caller; Handler
// itself never needs to know about the conversation log.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Validator rejects malformed arguments before a call ever reaches Handler.
// A non-nil error short-circuits straight to a validation-error result
// without requiring user approval, per the approval partition's first rule.
type Validator func(args map[string]any) error

// Formatter renders a human/editor-readable one-line preview of a call for
// confirmation prompts. Optional; ToolDefinition.Preview falls back to the
// tool name and the raw arguments JSON when nil.
type Formatter func(args map[string]any) string

// approvalKind discriminates an ApprovalPolicy's zero value from an
// explicit constant, so a ToolDefinition that never sets Approval resolves
// to "requires approval" rather than silently to "never" — tool.
// defaultApprovalRequired defaults true, and an unset policy must fail
// safe the same way a panicking predicate does.
type approvalKind int

const (
	approvalUnset approvalKind = iota
	approvalConstant
	approvalPredicate
)

// ApprovalPolicy decides whether a call to this tool requires explicit user
// approval. A policy is either a constant or a predicate over the call's
// arguments (e.g. "shell tool always requires approval", "file write only
// requires approval outside the project root"). The zero value is unset,
// not "never require approval" — see Resolve.
type ApprovalPolicy struct {
	kind      approvalKind
	constant  bool
	predicate func(args map[string]any) bool
}

// NeverRequireApproval never requires approval.
func NeverRequireApproval() ApprovalPolicy { return ApprovalPolicy{kind: approvalConstant, constant: false} }

// AlwaysRequireApproval always requires approval, regardless of mode. Used
// for the shell-execution tool, whose approval requirement the mode
// partition can never relax.
func AlwaysRequireApproval() ApprovalPolicy { return ApprovalPolicy{kind: approvalConstant, constant: true} }

// ApprovalIf requires approval only when predicate(args) is true.
func ApprovalIf(predicate func(args map[string]any) bool) ApprovalPolicy {
	return ApprovalPolicy{kind: approvalPredicate, predicate: predicate}
}

// Resolve evaluates the policy against a call's arguments, using true (the
// spec's tool.defaultApprovalRequired default) for any ToolDefinition that
// never set Approval. A panicking predicate is likewise treated as
// "approval required" — the gate fails safe, never open.
func (p ApprovalPolicy) Resolve(args map[string]any) bool {
	return p.ResolveWithDefault(args, true)
}

// ResolveWithDefault is Resolve parameterized by the registry's configured
// defaultApprovalRequired, for the unset-policy case only; explicit
// constant and predicate policies are unaffected by defaultRequired.
func (p ApprovalPolicy) ResolveWithDefault(args map[string]any, defaultRequired bool) (required bool) {
	switch p.kind {
	case approvalConstant:
		return p.constant
	case approvalPredicate:
		defer func() {
			if recover() != nil {
				required = true
			}
		}()
		return p.predicate(args)
	default:
		return defaultRequired
	}
}

// ToolDefinition describes one callable tool: its name, its JSON schema
// (advertised to the LLM client), its handler, and the policies that govern
// validation, approval, and confirmation-prompt rendering.
type ToolDefinition struct {
	// Name uniquely identifies the tool within a Registry.
	Name string

	// Description is a short natural-language summary sent to the LLM.
	Description string

	// Schema is the tool's JSON Schema for its arguments object, advertised
	// to the LLM client as part of the tool list.
	Schema json.RawMessage

	// Handler executes the tool. Required.
	Handler Handler

	// Approval decides whether a call requires user confirmation.
	Approval ApprovalPolicy

	// Validator optionally rejects malformed arguments before Handler runs.
	Validator Validator

	// Formatter optionally renders a confirmation-prompt preview.
	Formatter Formatter

	// Shell marks the tool as the shell-execution tool, whose approval
	// requirement auto-accept mode can never relax (the one hard exception
	// to "everything is auto-executed" in ModeAutoAccept).
	Shell bool
}

// Validate checks args against the definition's validator, if any. Returns
// nil if there is no validator.
func (d ToolDefinition) Validate(args map[string]any) error {
	if d.Validator == nil {
		return nil
	}
	return d.Validator(args)
}

// Preview renders a confirmation-prompt string for args, falling back to the
// raw JSON encoding when no Formatter is set.
func (d ToolDefinition) Preview(args map[string]any) string {
	if d.Formatter != nil {
		return d.Formatter(args)
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%s(%v)", d.Name, args)
	}
	return fmt.Sprintf("%s(%s)", d.Name, string(b))
}
