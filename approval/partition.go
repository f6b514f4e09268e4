// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package approval

import (
	"context"
	"errors"
	"sync"

	"github.com/nanoforge/conversant/tools"
)

// ErrApprovalRequiredNonInteractive is returned by Decide when the
// conversation is running non-interactively and a call still requires
// approval after the mode partition — non-interactive mode has no one to
// ask, so the turn aborts rather than blocking forever.
var ErrApprovalRequiredNonInteractive = errors.New("approval: call requires approval but session is non-interactive")

// Mode mirrors the conversation engine's turn mode. Approval only needs the
// three values below; it is defined locally so this package stays a leaf
// (no dependency on the engine package).
type Mode string

const (
	ModeNormal     Mode = "normal"
	ModeAutoAccept Mode = "auto-accept"
	ModePlan       Mode = "plan"
)

// DecisionState is the outcome of a confirm-required call's resolution.
type DecisionState string

const (
	DecisionPending             DecisionState = "pending"
	DecisionApproved            DecisionState = "approved"
	DecisionApprovedForSession  DecisionState = "approved-for-session"
	DecisionRejected            DecisionState = "rejected"
)

// Registry is the subset of tools.Registry the partition logic needs.
type Registry interface {
	Get(name string) (tools.ToolDefinition, bool)
	ResolveApproval(def tools.ToolDefinition, args map[string]any) bool
}

// Partition is SPLIT's output: calls cleared for direct execution, and
// calls that must go through CONFIRM.
type Partition struct {
	Direct         []tools.ToolCall
	RequireConfirm []tools.ToolCall
}

// PartitionCalls implements SPLIT's rules, applied to each call in order:
//
//  1. Arguments that fail the tool's validator go direct — EXECUTE will
//     immediately produce a validation-error result; there is nothing for a
//     human to approve.
//  2. The shell-execution tool always requires confirmation, regardless of
//     mode.
//  3. In ModePlan, every remaining call requires confirmation.
//  4. In ModeAutoAccept, every remaining call goes direct.
//  5. Otherwise (ModeNormal), the tool's own ResolveApproval policy decides.
//
// Calls for unknown tool names are silently skipped: FILTER removes those
// before SPLIT runs.
func PartitionCalls(reg Registry, mode Mode, calls []tools.ToolCall) Partition {
	var p Partition

	for _, call := range calls {
		def, ok := reg.Get(call.Name)
		if !ok {
			continue
		}

		args, err := call.ParamsMap()
		if err != nil {
			p.Direct = append(p.Direct, call)
			continue
		}
		if err := def.Validate(args); err != nil {
			p.Direct = append(p.Direct, call)
			continue
		}

		switch {
		case def.Shell:
			p.RequireConfirm = append(p.RequireConfirm, call)
		case mode == ModePlan:
			p.RequireConfirm = append(p.RequireConfirm, call)
		case mode == ModeAutoAccept:
			p.Direct = append(p.Direct, call)
		case reg.ResolveApproval(def, args):
			p.RequireConfirm = append(p.RequireConfirm, call)
		default:
			p.Direct = append(p.Direct, call)
		}
	}

	return p
}

// ConfirmFunc prompts a human (terminal or editor bridge) for a decision on
// one confirm-required call.
type ConfirmFunc func(ctx context.Context, call tools.ToolCall, def tools.ToolDefinition) (DecisionState, error)

// Gate drives CONFIRM: it remembers "approved for session" decisions across
// calls to the same tool and aborts immediately in non-interactive mode
// instead of invoking ConfirmFunc.
//
// Thread Safety: Gate is safe for concurrent use.
type Gate struct {
	mu                 sync.Mutex
	approvedForSession map[string]bool
	confirm            ConfirmFunc
	preflight          PreflightGate
}

// NewGate creates a Gate that prompts via confirm for calls not already
// approved for the session.
func NewGate(confirm ConfirmFunc) *Gate {
	return &Gate{approvedForSession: make(map[string]bool), confirm: confirm}
}

// SetPreflight attaches a PreflightGate that screens every confirm-required
// call for dangerous paths, dangerous shell commands, and oversized writes
// before the call ever reaches ConfirmFunc. A call the preflight gate blocks
// is rejected outright — no prompt is shown, since there is nothing for a
// human to approve their way around.
func (g *Gate) SetPreflight(p PreflightGate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.preflight = p
}

// Decide resolves one confirm-required call. If nonInteractive is true and
// the call is not already approved for the session, Decide returns
// ErrApprovalRequiredNonInteractive without invoking confirm.
func (g *Gate) Decide(ctx context.Context, call tools.ToolCall, def tools.ToolDefinition, nonInteractive bool) (DecisionState, error) {
	g.mu.Lock()
	preflight := g.preflight
	if g.approvedForSession[def.Name] {
		g.mu.Unlock()
		return DecisionApprovedForSession, nil
	}
	g.mu.Unlock()

	if preflight != nil {
		if args, err := call.ParamsMap(); err == nil {
			if change, ok := ChangeFromCall(call, def, args); ok {
				result, err := preflight.Check(ctx, []ProposedChange{change})
				if err == nil && preflight.ShouldBlock(result) {
					return DecisionRejected, nil
				}
			}
		}
	}

	if nonInteractive {
		return DecisionRejected, ErrApprovalRequiredNonInteractive
	}

	decision, err := g.confirm(ctx, call, def)
	if err != nil {
		return DecisionPending, err
	}

	if decision == DecisionApprovedForSession {
		g.mu.Lock()
		g.approvedForSession[def.Name] = true
		g.mu.Unlock()
	}

	return decision, nil
}

// Reset clears all approved-for-session flags, used when a new session
// starts (the flag is scoped to one conversation, not the process).
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approvedForSession = make(map[string]bool)
}

// RejectionContent is the tool-result content synthesized for a call the
// user rejected, so the model sees a normal tool message rather than a
// silent omission.
const RejectionContent = "Error: user declined to approve this tool call"
