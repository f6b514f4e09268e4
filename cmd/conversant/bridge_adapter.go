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

	"github.com/nanoforge/conversant/bridge"
	"github.com/nanoforge/conversant/engine"
)

// bridgeAdapter satisfies engine.Bridge by delegating to a concrete
// *bridge.Bridge, converting between engine.FileChange and bridge.FileChange
// so neither leaf package has to import the other.
type bridgeAdapter struct {
	b *bridge.Bridge
}

func newBridgeAdapter(b *bridge.Bridge) engine.Bridge {
	if b == nil {
		return engine.NoopBridge{}
	}
	return &bridgeAdapter{b: b}
}

func (a *bridgeAdapter) Advertise(ctx context.Context, change engine.FileChange) (bool, bool) {
	return a.b.Advertise(ctx, bridge.FileChange{
		Path:            change.Path,
		OriginalContent: change.OriginalContent,
		NewContent:      change.NewContent,
		ToolName:        change.ToolName,
		ToolCallID:      change.ToolCallID,
		TurnID:          change.TurnID,
	})
}

func (a *bridgeAdapter) ClosePending(ctx context.Context, turnID string) {
	a.b.ClosePending(ctx, turnID)
}
