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
	"github.com/nanoforge/conversant/engine"
	"github.com/nanoforge/conversant/events"
)

// eventsSink adapts engine.EventSink to the events.Emitter bus, translating
// each typed OutputEvent into the closest events.Type so the logging
// handler and metrics collector subscribed to emitter in main observe every
// turn the same way a remote dashboard would.
type eventsSink struct {
	emitter *events.Emitter
}

// newEventsSink wires emitter as the engine's event sink.
func newEventsSink(emitter *events.Emitter) *eventsSink {
	return &eventsSink{emitter: emitter}
}

func (s *eventsSink) Emit(ev engine.OutputEvent) {
	switch ev.Kind {
	case engine.OutputToolResult:
		s.emitter.Emit(events.TypeToolResult, &events.ToolResultData{
			ToolName: ev.ToolName,
			Success:  !ev.IsError,
			Error:    errString(ev),
		})
	case engine.OutputWarning, engine.OutputError:
		s.emitter.Emit(events.TypeError, &events.ErrorData{
			Error:       ev.Content,
			Recoverable: ev.Kind == engine.OutputWarning,
		})
	case engine.OutputAssistant, engine.OutputUser, engine.OutputInfo, engine.OutputNudge:
		s.emitter.Emit(events.TypeStepComplete, &events.StepCompleteData{})
	}
}

func errString(ev engine.OutputEvent) string {
	if !ev.IsError {
		return ""
	}
	return ev.Content
}
