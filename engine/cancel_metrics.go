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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TurnMetrics holds the Prometheus metrics for turn execution and
// cancellation. This is the supplemented turn/session metrics feature: it
// has no entity in the conversation's data model, it is cross-cutting
// instrumentation consumed by an operator, not by the model or the log.
//
// Thread Safety: safe for concurrent use (Prometheus metrics are).
type TurnMetrics struct {
	// TurnsTotal counts completed turns by outcome (idle, cancelled, error).
	TurnsTotal *prometheus.CounterVec

	// CancelTotal counts cancellations by reason.
	CancelTotal *prometheus.CounterVec

	// ToolCallsTotal counts tool invocations by tool name and outcome.
	ToolCallsTotal *prometheus.CounterVec

	// ContextPressureTotal counts context-window pressure warnings by level
	// (warning, critical).
	ContextPressureTotal *prometheus.CounterVec

	// TurnIterations is a histogram of the self-correction loop count per
	// turn (STREAM re-entries before settling).
	TurnIterations prometheus.Histogram
}

// NewTurnMetrics registers the engine's Prometheus metrics against reg. Pass
// prometheus.DefaultRegisterer for process-wide metrics, or a fresh
// *prometheus.Registry in tests to avoid collisions between runs.
func NewTurnMetrics(reg prometheus.Registerer) *TurnMetrics {
	factory := promauto.With(reg)

	return &TurnMetrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "conversant",
				Subsystem: "engine",
				Name:      "turns_total",
				Help:      "Completed turns by terminal outcome",
			},
			[]string{"outcome"},
		),
		CancelTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "conversant",
				Subsystem: "engine",
				Name:      "cancellations_total",
				Help:      "Turn cancellations by reason",
			},
			[]string{"reason"},
		),
		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "conversant",
				Subsystem: "engine",
				Name:      "tool_calls_total",
				Help:      "Tool invocations by tool name and outcome",
			},
			[]string{"tool", "outcome"},
		),
		ContextPressureTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "conversant",
				Subsystem: "engine",
				Name:      "context_pressure_total",
				Help:      "Context-window pressure warnings emitted, by level",
			},
			[]string{"level"},
		),
		TurnIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "conversant",
				Subsystem: "engine",
				Name:      "turn_iterations",
				Help:      "Number of STREAM re-entries (self-correction rounds) per turn",
				Buckets:   []float64{1, 2, 3, 4, 5, 7, 10},
			},
		),
	}
}
