// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tokenizer

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for token-counting and cost-tracking operations.
var meter = otel.Meter("conversant.tokenizer")

var (
	tokensCounted  metric.Int64Histogram
	costRecorded   metric.Float64Counter
	limitWarnTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		tokensCounted, err = meter.Int64Histogram(
			"tokenizer_tokens_counted",
			metric.WithDescription("Number of tokens counted per CountAll call"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		costRecorded, err = meter.Float64Counter(
			"tokenizer_cost_usd_total",
			metric.WithDescription("Cumulative estimated USD cost recorded via CostEstimator.RecordUsage"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		limitWarnTotal, err = meter.Int64Counter(
			"tokenizer_limit_warnings_total",
			metric.WithDescription("Number of times CheckLimits rejected an estimate"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordCount records the token count produced by a Counter call.
func recordCount(ctx context.Context, model string, count int) {
	if err := initMetrics(); err != nil {
		return
	}
	tokensCounted.Record(ctx, int64(count), metric.WithAttributes(attribute.String("model", model)))
}

// recordCost records a cost increment observed by CostEstimator.RecordUsage.
func recordCost(ctx context.Context, deltaUSD float64) {
	if err := initMetrics(); err != nil {
		return
	}
	costRecorded.Add(ctx, deltaUSD)
}

// recordLimitWarning records a CheckLimits rejection, tagged by which
// sentinel error triggered it.
func recordLimitWarning(ctx context.Context, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	limitWarnTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
