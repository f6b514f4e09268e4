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

import "errors"

// Sentinel errors returned by CostEstimator.CheckLimits.
var (
	// ErrTokenLimitExceeded indicates the operation would exceed the
	// configured total token budget.
	ErrTokenLimitExceeded = errors.New("tokenizer: token limit exceeded")

	// ErrCostLimitExceeded indicates the operation would exceed the
	// configured USD cost budget.
	ErrCostLimitExceeded = errors.New("tokenizer: cost limit exceeded")

	// ErrConfirmationRequired indicates the operation's estimated cost
	// crosses the confirmation threshold and needs explicit approval
	// before proceeding.
	ErrConfirmationRequired = errors.New("tokenizer: confirmation required")
)
