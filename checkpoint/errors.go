// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import "errors"

var (
	// ErrNotFound is returned when no checkpoint exists for the given id.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrSchemaVersionMismatch is returned when an artifact's SchemaVersion
	// is newer than this package knows how to read.
	ErrSchemaVersionMismatch = errors.New("checkpoint schema version mismatch")

	// ErrIntegrityCheckFailed is returned when RestoreOptions.ValidateIntegrity
	// is set and the stored content hash does not match the decoded payload.
	ErrIntegrityCheckFailed = errors.New("checkpoint integrity check failed")

	// ErrEmptyName is returned by Save when name is empty.
	ErrEmptyName = errors.New("checkpoint name must not be empty")

	// ErrClosed names the closed-store condition. No Store method returns
	// it: Close records no closed state, so calls made after Close go
	// straight to the closed BadgerDB.
	ErrClosed = errors.New("checkpoint store is closed")
)
