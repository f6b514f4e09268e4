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

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	badgerv4 "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	artifactKeyPrefix = "chk:artifact:"
	metaKeyPrefix     = "chk:meta:"
)

func artifactKey(id string) []byte { return []byte(artifactKeyPrefix + id) }
func metaKey(id string) []byte     { return []byte(metaKeyPrefix + id) }

// RestoreOptions controls Restore's validation and backup behavior.
type RestoreOptions struct {
	// ValidateIntegrity recomputes the stored content hash and fails with
	// ErrIntegrityCheckFailed on mismatch.
	ValidateIntegrity bool

	// BackupCurrent saves CurrentState as its own checkpoint (named
	// "pre-restore-backup") before the target artifact is returned, so a bad
	// restore can itself be undone. Ignored if CurrentState is nil.
	BackupCurrent bool
	CurrentState  *Artifact
}

// Store persists Artifacts in an embedded BadgerDB instance, keyed by a
// generated checkpoint id. It owns checkpoint selection, listing, and
// naming, per the contract that the engine treats a restore purely as a
// message-log replacement and has no other opinion about storage.
//
// Thread Safety: safe for concurrent use; BadgerDB serializes writers.
type Store struct {
	db    *DB
	owned bool
}

// NewStore wraps an already-open DB. Callers own the DB's lifecycle; Close
// on the returned Store is a no-op.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// OpenStore opens a BadgerDB instance per cfg and returns a Store that owns
// it; Close on the returned Store also closes the underlying DB.
func OpenStore(cfg Config) (*Store, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, owned: true}, nil
}

// Close closes the underlying DB if this Store was returned by OpenStore. A Store
// built with NewStore over a caller-owned DB leaves it open, since the
// caller retains control of that DB's lifecycle.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type storedArtifact struct {
	ContentHash string   `json:"content_hash"`
	Payload     Artifact `json:"payload"`
}

// Save encodes messages (plus optional tool executions and file snapshots)
// as an Artifact under a freshly generated id and persists it, returning
// that id.
func (s *Store) Save(ctx context.Context, name string, meta Metadata, messages []Message, toolExecutions []ToolExecution, fileSnapshots map[string]string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}

	id := uuid.NewString()
	meta.ID = id
	meta.Name = name
	meta.CreatedAt = time.Now()
	meta.MessageCount = len(messages)

	artifact := Artifact{
		SchemaVersion:  SchemaVersion,
		Metadata:       meta,
		Messages:       messages,
		ToolExecutions: toolExecutions,
		FileSnapshots:  fileSnapshots,
	}

	payload, err := json.Marshal(artifact)
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	stored := storedArtifact{ContentHash: contentHash(payload), Payload: artifact}
	storedBytes, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("encode checkpoint envelope: %w", err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode checkpoint metadata: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *badgerv4.Txn) error {
		if err := txn.Set(artifactKey(id), storedBytes); err != nil {
			return err
		}
		return txn.Set(metaKey(id), metaBytes)
	})
	if err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}

	return id, nil
}

// Restore loads the artifact stored under id, optionally validating its
// content hash and optionally backing up opts.CurrentState first.
func (s *Store) Restore(ctx context.Context, id string, opts RestoreOptions) (*Artifact, error) {
	if opts.BackupCurrent && opts.CurrentState != nil {
		cur := opts.CurrentState
		if _, err := s.Save(ctx, "pre-restore-backup", cur.Metadata, cur.Messages, cur.ToolExecutions, cur.FileSnapshots); err != nil {
			return nil, fmt.Errorf("backup current state before restore: %w", err)
		}
	}

	var stored storedArtifact
	err := s.db.WithReadTxn(ctx, func(txn *badgerv4.Txn) error {
		item, err := txn.Get(artifactKey(id))
		if err == badgerv4.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		return nil, err
	}

	if stored.Payload.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: artifact version %d, this build understands up to %d",
			ErrSchemaVersionMismatch, stored.Payload.SchemaVersion, SchemaVersion)
	}

	if opts.ValidateIntegrity {
		payload, err := json.Marshal(stored.Payload)
		if err != nil {
			return nil, fmt.Errorf("re-encode checkpoint for validation: %w", err)
		}
		if contentHash(payload) != stored.ContentHash {
			return nil, ErrIntegrityCheckFailed
		}
	}

	artifact := stored.Payload
	return &artifact, nil
}

// List returns metadata for every stored checkpoint, most recent first.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	var metas []Metadata

	err := s.db.WithReadTxn(ctx, func(txn *badgerv4.Txn) error {
		opts := badgerv4.DefaultIteratorOptions
		opts.PrefetchValues = true
		prefix := []byte(metaKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var m Metadata
				if err := json.Unmarshal(val, &m); err != nil {
					return err
				}
				metas = append(metas, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt.After(metas[j].CreatedAt) })
	return metas, nil
}

// Delete removes the checkpoint stored under id. Deleting an id that does
// not exist is not an error, matching BadgerDB's own delete semantics.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithTxn(ctx, func(txn *badgerv4.Txn) error {
		if err := txn.Delete(artifactKey(id)); err != nil {
			return err
		}
		return txn.Delete(metaKey(id))
	})
}
