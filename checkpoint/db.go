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
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config configures the embedded BadgerDB instance backing a Store.
type Config struct {
	// Path is the on-disk directory for BadgerDB files. Required unless
	// InMemory is set.
	Path string

	// InMemory runs BadgerDB without touching disk. Used for tests and for
	// ephemeral sessions that opt out of persistence.
	InMemory bool

	// SyncWrites enables synchronous writes for durability. Should stay true
	// for any checkpoint a user expects to survive a crash.
	SyncWrites bool

	// NumVersionsToKeep bounds BadgerDB's MVCC history; checkpoints are
	// write-once-per-id so there is no reason to keep more than one version.
	NumVersionsToKeep int

	// GCInterval and GCDiscardRatio are value-log garbage-collection
	// settings for a GCRunner. OpenDB and OpenStore neither read them nor
	// start a GCRunner; they take effect only when passed to NewGCRunner.
	GCInterval     time.Duration
	GCDiscardRatio float64

	Logger *slog.Logger
}

// DefaultConfig returns production-ready defaults for a persistent store.
func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
		Logger:            slog.Default(),
	}
}

// InMemoryConfig returns defaults for a throwaway in-memory store. GC is
// disabled since an in-memory instance has no value log to reclaim.
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		SyncWrites:        false,
		NumVersionsToKeep: 1,
		Logger:            slog.Default(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for persistent checkpoint store")
	}
	return nil
}

// DB wraps a *badger.DB with context-aware transaction helpers. Checkpoint
// store code never touches the raw *badger.DB directly outside this file.
type DB struct {
	*badger.DB
	logger *slog.Logger
}

// Open opens a BadgerDB instance per cfg, choosing in-memory or on-disk mode.
func Open(cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return OpenDB(cfg)
}

// OpenInMemory is a convenience wrapper for Open(InMemoryConfig()).
func OpenInMemory() (*DB, error) {
	return OpenDB(InMemoryConfig())
}

// OpenWithPath is a convenience wrapper for a persistent store at path using
// otherwise-default settings.
func OpenWithPath(path string) (*DB, error) {
	cfg := DefaultConfig()
	cfg.Path = path
	return OpenDB(cfg)
}

// OpenDB opens BadgerDB per cfg and wraps it in the transaction-helper DB.
func OpenDB(cfg Config) (*DB, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts = opts.WithInMemory(cfg.InMemory)
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.NumVersionsToKeep > 0 {
		opts = opts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	}
	opts = opts.WithLogger(nil) // badger's own logger is noisy; we log at call sites

	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, errors.New("create checkpoint dir: " + err.Error())
		}
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &DB{DB: bdb, logger: cfg.Logger}, nil
}

// WithTxn runs fn in a read-write transaction, committing on success and
// discarding on any error (including ctx cancellation observed before fn
// runs).
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	select {
	case <-ctx.Done():
		return errors.New("context cancelled: " + ctx.Err().Error())
	default:
	}
	return d.Update(fn)
}

// WithReadTxn runs fn in a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	select {
	case <-ctx.Done():
		return errors.New("context cancelled: " + ctx.Err().Error())
	default:
	}
	return d.View(fn)
}

// GCRunner periodically invokes BadgerDB's value-log garbage collection.
// NewGCRunner does not check whether db runs in memory.
type GCRunner struct {
	db       *DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewGCRunner validates its arguments and returns a stopped GCRunner; call
// Start to begin the periodic GC loop.
func NewGCRunner(db *DB, interval time.Duration, ratio float64, logger *slog.Logger) (*GCRunner, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if ratio <= 0 || ratio > 1 {
		return nil, errors.New("ratio must be between 0 and 1")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger.With(slog.String("component", "checkpoint_gc")),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start runs the GC loop in a background goroutine.
func (g *GCRunner) Start() {
	go func() {
		defer close(g.done)
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-g.stop:
				return
			case <-ticker.C:
				for {
					if err := g.db.RunValueLogGC(g.ratio); err != nil {
						if !errors.Is(err, badger.ErrNoRewrite) {
							g.logger.Warn("value log gc failed", slog.String("error", err.Error()))
						}
						break
					}
				}
			}
		}
	}()
}

// Stop halts the GC loop and waits for the goroutine to exit.
func (g *GCRunner) Stop() {
	close(g.stop)
	<-g.done
}
