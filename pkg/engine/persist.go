package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/vector"
	"github.com/papercomputeco/reels/pkg/vector/memvec"
)

// documentsFile is the per-index document snapshot filename, stored beside
// the backend's vector snapshot.
const documentsFile = "documents.db"

// Persist writes the named index's vectors and documents under the snapshot
// directory. Server-resident backends make the vector half a no-op.
func (e *Engine) Persist(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { e.metrics.observe(opPersist, start, err) }(time.Now())

	if e.snapshotsDir == "" {
		return ErrNoSnapshotDir
	}

	idx, err := e.lookupIndex(ctx, name)
	if err != nil {
		return err
	}

	if err := e.backend.Persist(ctx, name, e.snapshotsDir); err != nil {
		return fmt.Errorf("persisting vectors of index %s: %w", name, err)
	}

	indexDir := filepath.Join(e.snapshotsDir, name)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	if err := idx.docs.SaveTo(ctx, filepath.Join(indexDir, documentsFile)); err != nil {
		return fmt.Errorf("persisting documents of index %s: %w", name, err)
	}

	e.logger.Info("persisted index", zap.String("index", name))
	return nil
}

// PersistAll persists every index the engine knows locally.
func (e *Engine) PersistAll(ctx context.Context) error {
	e.mu.RLock()
	names := make([]string, 0, len(e.indexes))
	for name := range e.indexes {
		names = append(names, name)
	}
	e.mu.RUnlock()

	for _, name := range names {
		if err := e.Persist(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Restore rebuilds the named index from its snapshot: vectors through the
// backend, documents from the sqlite file, and the keyword index from the
// restored nodes.
func (e *Engine) Restore(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { e.metrics.observe(opLoad, start, err) }(time.Now())

	if e.snapshotsDir == "" {
		return ErrNoSnapshotDir
	}
	if name == "" {
		return ErrEmptyIndexName
	}

	if err := e.backend.Restore(ctx, name, e.snapshotsDir); err != nil {
		return fmt.Errorf("restoring vectors of index %s: %w", name, err)
	}

	idx := e.newIndex(name)

	docsPath := filepath.Join(e.snapshotsDir, name, documentsFile)
	if _, statErr := os.Stat(docsPath); statErr == nil {
		if err := idx.docs.LoadFrom(ctx, docsPath); err != nil {
			return fmt.Errorf("restoring documents of index %s: %w", name, err)
		}
	}

	nodes, err := e.backend.Nodes(ctx, name)
	if err != nil {
		return fmt.Errorf("reading restored nodes of index %s: %w", name, err)
	}
	idx.keyword.Add(nodes)

	e.mu.Lock()
	e.indexes[name] = idx
	e.mu.Unlock()

	e.logger.Info("restored index",
		zap.String("index", name),
		zap.Int("nodes", len(nodes)),
		zap.Int("documents", idx.docs.Count()),
	)
	return nil
}

// RestoreAll restores every index listed in the snapshot registry. A corrupt
// snapshot is logged and skipped; the remaining indexes still come up.
func (e *Engine) RestoreAll(ctx context.Context) ([]string, error) {
	if e.snapshotsDir == "" {
		return nil, ErrNoSnapshotDir
	}

	entries, err := memvec.ReadRegistry(e.snapshotsDir)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot registry: %w", err)
	}

	var restored []string
	for _, entry := range entries {
		if err := e.Restore(ctx, entry.Name); err != nil {
			if errors.Is(err, vector.ErrCorrupt) {
				e.logger.Warn("skipping corrupt snapshot",
					zap.String("index", entry.Name),
					zap.Error(err),
				)
				continue
			}
			return restored, err
		}
		restored = append(restored, entry.Name)
	}
	return restored, nil
}

// removeSnapshot drops the named index's snapshot directory and registry
// entry.
func (e *Engine) removeSnapshot(name string) error {
	return memvec.RemoveRegistryEntry(e.snapshotsDir, name)
}
