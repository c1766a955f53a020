package memvec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/vector"
)

const (
	// snapshotFile is the per-index sqlite-vec snapshot filename.
	snapshotFile = "snapshot.db"

	// registryFile lists the persisted indexes under a snapshot directory.
	registryFile = "indexes.toml"
)

// RegistryEntry describes one persisted index in the snapshot registry.
type RegistryEntry struct {
	Name       string    `toml:"name"`
	Dimensions int       `toml:"dimensions"`
	Nodes      int       `toml:"nodes"`
	SavedAt    time.Time `toml:"saved_at"`
}

type registry struct {
	Indexes []RegistryEntry `toml:"indexes"`
}

// Persist writes the named index to <dir>/<name>/snapshot.db and records it
// in the <dir>/indexes.toml registry. A previous snapshot is replaced whole.
func (b *Backend) Persist(ctx context.Context, name string, dir string) error {
	b.mu.RLock()
	idx, ok := b.indexes[name]
	if !ok {
		b.mu.RUnlock()
		return vector.ErrIndexNotFound
	}

	// Snapshot under the read lock so writers cannot interleave, then release
	// before touching disk.
	type row struct {
		handle    int64
		node      vector.Node
		embedding []float32
	}
	rows := make([]row, 0, len(idx.nodeByHandle))
	for handle, node := range idx.nodeByHandle {
		rows = append(rows, row{handle: handle, node: node, embedding: node.Embedding})
	}
	dims := idx.dims
	nextHandle := idx.nextHandle
	b.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].handle < rows[j].handle })

	indexDir := filepath.Join(dir, name)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	dbPath := filepath.Join(indexDir, snapshotFile)
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing previous snapshot: %w", err)
	}

	sqlite_vec.Auto()
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("opening snapshot database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE snapshot_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating meta table: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE vec_nodes (
			handle INTEGER PRIMARY KEY,
			node_id TEXT NOT NULL UNIQUE,
			doc_id TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		)
	`); err != nil {
		return fmt.Errorf("creating nodes table: %w", err)
	}

	if dims > 0 {
		createVec := fmt.Sprintf(
			`CREATE VIRTUAL TABLE vec_embeddings USING vec0(embedding float[%d])`, dims,
		)
		if _, err := db.ExecContext(ctx, createVec); err != nil {
			return fmt.Errorf("creating vec0 table: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, kv := range [][2]string{
		{"dimensions", fmt.Sprintf("%d", dims)},
		{"next_handle", fmt.Sprintf("%d", nextHandle)},
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_meta(key, value) VALUES (?, ?)`, kv[0], kv[1],
		); err != nil {
			return fmt.Errorf("writing meta %s: %w", kv[0], err)
		}
	}

	for _, r := range rows {
		meta, err := json.Marshal(r.node.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for node %s: %w", r.node.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vec_nodes(handle, node_id, doc_id, text, metadata) VALUES (?, ?, ?, ?, ?)`,
			r.handle, r.node.ID, r.node.DocID, r.node.Text, string(meta),
		); err != nil {
			return fmt.Errorf("inserting node %s: %w", r.node.ID, err)
		}

		if dims > 0 {
			blob := serializeFloat32(r.embedding)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				r.handle, blob,
			); err != nil {
				return fmt.Errorf("inserting embedding for node %s: %w", r.node.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if err := upsertRegistryEntry(dir, RegistryEntry{
		Name:       name,
		Dimensions: dims,
		Nodes:      len(rows),
		SavedAt:    time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("updating snapshot registry: %w", err)
	}

	b.logger.Info("persisted index snapshot",
		zap.String("index", name),
		zap.Int("nodes", len(rows)),
		zap.String("path", dbPath),
	)

	return nil
}

// Restore rebuilds the named index from <dir>/<name>/snapshot.db, replacing
// any in-memory state for that index. Unreadable snapshots return ErrCorrupt.
func (b *Backend) Restore(ctx context.Context, name string, dir string) error {
	dbPath := filepath.Join(dir, name, snapshotFile)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("%w: missing snapshot %s: %v", vector.ErrCorrupt, dbPath, err)
	}

	sqlite_vec.Auto()
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", vector.ErrCorrupt, dbPath, err)
	}
	defer db.Close()

	meta, err := readSnapshotMeta(ctx, db)
	if err != nil {
		return fmt.Errorf("%w: reading meta from %s: %v", vector.ErrCorrupt, dbPath, err)
	}

	idx := newIndex()
	idx.dims = meta.dims
	idx.nextHandle = meta.nextHandle

	query := `SELECT handle, node_id, doc_id, text, metadata FROM vec_nodes ORDER BY handle`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: reading nodes from %s: %v", vector.ErrCorrupt, dbPath, err)
	}
	defer rows.Close()

	type pending struct {
		handle int64
		node   vector.Node
	}
	var nodes []pending
	for rows.Next() {
		var p pending
		var metaJSON string
		if err := rows.Scan(&p.handle, &p.node.ID, &p.node.DocID, &p.node.Text, &metaJSON); err != nil {
			return fmt.Errorf("%w: scanning node row: %v", vector.ErrCorrupt, err)
		}
		if metaJSON != "" && metaJSON != "{}" && metaJSON != "null" {
			if err := json.Unmarshal([]byte(metaJSON), &p.node.Metadata); err != nil {
				return fmt.Errorf("%w: decoding metadata for node %s: %v", vector.ErrCorrupt, p.node.ID, err)
			}
		}
		nodes = append(nodes, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterating node rows: %v", vector.ErrCorrupt, err)
	}

	for i := range nodes {
		p := &nodes[i]
		if meta.dims > 0 {
			var blob []byte
			err := db.QueryRowContext(ctx,
				`SELECT embedding FROM vec_embeddings WHERE rowid = ?`, p.handle,
			).Scan(&blob)
			if err != nil {
				return fmt.Errorf("%w: reading embedding for node %s: %v", vector.ErrCorrupt, p.node.ID, err)
			}
			p.node.Embedding, err = deserializeFloat32(blob)
			if err != nil {
				return fmt.Errorf("%w: decoding embedding for node %s: %v", vector.ErrCorrupt, p.node.ID, err)
			}
			if len(p.node.Embedding) != meta.dims {
				return fmt.Errorf("%w: node %s has %d dims, snapshot declares %d",
					vector.ErrCorrupt, p.node.ID, len(p.node.Embedding), meta.dims)
			}
		}

		pos := len(idx.vectors)
		idx.vectors = append(idx.vectors, p.node.Embedding)
		idx.handleAt = append(idx.handleAt, p.handle)
		idx.posByHandle[p.handle] = pos
		idx.nodeByHandle[p.handle] = p.node
		idx.handlesByDoc[p.node.DocID] = append(idx.handlesByDoc[p.node.DocID], p.handle)
	}

	b.mu.Lock()
	b.indexes[name] = idx
	b.mu.Unlock()

	b.logger.Info("restored index snapshot",
		zap.String("index", name),
		zap.Int("nodes", len(nodes)),
		zap.String("path", dbPath),
	)

	return nil
}

type snapshotMeta struct {
	dims       int
	nextHandle int64
}

func readSnapshotMeta(ctx context.Context, db *sql.DB) (snapshotMeta, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM snapshot_meta`)
	if err != nil {
		return snapshotMeta{}, err
	}
	defer rows.Close()

	var meta snapshotMeta
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return snapshotMeta{}, err
		}
		switch key {
		case "dimensions":
			if _, err := fmt.Sscanf(value, "%d", &meta.dims); err != nil {
				return snapshotMeta{}, fmt.Errorf("parsing dimensions %q: %w", value, err)
			}
		case "next_handle":
			if _, err := fmt.Sscanf(value, "%d", &meta.nextHandle); err != nil {
				return snapshotMeta{}, fmt.Errorf("parsing next_handle %q: %w", value, err)
			}
		}
	}
	return meta, rows.Err()
}

// ReadRegistry returns the registry entries recorded under dir, sorted by
// index name. A missing registry file yields an empty list.
func ReadRegistry(dir string) ([]RegistryEntry, error) {
	path := filepath.Join(dir, registryFile)

	var reg registry
	if _, err := toml.DecodeFile(path, &reg); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding registry %s: %w", path, err)
	}

	sort.Slice(reg.Indexes, func(i, j int) bool { return reg.Indexes[i].Name < reg.Indexes[j].Name })
	return reg.Indexes, nil
}

// RemoveRegistryEntry drops the named index from the registry and deletes its
// snapshot directory.
func RemoveRegistryEntry(dir string, name string) error {
	entries, err := ReadRegistry(dir)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	if err := writeRegistry(dir, kept); err != nil {
		return err
	}

	if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("removing snapshot directory: %w", err)
	}
	return nil
}

func upsertRegistryEntry(dir string, entry RegistryEntry) error {
	entries, err := ReadRegistry(dir)
	if err != nil {
		return err
	}

	replaced := false
	for i, e := range entries {
		if e.Name == entry.Name {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return writeRegistry(dir, entries)
}

func writeRegistry(dir string, entries []RegistryEntry) error {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	path := filepath.Join(dir, registryFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating registry %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(registry{Indexes: entries}); err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	return nil
}

// serializeFloat32 converts a float32 slice to the little-endian BLOB format
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to float32s.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
