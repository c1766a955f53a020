package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/document"
)

// SaveTo writes the store's full contents into a SQLite file at dbPath,
// replacing any previous snapshot. Insertion order is preserved via the
// position column.
func (s *Store) SaveTo(ctx context.Context, dbPath string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("opening snapshot database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			position INTEGER PRIMARY KEY,
			doc_id TEXT NOT NULL UNIQUE,
			text TEXT NOT NULL,
			hash TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		)
	`); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	docs := s.All()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clearing previous snapshot: %w", err)
	}

	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for doc %s: %w", doc.DocID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents(position, doc_id, text, hash, metadata) VALUES (?, ?, ?, ?, ?)`,
			i, doc.DocID, doc.Text, doc.Hash, string(meta),
		); err != nil {
			return fmt.Errorf("inserting doc %s: %w", doc.DocID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("saved document snapshot",
		zap.String("db_path", dbPath),
		zap.Int("count", len(docs)),
	)

	return nil
}

// LoadFrom replaces the store's contents with the snapshot at dbPath.
// Unreadable snapshots return ErrCorrupt.
func (s *Store) LoadFrom(ctx context.Context, dbPath string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrCorrupt, dbPath, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT doc_id, text, hash, metadata
		FROM documents
		ORDER BY position
	`)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrCorrupt, dbPath, err)
	}
	defer rows.Close()

	var docs []document.StoredDocument
	for rows.Next() {
		var doc document.StoredDocument
		var meta string
		if err := rows.Scan(&doc.DocID, &doc.Text, &doc.Hash, &meta); err != nil {
			return fmt.Errorf("%w: scanning document row: %v", ErrCorrupt, err)
		}
		if meta != "" && meta != "{}" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
				return fmt.Errorf("%w: decoding metadata for doc %s: %v", ErrCorrupt, doc.DocID, err)
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterating document rows: %v", ErrCorrupt, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = make(map[string]document.StoredDocument, len(docs))
	s.order = s.order[:0]
	for _, doc := range docs {
		s.docs[doc.DocID] = doc
		s.order = append(s.order, doc.DocID)
	}

	s.logger.Debug("loaded document snapshot",
		zap.String("db_path", dbPath),
		zap.Int("count", len(docs)),
	)

	return nil
}
