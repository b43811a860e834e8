package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore keeps documents in a single relational table with the
// body as JSONB:
//
//	documents (collection TEXT, id TEXT, doc JSONB, PRIMARY KEY (collection, id))
//
// The schema is applied by cmd/migrate.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// FindOne returns the document with the given id, or ErrNoDocuments.
func (s *PostgresStore) FindOne(ctx context.Context, collection, id string) (Doc, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM documents WHERE collection = $1 AND id = $2
	`, collection, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}

// FindAll returns every document in the collection ordered by id.
func (s *PostgresStore) FindAll(ctx context.Context, collection string) ([]Doc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM documents WHERE collection = $1 ORDER BY id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []Doc{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc Doc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// InsertOne stores a new document, mapping the table's unique-violation
// error to ErrDuplicateID.
func (s *PostgresStore) InsertOne(ctx context.Context, collection string, doc Doc) error {
	id := doc.ID()
	if id == "" {
		return errors.New("document has no _id")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
	`, collection, id, raw)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// ReplaceOne overwrites the document with the given id, reporting how
// many rows matched. With upsert set a missing document is inserted and
// matched stays 0.
func (s *PostgresStore) ReplaceOne(ctx context.Context, collection, id string, doc Doc, upsert bool) (int, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("marshal document: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET doc = $3 WHERE collection = $1 AND id = $2
	`, collection, id, raw)
	if err != nil {
		return 0, fmt.Errorf("replace document: %w", err)
	}
	matched, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("replace document: %w", err)
	}
	if matched > 0 || !upsert {
		return int(matched), nil
	}

	// Nothing matched; insert, tolerating a concurrent writer.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc
	`, collection, id, raw)
	if err != nil {
		return 0, fmt.Errorf("upsert document: %w", err)
	}
	return 0, nil
}

// DeleteOne removes the document with the given id. Missing documents
// are ignored.
func (s *PostgresStore) DeleteOne(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Drop removes every document in the collection.
func (s *PostgresStore) Drop(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1
	`, collection)
	if err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
