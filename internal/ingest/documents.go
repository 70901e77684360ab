package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDocumentNotFound indicates the requested document record is absent.
var ErrDocumentNotFound = errors.New("document not found")

// Document is the record of one uploaded file.
type Document struct {
	ID         uuid.UUID `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Documents persists uploaded-document records.
type Documents struct {
	pool *pgxpool.Pool
}

// NewDocuments creates a document record store.
func NewDocuments(pool *pgxpool.Pool) *Documents {
	return &Documents{pool: pool}
}

const upsertDocumentSQL = `
INSERT INTO documents (filename, file_type, file_size, chunk_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (filename) DO UPDATE
SET file_type = EXCLUDED.file_type,
    file_size = EXCLUDED.file_size,
    chunk_count = EXCLUDED.chunk_count,
    created_at = now()
RETURNING id, filename, file_type, file_size, chunk_count, created_at`

// Upsert records an uploaded file, replacing any previous record for the
// same filename.
func (d *Documents) Upsert(ctx context.Context, filename, fileType string, fileSize int64, chunkCount int) (*Document, error) {
	var doc Document
	err := d.pool.QueryRow(ctx, upsertDocumentSQL, filename, fileType, fileSize, chunkCount).
		Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.ChunkCount, &doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting document: %w", err)
	}
	return &doc, nil
}

const getDocumentSQL = `
SELECT id, filename, file_type, file_size, chunk_count, created_at
FROM documents
WHERE id = $1`

// Get returns a document record by ID, or ErrDocumentNotFound.
func (d *Documents) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := d.pool.QueryRow(ctx, getDocumentSQL, id).
		Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.ChunkCount, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return &doc, nil
}

const listDocumentsSQL = `
SELECT id, filename, file_type, file_size, chunk_count, created_at
FROM documents
ORDER BY created_at DESC`

// List returns all document records, newest first.
func (d *Documents) List(ctx context.Context) ([]Document, error) {
	rows, err := d.pool.Query(ctx, listDocumentsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.ChunkCount, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return out, nil
}

// Delete removes a document record.
func (d *Documents) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
