package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lylin/knowbase/internal/knowledge"
	"github.com/lylin/knowbase/internal/log"
)

var (
	// ErrUnsupportedFileType indicates the upload's extension is not ingestible.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrEmptyDocument indicates the upload contained no indexable text.
	ErrEmptyDocument = errors.New("document contains no text")
)

// supportedExtensions maps ingestible extensions to their file type label.
var supportedExtensions = map[string]string{
	".txt": "txt",
	".md":  "markdown",
}

// Indexer is the slice of the knowledge store the pipeline needs.
type Indexer interface {
	Add(ctx context.Context, chunks []knowledge.Chunk) (int, error)
	DeleteBySource(ctx context.Context, sourceFile string) (int64, error)
}

// Pipeline ingests uploaded files: split, embed, index, record.
// Re-ingesting a filename replaces its previous chunks and record.
type Pipeline struct {
	splitter  *Splitter
	index     Indexer
	documents *Documents
	logger    log.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(splitter *Splitter, index Indexer, documents *Documents, logger log.Logger) *Pipeline {
	return &Pipeline{splitter: splitter, index: index, documents: documents, logger: logger}
}

// IngestFile validates, splits, and indexes one uploaded file, returning
// its document record.
func (p *Pipeline) IngestFile(ctx context.Context, filename string, data []byte) (*Document, error) {
	fileType, err := fileTypeFor(filename)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8 text", ErrUnsupportedFileType, filename)
	}

	pieces := p.splitter.Split(string(data))
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}

	chunks := make([]knowledge.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = knowledge.Chunk{
			Content:    piece,
			SourceFile: filename,
			ChunkIndex: i,
		}
	}

	// Replace any previous version of this file.
	if _, err := p.index.DeleteBySource(ctx, filename); err != nil {
		return nil, fmt.Errorf("replacing existing chunks: %w", err)
	}

	count, err := p.index.Add(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", filename, err)
	}

	doc, err := p.documents.Upsert(ctx, filename, fileType, int64(len(data)), count)
	if err != nil {
		return nil, err
	}

	p.logger.Info("document ingested", "filename", filename, "chunks", count, "bytes", len(data))
	return doc, nil
}

// Remove deletes a document record and its indexed chunks.
func (p *Pipeline) Remove(ctx context.Context, id uuid.UUID) error {
	doc, err := p.documents.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := p.index.DeleteBySource(ctx, doc.Filename); err != nil {
		return err
	}
	if err := p.documents.Delete(ctx, id); err != nil {
		return err
	}
	p.logger.Info("document removed", "filename", doc.Filename)
	return nil
}

// Documents exposes the underlying record store for read endpoints.
func (p *Pipeline) Documents() *Documents {
	return p.documents
}

func fileTypeFor(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fileType, ok := supportedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: .txt, .md)", ErrUnsupportedFileType, ext)
	}
	return fileType, nil
}
