package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lylin/knowbase/internal/ingest"
	"github.com/lylin/knowbase/internal/log"
)

// MaxUploadSize bounds a single document upload.
const MaxUploadSize = 10 << 20 // 10 MiB

// DocumentPipeline ingests and removes documents.
type DocumentPipeline interface {
	IngestFile(ctx context.Context, filename string, data []byte) (*ingest.Document, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

// DocumentRecords reads uploaded-document records.
type DocumentRecords interface {
	Get(ctx context.Context, id uuid.UUID) (*ingest.Document, error)
	List(ctx context.Context) ([]ingest.Document, error)
}

// DocumentHandler serves document upload and management endpoints.
type DocumentHandler struct {
	pipeline DocumentPipeline
	records  DocumentRecords
	logger   log.Logger
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(pipeline DocumentPipeline, records DocumentRecords, logger log.Logger) *DocumentHandler {
	return &DocumentHandler{pipeline: pipeline, records: records, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/knowledge/upload", h.upload)
	mux.HandleFunc("GET /api/knowledge/documents", h.list)
	mux.HandleFunc("GET /api/knowledge/documents/{id}", h.get)
	mux.HandleFunc("DELETE /api/knowledge/documents/{id}", h.delete)
}

func (h *DocumentHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form or file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read upload", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read upload")
		return
	}

	// Strip any client-supplied path components.
	filename := filepath.Base(header.Filename)

	doc, err := h.pipeline.IngestFile(r.Context(), filename, data)
	if errors.Is(err, ingest.ErrUnsupportedFileType) || errors.Is(err, ingest.ErrEmptyDocument) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("ingestion failed", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to ingest document")
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.records.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

func (h *DocumentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	doc, err := h.records.Get(r.Context(), id)
	if errors.Is(err, ingest.ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	err := h.pipeline.Remove(r.Context(), id)
	if errors.Is(err, ingest.ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to remove document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to remove document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
