package ingest_test

import (
	"context"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lylin/knowbase/internal/ingest"
	"github.com/lylin/knowbase/internal/knowledge"
	"github.com/lylin/knowbase/internal/log"
	"github.com/lylin/knowbase/internal/testutil"
)

func TestPipeline_Integration(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	g := genkit.Init(ctx)

	index := knowledge.New(tdb.Pool, testutil.NewMockEmbedder(768).Register(g), log.NewNop())
	documents := ingest.NewDocuments(tdb.Pool)
	pipeline := ingest.NewPipeline(
		ingest.NewSplitter(ingest.DefaultChunkSize, ingest.DefaultOverlap),
		index,
		documents,
		log.NewNop(),
	)

	t.Run("ingest text file", func(t *testing.T) {
		content := strings.Repeat("Go services favor small interfaces. ", 40)

		doc, err := pipeline.IngestFile(ctx, "style.md", []byte(content))
		require.NoError(t, err)
		assert.Equal(t, "style.md", doc.Filename)
		assert.Equal(t, "markdown", doc.FileType)
		assert.EqualValues(t, len(content), doc.FileSize)
		assert.Greater(t, doc.ChunkCount, 1)

		results, err := index.SearchKeyword(ctx, "small interfaces", 100)
		require.NoError(t, err)
		assert.Len(t, results, doc.ChunkCount)
	})

	t.Run("re-ingest replaces chunks", func(t *testing.T) {
		_, err := pipeline.IngestFile(ctx, "notes.txt", []byte("first version of the notes"))
		require.NoError(t, err)

		doc, err := pipeline.IngestFile(ctx, "notes.txt", []byte("second version of the notes"))
		require.NoError(t, err)
		assert.Equal(t, 1, doc.ChunkCount)

		old, err := index.SearchKeyword(ctx, "first version", 10)
		require.NoError(t, err)
		assert.Empty(t, old)

		current, err := index.SearchKeyword(ctx, "second version", 10)
		require.NoError(t, err)
		assert.Len(t, current, 1)

		// A single record per filename.
		list, err := documents.List(ctx)
		require.NoError(t, err)
		count := 0
		for _, d := range list {
			if d.Filename == "notes.txt" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := pipeline.IngestFile(ctx, "binary.pdf", []byte("%PDF-1.7"))
		assert.ErrorIs(t, err, ingest.ErrUnsupportedFileType)
	})

	t.Run("invalid utf8", func(t *testing.T) {
		_, err := pipeline.IngestFile(ctx, "broken.txt", []byte{0xff, 0xfe, 0xfd})
		assert.ErrorIs(t, err, ingest.ErrUnsupportedFileType)
	})

	t.Run("empty document", func(t *testing.T) {
		_, err := pipeline.IngestFile(ctx, "blank.txt", []byte("   \n\n  "))
		assert.ErrorIs(t, err, ingest.ErrEmptyDocument)
	})

	t.Run("remove document and chunks", func(t *testing.T) {
		doc, err := pipeline.IngestFile(ctx, "temp.txt", []byte("temporary searchable content"))
		require.NoError(t, err)

		require.NoError(t, pipeline.Remove(ctx, doc.ID))

		_, err = documents.Get(ctx, doc.ID)
		assert.ErrorIs(t, err, ingest.ErrDocumentNotFound)

		leftover, err := index.SearchKeyword(ctx, "temporary searchable", 10)
		require.NoError(t, err)
		assert.Empty(t, leftover)
	})

	t.Run("remove missing document", func(t *testing.T) {
		assert.ErrorIs(t, pipeline.Remove(ctx, uuid.New()), ingest.ErrDocumentNotFound)
	})
}
