package chunker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew/rag-vault/pkg/logger"
	"github.com/andrew/rag-vault/pkg/models"
	"github.com/andrew/rag-vault/pkg/registry"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevColor := color.NoColor
	color.NoColor = true
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		color.NoColor = prevColor
	})
	return &buf
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readChunks(t *testing.T, path string) []models.Chunk {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var chunks []models.Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var ch models.Chunk
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ch))
		chunks = append(chunks, ch)
	}
	require.NoError(t, sc.Err())
	return chunks
}

func testRegistry() registry.DocumentRegistry {
	return registry.DocumentRegistry{
		"DOC_paper_01": {
			SiteIDs:    []string{"a", "b"},
			ConceptIDs: []string{},
			License:    "CC-BY",
		},
	}
}

func TestNew_ValidatesMethodUpFront(t *testing.T) {
	_, err := New(testRegistry(), WithMethod("sentence"))
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = New(testRegistry(), WithMethod("semantic"))
	assert.ErrorIs(t, err, ErrEmbeddingsRequired)

	c, err := New(testRegistry(), WithMethod("Markdown"), WithChunkSize(-1), WithOverlap(-5))
	require.NoError(t, err)
	assert.Equal(t, "markdown", c.Method())
	assert.Equal(t, DefaultChunkSize, c.chunkSize)
	assert.Equal(t, DefaultChunkOverlap, c.overlap)
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "CHUNK_01_0001", ChunkID("DOC_paper_01", 1))
	assert.Equal(t, "CHUNK_abc_0123", ChunkID("DOC_paper_abc", 123))
	assert.Equal(t, "notes_0002", ChunkID("notes", 2))
}

func TestChunkFile_EndToEnd(t *testing.T) {
	captureLog(t)
	dir := t.TempDir()
	md := filepath.Join(dir, "DOC_paper_01", "DOC_paper_01.md")
	writeFile(t, md, strings.Repeat("word ", 500))

	c, err := New(testRegistry(), WithChunkSize(1000), WithOverlap(200))
	require.NoError(t, err)

	chunks, err := c.ChunkFile(context.Background(), md)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	sum, err := registry.SHA256File(md)
	require.NoError(t, err)
	for i, ch := range chunks {
		assert.Equal(t, "DOC_paper_01", ch.DocID)
		assert.Equal(t, ChunkID("DOC_paper_01", i+1), ch.ChunkID)
		assert.Equal(t, []string{"a", "b"}, ch.SiteIDs)
		assert.Equal(t, "CC-BY", ch.License)
		assert.Equal(t, registry.DocumentRegistryRef, ch.RegistryPath)
		assert.Equal(t, sum, ch.Checksum, "falls back to the file hash")
		assert.True(t, filepath.IsAbs(ch.SourcePath))
	}
}

func TestChunkText_RegistryChecksumWins(t *testing.T) {
	captureLog(t)
	reg := registry.DocumentRegistry{"DOC_paper_05": {Checksum: "fromregistry"}}
	c, err := New(reg)
	require.NoError(t, err)

	chunks, err := c.ChunkText(context.Background(), "DOC_paper_05", "/x.md", "computed", "hello")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "fromregistry", chunks[0].Checksum)
}

func TestChunkText_UnknownDocumentWarns(t *testing.T) {
	buf := captureLog(t)
	c, err := New(testRegistry())
	require.NoError(t, err)

	chunks, err := c.ChunkText(context.Background(), "DOC_paper_42", "/x.md", "sum", "some text")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{}, chunks[0].SiteIDs)
	assert.Empty(t, chunks[0].License)
	assert.Contains(t, buf.String(), `[WARN] doc_id "DOC_paper_42" not found in registry`)

	chunks, err = c.ChunkText(context.Background(), "DOC_paper_01", "/x.md", "sum", "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessAll(t *testing.T) {
	captureLog(t)
	articles := t.TempDir()
	writeFile(t, filepath.Join(articles, "DOC_paper_01", "DOC_paper_01.md"), strings.Repeat("word ", 500))
	writeFile(t, filepath.Join(articles, "DOC_paper_03", "DOC_paper_03.md"), "# Title\n\nShort body.")
	// a directory where the markdown file should be cannot be read
	require.NoError(t, os.MkdirAll(filepath.Join(articles, "DOC_paper_02", "DOC_paper_02.md"), 0o755))

	t.Run("sibling output", func(t *testing.T) {
		c, err := New(testRegistry())
		require.NoError(t, err)

		stats, err := c.ProcessAll(context.Background(), articles)
		require.NoError(t, err)
		assert.Equal(t, Stats{Processed: 2, Failed: 1, TotalChunks: 4}, stats)

		chunks := readChunks(t, filepath.Join(articles, "DOC_paper_01", "DOC_paper_01_chunks.jsonl"))
		require.Len(t, chunks, 3)
		assert.Equal(t, "CHUNK_01_0003", chunks[2].ChunkID)

		chunks = readChunks(t, filepath.Join(articles, "DOC_paper_03", "DOC_paper_03_chunks.jsonl"))
		require.Len(t, chunks, 1)
		assert.Equal(t, "# Title\n\nShort body.", chunks[0].Text)
	})

	t.Run("output dir", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "chunks")
		c, err := New(testRegistry(), WithOutputDir(out))
		require.NoError(t, err)

		stats, err := c.ProcessAll(context.Background(), articles)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Processed)
		assert.FileExists(t, filepath.Join(out, "DOC_paper_01_chunks.jsonl"))
		assert.FileExists(t, filepath.Join(out, "DOC_paper_03_chunks.jsonl"))
	})

	t.Run("no files", func(t *testing.T) {
		c, err := New(testRegistry())
		require.NoError(t, err)

		stats, err := c.ProcessAll(context.Background(), t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, Stats{}, stats)
	})
}

func TestWriteJSONL_KeepsUnicodeAndOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "x_chunks.jsonl")
	chunks := []models.Chunk{
		{ChunkID: "x_0001", Text: "café <b>", SiteIDs: []string{}, ConceptIDs: []string{}},
		{ChunkID: "x_0002", Text: "second", SiteIDs: []string{}, ConceptIDs: []string{}},
	}
	require.NoError(t, WriteJSONL(path, chunks))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"text":"café <b>"`)
	assert.Equal(t, chunks, readChunks(t, path))
}
