package chunker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andrew/rag-vault/pkg/logger"
	"github.com/andrew/rag-vault/pkg/models"
	"github.com/andrew/rag-vault/pkg/registry"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Stats summarises a ProcessAll run.
type Stats struct {
	Processed   int
	Failed      int
	TotalChunks int
}

// Chunker splits article markdown into chunk records stamped with registry metadata.
type Chunker struct {
	method    string
	chunkSize int
	overlap   int
	outputDir string
	embedder  Embedder
	registry  registry.DocumentRegistry
	splitter  Splitter
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMethod selects the chunking strategy by name.
func WithMethod(name string) Option {
	return func(c *Chunker) {
		c.method = name
	}
}

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithOutputDir writes chunk files into dir instead of next to each source file.
func WithOutputDir(dir string) Option {
	return func(c *Chunker) {
		c.outputDir = dir
	}
}

// WithEmbedder sets the embedder used by the semantic method.
func WithEmbedder(e Embedder) Option {
	return func(c *Chunker) {
		c.embedder = e
	}
}

// New creates a Chunker over a loaded document registry. An unknown method or a
// semantic method without an embedder fails here, before any document is read.
func New(reg registry.DocumentRegistry, opts ...Option) (*Chunker, error) {
	c := &Chunker{
		method:    string(MethodRecursive),
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		registry:  reg,
	}
	for _, opt := range opts {
		opt(c)
	}

	method, err := ParseMethod(c.method)
	if err != nil {
		return nil, err
	}
	c.method = string(method)

	c.splitter, err = NewSplitter(method, c.chunkSize, c.overlap, c.embedder)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Method returns the resolved strategy name.
func (c *Chunker) Method() string {
	return c.method
}

// ChunkID builds the id of the seq-th chunk (1-based) of a document.
func ChunkID(docID string, seq int) string {
	if short, ok := strings.CutPrefix(docID, registry.DocPrefix); ok {
		return fmt.Sprintf("CHUNK_%s_%04d", short, seq)
	}
	return fmt.Sprintf("%s_%04d", docID, seq)
}

func (c *Chunker) metadata(docID string) models.DocumentMeta {
	meta, ok := c.registry.Lookup(docID)
	if !ok {
		logger.Warn("doc_id %q not found in registry, using empty metadata", docID)
	}
	return meta
}

// ChunkText splits text and stamps every piece with the document's metadata.
func (c *Chunker) ChunkText(ctx context.Context, docID, sourcePath, checksum, text string) ([]models.Chunk, error) {
	meta := c.metadata(docID)
	if meta.Checksum != "" {
		checksum = meta.Checksum
	}

	texts, err := c.splitter.Split(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", docID, err)
	}

	chunks := make([]models.Chunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, models.Chunk{
			DocID:        docID,
			ChunkID:      ChunkID(docID, i+1),
			Text:         t,
			SiteIDs:      meta.SiteIDs,
			ConceptIDs:   meta.ConceptIDs,
			License:      meta.License,
			SourcePath:   sourcePath,
			RegistryPath: registry.DocumentRegistryRef,
			Checksum:     checksum,
		})
	}
	return chunks, nil
}

// ChunkFile reads one markdown file and returns its chunks. The registry checksum is
// preferred over the computed file hash.
func (c *Chunker) ChunkFile(ctx context.Context, mdPath string) ([]models.Chunk, error) {
	data, err := os.ReadFile(mdPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mdPath, err)
	}
	checksum, err := registry.SHA256File(mdPath)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(mdPath)
	if err != nil {
		return nil, err
	}

	text := strings.ToValidUTF8(string(data), "")
	return c.ChunkText(ctx, registry.DocIDFromPath(mdPath), abs, checksum, text)
}

// OutputPath is where the chunks of mdPath are written.
func (c *Chunker) OutputPath(mdPath string) string {
	dir := c.outputDir
	if dir == "" {
		dir = filepath.Dir(mdPath)
	}
	return filepath.Join(dir, registry.ChunkFileName(registry.DocIDFromPath(mdPath)))
}

// WriteJSONL writes one chunk per line, in order, replacing any existing file.
func WriteJSONL(path string, chunks []models.Chunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, ch := range chunks {
		if err := enc.Encode(ch); err != nil {
			return fmt.Errorf("encode %s: %w", ch.ChunkID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// ProcessAll chunks every DOC_paper_* markdown file under articlesDir. A document that
// fails is logged and counted, and the run continues.
func (c *Chunker) ProcessAll(ctx context.Context, articlesDir string) (Stats, error) {
	var stats Stats

	files, err := registry.ListMarkdown(articlesDir)
	if err != nil {
		return stats, err
	}
	if len(files) == 0 {
		logger.Info("No markdown files found in %s", articlesDir)
		return stats, nil
	}

	logger.Info("Found %d markdown files to process", len(files))
	logger.Info("Using chunking method: %s", c.method)

	for _, mdPath := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		logger.Info("Processing: %s", filepath.Base(mdPath))
		chunks, err := c.ChunkFile(ctx, mdPath)
		if err == nil {
			out := c.OutputPath(mdPath)
			if err = WriteJSONL(out, chunks); err == nil {
				logger.Info("  created %d chunks -> %s", len(chunks), out)
			}
		}
		if err != nil {
			logger.Error("Failed to process %s: %v", filepath.Base(mdPath), err)
			stats.Failed++
			continue
		}

		stats.Processed++
		stats.TotalChunks += len(chunks)
	}
	return stats, nil
}
