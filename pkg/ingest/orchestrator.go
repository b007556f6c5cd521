// Package ingest loads chunk records and media assets from a vault into the vector store.
package ingest

import (
	"context"

	"github.com/qdrant/go-client/qdrant"

	"github.com/andrew/rag-vault/pkg/embed"
	"github.com/andrew/rag-vault/pkg/llm"
	"github.com/andrew/rag-vault/pkg/logger"
	"github.com/andrew/rag-vault/pkg/registry"
	"github.com/andrew/rag-vault/pkg/vector"
)

// Default collection names.
const (
	DefaultTextCollection  = "rag_text_chunks"
	DefaultMediaCollection = "media_assets"
)

// Named vector slots of the media collection.
const (
	ImageVector   = "image"
	CaptionVector = "caption"
)

var (
	// TextIndexFields are the filterable payload fields of the text collection.
	TextIndexFields = []string{"doc_id", "page", "is_caption", "figure_id", "site_ids", "concept_ids", "license"}
	// MediaIndexFields are the filterable payload fields of the media collection.
	MediaIndexFields = []string{"media_id", "site_ids", "concept_ids", "license", "sensitivity"}
)

// Store is the part of vector.Store used during ingestion.
type Store interface {
	CreateOrRecreateCollection(ctx context.Context, name string, spec vector.VectorSpec, force bool, opts *vector.CollectionOptions) (bool, error)
	CreatePayloadIndexes(ctx context.Context, collection string, fields []string) []error
	UpsertPoints(ctx context.Context, collection string, ids []*qdrant.PointId, vectors []vector.Vectors, payloads []map[string]any, batchSize int) (int, error)
	Count(ctx context.Context, collection string, exact bool, filter *qdrant.Filter) (uint64, error)
	AssertVectorDim(ctx context.Context, collection, vectorName string, sample []float32) error
}

// Embedder produces normalised text and image vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedImages(ctx context.Context, paths []string) ([][]float32, error)
	TextDim() int
	ImageDim() int
}

// Options configure an ingestion run.
type Options struct {
	TextCollection  string
	MediaCollection string
	// KeepExisting leaves existing collections in place and upserts over them.
	// By default both collections are dropped and created empty.
	KeepExisting bool
	// TextBatch is the number of chunk rows buffered before embedding.
	TextBatch int
	// UpsertBatch is the number of points sent per upsert request.
	UpsertBatch int
	// Captioner, when set, captions images that have no registry caption.
	Captioner llm.Captioner
}

// Report summarises an ingestion run.
type Report struct {
	TextPoints  int
	MediaPoints int
	// SkippedRows counts malformed lines and rows without chunk_id or text.
	SkippedRows int
	// InvalidRows counts rows rejected by the chunk schema.
	InvalidRows int
	// Captioned counts captions produced by the captioner.
	Captioned int
	TextCount  uint64
	MediaCount uint64
	// IndexErrors are payload index failures; they do not stop the run.
	IndexErrors []error
	// Warnings are dimension check and captioning failures found after loading.
	Warnings []error
}

// Orchestrator drives a full load of one vault.
type Orchestrator struct {
	layout   registry.Layout
	store    Store
	embedder Embedder
	opts     Options
}

// New creates an orchestrator. Zero option fields take their defaults.
func New(layout registry.Layout, store Store, embedder Embedder, opts Options) *Orchestrator {
	if opts.TextCollection == "" {
		opts.TextCollection = DefaultTextCollection
	}
	if opts.MediaCollection == "" {
		opts.MediaCollection = DefaultMediaCollection
	}
	if opts.TextBatch <= 0 {
		opts.TextBatch = embed.DefaultTextBatch
	}
	if opts.UpsertBatch <= 0 {
		opts.UpsertBatch = vector.DefaultBatchSize
	}
	return &Orchestrator{layout: layout, store: store, embedder: embedder, opts: opts}
}

// batch is a set of points waiting to be upserted.
type batch struct {
	ids      []*qdrant.PointId
	vectors  []vector.Vectors
	payloads []map[string]any
}

func (b *batch) add(id *qdrant.PointId, v vector.Vectors, payload map[string]any) {
	b.ids = append(b.ids, id)
	b.vectors = append(b.vectors, v)
	b.payloads = append(b.payloads, payload)
}

func (b *batch) len() int { return len(b.ids) }

// Run creates the collections, loads text chunks and media assets, upserts them and
// checks vector dimensions on one sample point per collection.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	logger.Section("Collections")
	if err := o.prepareCollections(ctx, report); err != nil {
		return report, err
	}

	logger.Section("Text chunks")
	text, err := o.loadText(ctx, report)
	if err != nil {
		return report, err
	}

	logger.Section("Media assets")
	media, err := o.loadMedia(ctx, report)
	if err != nil {
		return report, err
	}

	logger.Section("Upsert")
	if report.TextPoints, err = o.upsert(ctx, o.opts.TextCollection, text); err != nil {
		return report, err
	}
	if report.MediaPoints, err = o.upsert(ctx, o.opts.MediaCollection, media); err != nil {
		return report, err
	}
	if report.TextCount, err = o.store.Count(ctx, o.opts.TextCollection, true, nil); err != nil {
		return report, err
	}
	if report.MediaCount, err = o.store.Count(ctx, o.opts.MediaCollection, true, nil); err != nil {
		return report, err
	}
	logger.Info("%s: %d points", o.opts.TextCollection, report.TextCount)
	logger.Info("%s: %d points", o.opts.MediaCollection, report.MediaCount)

	o.checkDims(ctx, text, media, report)
	return report, nil
}

func (o *Orchestrator) prepareCollections(ctx context.Context, report *Report) error {
	force := !o.opts.KeepExisting
	opts := &vector.CollectionOptions{OnDiskPayload: true}

	textSpec := vector.SingleSpec(uint64(o.embedder.TextDim()), qdrant.Distance_Cosine)
	if _, err := o.store.CreateOrRecreateCollection(ctx, o.opts.TextCollection, textSpec, force, opts); err != nil {
		return err
	}

	mediaSpec := vector.NamedSpec(
		vector.NamedSpace{Name: ImageVector, VectorSpace: vector.VectorSpace{Size: uint64(o.embedder.ImageDim()), Distance: qdrant.Distance_Cosine}},
		vector.NamedSpace{Name: CaptionVector, VectorSpace: vector.VectorSpace{Size: uint64(o.embedder.TextDim()), Distance: qdrant.Distance_Cosine}},
	)
	if _, err := o.store.CreateOrRecreateCollection(ctx, o.opts.MediaCollection, mediaSpec, force, opts); err != nil {
		return err
	}

	report.IndexErrors = append(report.IndexErrors, o.store.CreatePayloadIndexes(ctx, o.opts.TextCollection, TextIndexFields)...)
	report.IndexErrors = append(report.IndexErrors, o.store.CreatePayloadIndexes(ctx, o.opts.MediaCollection, MediaIndexFields)...)
	for _, err := range report.IndexErrors {
		logger.Debug("Payload index skipped: %v", err)
	}
	logger.Info("Collections ready: %s, %s", o.opts.TextCollection, o.opts.MediaCollection)
	return nil
}

func (o *Orchestrator) upsert(ctx context.Context, collection string, b *batch) (int, error) {
	if b.len() == 0 {
		logger.Warn("No points for %s", collection)
		return 0, nil
	}
	n, err := o.store.UpsertPoints(ctx, collection, b.ids, b.vectors, b.payloads, o.opts.UpsertBatch)
	if err != nil {
		return n, err
	}
	logger.Info("Upserted %d points into %s", n, collection)
	return n, nil
}

// checkDims runs the dimension guard on the first point of each collection. Failures
// become warnings because the data is already written.
func (o *Orchestrator) checkDims(ctx context.Context, text, media *batch, report *Report) {
	warn := func(err error) {
		if err != nil {
			logger.Warn("Dimension check: %v", err)
			report.Warnings = append(report.Warnings, err)
		}
	}

	if text.len() > 0 {
		warn(o.store.AssertVectorDim(ctx, o.opts.TextCollection, "", text.vectors[0].Dense))
	}
	if media.len() > 0 {
		sample := media.vectors[0].Named
		warn(o.store.AssertVectorDim(ctx, o.opts.MediaCollection, ImageVector, sample[ImageVector]))
		for _, v := range media.vectors {
			if caption, ok := v.Named[CaptionVector]; ok {
				warn(o.store.AssertVectorDim(ctx, o.opts.MediaCollection, CaptionVector, caption))
				break
			}
		}
	}
}
