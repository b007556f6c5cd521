// Package embed turns texts and images into L2-normalised vectors using models held
// by an explicitly constructed Provider.
package embed

import (
	"context"
	"fmt"
	"math"

	"github.com/andrew/rag-vault/pkg/logger"
)

const (
	// DefaultTextBatch bounds the number of texts sent to the text model per call.
	DefaultTextBatch = 256
	// DefaultImageBatch bounds the number of images sent to the image model per call.
	DefaultImageBatch = 64

	epsilon = 1e-12
)

// TextModel encodes texts into raw vectors, one per input, in order.
type TextModel interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// ImageModel encodes preprocessed PNG images into raw vectors, one per input, in order.
type ImageModel interface {
	Embed(ctx context.Context, images [][]byte) ([][]float32, error)
	Dim() int
}

// Provider owns the loaded models for the lifetime of a run. Build one per process
// and pass it to whatever needs embeddings.
type Provider struct {
	Text       TextModel
	Image      ImageModel
	TextBatch  int
	ImageBatch int
}

// NewProvider wires the models with the default batch sizes. Either model may be nil
// when only one kind of embedding is needed.
func NewProvider(text TextModel, image ImageModel) *Provider {
	return &Provider{
		Text:       text,
		Image:      image,
		TextBatch:  DefaultTextBatch,
		ImageBatch: DefaultImageBatch,
	}
}

// TextDim is the dimension of text vectors.
func (p *Provider) TextDim() int {
	if p.Text == nil {
		return 0
	}
	return p.Text.Dim()
}

// ImageDim is the dimension of image vectors.
func (p *Provider) ImageDim() int {
	if p.Image == nil {
		return 0
	}
	return p.Image.Dim()
}

// EmbedTexts encodes texts in batches and normalises every row to unit length.
func (p *Provider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if p.Text == nil {
		return nil, fmt.Errorf("embed texts: no text model configured")
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(len(texts), p.TextBatch) {
		vecs, err := p.Text.Embed(ctx, texts[batch[0]:batch[1]])
		if err != nil {
			return nil, fmt.Errorf("embed texts: %w", err)
		}
		if len(vecs) != batch[1]-batch[0] {
			return nil, fmt.Errorf("embed texts: model returned %d vectors for %d texts", len(vecs), batch[1]-batch[0])
		}
		for _, v := range vecs {
			out = append(out, Normalize(v))
		}
		logger.Debug("Embedded texts %d-%d of %d", batch[0]+1, batch[1], len(texts))
	}
	return out, nil
}

// EmbedImages loads, preprocesses and encodes images in batches. An image that cannot
// be loaded is left out of its model batch and gets an all-zero row at its own index,
// so the output always has one row per input path in input order.
func (p *Provider) EmbedImages(ctx context.Context, paths []string) ([][]float32, error) {
	if len(paths) == 0 {
		return [][]float32{}, nil
	}
	if p.Image == nil {
		return nil, fmt.Errorf("embed images: no image model configured")
	}

	out := make([][]float32, len(paths))
	dim := p.Image.Dim()
	for _, batch := range batches(len(paths), p.ImageBatch) {
		var (
			images  [][]byte
			indexes []int
		)
		for i := batch[0]; i < batch[1]; i++ {
			img, err := LoadImage(paths[i])
			if err != nil {
				logger.Warn("Skipping image %s: %v", paths[i], err)
				continue
			}
			images = append(images, img)
			indexes = append(indexes, i)
		}
		if len(images) == 0 {
			continue
		}

		vecs, err := p.Image.Embed(ctx, images)
		if err != nil {
			return nil, fmt.Errorf("embed images: %w", err)
		}
		if len(vecs) != len(images) {
			return nil, fmt.Errorf("embed images: model returned %d vectors for %d images", len(vecs), len(images))
		}
		for j, idx := range indexes {
			out[idx] = Normalize(vecs[j])
			if dim == 0 {
				dim = len(vecs[j])
			}
		}
		logger.Debug("Embedded images %d-%d of %d (%d loaded)", batch[0]+1, batch[1], len(paths), len(images))
	}

	for i := range out {
		if out[i] == nil {
			out[i] = make([]float32, dim)
		}
	}
	return out, nil
}

// Normalize scales v to unit L2 norm in place and returns it. The epsilon keeps
// all-zero vectors at zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + epsilon
	for i, x := range v {
		v[i] = float32(float64(x) / norm)
	}
	return v
}

// batches returns [start, end) bounds covering n items in groups of size.
func batches(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
