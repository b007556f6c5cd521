package ingest

import (
	"context"
	"fmt"

	"github.com/andrew/rag-vault/pkg/logger"
	"github.com/andrew/rag-vault/pkg/registry"
	"github.com/andrew/rag-vault/pkg/vector"
)

// chunkID returns the row's chunk_id, falling back to its id field.
func chunkID(row registry.ChunkRow) string {
	for _, key := range []string{"chunk_id", "id"} {
		switch v := row[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case fmt.Stringer:
			if s := v.String(); s != "" {
				return s
			}
		}
	}
	return ""
}

// rowPayload copies the row without its null fields.
func rowPayload(row registry.ChunkRow) map[string]any {
	payload := make(map[string]any, len(row))
	for k, v := range row {
		if v != nil {
			payload[k] = v
		}
	}
	return payload
}

// loadText streams chunk rows, embeds them in TextBatch groups and returns the points.
func (o *Orchestrator) loadText(ctx context.Context, report *Report) (*batch, error) {
	points := &batch{}
	var (
		ids      []string
		texts    []string
		payloads []map[string]any
	)

	flush := func() error {
		if len(texts) == 0 {
			return nil
		}
		vecs, err := o.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		for i, v := range vecs {
			points.add(vector.StringID(ids[i]), vector.Dense(v), payloads[i])
		}
		logger.Debug("Embedded %d chunks (%d total)", len(texts), points.len())
		ids, texts, payloads = ids[:0], texts[:0], payloads[:0]
		return nil
	}

	skipped, err := registry.WalkChunkFiles(o.layout.ArticlesDir(), func(row registry.ChunkRow) error {
		if err := ValidateRow(row); err != nil {
			logger.Warn("Skipping invalid chunk row %v: %v", row["chunk_id"], err)
			report.InvalidRows++
			return nil
		}
		id := chunkID(row)
		text, _ := row["text"].(string)
		if id == "" || text == "" {
			report.SkippedRows++
			return nil
		}

		ids = append(ids, id)
		texts = append(texts, text)
		payloads = append(payloads, rowPayload(row))
		if len(texts) >= o.opts.TextBatch {
			return flush()
		}
		return nil
	})
	report.SkippedRows += skipped
	if err != nil {
		return nil, fmt.Errorf("read chunk files: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	logger.Info("Prepared %d text points (%d skipped, %d invalid)", points.len(), report.SkippedRows, report.InvalidRows)
	return points, nil
}
