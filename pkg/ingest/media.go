package ingest

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/andrew/rag-vault/pkg/embed"
	"github.com/andrew/rag-vault/pkg/logger"
	"github.com/andrew/rag-vault/pkg/models"
	"github.com/andrew/rag-vault/pkg/registry"
	"github.com/andrew/rag-vault/pkg/vector"
)

// BuildAsset assembles the media asset for an image file from its registry row,
// which may be nil.
func BuildAsset(path string, row models.MediaRow) models.MediaAsset {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	asset := models.MediaAsset{
		MediaID:      row.Get("media_id"),
		SiteIDs:      registry.ToTags(row.Get("site_ids")),
		ConceptIDs:   registry.ToTags(row.Get("concept_ids")),
		SourcePath:   row.Get("path"),
		RegistryPath: registry.MediaRegistryRef,
		License:      row.Get("license"),
		Checksum:     row.Get("checksum_sha256"),
		Sensitivity:  row.Get("sensitivity"),
		AssetType:    row.Get("media_type"),
		ImageURI:     (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
		CaptionText:  strings.TrimSpace(row.Get("source_ref")),
		Width:        registry.IntPtr(row.Get("width")),
		Height:       registry.IntPtr(row.Get("height")),
	}
	if asset.MediaID == "" {
		asset.MediaID = registry.DocIDFromPath(path)
	}
	if asset.SourcePath == "" {
		asset.SourcePath = abs
	}
	if asset.AssetType == "" {
		asset.AssetType = "image"
	}
	if parents := registry.ToTags(row.Get("parent_ids")); len(parents) > 0 {
		asset.ParentDocID = &parents[0]
	}
	if asset.Checksum == "" {
		sum, err := registry.SHA256File(path)
		if err != nil {
			logger.Warn("Checksum %s: %v", path, err)
		}
		asset.Checksum = sum
	}
	return asset
}

// mediaPointID is derived from the registry media_id when there is one, else from
// the absolute file path, so reloading the same vault overwrites the same points.
func mediaPointID(path string, row models.MediaRow) *qdrant.PointId {
	if id := row.Get("media_id"); id != "" {
		return vector.StringID(id)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return vector.StringID("file:" + abs)
}

// loadMedia embeds every image under the images dir and its caption, if any.
func (o *Orchestrator) loadMedia(ctx context.Context, report *Report) (*batch, error) {
	points := &batch{}

	paths, err := registry.ListImages(o.layout.ImagesDir())
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		logger.Info("No images found under %s", o.layout.ImagesDir())
		return points, nil
	}
	reg, err := registry.LoadMediaRegistry(o.layout.MediaRegistry())
	if err != nil {
		return nil, fmt.Errorf("load media registry: %w", err)
	}
	logger.Info("Found %d images (%d registry keys)", len(paths), len(reg))

	imageVecs, err := o.embedder.EmbedImages(ctx, paths)
	if err != nil {
		return nil, err
	}

	assets := make([]models.MediaAsset, len(paths))
	rows := make([]models.MediaRow, len(paths))
	for i, path := range paths {
		rows[i], _ = reg.Lookup(path)
		assets[i] = BuildAsset(path, rows[i])
	}
	o.fillCaptions(ctx, paths, assets, report)

	var (
		captionIdx []int
		captions   []string
	)
	for i, asset := range assets {
		if asset.CaptionText != "" {
			captionIdx = append(captionIdx, i)
			captions = append(captions, asset.CaptionText)
		}
	}
	captionVecs, err := o.embedder.EmbedTexts(ctx, captions)
	if err != nil {
		return nil, fmt.Errorf("embed captions: %w", err)
	}
	byIndex := make(map[int][]float32, len(captionIdx))
	for j, i := range captionIdx {
		byIndex[i] = captionVecs[j]
	}

	for i, path := range paths {
		named := map[string][]float32{ImageVector: imageVecs[i]}
		if v, ok := byIndex[i]; ok {
			named[CaptionVector] = v
		}
		points.add(mediaPointID(path, rows[i]), vector.Named(named), assets[i].Payload())
	}

	logger.Info("Prepared %d media points (%d with captions)", points.len(), len(captionIdx))
	return points, nil
}

// fillCaptions asks the captioner for assets without a caption. Failures are warnings.
func (o *Orchestrator) fillCaptions(ctx context.Context, paths []string, assets []models.MediaAsset, report *Report) {
	if o.opts.Captioner == nil {
		return
	}
	for i := range assets {
		if assets[i].CaptionText != "" {
			continue
		}
		img, err := embed.LoadImage(paths[i])
		if err == nil {
			assets[i].CaptionText, err = o.opts.Captioner.Caption(ctx, img)
		}
		if err != nil {
			err = fmt.Errorf("caption %s: %w", paths[i], err)
			logger.Warn("%v", err)
			report.Warnings = append(report.Warnings, err)
			continue
		}
		if assets[i].CaptionText != "" {
			report.Captioned++
			logger.Debug("Captioned %s: %s", paths[i], assets[i].CaptionText)
		}
	}
}
