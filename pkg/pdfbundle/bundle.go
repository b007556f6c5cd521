package pdfbundle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andrew/rag-vault/pkg/logger"
	"github.com/andrew/rag-vault/pkg/models"
)

// Bundle layout names.
const (
	TextOnlyFile = "text_only.txt"
	IndexFile    = "dataset_index.json"
	tablesDir    = "tables"
	imagesDir    = "images"
)

// Summary reports the outcome of a batch run.
type Summary struct {
	Bundles   []models.Bundle
	Failed    int
	IndexPath string
}

// FindPDFs returns every .pdf file under dir, recursively and sorted.
func FindPDFs(dir string) ([]string, error) {
	var pdfs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isPDF(path) {
			pdfs = append(pdfs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(pdfs)
	return pdfs, nil
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// ProcessPDF converts one PDF into <outRoot>/<pdf stem>/ and returns its manifest record.
func ProcessPDF(ctx context.Context, conv Converter, pdfPath, outRoot string) (models.Bundle, error) {
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	workDir := filepath.Join(outRoot, stem)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return models.Bundle{}, err
	}

	mdPath, err := conv.Convert(ctx, pdfPath, workDir)
	if err != nil {
		return models.Bundle{}, err
	}
	raw, err := os.ReadFile(mdPath)
	if err != nil {
		return models.Bundle{}, fmt.Errorf("read markdown: %w", err)
	}
	split := SplitMarkdown(strings.ToValidUTF8(string(raw), ""), filepath.Dir(mdPath))

	textPath := filepath.Join(workDir, TextOnlyFile)
	if err := os.WriteFile(textPath, []byte(split.Text), 0o644); err != nil {
		return models.Bundle{}, err
	}

	bundle := models.Bundle{
		PDF:            absPath(pdfPath),
		BundleDir:      absPath(workDir),
		Markdown:       absPath(mdPath),
		TextOnly:       absPath(textPath),
		TablesMarkdown: []string{},
		TablesCSV:      []string{},
	}

	tables := filepath.Join(workDir, tablesDir)
	if err := os.MkdirAll(tables, 0o755); err != nil {
		return models.Bundle{}, err
	}
	for i, table := range split.Tables {
		mdOut := filepath.Join(tables, fmt.Sprintf("table_%d.md", i+1))
		if err := os.WriteFile(mdOut, []byte(strings.Join(table, "\n")+"\n"), 0o644); err != nil {
			return models.Bundle{}, err
		}
		bundle.TablesMarkdown = append(bundle.TablesMarkdown, absPath(mdOut))

		if rows := TableToRows(table); len(rows) > 0 {
			csvOut := filepath.Join(tables, fmt.Sprintf("table_%d.csv", i+1))
			if err := WriteCSV(csvOut, rows); err != nil {
				return models.Bundle{}, err
			}
			bundle.TablesCSV = append(bundle.TablesCSV, absPath(csvOut))
		}
	}

	bundle.Images, err = CopyImages(split.Images, filepath.Join(workDir, imagesDir))
	if err != nil {
		return models.Bundle{}, err
	}
	bundle.NumTables = len(bundle.TablesMarkdown)
	bundle.NumImages = len(bundle.Images)
	return bundle, nil
}

// Run converts every PDF under pdfDir. Failed PDFs are logged and counted, and the
// index written to outDir lists only the successful bundles. No index is written when
// pdfDir holds no PDFs.
func Run(ctx context.Context, conv Converter, pdfDir, outDir string) (Summary, error) {
	summary := Summary{Bundles: []models.Bundle{}}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return summary, err
	}
	pdfs, err := FindPDFs(pdfDir)
	if err != nil {
		return summary, fmt.Errorf("find pdfs: %w", err)
	}
	if len(pdfs) == 0 {
		logger.Info("No PDFs found in %s", absPath(pdfDir))
		return summary, nil
	}

	for _, pdf := range pdfs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		logger.Info("Processing %s", pdf)
		bundle, err := ProcessPDF(ctx, conv, pdf, outDir)
		if err != nil {
			logger.Error("Failed on %s: %v", filepath.Base(pdf), err)
			summary.Failed++
			continue
		}
		logger.Debug("Bundle %s: %d tables, %d images", bundle.BundleDir, bundle.NumTables, bundle.NumImages)
		summary.Bundles = append(summary.Bundles, bundle)
	}

	summary.IndexPath = filepath.Join(outDir, IndexFile)
	if err := WriteIndex(summary.IndexPath, summary.Bundles); err != nil {
		return summary, err
	}
	logger.Info("Wrote index %s", absPath(summary.IndexPath))
	return summary, nil
}

// WriteIndex writes bundles as a 2-space indented JSON array.
func WriteIndex(path string, bundles []models.Bundle) error {
	if bundles == nil {
		bundles = []models.Bundle{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundles); err != nil {
		return err
	}
	return os.WriteFile(path, bytes.TrimRight(buf.Bytes(), "\n"), 0o644)
}

// ReadIndex loads an index written by WriteIndex. A missing file yields no bundles.
func ReadIndex(path string) ([]models.Bundle, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []models.Bundle{}, nil
	}
	if err != nil {
		return nil, err
	}
	var bundles []models.Bundle
	if err := json.Unmarshal(raw, &bundles); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return bundles, nil
}
