// Package pdfbundle converts PDFs to markdown with an external tool and splits the
// result into a bundle of plain text, tables and images.
package pdfbundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/andrew/rag-vault/pkg/logger"
)

// ErrConversionFailed is returned when no conversion command produced markdown.
var ErrConversionFailed = errors.New("pdf conversion failed")

// Converter turns one PDF into a markdown file written under outDir.
type Converter interface {
	Convert(ctx context.Context, pdfPath, outDir string) (string, error)
}

// DefaultMarkerCommands are tried in order. {pdf} and {out} are replaced by the
// input file and the output directory.
var DefaultMarkerCommands = [][]string{
	{"marker", "convert", "{pdf}", "--output-dir", "{out}"},
	{"marker", "{pdf}", "--output-dir", "{out}"},
	{"python", "-m", "marker", "convert", "{pdf}", "--output-dir", "{out}"},
	{"python3", "-m", "marker", "convert", "{pdf}", "--output-dir", "{out}"},
}

// MarkerConverter runs the Marker CLI, trying each command form until one succeeds.
type MarkerConverter struct {
	Commands [][]string
}

// NewMarkerConverter returns a converter using DefaultMarkerCommands.
func NewMarkerConverter() *MarkerConverter {
	return &MarkerConverter{Commands: DefaultMarkerCommands}
}

// Convert runs the commands in order and returns the newest markdown file in outDir
// after the first one that exits cleanly.
func (m *MarkerConverter) Convert(ctx context.Context, pdfPath, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}

	lastErr := "no commands configured"
	for _, tmpl := range m.Commands {
		if len(tmpl) == 0 {
			continue
		}
		args := expand(tmpl, pdfPath, outDir)

		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Stderr = &stderr
		logger.Debug("Running %s", strings.Join(args, " "))
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = strings.TrimSpace(stderr.String())
			if lastErr == "" {
				lastErr = err.Error()
			}
			continue
		}

		md, err := newestMarkdown(outDir)
		if err != nil {
			return "", err
		}
		if md != "" {
			return md, nil
		}
		lastErr = fmt.Sprintf("marker ran but no .md found in %s", outDir)
	}
	return "", fmt.Errorf("%w: %s (is marker-pdf installed and on PATH?)", ErrConversionFailed, lastErr)
}

func expand(tmpl []string, pdfPath, outDir string) []string {
	args := make([]string, len(tmpl))
	for i, a := range tmpl {
		a = strings.ReplaceAll(a, "{pdf}", pdfPath)
		args[i] = strings.ReplaceAll(a, "{out}", outDir)
	}
	return args
}

// newestMarkdown finds the most recently modified .md under dir, ignoring the
// tables/ directory of an earlier bundle.
func newestMarkdown(dir string) (string, error) {
	var (
		newest string
		latest int64
	)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == tablesDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if mt := info.ModTime().UnixNano(); newest == "" || mt > latest {
			newest, latest = path, mt
		}
		return nil
	})
	return newest, err
}
