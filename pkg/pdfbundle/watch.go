package pdfbundle

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/andrew/rag-vault/pkg/logger"
	"github.com/andrew/rag-vault/pkg/models"
)

// DefaultSettle is how long a PDF must go without write events before it is converted.
const DefaultSettle = 2 * time.Second

// Watcher converts PDFs dropped into or rewritten in a directory and keeps the
// index in outDir up to date.
type Watcher struct {
	conv   Converter
	pdfDir string
	outDir string
	// Settle delays conversion until writes to a file have stopped.
	Settle time.Duration
	// OnBundle, when set, is called after each successful conversion.
	OnBundle func(models.Bundle)
}

// NewWatcher creates a watcher for pdfDir.
func NewWatcher(conv Converter, pdfDir, outDir string) *Watcher {
	return &Watcher{conv: conv, pdfDir: pdfDir, outDir: outDir, Settle: DefaultSettle}
}

// Watch blocks until ctx is cancelled. Subdirectories are not watched.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.pdfDir); err != nil {
		return err
	}
	logger.Info("Watching %s for PDFs", absPath(w.pdfDir))

	settle := w.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isPDF(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error: %v", err)
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				w.convert(ctx, path)
			}
		}
	}
}

func (w *Watcher) convert(ctx context.Context, pdf string) {
	logger.Info("Processing %s", pdf)
	bundle, err := ProcessPDF(ctx, w.conv, pdf, w.outDir)
	if err != nil {
		logger.Error("Failed on %s: %v", filepath.Base(pdf), err)
		return
	}
	if err := w.updateIndex(bundle); err != nil {
		logger.Error("Update index: %v", err)
	}
	if w.OnBundle != nil {
		w.OnBundle(bundle)
	}
}

// updateIndex replaces the record for the bundle's PDF, or appends it.
func (w *Watcher) updateIndex(bundle models.Bundle) error {
	path := filepath.Join(w.outDir, IndexFile)
	bundles, err := ReadIndex(path)
	if err != nil {
		return err
	}
	replaced := false
	for i := range bundles {
		if bundles[i].PDF == bundle.PDF {
			bundles[i] = bundle
			replaced = true
		}
	}
	if !replaced {
		bundles = append(bundles, bundle)
	}
	return WriteIndex(path, bundles)
}
