package registry

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andrew/rag-vault/pkg/logger"
)

// DefaultRootName is the directory name that marks the vault root.
const DefaultRootName = "LIACARA"

// Logical registry paths recorded in payloads, independent of where the vault is mounted.
const (
	DocumentRegistryRef = "/LIACARA/Rag_Vault/registry/document_master_list.csv"
	MediaRegistryRef    = "/LIACARA/Media_Vault/registry/media_registry.csv"
)

// DocPrefix is the file-stem prefix of article documents.
const DocPrefix = "DOC_paper_"

// ErrRootNotFound is returned when no vault root exists above the start directory.
var ErrRootNotFound = errors.New("vault root not found")

// imageExts are the file extensions treated as images, lower-cased.
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
	".webp": true, ".tif": true, ".tiff": true,
}

// Layout resolves the well-known locations inside a vault root.
type Layout struct {
	Root string
}

// ArticlesDir holds one DOC_paper_* directory per document.
func (l Layout) ArticlesDir() string {
	return filepath.Join(l.Root, "Rag_Vault", "articles")
}

// DocumentRegistry is the path of the document master list.
func (l Layout) DocumentRegistry() string {
	return filepath.Join(l.Root, "Rag_Vault", "registry", "document_master_list.csv")
}

// ImagesDir is scanned recursively for media assets.
func (l Layout) ImagesDir() string {
	return filepath.Join(l.Root, "Media_Vault", "images")
}

// MediaRegistry is the path of the optional media registry.
func (l Layout) MediaRegistry() string {
	return filepath.Join(l.Root, "Media_Vault", "registry", "media_registry.csv")
}

// FindRoot walks upward from start looking for a child directory called name, then
// for an ancestor that is itself called name. An empty start uses the working directory.
func FindRoot(start, name string) (string, error) {
	if name == "" {
		name = DefaultRootName
	}
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		start = wd
	}
	current, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for dir := current; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}

	for dir := current; ; dir = filepath.Dir(dir) {
		if filepath.Base(dir) == name {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				return dir, nil
			}
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}

	return "", fmt.Errorf("%w: no %q directory above %s", ErrRootNotFound, name, start)
}

// SHA256File returns the hex-encoded SHA-256 of a file's contents.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DocIDFromPath derives a document id from a markdown file name (its stem).
func DocIDFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ListImages returns every image under root in sorted order. A missing root yields nil.
func ListImages(root string) ([]string, error) {
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	var images []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExts[strings.ToLower(filepath.Ext(path))] {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list images in %s: %w", root, err)
	}
	sort.Strings(images)
	return images, nil
}

// ListMarkdown returns the DOC_paper_*/DOC_paper_*.md files under the articles dir, sorted.
func ListMarkdown(articlesDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(articlesDir, DocPrefix+"*", DocPrefix+"*.md"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ChunkFileName is the JSONL file name holding the chunks of one document.
func ChunkFileName(docID string) string {
	return docID + "_chunks.jsonl"
}

// ChunkRow is one decoded line of a chunks file. Numbers are kept as json.Number.
type ChunkRow map[string]any

// WalkChunkFiles streams rows from DOC_paper_*/DOC_paper_*_chunks.jsonl under the
// articles dir in sorted directory order. Blank lines are ignored and malformed lines
// are logged and skipped; the number of skipped lines is returned.
func WalkChunkFiles(articlesDir string, fn func(ChunkRow) error) (int, error) {
	dirs, err := filepath.Glob(filepath.Join(articlesDir, DocPrefix+"*"))
	if err != nil {
		return 0, err
	}
	sort.Strings(dirs)

	skipped := 0
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		path := filepath.Join(dir, ChunkFileName(filepath.Base(dir)))
		n, err := readJSONL(path, fn)
		skipped += n
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

func readJSONL(path string, fn func(ChunkRow) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	skipped := 0
	reader := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			dec := json.NewDecoder(bytes.NewReader(line))
			dec.UseNumber()
			var row ChunkRow
			if err := dec.Decode(&row); err != nil {
				logger.Warn("Skipping malformed line %s:%d: %v", path, lineNo, err)
				skipped++
			} else if err := fn(row); err != nil {
				return skipped, err
			}
		}
		if readErr == io.EOF {
			return skipped, nil
		}
		if readErr != nil {
			return skipped, fmt.Errorf("read %s: %w", path, readErr)
		}
	}
}
