// Package registry loads the CSV registries that describe vault documents and media,
// and knows where things live inside a vault root.
package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/andrew/rag-vault/pkg/models"
)

var (
	// ErrRegistryNotFound is returned when the required document registry is missing.
	ErrRegistryNotFound = errors.New("registry not found")

	// ErrMissingColumn is returned when a registry lacks its key column.
	ErrMissingColumn = errors.New("registry missing required column")
)

// DocumentRegistry maps doc_id to its provenance metadata.
type DocumentRegistry map[string]models.DocumentMeta

// Lookup returns the metadata for docID, or empty metadata and false when absent.
func (r DocumentRegistry) Lookup(docID string) (models.DocumentMeta, bool) {
	meta, ok := r[docID]
	if !ok {
		return models.EmptyDocumentMeta(), false
	}
	return meta, true
}

// MediaRegistry maps media_id, file name and file stem to the raw registry row.
type MediaRegistry map[string]models.MediaRow

// Lookup finds the row for an image file by its name first, then its stem.
func (r MediaRegistry) Lookup(path string) (models.MediaRow, bool) {
	name := filepath.Base(path)
	if row, ok := r[name]; ok {
		return row, true
	}
	if row, ok := r[strings.TrimSuffix(name, filepath.Ext(name))]; ok {
		return row, true
	}
	return nil, false
}

// LoadDocumentRegistry reads the document registry CSV. A missing file is an error.
func LoadDocumentRegistry(path string) (DocumentRegistry, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRegistryNotFound, path)
		}
		return nil, err
	}
	if len(header) > 0 && !slices.Contains(header, "doc_id") {
		return nil, fmt.Errorf("%w: doc_id (%s)", ErrMissingColumn, path)
	}

	reg := make(DocumentRegistry, len(rows))
	for _, row := range rows {
		docID := row["doc_id"]
		if docID == "" {
			continue
		}
		reg[docID] = models.DocumentMeta{
			SiteIDs:    ToTags(row["site_ids"]),
			ConceptIDs: ToTags(row["concept_ids"]),
			License:    row["license"],
			Checksum:   row["checksum_sha256"],
		}
	}
	return reg, nil
}

// LoadMediaRegistry reads the optional media registry CSV. An empty path or a missing
// file yields an empty registry. Rows are indexed by media_id, then by the file name
// and stem of their path column without overwriting earlier keys.
func LoadMediaRegistry(path string) (MediaRegistry, error) {
	reg := make(MediaRegistry)
	if path == "" {
		return reg, nil
	}

	_, rows, err := readCSV(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return reg, nil
		}
		return nil, err
	}

	for _, row := range rows {
		mediaRow := models.MediaRow(row)
		if id := row["media_id"]; id != "" {
			reg[id] = mediaRow
		}
		p := row["path"]
		if p == "" {
			continue
		}
		name := filepath.Base(filepath.FromSlash(p))
		if _, exists := reg[name]; name != "" && !exists {
			reg[name] = mediaRow
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if _, exists := reg[stem]; stem != "" && !exists {
			reg[stem] = mediaRow
		}
	}
	return reg, nil
}

// readCSV reads a headed CSV file into one map per row, with trimmed cells.
func readCSV(path string) ([]string, []map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

