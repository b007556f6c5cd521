package pdfbundle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/andrew/rag-vault/pkg/models"
)

var (
	imagePattern          = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
	tableSeparatorPattern = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)
)

// Split is a markdown document with its tables and images pulled out.
type Split struct {
	Text   string
	Tables [][]string
	Images []models.ImageRef
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// tableEnd reports whether a table block starts at lines[start] and where it ends.
// A block is a run of lines containing '|' with at least one separator row.
func tableEnd(lines []string, start int) (int, bool) {
	if start >= len(lines) || !strings.Contains(lines[start], "|") {
		return start, false
	}
	end := start
	hasSeparator := false
	for end < len(lines) && strings.Contains(lines[end], "|") {
		if tableSeparatorPattern.MatchString(lines[end]) {
			hasSeparator = true
		}
		end++
	}
	if !hasSeparator {
		return start, false
	}
	return end, true
}

// SplitMarkdown separates tables and image lines from a markdown document. Image
// sources are resolved against mdDir.
func SplitMarkdown(text, mdDir string) Split {
	lines := splitLines(text)
	drop := make([]bool, len(lines))

	var tables [][]string
	for i := 0; i < len(lines); {
		end, ok := tableEnd(lines, i)
		if !ok {
			i++
			continue
		}
		tables = append(tables, lines[i:end])
		for k := i; k < end; k++ {
			drop[k] = true
		}
		i = end
	}

	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		if imagePattern.MatchString(line) {
			drop[i] = true
		}
		if !drop[i] {
			kept = append(kept, line)
		}
	}

	return Split{
		Text:   strings.Join(kept, "\n"),
		Tables: tables,
		Images: ImageRefs(text, mdDir),
	}
}

// ImageRefs extracts markdown image references in document order.
func ImageRefs(text, mdDir string) []models.ImageRef {
	refs := []models.ImageRef{}
	for _, m := range imagePattern.FindAllStringSubmatch(text, -1) {
		src := filepath.FromSlash(m[2])
		if !filepath.IsAbs(src) {
			src = filepath.Join(mdDir, src)
		}
		if abs, err := filepath.Abs(src); err == nil {
			src = abs
		}
		refs = append(refs, models.ImageRef{Alt: m[1], Src: src})
	}
	return refs
}

// TableToRows parses a pipe table into cells. Separator rows and blank lines are
// skipped; escaped pipes are not supported.
func TableToRows(table []string) [][]string {
	var rows [][]string
	for _, raw := range table {
		line := strings.TrimSpace(raw)
		if line == "" || tableSeparatorPattern.MatchString(line) {
			continue
		}
		line = strings.TrimPrefix(line, "|")
		line = strings.TrimSuffix(line, "|")
		cells := strings.Split(line, "|")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
	}
	return rows
}

// WriteCSV writes rows quoting only cells that contain a comma, quote or newline.
func WriteCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			cell = strings.ReplaceAll(cell, `"`, `""`)
			if strings.ContainsAny(cell, ",\"\n") {
				cell = `"` + cell + `"`
			}
			b.WriteString(cell)
		}
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// CopyImages copies the referenced images that exist into destDir, adding _1, _2, ...
// to the stem on name collisions. It returns the absolute destination paths.
func CopyImages(refs []models.ImageRef, destDir string) ([]string, error) {
	copied := []string{}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return copied, err
	}
	for _, ref := range refs {
		if info, err := os.Stat(ref.Src); err != nil || info.IsDir() {
			continue
		}
		name := filepath.Base(ref.Src)
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		target := filepath.Join(destDir, name)
		for n := 1; exists(target); n++ {
			target = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		}
		if err := copyFile(ref.Src, target); err != nil {
			return copied, err
		}
		if abs, err := filepath.Abs(target); err == nil {
			target = abs
		}
		copied = append(copied, target)
	}
	return copied, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
