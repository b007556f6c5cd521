// Package chunker splits vault documents into overlapping chunks and writes them as
// JSON lines carrying the document's registry metadata.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownMethod is returned for a chunking method name that is not supported.
	ErrUnknownMethod = errors.New("unknown chunking method")

	// ErrEmbeddingsRequired is returned when the semantic method has no embedder.
	ErrEmbeddingsRequired = errors.New("semantic chunking requires an embedder")
)

// Method names a chunking strategy.
type Method string

const (
	MethodRecursive Method = "recursive"
	MethodMarkdown  Method = "markdown"
	MethodSemantic  Method = "semantic"
)

// Methods lists the supported strategies.
var Methods = []Method{MethodRecursive, MethodMarkdown, MethodSemantic}

// ParseMethod resolves a method name, case-insensitively.
func ParseMethod(name string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q (choose from recursive, markdown, semantic)", ErrUnknownMethod, name)
}

// Splitter splits a document's text into ordered chunk texts.
type Splitter interface {
	Split(ctx context.Context, text string) ([]string, error)
}

// NewSplitter builds the splitter for a method. Size and overlap apply to the recursive
// and markdown methods; the semantic method needs an embedder.
func NewSplitter(method Method, size, overlap int, e Embedder) (Splitter, error) {
	switch method {
	case MethodRecursive:
		return NewRecursiveSplitter(size, overlap), nil
	case MethodMarkdown:
		return NewMarkdownSplitter(size, overlap), nil
	case MethodSemantic:
		if e == nil {
			return nil, ErrEmbeddingsRequired
		}
		return NewSemanticSplitter(e), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}
