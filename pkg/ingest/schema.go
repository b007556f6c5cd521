package ingest

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/andrew/rag-vault/pkg/registry"
)

//go:embed chunk.schema.json
var chunkSchemaJSON string

const chunkSchemaURL = "mem://rag-vault/chunk.schema.json"

var (
	schemaOnce  sync.Once
	chunkSchema *jsonschema.Schema
	schemaErr   error
)

func loadSchema() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(chunkSchemaURL, strings.NewReader(chunkSchemaJSON)); err != nil {
		schemaErr = err
		return
	}
	chunkSchema, schemaErr = c.Compile(chunkSchemaURL)
}

// ValidateRow checks a decoded chunk row against the chunk record schema.
func ValidateRow(row registry.ChunkRow) error {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return fmt.Errorf("chunk schema: %w", schemaErr)
	}
	return chunkSchema.Validate(map[string]any(row))
}
