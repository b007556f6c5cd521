package models

// DocumentMeta is the provenance metadata the document registry holds for one document.
type DocumentMeta struct {
	SiteIDs    []string `json:"site_ids"`
	ConceptIDs []string `json:"concept_ids"`
	License    string   `json:"license"`
	Checksum   string   `json:"checksum_sha256"`
}

// EmptyDocumentMeta is used when a document is missing from the registry.
func EmptyDocumentMeta() DocumentMeta {
	return DocumentMeta{
		SiteIDs:    []string{},
		ConceptIDs: []string{},
	}
}

// Chunk represents a span of document text, persisted as one line of a chunks JSONL file
type Chunk struct {
	DocID        string   `json:"doc_id"`
	ChunkID      string   `json:"chunk_id"`
	Text         string   `json:"text"`
	SiteIDs      []string `json:"site_ids"`
	ConceptIDs   []string `json:"concept_ids"`
	License      string   `json:"license"`
	SourcePath   string   `json:"source_path"`
	RegistryPath string   `json:"registry_path"`
	Checksum     string   `json:"checksum_sha256"`
}

// SearchResult represents a point that matched a query
type SearchResult struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Text returns the chunk text carried in the payload, if any.
func (r SearchResult) Text() string {
	if s, ok := r.Payload["text"].(string); ok {
		return s
	}
	if s, ok := r.Payload["caption_text"].(string); ok {
		return s
	}
	return ""
}

// Source returns the best available source reference from the payload.
func (r SearchResult) Source() string {
	for _, key := range []string{"source_path", "image_uri", "doc_id"} {
		if s, ok := r.Payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
