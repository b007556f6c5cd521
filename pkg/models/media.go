package models

// MediaRow is one raw row of the media registry, keyed by CSV column name.
type MediaRow map[string]string

// Get returns the value of a column, or "" when absent.
func (r MediaRow) Get(column string) string {
	if r == nil {
		return ""
	}
	return r[column]
}

// MediaAsset is an image file discovered on disk and enriched from the media registry.
type MediaAsset struct {
	MediaID      string   `json:"media_id"`
	SiteIDs      []string `json:"site_ids"`
	ConceptIDs   []string `json:"concept_ids"`
	SourcePath   string   `json:"source_path"`
	RegistryPath string   `json:"registry_path"`
	License      string   `json:"license"`
	Checksum     string   `json:"checksum_sha256"`
	Sensitivity  string   `json:"sensitivity"`
	AssetType    string   `json:"asset_type"`
	ParentDocID  *string  `json:"parent_doc_id"`
	ImageURI     string   `json:"image_uri"`
	CaptionText  string   `json:"caption_text"`
	Width        *int     `json:"width"`
	Height       *int     `json:"height"`
}

// Payload flattens the asset into the point payload stored next to its vectors.
func (a MediaAsset) Payload() map[string]any {
	payload := map[string]any{
		"media_id":        a.MediaID,
		"site_ids":        a.SiteIDs,
		"concept_ids":     a.ConceptIDs,
		"source_path":     a.SourcePath,
		"registry_path":   a.RegistryPath,
		"license":         a.License,
		"checksum_sha256": a.Checksum,
		"sensitivity":     a.Sensitivity,
		"asset_type":      a.AssetType,
		"parent_doc_id":   nil,
		"image_uri":       a.ImageURI,
		"caption_text":    a.CaptionText,
		"width":           nil,
		"height":          nil,
	}
	if a.ParentDocID != nil {
		payload["parent_doc_id"] = *a.ParentDocID
	}
	if a.Width != nil {
		payload["width"] = *a.Width
	}
	if a.Height != nil {
		payload["height"] = *a.Height
	}
	return payload
}
