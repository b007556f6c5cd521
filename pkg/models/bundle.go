package models

// Bundle is the manifest record written for one converted PDF
type Bundle struct {
	PDF            string   `json:"pdf"`
	BundleDir      string   `json:"bundle_dir"`
	Markdown       string   `json:"markdown"`
	TextOnly       string   `json:"text_only"`
	TablesMarkdown []string `json:"tables_markdown"`
	TablesCSV      []string `json:"tables_csv"`
	Images         []string `json:"images"`
	NumTables      int      `json:"num_tables"`
	NumImages      int      `json:"num_images"`
}

// ImageRef is a markdown image reference resolved against the markdown file's directory.
type ImageRef struct {
	Alt string `json:"alt"`
	Src string `json:"src"`
}
