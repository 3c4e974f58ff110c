package models

// UploadMetadata describes the most recently processed upload. The
// ContentPreview field is refined in place as better data becomes available
// (placeholder -> partial slice -> full decode).
type UploadMetadata struct {
	Name           string `json:"name"`
	Size           int64  `json:"size"`
	Type           string `json:"type"`
	ContentPreview string `json:"contentPreview"`
}

// TablePreview is a bounded grid derived from preview text. It is recomputed
// whenever the preview text changes and is never mutated afterwards.
type TablePreview struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Origin  string     `json:"origin"` // currently always "csv"
}
