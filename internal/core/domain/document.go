package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Document is the read model of a file attached to a tax return. Bytes live in
// object storage under StorageKey; the pipeline never writes documents.
type Document struct {
	ID          string    `json:"id"`
	TaxReturnID string    `json:"tax_return_id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"storage_key"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// Extension returns the lower-cased file extension without the dot.
func (d Document) Extension() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Filename), "."))
}
