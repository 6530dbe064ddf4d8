package model

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Status is the conversion lifecycle state of a queue item.
// Within one conversion attempt an item moves pending -> processing
// and then into exactly one of done or error.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition happens for the
// current conversion attempt.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Item represents one user-submitted image and its conversion lifecycle.
type Item struct {
	ID       uuid.UUID `json:"id"`
	Filename string    `json:"filename"`

	// SourceKey is the storage object holding the original bytes.
	// It doubles as the preview handle: created at ingestion, released
	// exactly once when the item is removed, the queue is cleared, or
	// the session is torn down.
	SourceKey  string `json:"source_key"`
	SourceSize int64  `json:"source_size"`

	Status Status `json:"status"`

	// ResultKey and ResultSize are set if and only if Status is done.
	ResultKey  string `json:"result_key,omitempty"`
	ResultSize int64  `json:"result_size,omitempty"`

	// FailReason carries the per-item conversion error, set only when
	// Status is error.
	FailReason string `json:"fail_reason,omitempty"`
}

// ResultFilename derives the download name for a converted item:
// the original filename with its extension replaced by the output
// format's extension.
func ResultFilename(original string) string {
	return strings.TrimSuffix(original, filepath.Ext(original)) + ".avif"
}
