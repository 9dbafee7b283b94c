// Package batch owns the items of one tool session and every status
// transition they go through.
package batch

import (
	"github.com/nguyennamkkb/Simpleverse-home/core"
	"github.com/nguyennamkkb/Simpleverse-home/settings"
)

// Status is an item's place in the pending → processing → completed|error
// lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Runnable reports whether ProcessOne/ProcessAll may pick the item up.
func (s Status) Runnable() bool { return s == StatusPending || s == StatusError }

// FailureMessage is recorded on items whose transform failed.
const FailureMessage = "processing failed"

// Output is a produced artifact.  It exists only on completed items.
type Output struct {
	Data    []byte      `json:"-"`
	Size    int64       `json:"size"`
	Width   int         `json:"width"`
	Height  int         `json:"height"`
	Format  core.Format `json:"format"`
	Preview string      `json:"preview,omitempty"`
}

// Item is a value snapshot of one uploaded image.
type Item struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Size        int64       `json:"size"`
	ContentType string      `json:"content_type"`
	Format      core.Format `json:"format"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Preview     string      `json:"preview,omitempty"`

	Settings settings.Settings `json:"settings"`
	Status   Status            `json:"status"`
	Error    string            `json:"error,omitempty"`
	Output   *Output           `json:"output,omitempty"`

	source []byte
}

// Source returns the original bytes.  They are shared and must not be
// modified.
func (i Item) Source() []byte { return i.source }

// record is the coordinator's mutable state for one item.
type record struct {
	item Item
	// revision changes whenever settings change or the item is reset, so a
	// transform started earlier can tell its result is stale.
	revision uint64
}

// snapshot copies the item so callers never alias coordinator state.
func (r *record) snapshot() Item {
	it := r.item
	if r.item.Output != nil {
		out := *r.item.Output
		it.Output = &out
	}
	return it
}
