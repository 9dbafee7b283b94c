// Package archive packages named artifacts into a single zip blob.
package archive

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

// Zip is a core.ArchiveWriter.  Encoded images are already compressed, so
// entries are stored without deflate.  A Zip is single use: Build closes it.
type Zip struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	w        *zip.Writer
	modified time.Time
	entries  int
	closed   bool
}

// NewZip returns an empty archive whose entries carry the given timestamp.
func NewZip(modified time.Time) *Zip {
	z := &Zip{modified: modified}
	z.w = zip.NewWriter(&z.buf)
	return z
}

// Put adds one entry.  Later entries with the same name shadow earlier ones
// in most extractors, so callers should keep names unique.
func (z *Zip) Put(name string, data []byte) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return apperrors.New(apperrors.CategoryStorage, "zip.put", fmt.Errorf("archive already built"))
	}
	fw, err := z.w.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: z.modified,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "zip.put", err)
	}
	if _, err := fw.Write(data); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "zip.put.write", err)
	}
	z.entries++
	return nil
}

// Len reports how many entries have been added.
func (z *Zip) Len() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.entries
}

// Build finalises the archive and returns its bytes.  An archive with zero
// entries is still a valid (empty) zip.
func (z *Zip) Build() ([]byte, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if !z.closed {
		if err := z.w.Close(); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryStorage, "zip.build", err)
		}
		z.closed = true
	}
	return bytes.Clone(z.buf.Bytes()), nil
}

var _ core.ArchiveWriter = (*Zip)(nil)
