// Package storage provides core.Delivery implementations.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
	"github.com/nguyennamkkb/Simpleverse-home/utils"
)

// Local saves delivered artifacts into a directory on the local filesystem.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

// NewLocal creates a Local delivery target rooted at dir.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: mkdir %s: %w", dir, err)
	}
	return &Local{rootDir: dir, permissions: perm}, nil
}

// Path returns where an artifact called name is (or would be) written.
func (l *Local) Path(name string) string {
	return filepath.Join(l.rootDir, utils.SanitizeFilename(name))
}

// Deliver writes data atomically: a temp file is renamed into place so a
// half-written artifact is never visible under its final name.
func (l *Local) Deliver(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.deliver", err)
	}

	path := l.Path(name)
	tmp, err := os.CreateTemp(l.rootDir, ".deliver-*")
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.deliver.create", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.Wrap(apperrors.CategoryStorage, "local.deliver.write", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.deliver.close", err)
	}
	if err := os.Chmod(tmp.Name(), l.permissions); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.deliver.chmod", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.deliver.rename", err)
	}
	return nil
}

// ── Memory ────────────────────────────────────────────────────────────────────

// Delivered is one artifact captured by Memory.
type Delivered struct {
	Name string
	Data []byte
}

// Memory records deliveries in order; useful for tests and previews.
type Memory struct {
	mu    sync.Mutex
	items []Delivered
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Deliver(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "memory.deliver", err)
	}
	m.mu.Lock()
	m.items = append(m.items, Delivered{Name: name, Data: utils.CloneBytes(data)})
	m.mu.Unlock()
	return nil
}

// All returns a copy of everything delivered so far.
func (m *Memory) All() []Delivered {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivered(nil), m.items...)
}

var (
	_ core.Delivery = (*Local)(nil)
	_ core.Delivery = (*Memory)(nil)
)
