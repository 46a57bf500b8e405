// Package ticket is the boundary to the companion conversation store.
//
// The core only ever asks whether an origin ticket still exists; the
// conversation records themselves live outside this process. When the real
// store is degraded, MemoryDirectory keeps existence queries answerable,
// just non-durably.
package ticket

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Directory answers ticket existence queries.
type Directory interface {
	// Exists reports whether a ticket with the given ID is known.
	Exists(ctx context.Context, id string) (bool, error)
}

// MemoryDirectory is the in-memory fallback Directory.
type MemoryDirectory struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{ids: make(map[string]struct{})}
}

// Put records a ticket ID.
func (d *MemoryDirectory) Put(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[id] = struct{}{}
}

// Remove forgets a ticket ID.
func (d *MemoryDirectory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.ids, id)
}

// Exists reports whether the ticket ID was recorded.
func (d *MemoryDirectory) Exists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.ids[id]
	return ok, nil
}

// FileDirectory answers existence queries against the conversation store's
// on-disk layout, one <id>.json file per ticket.
type FileDirectory struct {
	dir string
}

// NewFileDirectory creates a Directory over an existing ticket directory.
func NewFileDirectory(dir string) (*FileDirectory, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("ticket directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ticket directory %s: not a directory", dir)
	}
	return &FileDirectory{dir: dir}, nil
}

// Exists reports whether the ticket's file is present. Ticket IDs with
// path separators are rejected rather than resolved.
func (d *FileDirectory) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if id == "" || strings.ContainsAny(id, `/\`) {
		return false, fmt.Errorf("invalid ticket id %q", id)
	}
	_, err := os.Stat(filepath.Join(d.dir, id+".json"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat ticket %s: %w", id, err)
}
