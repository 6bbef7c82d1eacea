package storage

import (
	"context"
	"io"
	"sync"
)

type MemoryBlob struct {
	Data        []byte
	ContentType string
}

// MemoryGateway keeps blobs in process memory. References use the base URL given at
// construction.
type MemoryGateway struct {
	mu    sync.RWMutex
	base  string
	blobs map[string]MemoryBlob
}

func NewMemoryGateway(base string) *MemoryGateway {
	return &MemoryGateway{base: base, blobs: make(map[string]MemoryBlob)}
}

func (g *MemoryGateway) Upload(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	g.blobs[name] = MemoryBlob{Data: data, ContentType: contentType}
	g.mu.Unlock()
	return g.URL(name), nil
}

func (g *MemoryGateway) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.blobs, name)
	g.mu.Unlock()
	return nil
}

func (g *MemoryGateway) URL(name string) string {
	return joinURL(g.base, name)
}

// Get returns a stored blob.
func (g *MemoryGateway) Get(name string) (MemoryBlob, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.blobs[name]
	return b, ok
}

// Len is the number of stored blobs.
func (g *MemoryGateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.blobs)
}
