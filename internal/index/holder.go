package index

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/rag"
)

// ErrNoIndex is returned by [Holder.Ping] before any index is published.
var ErrNoIndex = errors.New("index: no index loaded")

// Holder publishes the active [Flat] index. Readers always see a complete
// index; a rebuilt one is published with [Holder.Swap] or [Holder.Reload].
type Holder struct {
	cur atomic.Pointer[Flat]
	// mu serialises reloads; searches never take it.
	mu     sync.Mutex
	compat Compat
}

// NewHolder returns a Holder serving f, which may be nil.
func NewHolder(f *Flat) *Holder {
	h := &Holder{}
	if f != nil {
		h.cur.Store(f)
	}
	return h
}

// Current returns the active index, or nil.
func (h *Holder) Current() *Flat { return h.cur.Load() }

// RequireCompat makes later reloads reject an index built by another
// embedding model or with another vector size.
func (h *Holder) RequireCompat(c Compat) {
	h.mu.Lock()
	h.compat = c
	h.mu.Unlock()
}

// Swap publishes f and returns the previous index.
func (h *Holder) Swap(f *Flat) *Flat { return h.cur.Swap(f) }

// Reload loads the index persisted in dir and publishes it. On failure the
// active index is kept and the *LoadError is returned.
func (h *Holder) Reload(ctx context.Context, dir string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := Load(ctx, dir)
	if err == nil {
		err = f.CheckCompat(dir, h.compat)
	}
	if err != nil {
		logging.FromContext(ctx).Error("index: reload failed, keeping current index",
			slog.String("dir", dir),
			slog.Any("error", err),
		)
		return err
	}
	prev := h.Swap(f)

	attrs := []any{slog.String("dir", dir), slog.Int("chunks", f.Len())}
	if prev != nil {
		attrs = append(attrs, slog.Int("previous_chunks", prev.Len()))
	}
	logging.FromContext(ctx).Info("index: reloaded", attrs...)
	return nil
}

// Search queries the active index. With no index it returns no results.
func (h *Holder) Search(ctx context.Context, query []float32, k int) ([]rag.SearchResult, error) {
	f := h.Current()
	if f == nil {
		return []rag.SearchResult{}, nil
	}
	return f.Search(ctx, query, k)
}

// Ping reports whether an index is being served. It satisfies the server's
// readiness checker.
func (h *Holder) Ping(_ context.Context) error {
	if h.Current() == nil {
		return ErrNoIndex
	}
	return nil
}
