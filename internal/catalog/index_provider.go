package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/phrazzld/grimoire-api/internal/mention"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// IndexProvider owns the current mention index snapshot. The index is
// rebuilt lazily from the card catalog on first use after an
// invalidation and swapped atomically, so readers always see a complete
// snapshot and never block each other. There is no ambient global: every
// consumer receives the snapshot explicitly.
type IndexProvider struct {
	cards   store.CardStore
	logger  *slog.Logger
	current atomic.Pointer[mention.Index]

	// rebuildMu serializes rebuilds so a burst of readers after an
	// invalidation triggers one catalog scan, not one per reader.
	rebuildMu sync.Mutex
}

// NewIndexProvider creates an IndexProvider over the given card store.
func NewIndexProvider(cards store.CardStore, logger *slog.Logger) *IndexProvider {
	return &IndexProvider{
		cards:  cards,
		logger: logger.With("component", "index_provider"),
	}
}

// Index returns the current snapshot, rebuilding it if the catalog
// changed since the last build.
func (p *IndexProvider) Index(ctx context.Context) (*mention.Index, error) {
	if ix := p.current.Load(); ix != nil {
		return ix, nil
	}
	return p.Rebuild(ctx)
}

// Invalidate discards the current snapshot; the next Index call rebuilds.
func (p *IndexProvider) Invalidate() {
	p.current.Store(nil)
}

// Rebuild scans the catalog and swaps in a fresh snapshot.
func (p *IndexProvider) Rebuild(ctx context.Context) (*mention.Index, error) {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	// Another rebuild may have finished while we waited for the lock.
	if ix := p.current.Load(); ix != nil {
		return ix, nil
	}

	refs, err := p.cards.ListEntityRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for mention index: %w", err)
	}

	entries := make([]mention.Entry, len(refs))
	for i, ref := range refs {
		entries[i] = mention.Entry{
			CardID:   ref.CardID,
			Name:     ref.Name,
			ImageURL: ref.ImageURL,
		}
	}

	ix := mention.NewIndex(entries)
	p.current.Store(ix)

	p.logger.Info("mention index rebuilt",
		"cards", len(refs),
		"distinct_names", ix.Len())

	return ix, nil
}
