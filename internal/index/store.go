// Package index provides the persistent similarity indices the agent
// retrieves context from: one over the database schema, one over prior
// conversation turns.
//
// Both are built on chromem-go persistent collections. A collection that
// already holds documents is treated as the loaded index; an absent or empty
// one is built fresh. An empty collection round-trips through close/reopen,
// so first-run bootstrap needs no placeholder documents.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ErrIndexUnavailable indicates the persistent index could not be opened or
// written. Fatal for the agent instance that owns the index.
var ErrIndexUnavailable = errors.New("index unavailable")

// DefaultTopK is the number of chunks returned by Search when the caller
// passes k <= 0.
const DefaultTopK = 3

// store wraps one persistent chromem collection. Writers are serialized by
// mu; chromem handles concurrent readers.
type store struct {
	db     *chromem.DB
	coll   *chromem.Collection
	mu     sync.Mutex
	logger *slog.Logger
}

// openStore opens (or creates) the persistent database at path and the named
// collection inside it.
func openStore(path, collection string, embed chromem.EmbeddingFunc, logger *slog.Logger) (*store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIndexUnavailable, path, err)
	}

	coll, err := db.GetOrCreateCollection(collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("%w: collection %q: %v", ErrIndexUnavailable, collection, err)
	}

	return &store{db: db, coll: coll, logger: logger}, nil
}

// add embeds and persists the given chunks. IDs must be unique within the
// collection; addDocuments is a single writer at a time.
func (s *store) add(ctx context.Context, docs []chromem.Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: adding %d documents: %v", ErrIndexUnavailable, len(docs), err)
	}
	s.logger.Debug("indexed chunks", "count", len(docs), "total", s.coll.Count())
	return nil
}

// search returns the contents of the k most similar chunks, most similar
// first, joined by newlines. An empty collection yields an empty string.
// k is clamped to the collection size: chromem rejects nResults larger than
// the number of stored documents.
func (s *store) search(ctx context.Context, query string, k int) (string, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if n := s.coll.Count(); n < k {
		k = n
	}
	if k == 0 {
		return "", nil
	}

	results, err := s.coll.Query(ctx, query, k, nil, nil)
	if err != nil {
		return "", fmt.Errorf("searching index: %w", err)
	}

	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Content
	}
	return strings.Join(contents, "\n"), nil
}

// count returns the number of indexed chunks.
func (s *store) count() int {
	return s.coll.Count()
}

// contentID derives a stable document ID from chunk content and position.
func contentID(content string, seq int) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s-%04d", hex.EncodeToString(sum[:8]), seq)
}
