package index

import (
	"context"
	"log/slog"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"

	"github.com/sqlsage/sqlsage/internal/schema"
)

// Schema is the persistent similarity index over a database's table and
// column descriptions. One Schema index exists per distinct database name;
// once built it is never rebuilt unless its storage is removed externally.
type Schema struct {
	*store
	dbName string
}

// NewSchema opens the schema index for the named database under dir.
func NewSchema(dir, dbName string, embed chromem.EmbeddingFunc, logger *slog.Logger) (*Schema, error) {
	st, err := openStore(filepath.Join(dir, "schema"), "schema-"+dbName, embed, logger)
	if err != nil {
		return nil, err
	}
	return &Schema{store: st, dbName: dbName}, nil
}

// Ensure builds the index from docs if no persisted index exists, and is a
// no-op when one does. Build and load never both happen for one index.
func (s *Schema) Ensure(ctx context.Context, docs []schema.Document) error {
	if s.count() > 0 {
		s.logger.Debug("schema index loaded", "database", s.dbName, "chunks", s.count())
		return nil
	}

	var chunks []chromem.Document
	for _, doc := range docs {
		for _, chunk := range SplitText(doc.Render(), ChunkSize, ChunkOverlap) {
			chunks = append(chunks, chromem.Document{
				ID:      contentID(chunk, len(chunks)),
				Content: chunk,
				Metadata: map[string]string{
					"schema": doc.Schema,
					"table":  doc.Table,
				},
			})
		}
	}

	if err := s.add(ctx, chunks); err != nil {
		return err
	}
	s.logger.Info("schema index built", "database", s.dbName, "tables", len(docs), "chunks", len(chunks))
	return nil
}

// Search returns the schema fragments most relevant to query, most similar
// first, joined by newlines.
func (s *Schema) Search(ctx context.Context, query string, k int) (string, error) {
	return s.search(ctx, query, k)
}
