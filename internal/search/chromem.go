// Package search provides per-character similarity search over ingested lore
// using an embedded vector store.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/talekeeper/npc-agent/internal/services"
	"github.com/talekeeper/npc-agent/pkg/character"
)

const collectionPrefix = "character_"

// Store indexes lore chunks per character and answers top-k similarity
// queries. Each character gets its own collection so one character's lore can
// never leak into another's context.
type Store struct {
	db       *chromem.DB
	embedder services.Embedder
	logger   *slog.Logger
}

// NewStore creates a new in-process vector store
func NewStore(embedder services.Embedder, logger *slog.Logger) *Store {
	return &Store{
		db:       chromem.NewDB(),
		embedder: embedder,
		logger:   logger,
	}
}

func (s *Store) collection(characterID uuid.UUID) (*chromem.Collection, error) {
	name := collectionPrefix + characterID.String()
	col, err := s.db.GetOrCreateCollection(name, nil, s.embedOne)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
	}
	return col, nil
}

// embedOne adapts the batch embedder to chromem's single-text signature.
func (s *Store) embedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

// Index embeds the given lore chunks and adds them to the character's
// collection.
func (s *Store) Index(ctx context.Context, characterID uuid.UUID, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}

	col, err := s.collection(characterID)
	if err != nil {
		return err
	}

	vecs, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed lore chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("expected %d embeddings, got %d", len(chunks), len(vecs))
	}

	for i, chunk := range chunks {
		doc := chromem.Document{
			ID:        uuid.New().String(),
			Content:   chunk,
			Embedding: vecs[i],
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to index lore chunk: %w", err)
		}
	}

	s.logger.Debug("Indexed lore chunks", "character_id", characterID, "count", len(chunks))
	return nil
}

// Search returns up to k fragments from the character's lore ranked by
// similarity to the question. A character with no indexed lore yields no
// fragments and no error.
func (s *Store) Search(ctx context.Context, characterID uuid.UUID, question string, k int) ([]character.KnowledgeFragment, error) {
	col, err := s.collection(characterID)
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	qVec, err := s.embedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, qVec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}

	fragments := make([]character.KnowledgeFragment, 0, len(results))
	for _, res := range results {
		fragments = append(fragments, character.KnowledgeFragment{
			Content:    res.Content,
			Similarity: res.Similarity,
		})
	}
	return fragments, nil
}
