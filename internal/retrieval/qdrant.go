// Package retrieval backs grounded generation with a qdrant vector store.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/sebapoblete09/WhatsApp-receiver/internal/genai"
)

// Config selects the qdrant instance and search behavior.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	Collection     string
	TopK           int
	ScoreThreshold float64
}

// Store searches a single qdrant collection of passages. Each point carries
// its text under the "text" payload field and optionally a "source".
type Store struct {
	log    *slog.Logger
	client *qdrant.Client
	cfg    Config
}

// NewStore connects to qdrant. The connection is lazy; a wrong address shows
// up on the first search, which the grounded path already tolerates.
func NewStore(log *slog.Logger, cfg Config) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return &Store{
		log:    log.With(slog.String("service", "retrieval")),
		client: client,
		cfg:    cfg,
	}, nil
}

// Search returns the passages most similar to the query vector, filtered by
// the configured score threshold.
func (s *Store) Search(ctx context.Context, vector []float32) ([]genai.Passage, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(s.cfg.TopK)),
		ScoreThreshold: qdrant.PtrOf(float32(s.cfg.ScoreThreshold)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", s.cfg.Collection, err)
	}

	passages := make([]genai.Passage, 0, len(points))
	for _, p := range points {
		text := p.Payload["text"].GetStringValue()
		if text == "" {
			continue
		}
		passages = append(passages, genai.Passage{
			Text:   text,
			Source: p.Payload["source"].GetStringValue(),
			Score:  p.Score,
		})
	}

	s.log.Debug("passage search",
		slog.Int("hits", len(points)),
		slog.Int("kept", len(passages)),
	)
	return passages, nil
}

// Close releases the underlying grpc connection.
func (s *Store) Close() error {
	return s.client.Close()
}
