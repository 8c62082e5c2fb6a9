package memory

import (
	"context"

	"quiz-engine/internal/catalog"
	"quiz-engine/internal/domain"
)

// DocumentStore holds question records in the three shapes app.QuestionStore reads:
// per-category documents, a flat questions collection and a general collection.
// It is read-only after construction.
type DocumentStore struct {
	documents map[string][]domain.RawQuestion
	questions []domain.RawQuestion
	all       []domain.RawQuestion
}

func NewDocumentStore(documents map[string][]domain.RawQuestion, questions, all []domain.RawQuestion) *DocumentStore {
	if documents == nil {
		documents = make(map[string][]domain.RawQuestion)
	}
	return &DocumentStore{documents: documents, questions: questions, all: all}
}

// FromCatalog serves a catalog through the per-category documents and mirrors every record,
// tagged with its category, into the other two collections.
func FromCatalog(c catalog.Catalog) *DocumentStore {
	documents := make(map[string][]domain.RawQuestion, len(c.Documents))
	for category, doc := range c.Documents {
		documents[category] = doc.Questions
	}
	flat := c.Flatten()
	return NewDocumentStore(documents, flat, flat)
}

func (s *DocumentStore) FetchDocument(_ context.Context, category string) ([]domain.RawQuestion, error) {
	return clone(s.documents[category]), nil
}

func (s *DocumentStore) FetchByCategory(_ context.Context, category string) ([]domain.RawQuestion, error) {
	var out []domain.RawQuestion
	for _, raw := range s.questions {
		if raw.Category == category {
			out = append(out, raw)
		}
	}
	return out, nil
}

func (s *DocumentStore) FetchAll(context.Context) ([]domain.RawQuestion, error) {
	return clone(s.all), nil
}

func clone(raw []domain.RawQuestion) []domain.RawQuestion {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.RawQuestion, len(raw))
	copy(out, raw)
	return out
}
