package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"quiz-engine/internal/domain"
)

// QuestionStore is the read-only document store holding question records in three shapes:
// one aggregate document per category, a flat questions collection, and a general collection.
type QuestionStore interface {
	FetchDocument(ctx context.Context, category string) ([]domain.RawQuestion, error)
	FetchByCategory(ctx context.Context, category string) ([]domain.RawQuestion, error)
	FetchAll(ctx context.Context) ([]domain.RawQuestion, error)
}

// Strategy is one way of locating the raw records of a category.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, category string) ([]domain.RawQuestion, error)
}

// DefaultStrategies returns the lookup order used against a QuestionStore.
func DefaultStrategies(store QuestionStore) []Strategy {
	return []Strategy{
		{Name: "document", Fetch: store.FetchDocument},
		{Name: "query", Fetch: store.FetchByCategory},
		{Name: "scan", Fetch: func(ctx context.Context, category string) ([]domain.RawQuestion, error) {
			all, err := store.FetchAll(ctx)
			if err != nil {
				return nil, err
			}
			matched := make([]domain.RawQuestion, 0, len(all))
			for _, raw := range all {
				if raw.Category == category {
					matched = append(matched, raw)
				}
			}
			return matched, nil
		}},
	}
}

// PoolFetcher resolves a category selector into a validated question pool.
type PoolFetcher struct {
	strategies []Strategy
	categories []string
	shuffler   *Shuffler
	maxMixed   int
	log        logrus.FieldLogger
}

func NewPoolFetcher(strategies []Strategy, categories []string, shuffler *Shuffler, log logrus.FieldLogger) *PoolFetcher {
	if len(categories) == 0 {
		categories = domain.DefaultCategories
	}
	if shuffler == nil {
		shuffler = NewShuffler(nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PoolFetcher{
		strategies: strategies,
		categories: categories,
		shuffler:   shuffler,
		maxMixed:   domain.MaxMixedQuestions,
		log:        log,
	}
}

// Categories returns the categories a mixed pool samples from.
func (f *PoolFetcher) Categories() []string {
	out := make([]string, len(f.categories))
	copy(out, f.categories)
	return out
}

// FetchPool returns the validated questions for selector. A mixed selector samples up to
// MaxMixedQuestions across every category; a concrete category returns its questions in store order.
func (f *PoolFetcher) FetchPool(ctx context.Context, selector string) ([]domain.Question, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("empty category: %w", domain.ErrPoolNotFound)
	}
	if domain.IsMixed(selector) {
		return f.fetchMixed(ctx)
	}
	return f.fetchCategory(ctx, selector)
}

func (f *PoolFetcher) fetchCategory(ctx context.Context, category string) ([]domain.Question, error) {
	log := f.log.WithField("category", category)

	var failures []error
	for _, strategy := range f.strategies {
		raw, err := strategy.Fetch(ctx, category)
		if err != nil {
			log.WithError(err).WithField("strategy", strategy.Name).Warn("question lookup failed")
			failures = append(failures, fmt.Errorf("%s: %w", strategy.Name, err))
			continue
		}
		if len(raw) == 0 {
			log.WithField("strategy", strategy.Name).Debug("question lookup returned no records")
			continue
		}

		valid := ValidateRecords(raw, category)
		log.WithFields(logrus.Fields{
			"strategy": strategy.Name,
			"raw":      len(raw),
			"valid":    len(valid),
		}).Debug("question lookup matched")
		if len(valid) == 0 {
			return nil, fmt.Errorf("category %q: %w", category, domain.ErrPoolNotFound)
		}
		return valid, nil
	}

	if len(f.strategies) > 0 && len(failures) == len(f.strategies) {
		return nil, fmt.Errorf("category %q: %w: %w", category, domain.ErrTransientFetch, errors.Join(failures...))
	}
	return nil, fmt.Errorf("category %q: %w", category, domain.ErrPoolNotFound)
}

func (f *PoolFetcher) fetchMixed(ctx context.Context) ([]domain.Question, error) {
	perCategory := make([][]domain.Question, len(f.categories))
	errs := make([]error, len(f.categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range f.categories {
		i, category := i, category
		g.Go(func() error {
			// per-category failures are collected, not propagated, so one empty category
			// does not cancel the others.
			perCategory[i], errs[i] = f.fetchCategory(gctx, category)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	transient := false
	for i, pool := range perCategory {
		total += len(pool)
		if errs[i] != nil && errors.Is(errs[i], domain.ErrTransientFetch) {
			transient = true
		}
	}
	f.log.WithFields(logrus.Fields{"category": domain.MixedSelector, "total": total}).Debug("mixed candidates collected")

	if total == 0 {
		if transient {
			return nil, fmt.Errorf("mixed quiz: %w: %w", domain.ErrTransientFetch, errors.Join(errs...))
		}
		return nil, fmt.Errorf("mixed quiz: %w", domain.ErrPoolNotFound)
	}
	return f.shuffler.SampleMixed(perCategory, f.maxMixed), nil
}

// ValidateRecords converts raw records into questions tagged with category, silently
// dropping records without a prompt, with fewer than two options, or whose answer is not an option.
func ValidateRecords(raw []domain.RawQuestion, category string) []domain.Question {
	valid := make([]domain.Question, 0, len(raw))
	for _, record := range raw {
		question, ok := validateRecord(record, category)
		if !ok {
			continue
		}
		valid = append(valid, question)
	}
	return valid
}

func validateRecord(record domain.RawQuestion, category string) (domain.Question, bool) {
	prompt := strings.TrimSpace(html.UnescapeString(record.Question))
	if prompt == "" || len(record.Options) < 2 {
		return domain.Question{}, false
	}

	options := make([]string, len(record.Options))
	for i, option := range record.Options {
		options[i] = html.UnescapeString(option)
	}
	answer := html.UnescapeString(record.Answer)

	found := false
	for _, option := range options {
		if option == answer {
			found = true
			break
		}
	}
	if !found {
		return domain.Question{}, false
	}

	question := domain.Question{
		ID:            record.ID,
		Prompt:        prompt,
		Options:       options,
		CorrectAnswer: answer,
		Category:      category,
	}
	if question.ID == "" {
		question.ID = makeQuestionID(question)
	}
	return question, true
}

func makeQuestionID(question domain.Question) string {
	var keyBuilder strings.Builder
	keyBuilder.WriteString(question.Category)
	keyBuilder.WriteString("|")
	keyBuilder.WriteString(question.Prompt)
	for _, option := range question.Options {
		keyBuilder.WriteString("|")
		keyBuilder.WriteString(option)
	}

	hash := sha1.Sum([]byte(keyBuilder.String()))
	return "q_" + hex.EncodeToString(hash[:])
}
