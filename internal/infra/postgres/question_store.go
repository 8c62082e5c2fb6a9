package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-engine/internal/domain"
)

// QuestionStore reads question records from Postgres JSONB columns:
//
//	quizzes(id, data)            one document per category, data = {"title", "questions": [...]}
//	questions(id, category, data) one record per row
//	all_questions(id, data)      one record per row, category inside data
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) FetchDocument(ctx context.Context, category string) ([]domain.RawQuestion, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, category).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load quiz document %q: %w", category, err)
	}
	var doc domain.QuizDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal quiz document %q: %w", category, err)
	}
	return doc.Questions, nil
}

func (s *QuestionStore) FetchByCategory(ctx context.Context, category string) ([]domain.RawQuestion, error) {
	records, err := s.query(ctx, `SELECT data FROM questions WHERE category=$1 ORDER BY id`, category)
	if err != nil {
		return nil, fmt.Errorf("query questions %q: %w", category, err)
	}
	for i := range records {
		records[i].Category = category
	}
	return records, nil
}

func (s *QuestionStore) FetchAll(ctx context.Context) ([]domain.RawQuestion, error) {
	records, err := s.query(ctx, `SELECT data FROM all_questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan all questions: %w", err)
	}
	return records, nil
}

func (s *QuestionStore) query(ctx context.Context, sql string, args ...interface{}) ([]domain.RawQuestion, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.RawQuestion
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var record domain.RawQuestion
		if err := json.Unmarshal(raw, &record); err != nil {
			// a malformed row is an invalid record, not a store failure
			continue
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpsertDocument stores a category document, replacing any existing one.
func (s *QuestionStore) UpsertDocument(ctx context.Context, category string, doc domain.QuizDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal quiz document %q: %w", category, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		category, string(data))
	if err != nil {
		return fmt.Errorf("upsert quiz document %q: %w", category, err)
	}
	return nil
}

// UpsertQuestions mirrors a category's records into the questions and all_questions tables,
// keyed {category}-{index}.
func (s *QuestionStore) UpsertQuestions(ctx context.Context, category string, records []domain.RawQuestion) error {
	batch := &pgx.Batch{}
	for i, record := range records {
		record.Category = category
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal question %q/%d: %w", category, i, err)
		}
		id := fmt.Sprintf("%s-%d", category, i)
		batch.Queue(`INSERT INTO questions (id, category, data) VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (id) DO UPDATE SET category = EXCLUDED.category, data = EXCLUDED.data`,
			id, category, string(data))
		batch.Queue(`INSERT INTO all_questions (id, data) VALUES ($1, $2::jsonb)
			ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
			id, string(data))
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert questions %q: %w", category, err)
		}
	}
	return nil
}
