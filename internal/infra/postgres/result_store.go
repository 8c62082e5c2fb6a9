package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-engine/internal/domain"
)

type quizResult struct {
	bun.BaseModel `bun:"table:quiz_results"`

	ID                 string                         `bun:"id,pk"`
	UserID             string                         `bun:"user_id,notnull"`
	Category           string                         `bun:"category,notnull"`
	DisplayCategory    string                         `bun:"display_category,notnull"`
	QuizType           string                         `bun:"quiz_type,notnull"`
	Score              int                            `bun:"score,notnull"`
	TotalQuestions     int                            `bun:"total_questions,notnull"`
	Percentage         int                            `bun:"percentage,notnull"`
	TimeTaken          int                            `bun:"time_taken,notnull"`
	Timed              bool                           `bun:"timed_quiz,notnull"`
	SecondsPerQuestion int                            `bun:"time_per_question,notnull"`
	Details            []domain.QuestionDetail        `bun:"detailed_results,type:jsonb"`
	CategoryStats      map[string]domain.CategoryStat `bun:"category_stats,type:jsonb"`
	StartedAt          time.Time                      `bun:"started_at,notnull"`
	CompletedAt        time.Time                      `bun:"completed_at,notnull"`
}

// ResultStore persists results in quiz_results through bun.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) SaveResult(ctx context.Context, result domain.Result) error {
	row := toRow(result)
	if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert result %s: %w", result.ID, err)
	}
	return nil
}

// ListResults returns up to limit results for userID, newest first; limit <= 0 returns all.
func (s *ResultStore) ListResults(ctx context.Context, userID string, limit int) ([]domain.Result, error) {
	var rows []quizResult
	q := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID).OrderExpr("completed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list results for %s: %w", userID, err)
	}
	results := make([]domain.Result, len(rows))
	for i, row := range rows {
		results[i] = row.toDomain()
	}
	return results, nil
}

func toRow(r domain.Result) quizResult {
	return quizResult{
		ID:                 r.ID,
		UserID:             r.UserID,
		Category:           r.Category,
		DisplayCategory:    r.DisplayCategory,
		QuizType:           r.QuizType,
		Score:              r.Score,
		TotalQuestions:     r.TotalQuestions,
		Percentage:         r.Percentage,
		TimeTaken:          r.ElapsedSeconds,
		Timed:              r.Timed,
		SecondsPerQuestion: r.SecondsPerQuestion,
		Details:            r.Details,
		CategoryStats:      r.CategoryStats,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
	}
}

func (row quizResult) toDomain() domain.Result {
	return domain.Result{
		ID:                 row.ID,
		UserID:             row.UserID,
		Category:           row.Category,
		DisplayCategory:    row.DisplayCategory,
		QuizType:           row.QuizType,
		Score:              row.Score,
		TotalQuestions:     row.TotalQuestions,
		Percentage:         row.Percentage,
		ElapsedSeconds:     row.TimeTaken,
		Timed:              row.Timed,
		SecondsPerQuestion: row.SecondsPerQuestion,
		Details:            row.Details,
		CategoryStats:      row.CategoryStats,
		StartedAt:          row.StartedAt,
		CompletedAt:        row.CompletedAt,
	}
}
