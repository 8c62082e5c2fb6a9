package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"quiz-engine/internal/domain"
)

// ResultSink persists completed results.
type ResultSink interface {
	SaveResult(ctx context.Context, result domain.Result) error
}

// ResultReader lists a user's results, newest first.
type ResultReader interface {
	ListResults(ctx context.Context, userID string, limit int) ([]domain.Result, error)
}

// FinalizeInput carries what the aggregator needs from a completed session.
type FinalizeInput struct {
	Pool        []domain.Question
	Answers     []domain.Answer
	StartedAt   time.Time
	CompletedAt time.Time
	Mixed       bool
}

// Finalize scores a session. Answers missing at the tail count as NoAnswer.
func Finalize(in FinalizeInput) domain.Result {
	details := make([]domain.QuestionDetail, len(in.Pool))
	score := 0
	var stats map[string]domain.CategoryStat
	if in.Mixed {
		stats = make(map[string]domain.CategoryStat)
	}

	for i, question := range in.Pool {
		answer := domain.NoAnswer
		if i < len(in.Answers) {
			answer = in.Answers[i]
		}
		correct := answer.Matches(question.CorrectAnswer)
		if correct {
			score++
		}
		details[i] = domain.QuestionDetail{
			Prompt:          question.Prompt,
			Category:        question.Category,
			Options:         append([]string(nil), question.Options...),
			SubmittedAnswer: answer.Choice,
			CorrectAnswer:   question.CorrectAnswer,
			IsCorrect:       correct,
			Answered:        answer.Given,
		}
		if stats != nil {
			stat := stats[question.Category]
			stat.Total++
			if correct {
				stat.Correct++
			}
			stats[question.Category] = stat
		}
	}

	quizType := domain.QuizTypeCategory
	if in.Mixed {
		quizType = domain.QuizTypeMixed
	}

	return domain.Result{
		Score:              score,
		TotalQuestions:     len(in.Pool),
		Percentage:         Percentage(score, len(in.Pool)),
		ElapsedSeconds:     ElapsedSeconds(in.StartedAt, in.CompletedAt),
		StartedAt:          in.StartedAt,
		CompletedAt:        in.CompletedAt,
		Details:            details,
		CategoryStats:      stats,
		QuizType:           quizType,
		Timed:              true,
		SecondsPerQuestion: domain.SecondsPerQuestion,
	}
}

// Percentage returns round-half-up(score/total*100).
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*score + total) / (2 * total)
}

// ElapsedSeconds rounds the wall-clock delta to whole seconds.
func ElapsedSeconds(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Round(time.Second) / time.Second)
}

// Recorder hands results to a sink. Sink failures are logged and absorbed.
type Recorder struct {
	sink    ResultSink
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewRecorder(sink ResultSink, log logrus.FieldLogger) *Recorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{sink: sink, timeout: 10 * time.Second, log: log}
}

// Record saves result and returns the wrapped persistence error, if any, for callers that care.
func (r *Recorder) Record(ctx context.Context, result domain.Result) error {
	if r == nil || r.sink == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.sink.SaveResult(ctx, result); err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		r.log.WithError(err).WithFields(logrus.Fields{
			"result_id": result.ID,
			"user_id":   result.UserID,
		}).Error("saving quiz result")
		return err
	}
	r.log.WithFields(logrus.Fields{
		"result_id": result.ID,
		"user_id":   result.UserID,
		"score":     result.Score,
	}).Info("quiz result saved")
	return nil
}

// FanoutSink saves every result to all of its sinks concurrently.
type FanoutSink []ResultSink

func (f FanoutSink) SaveResult(ctx context.Context, result domain.Result) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range f {
		sink := sink
		g.Go(func() error {
			return sink.SaveResult(gctx, result)
		})
	}
	return g.Wait()
}

// Summarize builds the dashboard view from results ordered newest first.
func Summarize(userID string, results []domain.Result) domain.Dashboard {
	dashboard := domain.Dashboard{UserID: userID, Recent: results}
	if len(results) == 0 {
		dashboard.Recent = []domain.Result{}
		return dashboard
	}
	sumPercent := 0
	for i, result := range results {
		dashboard.TotalCorrect += result.Score
		dashboard.TotalQuestions += result.TotalQuestions
		sumPercent += result.Percentage
		if i == 0 || result.Percentage > dashboard.BestPercentage {
			dashboard.BestPercentage = result.Percentage
		}
	}
	dashboard.Attempts = len(results)
	dashboard.AveragePercentage = Percentage(sumPercent, 100*len(results))
	return dashboard
}
