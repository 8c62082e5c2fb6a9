package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-engine/internal/domain"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Save(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// QuizService contains the quiz use cases the transport layer calls.
type QuizService struct {
	sessions SessionRepository
	pools    PoolSource
	recorder *Recorder
	results  ResultReader
	cache    DashboardCache
	shuffler *Shuffler
	newTimer func() Timer
	now      func() time.Time
	dispatch func(func())
	log      logrus.FieldLogger
}

// DashboardCache memoises dashboards between result writes.
type DashboardCache interface {
	GetDashboard(ctx context.Context, userID string, limit int) (domain.Dashboard, bool)
	PutDashboard(ctx context.Context, limit int, dashboard domain.Dashboard)
}

// ServiceOption customises a QuizService.
type ServiceOption func(*QuizService)

// WithTimerFactory replaces the wall-clock countdown, e.g. with ManualTimer in tests.
func WithTimerFactory(newTimer func() Timer) ServiceOption {
	return func(s *QuizService) { s.newTimer = newTimer }
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *QuizService) { s.now = now }
}

func WithShuffler(shuffler *Shuffler) ServiceOption {
	return func(s *QuizService) { s.shuffler = shuffler }
}

// WithResultReader enables History and Dashboard.
func WithResultReader(results ResultReader) ServiceOption {
	return func(s *QuizService) { s.results = results }
}

func WithDashboardCache(cache DashboardCache) ServiceOption {
	return func(s *QuizService) { s.cache = cache }
}

// WithDispatch controls how result persistence is scheduled.
func WithDispatch(dispatch func(func())) ServiceOption {
	return func(s *QuizService) { s.dispatch = dispatch }
}

func WithLogger(log logrus.FieldLogger) ServiceOption {
	return func(s *QuizService) { s.log = log }
}

func NewQuizService(store SessionRepository, pools PoolSource, sink ResultSink, opts ...ServiceOption) *QuizService {
	s := &QuizService{
		sessions: store,
		pools:    pools,
		shuffler: NewShuffler(nil),
		newTimer: func() Timer { return NewCountdown() },
		now:      time.Now,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = NewRecorder(sink, s.log)
	return s
}

// Start fetches a pool for selector and begins a new attempt for userID.
func (s *QuizService) Start(ctx context.Context, userID, selector string) (*Session, error) {
	selector = strings.TrimSpace(selector)
	log := s.log.WithFields(logrus.Fields{"user_id": userID, "category": selector})

	pool, err := s.pools.FetchPool(ctx, selector)
	if err != nil {
		log.WithError(err).Warn("no quiz pool")
		return nil, err
	}

	session, err := NewSession(SessionConfig{
		ID:       uuid.NewString(),
		UserID:   userID,
		Selector: selector,
		Pool:     pool,
		Pools:    s.pools,
		Shuffler: s.shuffler,
		Timer:    s.newTimer(),
		Recorder: s.recorder,
		Now:      s.now,
		Dispatch: s.dispatch,
		Log:      s.log,
	})
	if err != nil {
		return nil, err
	}
	s.sessions.Save(session)
	log.WithFields(logrus.Fields{"session_id": session.ID(), "questions": len(pool)}).Info("quiz started")
	return session, nil
}

// Get returns a live session.
func (s *QuizService) Get(sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Abandon stops the session's timer and forgets it without persisting a partial result.
func (s *QuizService) Abandon(sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	if !session.IsComplete() {
		session.Abandon()
	}
	s.sessions.Delete(sessionID)
}

// History lists a user's stored results, newest first.
func (s *QuizService) History(ctx context.Context, userID string, limit int) ([]domain.Result, error) {
	if s.results == nil {
		return nil, fmt.Errorf("result history is not configured")
	}
	return s.results.ListResults(ctx, userID, limit)
}

// Dashboard summarises a user's recent results.
func (s *QuizService) Dashboard(ctx context.Context, userID string, limit int) (domain.Dashboard, error) {
	if s.cache != nil {
		if dashboard, ok := s.cache.GetDashboard(ctx, userID, limit); ok {
			return dashboard, nil
		}
	}
	results, err := s.History(ctx, userID, limit)
	if err != nil {
		return domain.Dashboard{}, err
	}
	dashboard := Summarize(userID, results)
	if s.cache != nil {
		s.cache.PutDashboard(ctx, limit, dashboard)
	}
	return dashboard, nil
}
