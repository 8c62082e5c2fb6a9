package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-engine/internal/domain"
)

// PoolSource resolves a category selector into a validated pool.
type PoolSource interface {
	FetchPool(ctx context.Context, selector string) ([]domain.Question, error)
}

// Event types pushed to session subscribers.
const (
	EventQuestion  = "question"
	EventTick      = "tick"
	EventCompleted = "completed"
	EventAbandoned = "abandoned"
)

// Event is a state change the presentation layer re-renders on.
type Event struct {
	Type      string               `json:"type"`
	SessionID string               `json:"sessionId"`
	Question  *domain.QuestionView `json:"question,omitempty"`
	Remaining int                  `json:"remaining"`
	Result    *domain.Result       `json:"result,omitempty"`
}

// SessionConfig wires one quiz attempt to its collaborators.
type SessionConfig struct {
	ID       string
	UserID   string
	Selector string
	// Pool is the validated pool. Single-category pools are shuffled here; mixed pools
	// arrive already sampled.
	Pool     []domain.Question
	Pools    PoolSource
	Shuffler *Shuffler
	Timer    Timer
	Recorder *Recorder
	Now      func() time.Time
	// Dispatch runs result persistence off the transition path. Defaults to a goroutine.
	Dispatch func(func())
	Log      logrus.FieldLogger
}

// sessionState is one attempt's mutable state. Restart replaces it instead of resetting it.
type sessionState struct {
	pool      []domain.Question
	current   int
	answers   []domain.Answer
	pending   domain.Answer
	phase     domain.Phase
	startedAt time.Time
	result    *domain.Result
}

// Session drives one player through a timed quiz. Transitions never perform I/O; the lock
// only serialises the caller against timer callbacks.
type Session struct {
	id       string
	userID   string
	selector string
	mixed    bool
	pools    PoolSource
	shuffler *Shuffler
	timer    Timer
	recorder *Recorder
	now      func() time.Time
	dispatch func(func())
	log      logrus.FieldLogger

	mu          sync.Mutex
	validated   []domain.Question
	state       *sessionState
	generation  uint64
	subscribers map[chan Event]struct{}
}

// NewSession starts an attempt at question 0 with the timer running.
func NewSession(cfg SessionConfig) (*Session, error) {
	if len(cfg.Pool) == 0 {
		return nil, fmt.Errorf("new session: %w", domain.ErrPoolNotFound)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Shuffler == nil {
		cfg.Shuffler = NewShuffler(nil)
	}
	if cfg.Timer == nil {
		cfg.Timer = NewCountdown()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = func(f func()) { go f() }
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}

	mixed := domain.IsMixed(cfg.Selector)
	selector := cfg.Selector
	if mixed {
		selector = domain.MixedSelector
	}

	s := &Session{
		id:          cfg.ID,
		userID:      cfg.UserID,
		selector:    selector,
		mixed:       mixed,
		pools:       cfg.Pools,
		shuffler:    cfg.Shuffler,
		timer:       cfg.Timer,
		recorder:    cfg.Recorder,
		now:         cfg.Now,
		dispatch:    cfg.Dispatch,
		log:         cfg.Log.WithFields(logrus.Fields{"session_id": cfg.ID, "user_id": cfg.UserID}),
		validated:   append([]domain.Question(nil), cfg.Pool...),
		subscribers: make(map[chan Event]struct{}),
	}

	pool := cfg.Pool
	if !mixed {
		pool = s.shuffler.Shuffle(cfg.Pool)
	}

	s.mu.Lock()
	s.state = s.newState(pool)
	s.startTimerLocked()
	s.mu.Unlock()
	return s, nil
}

func (s *Session) ID() string       { return s.id }
func (s *Session) UserID() string   { return s.userID }
func (s *Session) Selector() string { return s.selector }
func (s *Session) Mixed() bool      { return s.mixed }

// CurrentQuestion returns the question being answered. ok is false once the session is
// completed or abandoned.
func (s *Session) CurrentQuestion() (domain.QuestionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil || s.state.phase != domain.PhaseInProgress {
		return domain.QuestionView{}, false
	}
	return s.viewLocked(), true
}

// CurrentIndex returns the position in the pool, or -1 for an abandoned session.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return -1
	}
	return s.state.current
}

// Answers returns a copy of the committed answers.
func (s *Session) Answers() []domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	return append([]domain.Answer(nil), s.state.answers...)
}

// Pool returns a copy of the questions in play order.
func (s *Session) Pool() []domain.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	return append([]domain.Question(nil), s.state.pool...)
}

// SelectAnswer records choice as the pending answer for the current question. Last call wins.
func (s *Session) SelectAnswer(choice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInProgressLocked("select answer"); err != nil {
		return err
	}
	s.state.pending = domain.Chose(choice)
	s.broadcastLocked(s.questionEventLocked())
	return nil
}

// Advance commits the pending answer, or NoAnswer, and moves to the next question.
// On the last question it completes the session and hands the result to the recorder.
// Timer expiry takes this path after clearing the pending selection.
func (s *Session) Advance() error {
	s.mu.Lock()
	if err := s.requireInProgressLocked("advance"); err != nil {
		s.mu.Unlock()
		return err
	}
	result := s.advanceLocked()
	s.mu.Unlock()

	if result != nil {
		s.persist(*result)
	}
	return nil
}

// Retreat commits the pending answer and steps back one question, restoring its committed
// answer as the pending selection.
func (s *Session) Retreat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInProgressLocked("retreat"); err != nil {
		return err
	}
	st := s.state
	if st.current == 0 {
		return fmt.Errorf("retreat from first question: %w", domain.ErrInvalidTransition)
	}

	s.commitLocked()
	s.stopTimerLocked()
	st.current--
	st.pending = st.answers[st.current]
	s.startTimerLocked()
	s.broadcastLocked(s.questionEventLocked())
	return nil
}

// Restart discards the attempt and begins a new one. Single-category sessions reshuffle their
// validated pool; mixed sessions sample a fresh pool. On fetch failure the current state is kept.
func (s *Session) Restart(ctx context.Context) error {
	var pool []domain.Question
	if s.mixed && s.pools != nil {
		fetched, err := s.pools.FetchPool(ctx, s.selector)
		if err != nil {
			return fmt.Errorf("restart: %w", err)
		}
		pool = fetched
	} else {
		s.mu.Lock()
		validated := s.validated
		s.mu.Unlock()
		pool = s.shuffler.Shuffle(validated)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	if s.mixed {
		s.validated = pool
	}
	s.state = s.newState(pool)
	s.startTimerLocked()
	s.log.WithField("questions", len(pool)).Info("quiz restarted")
	s.broadcastLocked(s.questionEventLocked())
	return nil
}

// Abandon stops the timer and discards the attempt. Nothing is persisted.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	if s.state != nil && s.state.phase == domain.PhaseInProgress {
		s.log.WithField("index", s.state.current).Info("quiz abandoned")
	}
	s.state = nil
	s.broadcastLocked(Event{Type: EventAbandoned, SessionID: s.id})
}

// TimeRemaining returns the seconds left on the current question.
func (s *Session) TimeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil || s.state.phase != domain.PhaseInProgress {
		return 0
	}
	return s.timer.Remaining()
}

func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != nil && s.state.phase == domain.PhaseCompleted
}

// Result returns the finalized result of a completed session.
func (s *Session) Result() (domain.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil || s.state.result == nil {
		return domain.Result{}, false
	}
	return *s.state.result, true
}

// Snapshot returns the event describing the current state.
func (s *Session) Snapshot() Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of state changes, primed with the current snapshot.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) newState(pool []domain.Question) *sessionState {
	return &sessionState{
		pool:      pool,
		answers:   make([]domain.Answer, 0, len(pool)),
		phase:     domain.PhaseInProgress,
		startedAt: s.now(),
	}
}

func (s *Session) requireInProgressLocked(op string) error {
	if s.state == nil {
		return fmt.Errorf("%s: session abandoned: %w", op, domain.ErrInvalidTransition)
	}
	if s.state.phase != domain.PhaseInProgress {
		return fmt.Errorf("%s: session completed: %w", op, domain.ErrInvalidTransition)
	}
	return nil
}

// advanceLocked is the single advance path shared by Advance and timer expiry.
func (s *Session) advanceLocked() *domain.Result {
	st := s.state
	s.commitLocked()
	s.stopTimerLocked()

	if st.current == len(st.pool)-1 {
		st.phase = domain.PhaseCompleted
		result := s.finalizeLocked()
		st.result = &result
		s.log.WithFields(logrus.Fields{
			"score":      result.Score,
			"percentage": result.Percentage,
		}).Info("quiz completed")
		s.broadcastLocked(Event{Type: EventCompleted, SessionID: s.id, Result: &result})
		return &result
	}

	st.current++
	st.pending = domain.NoAnswer
	s.startTimerLocked()
	s.broadcastLocked(s.questionEventLocked())
	return nil
}

// commitLocked stores the pending answer at the current index. answers never has a gap:
// the current index is reached only by committing every earlier one.
func (s *Session) commitLocked() {
	st := s.state
	if st.current < len(st.answers) {
		st.answers[st.current] = st.pending
		return
	}
	st.answers = append(st.answers, st.pending)
}

func (s *Session) finalizeLocked() domain.Result {
	st := s.state
	result := Finalize(FinalizeInput{
		Pool:        st.pool,
		Answers:     st.answers,
		StartedAt:   st.startedAt,
		CompletedAt: s.now(),
		Mixed:       s.mixed,
	})
	result.ID = uuid.NewString()
	result.UserID = s.userID
	result.Category = s.selector
	result.DisplayCategory = s.selector
	if s.mixed {
		result.DisplayCategory = domain.MixedDisplayName
	}
	return result
}

func (s *Session) persist(result domain.Result) {
	if s.recorder == nil {
		return
	}
	s.dispatch(func() {
		_ = s.recorder.Record(context.Background(), result)
	})
}

// startTimerLocked binds a fresh countdown to a new generation; callbacks carrying an older
// generation are ignored.
func (s *Session) startTimerLocked() {
	s.generation++
	gen := s.generation
	s.timer.Start(domain.SecondsPerQuestion,
		func(remaining int) { s.onTick(gen, remaining) },
		func() { s.onExpire(gen) },
	)
}

func (s *Session) stopTimerLocked() {
	s.generation++
	s.timer.Stop()
}

func (s *Session) onTick(gen uint64, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.state == nil {
		return
	}
	s.broadcastLocked(Event{Type: EventTick, SessionID: s.id, Remaining: remaining})
}

func (s *Session) onExpire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state == nil || s.state.phase != domain.PhaseInProgress {
		s.mu.Unlock()
		return
	}
	s.log.WithField("index", s.state.current).Debug("question timed out")
	// an unconfirmed selection does not count once time is up
	s.state.pending = domain.NoAnswer
	result := s.advanceLocked()
	s.mu.Unlock()

	if result != nil {
		s.persist(*result)
	}
}

func (s *Session) viewLocked() domain.QuestionView {
	st := s.state
	question := st.pool[st.current]
	return domain.QuestionView{
		Index:        st.current,
		Total:        len(st.pool),
		Prompt:       question.Prompt,
		Options:      append([]string(nil), question.Options...),
		Category:     question.Category,
		Selected:     st.pending.Choice,
		HasSelection: st.pending.Given,
	}
}

func (s *Session) questionEventLocked() Event {
	view := s.viewLocked()
	return Event{Type: EventQuestion, SessionID: s.id, Question: &view, Remaining: s.timer.Remaining()}
}

func (s *Session) snapshotLocked() Event {
	switch {
	case s.state == nil:
		return Event{Type: EventAbandoned, SessionID: s.id}
	case s.state.result != nil:
		result := *s.state.result
		return Event{Type: EventCompleted, SessionID: s.id, Result: &result}
	default:
		return s.questionEventLocked()
	}
}

func (s *Session) broadcastLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// drop the oldest update so a slow reader never blocks a transition
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
