package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"quiz-engine/internal/domain"
)

func TestAdvanceThroughPoolCompletes(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		session, timer, _ := newTestSession(t, "Math", makeQuestions("Math", n))
		for i := 0; i < n; i++ {
			if i%2 == 0 {
				if err := session.SelectAnswer("A"); err != nil {
					t.Fatalf("select: %v", err)
				}
			}
			if err := session.Advance(); err != nil {
				t.Fatalf("advance %d: %v", i, err)
			}
		}
		if !session.IsComplete() {
			t.Fatalf("n=%d: expected completed session", n)
		}
		if got := len(session.Answers()); got != n {
			t.Fatalf("n=%d: expected %d answers, got %d", n, n, got)
		}
		if timer.Active() {
			t.Fatalf("n=%d: timer still running after completion", n)
		}
		result, ok := session.Result()
		if !ok {
			t.Fatalf("n=%d: expected result", n)
		}
		if result.Score < 0 || result.Score > n || result.Percentage != Percentage(result.Score, n) {
			t.Fatalf("n=%d: inconsistent score %d / %d%%", n, result.Score, result.Percentage)
		}
	}
}

func TestScoreScenarioSecondAnswerWrong(t *testing.T) {
	pool := []domain.Question{
		{ID: "1", Prompt: "one", Options: []string{"A", "X"}, CorrectAnswer: "A", Category: "Math"},
		{ID: "2", Prompt: "two", Options: []string{"B", "X"}, CorrectAnswer: "B", Category: "Math"},
		{ID: "3", Prompt: "three", Options: []string{"C", "X"}, CorrectAnswer: "C", Category: "Math"},
	}
	session, _, sink := newTestSession(t, "Math", pool)
	order := session.Pool()

	submit := map[string]string{"1": "A", "2": "X", "3": "C"}
	for _, q := range order {
		mustSelect(t, session, submit[q.ID])
		mustAdvance(t, session)
	}

	result, ok := session.Result()
	if !ok {
		t.Fatalf("expected result")
	}
	if result.Score != 2 || result.Percentage != 67 {
		t.Fatalf("expected score 2 / 67%%, got %d / %d%%", result.Score, result.Percentage)
	}
	for i, q := range order {
		if q.ID == "2" && result.Details[i].IsCorrect {
			t.Fatalf("expected detail for question 2 to be wrong")
		}
	}
	if result.CategoryStats != nil {
		t.Fatalf("single-category results carry no category stats")
	}
	if len(sink.saved()) != 1 {
		t.Fatalf("expected result handed to sink once, got %d", len(sink.saved()))
	}
}

func TestTimerExpiryRecordsNoAnswer(t *testing.T) {
	pool := []domain.Question{
		{ID: "1", Prompt: "one", Options: []string{"A", "B"}, CorrectAnswer: "A", Category: "Math"},
		{ID: "2", Prompt: "two", Options: []string{"A", "B"}, CorrectAnswer: "B", Category: "Math"},
	}
	session, timer, _ := newTestSession(t, "Math", pool)
	order := session.Pool()

	timer.Expire()
	if session.CurrentIndex() != 1 {
		t.Fatalf("expected expiry to advance to question 2, at %d", session.CurrentIndex())
	}
	if session.TimeRemaining() != domain.SecondsPerQuestion {
		t.Fatalf("expected fresh budget, got %d", session.TimeRemaining())
	}
	mustSelect(t, session, order[1].CorrectAnswer)
	mustAdvance(t, session)

	answers := session.Answers()
	if answers[0] != domain.NoAnswer || answers[1] != domain.Chose(order[1].CorrectAnswer) {
		t.Fatalf("unexpected answers %+v", answers)
	}
	result, _ := session.Result()
	if result.Score != 1 {
		t.Fatalf("expected score 1, got %d", result.Score)
	}
	if result.Details[0].Answered || !result.Details[1].Answered {
		t.Fatalf("expected answered flags [false true], got %+v", result.Details)
	}
}

func TestTimerExpiryMatchesAdvanceWithoutSelection(t *testing.T) {
	expired, timer, _ := newTestSession(t, "Math", makeQuestions("Math", 2))
	timer.Expire()

	manual, _, _ := newTestSession(t, "Math", makeQuestions("Math", 2))
	mustAdvance(t, manual)

	if expired.Answers()[0] != manual.Answers()[0] || expired.Answers()[0] != domain.NoAnswer {
		t.Fatalf("expiry and manual advance diverged: %+v vs %+v", expired.Answers(), manual.Answers())
	}
	if expired.CurrentIndex() != manual.CurrentIndex() {
		t.Fatalf("expected same index, got %d vs %d", expired.CurrentIndex(), manual.CurrentIndex())
	}
}

func TestExpiryDiscardsPendingSelection(t *testing.T) {
	session, timer, _ := newTestSession(t, "Math", makeQuestions("Math", 2))
	mustSelect(t, session, "A")
	timer.Expire()
	if session.Answers()[0] != domain.NoAnswer {
		t.Fatalf("expected timeout to record no answer, got %+v", session.Answers()[0])
	}
}

func TestExpiryAfterCorrectSelectionScoresNothing(t *testing.T) {
	session, timer, sink := newTestSession(t, "Math", makeQuestions("Math", 1))
	mustSelect(t, session, session.Pool()[0].CorrectAnswer)
	timer.Expire()

	result, ok := session.Result()
	if !ok {
		t.Fatalf("expected expiry on the last question to complete the session")
	}
	if result.Score != 0 || result.Details[0].Answered || result.Details[0].IsCorrect {
		t.Fatalf("unconfirmed selection must not score on timeout, got %+v", result)
	}
	if session.Answers()[0] != domain.NoAnswer {
		t.Fatalf("expected no answer committed, got %+v", session.Answers()[0])
	}
	if saved := sink.saved(); len(saved) != 1 || saved[0].Score != 0 {
		t.Fatalf("expected the zero score persisted, got %+v", saved)
	}
}

func TestSelectAnswerLastCallWins(t *testing.T) {
	session, timer, _ := newTestSession(t, "Math", makeQuestions("Math", 2))
	timer.Tick()
	mustSelect(t, session, "A")
	mustSelect(t, session, "B")

	view, ok := session.CurrentQuestion()
	if !ok || !view.HasSelection || view.Selected != "B" {
		t.Fatalf("expected pending B, got %+v", view)
	}
	if session.TimeRemaining() != domain.SecondsPerQuestion-1 || timer.Starts() != 1 {
		t.Fatalf("selection must not touch the timer, remaining %d after %d starts", session.TimeRemaining(), timer.Starts())
	}
	mustAdvance(t, session)
	if session.Answers()[0] != domain.Chose("B") {
		t.Fatalf("expected B committed, got %+v", session.Answers()[0])
	}
	if view, _ := session.CurrentQuestion(); view.HasSelection {
		t.Fatalf("pending selection should be cleared on the next question")
	}
}

func TestRetreatRoundTripKeepsAnswer(t *testing.T) {
	session, timer, _ := newTestSession(t, "Math", makeQuestions("Math", 3))
	mustSelect(t, session, "C")
	mustAdvance(t, session)
	mustSelect(t, session, "B")

	if err := session.Retreat(); err != nil {
		t.Fatalf("retreat: %v", err)
	}
	view, _ := session.CurrentQuestion()
	if view.Index != 0 || view.Selected != "C" {
		t.Fatalf("expected restored selection C at 0, got %+v", view)
	}
	if got := session.Answers(); len(got) != 2 || got[1] != domain.Chose("B") {
		t.Fatalf("retreat must commit the answer being left, got %+v", got)
	}
	if timer.Remaining() != domain.SecondsPerQuestion {
		t.Fatalf("expected timer restarted on retreat")
	}

	mustAdvance(t, session)
	if got := session.Answers(); got[0] != domain.Chose("C") || got[1] != domain.Chose("B") {
		t.Fatalf("round trip changed answers: %+v", got)
	}
}

func TestRetreatToUnansweredQuestionRestoresNoSelection(t *testing.T) {
	session, _, _ := newTestSession(t, "Math", makeQuestions("Math", 2))
	mustAdvance(t, session)
	if err := session.Retreat(); err != nil {
		t.Fatalf("retreat: %v", err)
	}
	if view, _ := session.CurrentQuestion(); view.HasSelection {
		t.Fatalf("expected no pending selection, got %+v", view)
	}
	mustAdvance(t, session)
	if session.Answers()[0] != domain.NoAnswer {
		t.Fatalf("expected no answer preserved, got %+v", session.Answers()[0])
	}
}

func TestInvalidTransitions(t *testing.T) {
	session, _, _ := newTestSession(t, "Math", makeQuestions("Math", 1))
	if err := session.Retreat(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition at index 0, got %v", err)
	}
	mustAdvance(t, session)
	for name, op := range map[string]func() error{
		"advance": session.Advance,
		"retreat": session.Retreat,
		"select":  func() error { return session.SelectAnswer("A") },
	} {
		if err := op(); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("%s after completion: expected invalid transition, got %v", name, err)
		}
	}
	if _, ok := session.CurrentQuestion(); ok {
		t.Fatalf("completed session has no current question")
	}
}

func TestStaleTimerCannotAdvanceNewQuestion(t *testing.T) {
	timers := &timerRecorder{}
	pool := makeQuestions("Math", 3)
	session, err := NewSession(SessionConfig{
		ID:       "s1",
		Selector: "Math",
		Pool:     pool,
		Shuffler: NewShuffler(rand.NewSource(1)),
		Timer:    timers,
		Dispatch: func(f func()) { f() },
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	staleExpire := timers.lastExpire
	mustAdvance(t, session)

	staleExpire()
	if session.CurrentIndex() != 1 {
		t.Fatalf("stale expiry advanced the session to %d", session.CurrentIndex())
	}
	if len(session.Answers()) != 1 {
		t.Fatalf("stale expiry committed an answer: %+v", session.Answers())
	}

	timers.lastExpire()
	if session.CurrentIndex() != 2 {
		t.Fatalf("current expiry should advance, at %d", session.CurrentIndex())
	}
}

func TestRestartSingleCategoryReshufflesWithoutFetch(t *testing.T) {
	pools := &countingPools{pool: makeQuestions("Math", 6)}
	session, err := NewSession(SessionConfig{
		Selector: "Math",
		Pool:     pools.pool,
		Pools:    pools,
		Shuffler: NewShuffler(rand.NewSource(9)),
		Timer:    NewManualTimer(),
		Dispatch: func(f func()) { f() },
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	for !session.IsComplete() {
		mustAdvance(t, session)
	}

	if err := session.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if pools.calls != 0 {
		t.Fatalf("single-category restart must not re-fetch, got %d calls", pools.calls)
	}
	if session.IsComplete() || session.CurrentIndex() != 0 || len(session.Answers()) != 0 {
		t.Fatalf("expected fresh state after restart")
	}
	if _, ok := session.Result(); ok {
		t.Fatalf("restart must discard the previous result")
	}
	if len(session.Pool()) != 6 {
		t.Fatalf("expected the same validated pool size, got %d", len(session.Pool()))
	}
}

func TestRestartMixedResamples(t *testing.T) {
	pools := &countingPools{pool: makeQuestions("Science", 4)}
	session, err := NewSession(SessionConfig{
		Selector: "randomized",
		Pool:     pools.pool,
		Pools:    pools,
		Timer:    NewManualTimer(),
		Dispatch: func(f func()) { f() },
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if session.Selector() != domain.MixedSelector {
		t.Fatalf("expected legacy selector normalised, got %q", session.Selector())
	}
	mustAdvance(t, session)

	if err := session.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if pools.calls != 1 || pools.lastSelector != domain.MixedSelector {
		t.Fatalf("expected one mixed re-fetch, got calls=%d selector=%q", pools.calls, pools.lastSelector)
	}

	pools.err = domain.ErrTransientFetch
	mustAdvance(t, session)
	if err := session.Restart(context.Background()); !errors.Is(err, domain.ErrTransientFetch) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if session.CurrentIndex() != 1 {
		t.Fatalf("failed restart must keep the running attempt")
	}
}

func TestMixedResultHasCategoryStats(t *testing.T) {
	pool := append(makeQuestions("Math", 2), makeQuestions("Science", 1)...)
	session, _, _ := newTestSession(t, domain.MixedSelector, pool)
	for range pool {
		mustSelect(t, session, "A")
		mustAdvance(t, session)
	}
	result, _ := session.Result()
	if result.QuizType != domain.QuizTypeMixed || result.DisplayCategory != domain.MixedDisplayName {
		t.Fatalf("unexpected mixed metadata %q %q", result.QuizType, result.DisplayCategory)
	}
	if result.CategoryStats["Math"] != (domain.CategoryStat{Total: 2, Correct: 2}) ||
		result.CategoryStats["Science"] != (domain.CategoryStat{Total: 1, Correct: 1}) {
		t.Fatalf("unexpected category stats %+v", result.CategoryStats)
	}
}

func TestAbandonStopsTimerAndPersistsNothing(t *testing.T) {
	session, timer, sink := newTestSession(t, "Math", makeQuestions("Math", 2))
	mustSelect(t, session, "A")
	session.Abandon()

	if timer.Active() {
		t.Fatalf("expected timer stopped")
	}
	timer.Expire()
	if len(sink.saved()) != 0 {
		t.Fatalf("abandoned session persisted a result")
	}
	if err := session.Advance(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition after abandon, got %v", err)
	}
	if err := session.Restart(context.Background()); err != nil {
		t.Fatalf("restart after abandon: %v", err)
	}
	if session.CurrentIndex() != 0 {
		t.Fatalf("expected restarted session")
	}
}

func TestPersistenceFailureStillCompletes(t *testing.T) {
	sink := &recordingSink{err: errors.New("store down")}
	session, err := NewSession(SessionConfig{
		UserID:   "u1",
		Selector: "Math",
		Pool:     makeQuestions("Math", 1),
		Timer:    NewManualTimer(),
		Recorder: NewRecorder(sink, nil),
		Dispatch: func(f func()) { f() },
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	mustSelect(t, session, "A")
	if err := session.Advance(); err != nil {
		t.Fatalf("advance must not surface persistence errors: %v", err)
	}
	result, ok := session.Result()
	if !ok || result.Score != 1 || result.UserID != "u1" {
		t.Fatalf("expected in-memory result despite sink failure, got %+v", result)
	}
}

func TestElapsedTimeUsesSessionClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	session, err := NewSession(SessionConfig{
		Selector: "Math",
		Pool:     makeQuestions("Math", 1),
		Timer:    NewManualTimer(),
		Now:      clock,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	now = now.Add(42*time.Second + 400*time.Millisecond)
	mustAdvance(t, session)
	result, _ := session.Result()
	if result.ElapsedSeconds != 42 {
		t.Fatalf("expected 42s elapsed, got %d", result.ElapsedSeconds)
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	session, timer, _ := newTestSession(t, "Math", makeQuestions("Math", 2))
	ch, cancel := session.Subscribe()
	defer cancel()

	if ev := <-ch; ev.Type != EventQuestion || ev.Question.Index != 0 {
		t.Fatalf("expected initial question event, got %+v", ev)
	}
	timer.Tick()
	if ev := <-ch; ev.Type != EventTick || ev.Remaining != domain.SecondsPerQuestion-1 {
		t.Fatalf("expected tick event, got %+v", ev)
	}
	mustAdvance(t, session)
	if ev := <-ch; ev.Type != EventQuestion || ev.Question.Index != 1 {
		t.Fatalf("expected next question event, got %+v", ev)
	}
	mustAdvance(t, session)
	if ev := <-ch; ev.Type != EventCompleted || ev.Result == nil {
		t.Fatalf("expected completed event, got %+v", ev)
	}
}

func TestNewSessionRequiresQuestions(t *testing.T) {
	if _, err := NewSession(SessionConfig{Selector: "Math"}); !errors.Is(err, domain.ErrPoolNotFound) {
		t.Fatalf("expected pool not found, got %v", err)
	}
}

func newTestSession(t *testing.T, selector string, pool []domain.Question) (*Session, *ManualTimer, *recordingSink) {
	t.Helper()
	timer := NewManualTimer()
	sink := &recordingSink{}
	session, err := NewSession(SessionConfig{
		ID:       "session-1",
		UserID:   "u1",
		Selector: selector,
		Pool:     pool,
		Shuffler: NewShuffler(rand.NewSource(1)),
		Timer:    timer,
		Recorder: NewRecorder(sink, nil),
		Dispatch: func(f func()) { f() },
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session, timer, sink
}

func mustSelect(t *testing.T, s *Session, choice string) {
	t.Helper()
	if err := s.SelectAnswer(choice); err != nil {
		t.Fatalf("select %q: %v", choice, err)
	}
}

func mustAdvance(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	results []domain.Result
	err     error
}

func (r *recordingSink) SaveResult(_ context.Context, result domain.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.results = append(r.results, result)
	return nil
}

func (r *recordingSink) saved() []domain.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Result(nil), r.results...)
}

type countingPools struct {
	pool         []domain.Question
	err          error
	calls        int
	lastSelector string
}

func (c *countingPools) FetchPool(_ context.Context, selector string) ([]domain.Question, error) {
	c.calls++
	c.lastSelector = selector
	if c.err != nil {
		return nil, c.err
	}
	return c.pool, nil
}

// timerRecorder keeps the callbacks of the latest Start so tests can fire them out of order.
type timerRecorder struct {
	remaining  int
	active     bool
	lastExpire func()
}

func (r *timerRecorder) Start(budget int, _ func(int), onExpire func()) {
	r.remaining, r.active, r.lastExpire = budget, true, onExpire
}
func (r *timerRecorder) Stop()          { r.active = false }
func (r *timerRecorder) Remaining() int { return r.remaining }
func (r *timerRecorder) Active() bool   { return r.active }
