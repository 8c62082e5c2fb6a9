package app

import (
	"math/rand"
	"sync"
	"time"

	"quiz-engine/internal/domain"
)

// Shuffler produces random question orders. It is safe for concurrent use.
type Shuffler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewShuffler returns a Shuffler drawing from src, or from a time-seeded source when src is nil.
func NewShuffler(src rand.Source) *Shuffler {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Shuffler{rnd: rand.New(src)}
}

// Shuffle returns a uniformly random permutation of questions. The input slice is not modified.
func (s *Shuffler) Shuffle(questions []domain.Question) []domain.Question {
	shuffled := make([]domain.Question, len(questions))
	copy(shuffled, questions)

	s.mu.Lock()
	defer s.mu.Unlock()
	// Fisher-Yates
	for i := len(shuffled) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}

// SampleMixed concatenates every category's candidates, shuffles the union and keeps
// min(maxTotal, total) of them; a negative maxTotal keeps none. Sampling is global, so a
// category may end up over- or under-represented.
func (s *Shuffler) SampleMixed(perCategory [][]domain.Question, maxTotal int) []domain.Question {
	total := 0
	for _, pool := range perCategory {
		total += len(pool)
	}
	union := make([]domain.Question, 0, total)
	for _, pool := range perCategory {
		union = append(union, pool...)
	}

	shuffled := s.Shuffle(union)
	if maxTotal < 0 {
		maxTotal = 0
	}
	if maxTotal > len(shuffled) {
		maxTotal = len(shuffled)
	}
	return shuffled[:maxTotal]
}
