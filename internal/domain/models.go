package domain

import "time"

const (
	// SecondsPerQuestion is the fixed answering budget for every question.
	SecondsPerQuestion = 15
	// MaxMixedQuestions caps the pool of a mixed-category session.
	MaxMixedQuestions = 20

	MixedSelector    = "mixed"
	MixedDisplayName = "Mixed Categories"

	QuizTypeMixed    = "mixed"
	QuizTypeCategory = "category-specific"
)

// legacySelectors are alternative spellings of the mixed selector used by older clients.
var legacySelectors = map[string]struct{}{
	"randomized": {},
	"random":     {},
}

// DefaultCategories lists the subject categories a mixed session samples from.
var DefaultCategories = []string{"Math", "English", "Science"}

// IsMixed reports whether selector asks for a session across all categories.
func IsMixed(selector string) bool {
	if selector == MixedSelector {
		return true
	}
	_, ok := legacySelectors[selector]
	return ok
}

// RawQuestion is a question record as stored, before validation.
type RawQuestion struct {
	ID       string   `json:"id,omitempty" yaml:"id,omitempty"`
	Question string   `json:"question" yaml:"question"`
	Options  []string `json:"options" yaml:"options"`
	Answer   string   `json:"answer" yaml:"answer"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
}

// QuizDocument is the per-category aggregate document.
type QuizDocument struct {
	Title     string        `json:"title,omitempty" yaml:"title,omitempty"`
	Questions []RawQuestion `json:"questions" yaml:"questions"`
}

// Question is a validated multiple-choice question. CorrectAnswer is always one of Options.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Category      string   `json:"category"`
}

// Answer is the committed choice for one question. The zero value is NoAnswer.
type Answer struct {
	Choice string
	Given  bool
}

// NoAnswer marks a question that was skipped or timed out.
var NoAnswer = Answer{}

// Chose returns an Answer for the option text choice.
func Chose(choice string) Answer {
	return Answer{Choice: choice, Given: true}
}

// Matches reports whether the answer is exactly the correct option text.
func (a Answer) Matches(correct string) bool {
	return a.Given && a.Choice == correct
}

// Phase is the coarse state of a quiz session.
type Phase string

const (
	PhaseInProgress Phase = "in_progress"
	PhaseCompleted  Phase = "completed"
)

// QuestionView is the presentation-facing projection of the current question.
type QuestionView struct {
	Index        int      `json:"index"`
	Total        int      `json:"total"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	Category     string   `json:"category"`
	Selected     string   `json:"selected,omitempty"`
	HasSelection bool     `json:"hasSelection"`
}

// QuestionDetail is the per-question outcome stored with a Result.
type QuestionDetail struct {
	Prompt          string   `json:"prompt"`
	Category        string   `json:"category"`
	Options         []string `json:"options"`
	SubmittedAnswer string   `json:"submittedAnswer,omitempty"`
	CorrectAnswer   string   `json:"correctAnswer"`
	IsCorrect       bool     `json:"isCorrect"`
	Answered        bool     `json:"answered"`
}

// CategoryStat counts outcomes for one source category of a mixed session.
type CategoryStat struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
}

// Result is the immutable summary of one completed session.
type Result struct {
	ID                 string                  `json:"id"`
	UserID             string                  `json:"userId"`
	Category           string                  `json:"category"`
	DisplayCategory    string                  `json:"displayCategory"`
	QuizType           string                  `json:"quizType"`
	Score              int                     `json:"score"`
	TotalQuestions     int                     `json:"totalQuestions"`
	Percentage         int                     `json:"percentage"`
	ElapsedSeconds     int                     `json:"timeTaken"`
	StartedAt          time.Time               `json:"startedAt"`
	CompletedAt        time.Time               `json:"completedAt"`
	Details            []QuestionDetail        `json:"detailedResults"`
	CategoryStats      map[string]CategoryStat `json:"categoryStats,omitempty"`
	Timed              bool                    `json:"timedQuiz"`
	SecondsPerQuestion int                     `json:"timePerQuestion"`
}

// Dashboard aggregates a user's score history.
type Dashboard struct {
	UserID            string   `json:"userId"`
	Attempts          int      `json:"attempts"`
	AveragePercentage int      `json:"averagePercentage"`
	BestPercentage    int      `json:"bestPercentage"`
	TotalCorrect      int      `json:"totalCorrect"`
	TotalQuestions    int      `json:"totalQuestions"`
	Recent            []Result `json:"recent"`
}
