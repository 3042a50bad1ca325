package app

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"quizbank-service/internal/domain"
)

// ExamStatus enumerates the exam session states.
type ExamStatus int

const (
	StatusIdle ExamStatus = iota
	StatusActive
	StatusCompleted
)

func (s ExamStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// ExamEngine runs one test-taker's exam: filtering, shuffling,
// sequential delivery, scoring. It is owned by a single session
// context and never shared across sessions; Completed is reached only
// by exhausting the question sequence through Answer.
type ExamEngine struct {
	mu      sync.Mutex
	status  ExamStatus
	ordered []domain.Question
	current int
	answers map[string]int
	rnd     *rand.Rand
}

func NewExamEngine() *ExamEngine {
	return NewExamEngineWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewExamEngineWithRand allows a seeded source for deterministic shuffles in tests.
func NewExamEngineWithRand(rnd *rand.Rand) *ExamEngine {
	return &ExamEngine{status: StatusIdle, rnd: rnd}
}

// StartExam filters pool by exact subject and difficulty match, takes
// an independent shuffled copy and activates the session. An empty
// filter result is a silent no-op: the engine stays Idle. Calling it
// outside Idle is a state error; callers reset first.
func (e *ExamEngine) StartExam(pool map[string]domain.Question, subject, difficulty string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusIdle {
		return domain.ErrInvalidState
	}

	var filtered []domain.Question
	for _, q := range pool {
		if q.Subject == subject && q.Difficulty == difficulty {
			filtered = append(filtered, snapshotQuestion(q))
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	// Map iteration order is random; fix it before shuffling so the
	// shuffle alone determines the permutation.
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })
	for i := len(filtered) - 1; i >= 1; i-- {
		j := e.rnd.Intn(i + 1)
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}

	e.ordered = filtered
	e.current = 0
	e.answers = make(map[string]int, len(filtered))
	e.status = StatusActive
	return nil
}

// Answer records the selected option for the current question and
// advances. The session completes exactly when the index passes the
// last question.
func (e *ExamEngine) Answer(selectedIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusActive {
		return domain.ErrInvalidState
	}
	e.answers[e.ordered[e.current].ID] = selectedIndex
	e.current++
	if e.current == len(e.ordered) {
		e.status = StatusCompleted
	}
	return nil
}

// Score counts exact matches over the ordered questions. A question
// with no recorded answer counts as incorrect. Defined only once the
// session is Completed.
func (e *ExamEngine) Score() (domain.ExamScore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusCompleted {
		return domain.ExamScore{}, domain.ErrInvalidState
	}
	score := domain.ExamScore{Total: len(e.ordered)}
	for _, q := range e.ordered {
		if answer, ok := e.answers[q.ID]; ok && answer == q.CorrectAnswerIndex {
			score.Correct++
		}
	}
	return score, nil
}

// Reset clears all session fields and returns to Idle. Valid from any
// state and idempotent.
func (e *ExamEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusIdle
	e.ordered = nil
	e.current = 0
	e.answers = nil
}

// Status reports the current session state.
func (e *ExamEngine) Status() ExamStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// CurrentQuestion returns the answer-free prompt for the question now
// current. The second return is false outside Active.
func (e *ExamEngine) CurrentQuestion() (domain.QuestionPrompt, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusActive {
		return domain.QuestionPrompt{}, false
	}
	q := e.ordered[e.current]
	return domain.QuestionPrompt{
		ID:       q.ID,
		Number:   e.current + 1,
		Total:    len(e.ordered),
		Question: q.Question,
		Options:  append([]string(nil), q.Options...),
	}, true
}

// OrderedIDs exposes the shuffled order for callers that need to
// correlate answers, e.g. tests asserting the permutation property.
func (e *ExamEngine) OrderedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.ordered))
	for i, q := range e.ordered {
		ids[i] = q.ID
	}
	return ids
}

// snapshotQuestion deep-copies a question so later pool mutations never
// reach an in-progress session.
func snapshotQuestion(q domain.Question) domain.Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}
