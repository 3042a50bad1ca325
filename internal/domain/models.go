package domain

import "time"

// OptionCount is the fixed number of answer options per question.
const OptionCount = 4

// QuestionDraft is a validated, not-yet-persisted question produced by ingestion.
type QuestionDraft struct {
	Subject            string   `json:"subject"`
	Difficulty         string   `json:"difficulty"`
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
}

// Question is the persisted form of a draft. ID, CreatedAt and AuthorID are
// assigned at persistence time; the store performs no schema validation,
// ingestion is the sole gate.
type Question struct {
	ID                 string    `json:"id"`
	Subject            string    `json:"subject"`
	Difficulty         string    `json:"difficulty"`
	Question           string    `json:"question"`
	Options            []string  `json:"options"`
	CorrectAnswerIndex int       `json:"correctAnswerIndex"`
	CreatedAt          time.Time `json:"createdAt"`
	AuthorID           string    `json:"authorId"`
}

// QuestionPrompt is the answer-free view of a question sent to test-takers.
type QuestionPrompt struct {
	ID       string   `json:"id"`
	Number   int      `json:"number"`
	Total    int      `json:"total"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// ExamScore is the result of a completed exam session.
type ExamScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// CollectionPath returns the tenant-scoped path under which question
// documents live. The tenant id is supplied by the hosting environment.
func CollectionPath(tenantID string) string {
	return "artifacts/" + tenantID + "/public/data/exams_questions"
}
