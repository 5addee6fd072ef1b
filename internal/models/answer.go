package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// TaggedAnswer is one scored response. The Answer payload has the shape of
// the question type's reference answer.
type TaggedAnswer struct {
	Answer      json.RawMessage `json:"answer"`
	Correct     bool            `json:"correct"`
	Start       int64           `json:"start"` // unix milliseconds
	End         int64           `json:"end"`
	Explanation *string         `json:"explanation,omitempty"`
}

// Duration is the time the learner spent on the question.
func (a TaggedAnswer) Duration() time.Duration {
	return time.Duration(a.End-a.Start) * time.Millisecond
}

// QuizState is the mutable progress of one quiz session.
type QuizState struct {
	Started       bool           `json:"started"`
	Index         int            `json:"index"`
	Attempt       int            `json:"attempt"`
	ConfirmedDone bool           `json:"confirmedDone"`
	Answers       []TaggedAnswer `json:"answers"`
	WrongAnswers  []int          `json:"wrongAnswers,omitempty"`
}

// Clone returns a deep copy that shares nothing with s.
func (s QuizState) Clone() QuizState {
	out := s
	out.Answers = CloneAnswers(s.Answers)
	if s.WrongAnswers != nil {
		out.WrongAnswers = append([]int(nil), s.WrongAnswers...)
	}
	return out
}

func CloneAnswers(answers []TaggedAnswer) []TaggedAnswer {
	out := make([]TaggedAnswer, len(answers))
	for i, a := range answers {
		out[i] = a
		out[i].Answer = append(json.RawMessage(nil), a.Answer...)
		if a.Explanation != nil {
			explanation := *a.Explanation
			out[i].Explanation = &explanation
		}
	}
	return out
}

// StoredAnswers is the persisted snapshot of a session, keyed by quiz name.
type StoredAnswers struct {
	Answers       []TaggedAnswer `json:"answers"`
	ConfirmedDone bool           `json:"confirmedDone"`
	QuizHash      string         `json:"quizHash"`
	Attempt       int            `json:"attempt"`
	WrongAnswers  []int          `json:"wrongAnswers,omitempty"`
}

// QuizProgress is the Postgres row backing the key-value progress store.
type QuizProgress struct {
	Key       string         `json:"key" gorm:"primaryKey;size:512"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (QuizProgress) TableName() string {
	return "quiz_progress"
}
