package events

import (
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/google/uuid"
)

// EventType is the telemetry endpoint name an event is logged under.
type EventType string

const (
	EventAnswers      EventType = "answers"
	EventBug          EventType = "bug"
	EventRuntimeError EventType = "runtime_error"
)

// TelemetryEvent is the envelope published for every telemetry log call.
type TelemetryEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AnswersEvent is logged after every scored submission.
type AnswersEvent struct {
	QuizName string                `json:"quizName"`
	QuizHash string                `json:"quizHash"`
	Answers  []models.TaggedAnswer `json:"answers"`
	Attempt  int                   `json:"attempt"`
}

// BugEvent carries a learner's report about one question.
type BugEvent struct {
	QuizName string `json:"quizName"`
	Question int    `json:"question"`
	Feedback string `json:"feedback"`
}

// RuntimeErrorEvent reports an unexpected failure caught at the top level.
type RuntimeErrorEvent struct {
	Error string `json:"error"`
}

func NewTelemetryEvent(eventType EventType, source string, data interface{}) *TelemetryEvent {
	return &TelemetryEvent{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Version:   "1.0",
		Data:      data,
	}
}

func generateEventID() string {
	return uuid.NewString()
}
