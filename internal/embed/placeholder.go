package embed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/services"
)

// Placeholder attributes. Values are JSON.
const (
	AttrName            = "data-quiz-name"
	AttrQuestions       = "data-quiz-questions"
	AttrFullscreen      = "data-quiz-fullscreen"
	AttrCacheAnswers    = "data-quiz-cache-answers"
	AttrShowBugReporter = "data-quiz-show-bug-reporter"
	AttrInitialText     = "data-quiz-initial-text"
	AttrDefaultLanguage = "data-quiz-default-language"
)

var ErrInvalidPlaceholder = errors.New("invalid quiz placeholder")

// ParsePlaceholder reads the attributes of one placeholder element into a
// session request. Each placeholder mounts its own session, always with
// retries allowed. A boolean attribute is on when present, unless its value
// is the JSON literal false.
func ParsePlaceholder(attrs map[string]string) (*services.CreateSessionRequest, error) {
	rawName, ok := attrs[AttrName]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidPlaceholder, AttrName)
	}
	rawQuestions, ok := attrs[AttrQuestions]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidPlaceholder, AttrQuestions)
	}

	quiz, err := models.ParseQuizJSON([]byte(rawQuestions))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPlaceholder, AttrQuestions, err)
	}

	req := &services.CreateSessionRequest{
		Name:            stringValue(rawName),
		Quiz:            quiz,
		Fullscreen:      flag(attrs, AttrFullscreen),
		CacheAnswers:    flag(attrs, AttrCacheAnswers),
		ShowBugReporter: flag(attrs, AttrShowBugReporter),
		AllowRetry:      true,
	}
	if text, ok := attrs[AttrInitialText]; ok {
		req.InitialText = stringValue(text)
	}
	return req, nil
}

// stringValue decodes a JSON string, falling back to the raw text for
// hand-written placeholders.
func stringValue(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s
	}
	return raw
}

func flag(attrs map[string]string, key string) bool {
	raw, ok := attrs[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal([]byte(raw), &b); err == nil {
		return b
	}
	return true
}
