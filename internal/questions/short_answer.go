package questions

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/models"
)

const answerPlaceholder = "Write your answer here..."

type ShortAnswerMethods struct {
	renderer Renderer
}

func (m *ShortAnswerMethods) Type() models.QuestionType { return models.ShortAnswer }

func (m *ShortAnswerMethods) PromptView(q *models.Question) PromptView {
	body := q.Body.(*models.ShortAnswerQuestion)
	return PromptView{HTML: m.renderer.Markdown(body.Prompt.Prompt)}
}

func (m *ShortAnswerMethods) QuestionState(*models.Question, *rand.Rand) *State { return nil }

func (m *ShortAnswerMethods) ResponseForm(q *models.Question, _ *State) ResponseForm {
	body := q.Body.(*models.ShortAnswerQuestion)
	kind := FieldText
	if body.Prompt.Response == models.ResponseLong || body.Prompt.Response == models.ResponseCode {
		kind = FieldTextarea
	}
	return ResponseForm{Fields: []Field{{
		Name:        "answer",
		Kind:        kind,
		Placeholder: answerPlaceholder,
		Required:    true,
	}}}
}

func (m *ShortAnswerMethods) MissingFields(_ *models.Question, form url.Values) []string {
	return missing(form, "answer")
}

func (m *ShortAnswerMethods) AnswerFromForm(_ *models.Question, form url.Values) (json.RawMessage, error) {
	return json.Marshal(models.ShortAnswerAnswer{Answer: form.Get("answer")})
}

func (m *ShortAnswerMethods) CompareAnswers(q *models.Question, answer json.RawMessage) (bool, error) {
	body := q.Body.(*models.ShortAnswerQuestion)
	var candidate models.ShortAnswerAnswer
	if err := json.Unmarshal(answer, &candidate); err != nil {
		return false, fmt.Errorf("invalid short answer: %w", err)
	}
	return CompareShortAnswer(body.Answer, candidate), nil
}

func (m *ShortAnswerMethods) AnswerView(q *models.Question, answer json.RawMessage) AnswerView {
	body := q.Body.(*models.ShortAnswerQuestion)
	var candidate models.ShortAnswerAnswer
	_ = json.Unmarshal(answer, &candidate)
	return AnswerView{Parts: []AnswerPart{{
		HTML:    m.renderer.Snippet(candidate.Answer, false),
		Correct: CompareShortAnswer(body.Answer, candidate),
	}}}
}

// CompareShortAnswer matches case-insensitively, ignoring surrounding
// whitespace, against the answer and each alternative.
func CompareShortAnswer(reference, candidate models.ShortAnswerAnswer) bool {
	clean := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	got := clean(candidate.Answer)
	if got == clean(reference.Answer) {
		return true
	}
	for _, alt := range reference.Alternatives {
		if got == clean(alt) {
			return true
		}
	}
	return false
}
