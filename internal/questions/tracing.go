package questions

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/models"
)

const tracingInstructions = "Determine whether the program will pass the compiler. " +
	"If it passes, write the expected output of the program if it were executed."

type TracingMethods struct {
	renderer Renderer
}

func (m *TracingMethods) Type() models.QuestionType { return models.Tracing }

func (m *TracingMethods) PromptView(q *models.Question) PromptView {
	body := q.Body.(*models.TracingQuestion)
	return PromptView{
		HTML: m.renderer.Markdown(tracingInstructions) + m.renderer.Snippet(body.Prompt.Program, true),
	}
}

func (m *TracingMethods) QuestionState(*models.Question, *rand.Rand) *State { return nil }

func (m *TracingMethods) ResponseForm(*models.Question, *State) ResponseForm {
	return ResponseForm{Fields: []Field{
		{
			Name:     "doesCompile",
			Kind:     FieldRadio,
			Label:    "This program:",
			Required: true,
			Choices: []Choice{
				{Value: "true", HTML: "<strong>does compile</strong>"},
				{Value: "false", HTML: "<strong>does not compile</strong>"},
			},
		},
		{
			Name:        "stdout",
			Kind:        FieldTextarea,
			Label:       "The output of this program will be:",
			Placeholder: "Write the program's output here...",
			Required:    true,
			VisibleWhen: &FieldCondition{Field: "doesCompile", Equals: "true"},
		},
	}}
}

// MissingFields only requires stdout once the learner claims the program
// compiles.
func (m *TracingMethods) MissingFields(_ *models.Question, form url.Values) []string {
	out := missing(form, "doesCompile")
	if form.Get("doesCompile") == "true" {
		out = append(out, missing(form, "stdout")...)
	}
	return out
}

func (m *TracingMethods) AnswerFromForm(_ *models.Question, form url.Values) (json.RawMessage, error) {
	answer := models.TracingAnswer{DoesCompile: form.Get("doesCompile") == "true"}
	if answer.DoesCompile {
		stdout := form.Get("stdout")
		answer.Stdout = &stdout
	}
	return json.Marshal(answer)
}

func (m *TracingMethods) CompareAnswers(q *models.Question, answer json.RawMessage) (bool, error) {
	body := q.Body.(*models.TracingQuestion)
	var candidate models.TracingAnswer
	if err := json.Unmarshal(answer, &candidate); err != nil {
		return false, fmt.Errorf("invalid tracing answer: %w", err)
	}
	return CompareTracing(body.Answer, candidate), nil
}

func (m *TracingMethods) AnswerView(q *models.Question, answer json.RawMessage) AnswerView {
	body := q.Body.(*models.TracingQuestion)
	var candidate models.TracingAnswer
	_ = json.Unmarshal(answer, &candidate)

	verdict := "does not compile"
	if candidate.DoesCompile {
		verdict = "does compile"
	}
	view := AnswerView{Parts: []AnswerPart{{
		Label:   "This program " + verdict + ".",
		Correct: candidate.DoesCompile == body.Answer.DoesCompile,
	}}}
	if candidate.DoesCompile {
		view.Parts = append(view.Parts, AnswerPart{
			Label:   "The output of this program will be:",
			HTML:    m.renderer.Snippet(deref(candidate.Stdout), false),
			Correct: body.Answer.Stdout != nil && trimmedEqual(candidate.Stdout, body.Answer.Stdout),
		})
	}
	return view
}

// CompareTracing requires the compile verdicts to agree and, when the
// program compiles, the trimmed outputs to agree. Two non-compiling answers
// always match.
func CompareTracing(reference, candidate models.TracingAnswer) bool {
	if reference.DoesCompile != candidate.DoesCompile {
		return false
	}
	if !reference.DoesCompile {
		return true
	}
	return trimmedEqual(reference.Stdout, candidate.Stdout)
}

func trimmedEqual(a, b *string) bool {
	return strings.TrimSpace(deref(a)) == strings.TrimSpace(deref(b))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
