package questions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/models"
)

var ErrUnknownQuestionType = errors.New("unknown question type")

// Methods is the behaviour every question type provides to the session.
type Methods interface {
	Type() models.QuestionType

	// PromptView renders the question prompt.
	PromptView(q *models.Question) PromptView

	// QuestionState derives presentation-only state for one appearance of
	// the question. It returns nil for types without such state.
	QuestionState(q *models.Question, rng *rand.Rand) *State

	// ResponseForm describes the inputs that collect the learner's answer.
	ResponseForm(q *models.Question, state *State) ResponseForm

	// MissingFields lists required inputs that are absent from the form.
	MissingFields(q *models.Question, form url.Values) []string

	// AnswerFromForm decodes a validated form into the type's answer shape.
	AnswerFromForm(q *models.Question, form url.Values) (json.RawMessage, error)

	// CompareAnswers reports whether answer matches the reference answer.
	CompareAnswers(q *models.Question, answer json.RawMessage) (bool, error)

	// AnswerView renders answer for the review screen, marking which parts
	// agree with the reference answer.
	AnswerView(q *models.Question, answer json.RawMessage) AnswerView
}

// Registry resolves the Methods of a question from its body type.
type Registry struct {
	renderer       Renderer
	shortAnswer    *ShortAnswerMethods
	multipleChoice *MultipleChoiceMethods
	tracing        *TracingMethods
}

func NewRegistry(renderer Renderer) *Registry {
	if renderer == nil {
		renderer = EscapeRenderer{}
	}
	return &Registry{
		renderer:       renderer,
		shortAnswer:    &ShortAnswerMethods{renderer: renderer},
		multipleChoice: &MultipleChoiceMethods{renderer: renderer},
		tracing:        &TracingMethods{renderer: renderer},
	}
}

func (r *Registry) For(q *models.Question) (Methods, error) {
	switch q.Body.(type) {
	case *models.ShortAnswerQuestion:
		return r.shortAnswer, nil
	case *models.MultipleChoiceQuestion:
		return r.multipleChoice, nil
	case *models.TracingQuestion:
		return r.tracing, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuestionType, q.Type)
	}
}

func (r *Registry) Renderer() Renderer {
	return r.renderer
}

// UnknownTypeView is shown in place of a question the registry cannot run.
func (r *Registry) UnknownTypeView(q *models.Question) PromptView {
	return PromptView{
		Error: fmt.Sprintf("QUIZ FORMAT ERROR: unknown question type %s", q.Type),
	}
}

// ===== VIEWS =====

type PromptView struct {
	HTML  string `json:"html,omitempty"`
	Error string `json:"error,omitempty"`
}

type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldTextarea FieldKind = "textarea"
	FieldRadio    FieldKind = "radio"
	FieldCheckbox FieldKind = "checkbox"
)

type Choice struct {
	Value string `json:"value"`
	HTML  string `json:"html"`
}

// FieldCondition shows a field only while another field holds a value.
type FieldCondition struct {
	Field  string `json:"field"`
	Equals string `json:"equals"`
}

type Field struct {
	Name        string          `json:"name"`
	Kind        FieldKind       `json:"kind"`
	Label       string          `json:"label,omitempty"`
	Placeholder string          `json:"placeholder,omitempty"`
	Choices     []Choice        `json:"choices,omitempty"`
	Required    bool            `json:"required"`
	VisibleWhen *FieldCondition `json:"visibleWhen,omitempty"`
	Invalid     bool            `json:"invalid,omitempty"`
}

type ResponseForm struct {
	Fields   []Field `json:"fields"`
	Disabled bool    `json:"disabled,omitempty"`
}

// MarkInvalid flags the named fields so the client can highlight them.
func (f *ResponseForm) MarkInvalid(names []string) {
	for i := range f.Fields {
		for _, name := range names {
			if f.Fields[i].Name == name {
				f.Fields[i].Invalid = true
			}
		}
	}
}

type AnswerPart struct {
	Label   string `json:"label,omitempty"`
	HTML    string `json:"html,omitempty"`
	Correct bool   `json:"correct"`
}

type AnswerView struct {
	Parts []AnswerPart `json:"parts"`
}

// State is the per-appearance presentation state of a question.
type State struct {
	Choices []models.Markdown `json:"choices,omitempty"`
}

// ===== HELPERS =====

func missing(form url.Values, names ...string) []string {
	var out []string
	for _, name := range names {
		if !present(form, name) {
			out = append(out, name)
		}
	}
	return out
}

func present(form url.Values, name string) bool {
	for _, v := range form[name] {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// ReferenceAnswer encodes the authored answer in the same shape
// AnswerFromForm produces, so it can be shown through AnswerView.
func ReferenceAnswer(q *models.Question) (json.RawMessage, error) {
	switch body := q.Body.(type) {
	case *models.ShortAnswerQuestion:
		return json.Marshal(body.Answer)
	case *models.MultipleChoiceQuestion:
		return json.Marshal(body.Answer)
	case *models.TracingQuestion:
		return json.Marshal(body.Answer)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuestionType, q.Type)
	}
}
