package questions

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"slices"

	"github.com/SAP-F-2025/quiz-service/internal/models"
)

type MultipleChoiceMethods struct {
	renderer Renderer
}

func (m *MultipleChoiceMethods) Type() models.QuestionType { return models.MultipleChoice }

func (m *MultipleChoiceMethods) PromptView(q *models.Question) PromptView {
	body := q.Body.(*models.MultipleChoiceQuestion)
	return PromptView{HTML: m.renderer.Markdown(body.Prompt.Prompt)}
}

// QuestionState merges the correct answers into the distractors. A pinned
// answerIndex places them at that position; otherwise the choices are sorted
// or shuffled.
func (m *MultipleChoiceMethods) QuestionState(q *models.Question, rng *rand.Rand) *State {
	body := q.Body.(*models.MultipleChoiceQuestion)
	answers := body.Answer.Answer.Choices

	var choices []models.Markdown
	if idx := body.Prompt.AnswerIndex; idx != nil {
		at := min(max(*idx, 0), len(body.Prompt.Distractors))
		choices = append(choices, body.Prompt.Distractors[:at]...)
		choices = append(choices, answers...)
		choices = append(choices, body.Prompt.Distractors[at:]...)
		return &State{Choices: choices}
	}

	choices = append(choices, answers...)
	choices = append(choices, body.Prompt.Distractors...)
	if body.Prompt.SortAnswers != nil && *body.Prompt.SortAnswers {
		slices.Sort(choices)
	} else if rng != nil {
		rng.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})
	} else {
		rand.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})
	}
	return &State{Choices: choices}
}

func (m *MultipleChoiceMethods) ResponseForm(q *models.Question, state *State) ResponseForm {
	body := q.Body.(*models.MultipleChoiceQuestion)
	if state == nil {
		state = m.QuestionState(q, nil)
	}

	kind := FieldRadio
	if body.Answer.Answer.Multi {
		kind = FieldCheckbox
	}
	field := Field{Name: "answer", Kind: kind, Required: true}
	for _, choice := range state.Choices {
		field.Choices = append(field.Choices, Choice{Value: choice, HTML: m.renderer.Markdown(choice)})
	}
	return ResponseForm{Fields: []Field{field}}
}

func (m *MultipleChoiceMethods) MissingFields(_ *models.Question, form url.Values) []string {
	return missing(form, "answer")
}

// AnswerFromForm keeps the single/multi shape of the reference answer and
// sorts multi selections.
func (m *MultipleChoiceMethods) AnswerFromForm(q *models.Question, form url.Values) (json.RawMessage, error) {
	body := q.Body.(*models.MultipleChoiceQuestion)
	var answer models.MultipleChoiceAnswer
	if body.Answer.Answer.Multi {
		selected := slices.Clone(form["answer"])
		slices.Sort(selected)
		answer.Answer = models.MultiChoice(selected...)
	} else {
		answer.Answer = models.SingleChoice(form.Get("answer"))
	}
	return json.Marshal(answer)
}

func (m *MultipleChoiceMethods) CompareAnswers(q *models.Question, answer json.RawMessage) (bool, error) {
	body := q.Body.(*models.MultipleChoiceQuestion)
	var candidate models.MultipleChoiceAnswer
	if err := json.Unmarshal(answer, &candidate); err != nil {
		return false, fmt.Errorf("invalid multiple choice answer: %w", err)
	}
	return CompareMultipleChoice(body.Answer, candidate), nil
}

func (m *MultipleChoiceMethods) AnswerView(q *models.Question, answer json.RawMessage) AnswerView {
	body := q.Body.(*models.MultipleChoiceQuestion)
	var candidate models.MultipleChoiceAnswer
	_ = json.Unmarshal(answer, &candidate)
	correct := CompareMultipleChoice(body.Answer, candidate)

	view := AnswerView{}
	for _, choice := range candidate.Answer.Choices {
		view.Parts = append(view.Parts, AnswerPart{HTML: m.renderer.Markdown(choice), Correct: correct})
	}
	if len(view.Parts) == 0 {
		view.Parts = append(view.Parts, AnswerPart{Correct: correct})
	}
	return view
}

// CompareMultipleChoice compares both answers as sorted lists, so selection
// order never matters and single answers behave like one-element lists.
func CompareMultipleChoice(reference, candidate models.MultipleChoiceAnswer) bool {
	want := slices.Clone(reference.Answer.Choices)
	got := slices.Clone(candidate.Answer.Choices)
	slices.Sort(want)
	slices.Sort(got)
	return slices.Equal(want, got)
}
