package models

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Markdown is author-supplied markdown text. Rendering is delegated to a
// renderer supplied by the host.
type Markdown = string

type QuestionType string

const (
	ShortAnswer    QuestionType = "ShortAnswer"
	MultipleChoice QuestionType = "MultipleChoice"
	Tracing        QuestionType = "Tracing"
)

// QuestionTypes lists every question type the engine knows how to run.
var QuestionTypes = []QuestionType{ShortAnswer, MultipleChoice, Tracing}

func (t QuestionType) Known() bool {
	for _, known := range QuestionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Quiz is an ordered list of questions plus the shared context blocks of
// multipart groups. A Quiz is never mutated once loaded.
type Quiz struct {
	Questions []Question          `json:"questions" validate:"dive"`
	Multipart map[string]Markdown `json:"multipart,omitempty"`
}

// Hash returns the content digest used to invalidate cached progress. Any
// change to the questions, including their order, produces a new hash.
func (q *Quiz) Hash() (string, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("failed to encode quiz for hashing: %w", err)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Question holds the fields shared by every question type. The type-specific
// prompt and answer live in Body.
type Question struct {
	ID                *string      `json:"id,omitempty"`
	Type              QuestionType `json:"type" validate:"required,question_type"`
	Multipart         *string      `json:"multipart,omitempty"`
	Context           *Markdown    `json:"context,omitempty"`
	PromptExplanation bool         `json:"promptExplanation,omitempty"`
	Body              QuestionBody `json:"-"`
}

// QuestionBody is implemented by the prompt/answer pair of each question
// type. The set of implementations is closed.
type QuestionBody interface {
	questionType() QuestionType
}

// MultipartKey returns the group key, or "" for a standalone question.
func (q *Question) MultipartKey() string {
	if q.Multipart == nil {
		return ""
	}
	return *q.Multipart
}

type questionJSON struct {
	ID                *string         `json:"id,omitempty"`
	Type              QuestionType    `json:"type"`
	Multipart         *string         `json:"multipart,omitempty"`
	Context           *Markdown       `json:"context,omitempty"`
	PromptExplanation bool            `json:"promptExplanation,omitempty"`
	Prompt            json.RawMessage `json:"prompt"`
	Answer            json.RawMessage `json:"answer"`
}

func (q Question) MarshalJSON() ([]byte, error) {
	out := questionJSON{
		ID:                q.ID,
		Type:              q.Type,
		Multipart:         q.Multipart,
		Context:           q.Context,
		PromptExplanation: q.PromptExplanation,
	}

	var prompt, answer any
	switch body := q.Body.(type) {
	case *ShortAnswerQuestion:
		prompt, answer = body.Prompt, body.Answer
	case *MultipleChoiceQuestion:
		prompt, answer = body.Prompt, body.Answer
	case *TracingQuestion:
		prompt, answer = body.Prompt, body.Answer
	case *UnknownQuestion:
		out.Prompt, out.Answer = body.Prompt, body.Answer
		return json.Marshal(out)
	case nil:
		return nil, fmt.Errorf("question of type %q has no body", q.Type)
	}

	var err error
	if out.Prompt, err = json.Marshal(prompt); err != nil {
		return nil, err
	}
	if out.Answer, err = json.Marshal(answer); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var in questionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	q.ID = in.ID
	q.Type = in.Type
	q.Multipart = in.Multipart
	q.Context = in.Context
	q.PromptExplanation = in.PromptExplanation

	switch in.Type {
	case ShortAnswer:
		body := &ShortAnswerQuestion{}
		if err := decodeParts(in, &body.Prompt, &body.Answer); err != nil {
			return err
		}
		q.Body = body
	case MultipleChoice:
		body := &MultipleChoiceQuestion{}
		if err := decodeParts(in, &body.Prompt, &body.Answer); err != nil {
			return err
		}
		q.Body = body
	case Tracing:
		body := &TracingQuestion{}
		if err := decodeParts(in, &body.Prompt, &body.Answer); err != nil {
			return err
		}
		q.Body = body
	default:
		q.Body = &UnknownQuestion{Prompt: in.Prompt, Answer: in.Answer}
	}
	return nil
}

func decodeParts(in questionJSON, prompt, answer any) error {
	if len(in.Prompt) > 0 {
		if err := json.Unmarshal(in.Prompt, prompt); err != nil {
			return fmt.Errorf("invalid %s prompt: %w", in.Type, err)
		}
	}
	if len(in.Answer) > 0 {
		if err := json.Unmarshal(in.Answer, answer); err != nil {
			return fmt.Errorf("invalid %s answer: %w", in.Type, err)
		}
	}
	return nil
}

// ===== SHORT ANSWER =====

type ShortAnswerResponseFormat string

const (
	ResponseShort ShortAnswerResponseFormat = "short"
	ResponseLong  ShortAnswerResponseFormat = "long"
	ResponseCode  ShortAnswerResponseFormat = "code"
)

type ShortAnswerPrompt struct {
	Prompt   Markdown                  `json:"prompt"`
	Response ShortAnswerResponseFormat `json:"response,omitempty" validate:"omitempty,oneof=short long code"`
}

type ShortAnswerAnswer struct {
	Answer       string   `json:"answer"`
	Alternatives []string `json:"alternatives,omitempty"`
}

type ShortAnswerQuestion struct {
	Prompt ShortAnswerPrompt `json:"prompt"`
	Answer ShortAnswerAnswer `json:"answer"`
}

func (*ShortAnswerQuestion) questionType() QuestionType { return ShortAnswer }

// ===== MULTIPLE CHOICE =====

type MultipleChoicePrompt struct {
	Prompt      Markdown   `json:"prompt"`
	Distractors []Markdown `json:"distractors" validate:"required"`
	AnswerIndex *int       `json:"answerIndex,omitempty" validate:"omitempty,min=0"`
	SortAnswers *bool      `json:"sortAnswers,omitempty"`
}

// MultipleChoiceAnswerFormat is either a single correct choice or a list of
// them. Multi records which form the author used, since the form decides
// between radio buttons and checkboxes.
type MultipleChoiceAnswerFormat struct {
	Choices []Markdown
	Multi   bool
}

func SingleChoice(choice Markdown) MultipleChoiceAnswerFormat {
	return MultipleChoiceAnswerFormat{Choices: []Markdown{choice}}
}

func MultiChoice(choices ...Markdown) MultipleChoiceAnswerFormat {
	if choices == nil {
		choices = []Markdown{}
	}
	return MultipleChoiceAnswerFormat{Choices: choices, Multi: true}
}

func (f MultipleChoiceAnswerFormat) MarshalJSON() ([]byte, error) {
	if f.Multi {
		if f.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(f.Choices)
	}
	if len(f.Choices) == 0 {
		return json.Marshal("")
	}
	return json.Marshal(f.Choices[0])
}

func (f *MultipleChoiceAnswerFormat) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = SingleChoice(single)
		return nil
	}
	var multi []string
	if err := json.Unmarshal(data, &multi); err != nil {
		return fmt.Errorf("answer must be a string or a list of strings: %w", err)
	}
	*f = MultiChoice(multi...)
	return nil
}

type MultipleChoiceAnswer struct {
	Answer MultipleChoiceAnswerFormat `json:"answer"`
}

type MultipleChoiceQuestion struct {
	Prompt MultipleChoicePrompt `json:"prompt"`
	Answer MultipleChoiceAnswer `json:"answer"`
}

func (*MultipleChoiceQuestion) questionType() QuestionType { return MultipleChoice }

// ===== TRACING =====

type TracingPrompt struct {
	Program string `json:"program"`
}

type TracingAnswer struct {
	DoesCompile bool    `json:"doesCompile"`
	Stdout      *string `json:"stdout,omitempty"`
	LineNumber  *int    `json:"lineNumber,omitempty" validate:"omitempty,min=1"`
}

type TracingQuestion struct {
	Prompt TracingPrompt `json:"prompt"`
	Answer TracingAnswer `json:"answer"`
}

func (*TracingQuestion) questionType() QuestionType { return Tracing }

// ===== UNKNOWN =====

// UnknownQuestion keeps the raw prompt and answer of a question whose type
// is not registered, so it can be reported without failing the whole quiz.
type UnknownQuestion struct {
	Prompt json.RawMessage
	Answer json.RawMessage
}

func (*UnknownQuestion) questionType() QuestionType { return "" }

// ===== TITLES =====

// GenerateQuestionTitles numbers questions for display. Consecutive
// questions sharing a multipart key form one group labelled N with a letter
// suffix per member; every other question gets a plain N.
func GenerateQuestionTitles(quiz *Quiz) []string {
	titles := make([]string, 0, len(quiz.Questions))
	group := 0
	member := 0
	part := ""
	for i := range quiz.Questions {
		key := quiz.Questions[i].MultipartKey()
		if key == "" || key != part {
			group++
			member = 0
		} else {
			member++
		}
		part = key

		title := fmt.Sprintf("%d", group)
		if key != "" {
			title += string(rune('a' + member))
		}
		titles = append(titles, title)
	}
	return titles
}
