package validator

import (
	"bytes"
	"testing"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_Render(t *testing.T) {
	report := newReport("quiz.toml", "[[questions]]\n  id = \"a\"\n")
	report.add(Diagnostic{Severity: SeverityError, Question: 0, Field: "id", Message: "Duplicate ID: a", Line: 2, Column: 3})
	report.add(Diagnostic{Severity: SeverityWarning, Question: -1, Message: "Unknown field: title"})

	var out bytes.Buffer
	require.NoError(t, report.Render(&out))

	expected := "error: Duplicate ID: a\n" +
		" --> quiz.toml:2:3\n" +
		"  |\n" +
		"2 |   id = \"a\"\n" +
		"  |   ^\n" +
		"\n" +
		"warning: Unknown field: title\n" +
		"  --> quiz.toml\n" +
		"\n"
	assert.Equal(t, expected, out.String())
}

func TestReport_Severities(t *testing.T) {
	report := newReport("quiz.toml", "")
	assert.False(t, report.HasErrors())
	assert.NoError(t, report.Err())

	report.add(Diagnostic{Severity: SeverityWarning, Message: "w"})
	assert.False(t, report.HasErrors())
	assert.Len(t, report.Warnings(), 1)
	assert.Empty(t, report.Errors())

	report.add(Diagnostic{Severity: SeverityError, Message: "e"})
	assert.True(t, report.HasErrors())
	assert.ErrorIs(t, report.Err(), ErrQuizInvalid)
	assert.EqualError(t, report.Err(), "quiz failed to validate: quiz.toml")
}

func TestSourceLocator(t *testing.T) {
	source := `[[questions]]
type = "ShortAnswer"
prompt = { prompt = "inline" }
answer.answer = "x"

[[questions]] # second
type = "MultipleChoice"
[questions.prompt]
prompt = "Pick"
  "distractors" = ["a"]
[questions.answer]
answer = "a"

[multipart]
a = "Context"
`
	locate := newSourceLocator(source)

	assert.Equal(t, 1, locate.question(0))
	assert.Equal(t, 6, locate.question(1))
	assert.Equal(t, 0, locate.question(2))

	tests := []struct {
		question int
		field    string
		line     int
		column   int
	}{
		{0, "type", 2, 1},
		{0, "answer.answer", 4, 1},
		{0, "prompt.prompt", 1, 1},
		{1, "type", 7, 1},
		{1, "prompt.distractors", 10, 3},
		{1, "answer.answer", 12, 1},
		{1, "id", 6, 1},
	}
	for _, tt := range tests {
		line, column := locate.field(tt.question, tt.field)
		assert.Equal(t, tt.line, line, "%d/%s", tt.question, tt.field)
		assert.Equal(t, tt.column, column, "%d/%s", tt.question, tt.field)
	}

	line, column := locate.multipartKey("a")
	assert.Equal(t, 15, line)
	assert.Equal(t, 1, column)
}

func TestValidator_CustomTags(t *testing.T) {
	v := New()

	type request struct {
		Name string `json:"name" validate:"required,quiz_name"`
	}
	assert.NoError(t, v.Validate(request{Name: "ch01-intro"}))

	err := v.Validate(request{Name: "two words"})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "name", verrs[0].Field)
	assert.Equal(t, "quiz_name", verrs[0].Rule)

	quiz := &models.Quiz{Questions: []models.Question{{
		Type: "Essay",
		Body: &models.UnknownQuestion{},
	}}}
	err = v.Validate(quiz)
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "questions[0].type", verrs[0].Field)
	assert.Equal(t, "question_type", verrs[0].Rule)
}
