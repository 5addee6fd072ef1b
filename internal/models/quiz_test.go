package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortAnswer(answer string, multipart *string) Question {
	return Question{
		Type:      ShortAnswer,
		Multipart: multipart,
		Body: &ShortAnswerQuestion{
			Prompt: ShortAnswerPrompt{Prompt: "What?"},
			Answer: ShortAnswerAnswer{Answer: answer},
		},
	}
}

func TestGenerateQuestionTitles(t *testing.T) {
	quiz := &Quiz{
		Questions: []Question{
			shortAnswer("1", Ptr("a")),
			shortAnswer("2", Ptr("a")),
			shortAnswer("3", Ptr("b")),
			shortAnswer("4", nil),
			shortAnswer("5", Ptr("c")),
		},
	}

	assert.Equal(t, []string{"1a", "1b", "2a", "3", "4a"}, GenerateQuestionTitles(quiz))
}

func TestGenerateQuestionTitles_GroupInterruptedByStandalone(t *testing.T) {
	quiz := &Quiz{
		Questions: []Question{
			shortAnswer("1", Ptr("a")),
			shortAnswer("2", nil),
			shortAnswer("3", Ptr("a")),
			shortAnswer("4", nil),
		},
	}

	assert.Equal(t, []string{"1a", "2", "3a", "4"}, GenerateQuestionTitles(quiz))
}

func TestQuizHash(t *testing.T) {
	quiz := &Quiz{Questions: []Question{shortAnswer("yes", nil), shortAnswer("no", nil)}}

	first, err := quiz.Hash()
	require.NoError(t, err)
	second, err := quiz.Hash()
	require.NoError(t, err)
	assert.Equal(t, first, second, "hash must be deterministic")

	doubled := &Quiz{Questions: append(append([]Question{}, quiz.Questions...), quiz.Questions...)}
	doubledHash, err := doubled.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, first, doubledHash)

	reordered := &Quiz{Questions: []Question{quiz.Questions[1], quiz.Questions[0]}}
	reorderedHash, err := reordered.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, first, reorderedHash, "hash must be order sensitive")
}

func TestQuestionUnmarshal(t *testing.T) {
	data := []byte(`{
		"questions": [
			{"type": "MultipleChoice", "prompt": {"prompt": "Pick", "distractors": ["x"]}, "answer": {"answer": ["a", "b"]}},
			{"type": "Tracing", "prompt": {"program": "fn main() {}"}, "answer": {"doesCompile": true, "stdout": ""}},
			{"type": "Essay", "prompt": {"prompt": "Write"}, "answer": {"answer": "?"}}
		]
	}`)

	quiz, err := ParseQuizJSON(data)
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 3)

	mc, ok := quiz.Questions[0].Body.(*MultipleChoiceQuestion)
	require.True(t, ok)
	assert.True(t, mc.Answer.Answer.Multi)
	assert.Equal(t, []string{"a", "b"}, mc.Answer.Answer.Choices)

	tracing, ok := quiz.Questions[1].Body.(*TracingQuestion)
	require.True(t, ok)
	assert.True(t, tracing.Answer.DoesCompile)
	require.NotNil(t, tracing.Answer.Stdout)

	unknown, ok := quiz.Questions[2].Body.(*UnknownQuestion)
	require.True(t, ok)
	assert.Equal(t, QuestionType("Essay"), quiz.Questions[2].Type)
	assert.JSONEq(t, `{"prompt": "Write"}`, string(unknown.Prompt))

	// The encoded form keeps single answers as plain strings.
	encoded, err := json.Marshal(Question{
		Type: MultipleChoice,
		Body: &MultipleChoiceQuestion{
			Prompt: MultipleChoicePrompt{Prompt: "Pick", Distractors: []string{"b"}},
			Answer: MultipleChoiceAnswer{Answer: SingleChoice("a")},
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"MultipleChoice","prompt":{"prompt":"Pick","distractors":["b"]},"answer":{"answer":"a"}}`, string(encoded))
}

func TestQuizStateClone(t *testing.T) {
	state := QuizState{
		Answers:      []TaggedAnswer{{Answer: json.RawMessage(`{"answer":"a"}`), Explanation: Ptr("because")}},
		WrongAnswers: []int{0},
	}

	clone := state.Clone()
	clone.Answers[0].Answer[2] = 'X'
	*clone.Answers[0].Explanation = "changed"
	clone.WrongAnswers[0] = 5

	assert.Equal(t, `{"answer":"a"}`, string(state.Answers[0].Answer))
	assert.Equal(t, "because", *state.Answers[0].Explanation)
	assert.Equal(t, []int{0}, state.WrongAnswers)
}
