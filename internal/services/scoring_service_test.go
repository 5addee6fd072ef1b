package services

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	apperrors "github.com/SAP-F-2025/quiz-service/internal/errors"
	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/questions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoringService_Score(t *testing.T) {
	scoring := NewScoringService(questions.NewRegistry(nil), testLogger())
	start := time.UnixMilli(1000)
	end := time.UnixMilli(4500)

	tracing := &models.Question{
		Type: models.Tracing,
		Body: &models.TracingQuestion{
			Prompt: models.TracingPrompt{Program: "fn main() { println!(\"hi\"); }"},
			Answer: models.TracingAnswer{DoesCompile: true, Stdout: models.Ptr("hi")},
		},
	}

	t.Run("scores a complete form", func(t *testing.T) {
		answer, err := scoring.Score(tracing, url.Values{"doesCompile": {"true"}, "stdout": {"hi\n"}}, start, end, nil)
		require.NoError(t, err)
		assert.True(t, answer.Correct)
		assert.Equal(t, int64(1000), answer.Start)
		assert.Equal(t, int64(4500), answer.End)
		assert.Nil(t, answer.Explanation)
		assert.JSONEq(t, `{"doesCompile":true,"stdout":"hi\n"}`, string(answer.Answer))
	})

	t.Run("rejects missing fields before extraction", func(t *testing.T) {
		_, err := scoring.Score(tracing, url.Values{"doesCompile": {"true"}}, start, end, nil)
		var verrs apperrors.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, []string{"stdout"}, verrs.Fields())
		assert.Equal(t, "required", verrs[0].Rule)
	})

	t.Run("keeps the explanation", func(t *testing.T) {
		answer, err := scoring.Score(tracing, url.Values{"doesCompile": {"false"}}, start, end, models.Ptr("it borrows twice"))
		require.NoError(t, err)
		assert.False(t, answer.Correct)
		assert.Equal(t, "it borrows twice", *answer.Explanation)
	})

	t.Run("sorts multi selections", func(t *testing.T) {
		mc := &models.Question{
			Type: models.MultipleChoice,
			Body: &models.MultipleChoiceQuestion{
				Prompt: models.MultipleChoicePrompt{Prompt: "Pick", Distractors: []string{"C"}},
				Answer: models.MultipleChoiceAnswer{Answer: models.MultiChoice("A", "B")},
			},
		}
		answer, err := scoring.Score(mc, url.Values{"answer": {"B", "A"}}, start, end, nil)
		require.NoError(t, err)
		assert.True(t, answer.Correct)
		assert.JSONEq(t, `{"answer":["A","B"]}`, string(answer.Answer))
	})

	t.Run("unknown type", func(t *testing.T) {
		unknown := &models.Question{Type: "Essay", Body: &models.UnknownQuestion{}}
		_, err := scoring.Score(unknown, url.Values{}, start, end, nil)
		assert.ErrorIs(t, err, ErrUnknownQuestionType)
	})
}

func TestAnswerStorage_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	storage := NewAnswerStorage(store, "intro", "hash-1", testLogger())

	assert.Nil(t, storage.Load(ctx))

	state := models.QuizState{
		Started:      true,
		Index:        2,
		Attempt:      1,
		Answers:      []models.TaggedAnswer{{Answer: json.RawMessage(`{"answer":"a"}`), Correct: true, Start: 1, End: 2}},
		WrongAnswers: []int{1},
	}
	require.NoError(t, storage.Save(ctx, state))
	require.NoError(t, storage.Save(ctx, state))

	payload, ok, err := store.Get(ctx, "mdbook-quiz:intro")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"answers":[{"answer":{"answer":"a"},"correct":true,"start":1,"end":2}],"confirmedDone":false,"quizHash":"hash-1","attempt":1,"wrongAnswers":[1]}`, string(payload))

	loaded := storage.Load(ctx)
	require.NotNil(t, loaded)
	assert.Equal(t, "hash-1", loaded.QuizHash)
	assert.Equal(t, []int{1}, loaded.WrongAnswers)

	other := NewAnswerStorage(store, "intro", "hash-2", testLogger())
	assert.Nil(t, other.Load(ctx))
}

func TestAnswerStorage_PrefixedStores(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	alice := NewAnswerStorage(cache.WithPrefix(store, LearnerPrefix("alice")), "intro", "h", testLogger())
	bob := NewAnswerStorage(cache.WithPrefix(store, LearnerPrefix("bob")), "intro", "h", testLogger())

	require.NoError(t, alice.Save(ctx, models.QuizState{ConfirmedDone: true}))
	assert.NotNil(t, alice.Load(ctx))
	assert.Nil(t, bob.Load(ctx))

	_, ok, err := store.Get(ctx, "learner:alice:mdbook-quiz:intro")
	require.NoError(t, err)
	assert.True(t, ok)
}
