package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/url"
	"testing"

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestManager(store cache.Store) (*SessionManager, *events.MockTelemetry) {
	telemetry := events.NewMockTelemetry()
	return NewSessionManager(ManagerDeps{
		Store:     store,
		Telemetry: telemetry,
		Logger:    testLogger(),
	}), telemetry
}

func TestSessionManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	manager, telemetry := newTestManager(cache.NewMemoryStore())

	managed, err := manager.Create(ctx, "alice", &CreateSessionRequest{
		Name:       "intro",
		Quiz:       quizOf(shortAnswer("a"), shortAnswer("b")),
		Fullscreen: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, managed.ID)
	assert.Equal(t, 1, manager.Len())

	got, err := manager.Get(managed.ID)
	require.NoError(t, err)
	assert.Same(t, managed, got)

	require.NoError(t, manager.Start(ctx, managed.ID))
	assert.True(t, managed.Host.Captured())

	outcome, err := manager.Submit(ctx, managed.ID, url.Values{"answer": {"a"}})
	require.NoError(t, err)
	assert.True(t, outcome.Answer.Correct)
	_, err = manager.Submit(ctx, managed.ID, url.Values{"answer": {"b"}})
	require.NoError(t, err)
	assert.False(t, managed.Host.Captured())
	assert.Len(t, telemetry.GetLoggedEvents(), 2)

	require.NoError(t, manager.Delete(ctx, managed.ID))
	assert.Equal(t, 0, manager.Len())

	_, err = manager.Get(managed.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, IsNotFound(manager.Start(ctx, managed.ID)))
	assert.ErrorIs(t, manager.Delete(ctx, managed.ID), ErrSessionNotFound)
}

func TestSessionManager_CreateValidation(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(nil)

	_, err := manager.Create(ctx, "alice", &CreateSessionRequest{Name: "has space", Quiz: quizOf(shortAnswer("a"))})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "name", verrs[0].Field)
	assert.Equal(t, "quiz_name", verrs[0].Rule)

	_, err = manager.Create(ctx, "alice", &CreateSessionRequest{Name: "intro"})
	assert.ErrorIs(t, err, ErrInvalidQuiz)

	_, err = manager.Create(ctx, "alice", nil)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Equal(t, 0, manager.Len())
}

func TestSessionManager_ProgressIsPerLearner(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	manager, _ := newTestManager(store)
	req := func() *CreateSessionRequest {
		return &CreateSessionRequest{Name: "intro", Quiz: quizOf(shortAnswer("a")), CacheAnswers: true, AutoStart: true}
	}

	alice, err := manager.Create(ctx, "alice", req())
	require.NoError(t, err)
	_, err = manager.Submit(ctx, alice.ID, url.Values{"answer": {"a"}})
	require.NoError(t, err)

	again, err := manager.Create(ctx, "alice", req())
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, again.Session.Phase())

	bob, err := manager.Create(ctx, "bob", req())
	require.NoError(t, err)
	assert.Equal(t, PhaseInProgress, bob.Session.Phase())

	manager.Close()
	assert.Equal(t, 0, manager.Len())
}

func TestExportService(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := shortAnswer("Yes")
	q.PromptExplanation = true
	s := f.session(t, SessionConfig{Quiz: quizOf(q, shortAnswer("No")), AutoStart: true})

	_, err := s.Submit(ctx, answer("Yes"))
	require.NoError(t, err)
	_, err = s.Submit(ctx, url.Values{ExplanationField: {"It said so"}})
	require.NoError(t, err)
	submitAll(t, s, "Maybe")

	exporter := NewExportService(testLogger())

	t.Run("excel", func(t *testing.T) {
		data, err := exporter.ExportAnswersToExcel(ctx, s)
		require.NoError(t, err)

		book, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer book.Close()

		assert.Equal(t, []string{answersSheet, summarySheet}, book.GetSheetList())

		rows, err := book.GetRows(answersSheet)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, answerHeaders, rows[0])
		assert.Equal(t, "1", rows[1][0])
		assert.Equal(t, "TRUE", rows[1][2])
		assert.Equal(t, "It said so", rows[1][4])
		assert.Equal(t, "FALSE", rows[2][2])

		correct, err := book.GetCellValue(summarySheet, "B4")
		require.NoError(t, err)
		assert.Equal(t, "1/2", correct)
	})

	t.Run("csv", func(t *testing.T) {
		data, err := exporter.ExportAnswersToCSV(ctx, s)
		require.NoError(t, err)

		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "true", records[1][2])
		assert.Equal(t, `{"answer":"Maybe"}`, records[2][3])
	})
}
