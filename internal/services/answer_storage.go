package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	"github.com/SAP-F-2025/quiz-service/internal/models"
)

const storageKeyPrefix = "mdbook-quiz:"

// AnswerStorage persists one quiz's progress under a per-name slot. Loads
// only return snapshots written for the same quiz content.
type AnswerStorage struct {
	store    cache.Store
	quizName string
	quizHash string
	logger   *slog.Logger
}

func NewAnswerStorage(store cache.Store, quizName, quizHash string, logger *slog.Logger) *AnswerStorage {
	return &AnswerStorage{
		store:    store,
		quizName: quizName,
		quizHash: quizHash,
		logger:   logger.With("quiz_name", quizName),
	}
}

// StorageKey returns the slot a quiz's progress is kept under.
func StorageKey(quizName string) string {
	return storageKeyPrefix + quizName
}

func (s *AnswerStorage) Save(ctx context.Context, state models.QuizState) error {
	snapshot := models.StoredAnswers{
		Answers:       state.Answers,
		ConfirmedDone: state.ConfirmedDone,
		QuizHash:      s.quizHash,
		Attempt:       state.Attempt,
		WrongAnswers:  state.WrongAnswers,
	}
	if snapshot.Answers == nil {
		snapshot.Answers = []models.TaggedAnswer{}
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode stored answers: %w", err)
	}
	if err := s.store.Set(ctx, StorageKey(s.quizName), payload); err != nil {
		return fmt.Errorf("failed to save answers: %w", err)
	}
	return nil
}

// Load returns nil when there is nothing usable: no slot, a snapshot of
// different quiz content, an unsupported snapshot shape, or a store error.
func (s *AnswerStorage) Load(ctx context.Context) *models.StoredAnswers {
	payload, ok, err := s.store.Get(ctx, StorageKey(s.quizName))
	if err != nil {
		s.logger.Warn("Failed to read stored answers, starting fresh", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var stored models.StoredAnswers
	if err := json.Unmarshal(payload, &stored); err != nil {
		s.logger.Warn("Discarding corrupt stored answers", "error", err)
		return nil
	}

	if stored.QuizHash != s.quizHash {
		s.logger.Info("Discarding stored answers for changed quiz",
			"stored_hash", stored.QuizHash,
			"quiz_hash", s.quizHash)
		return nil
	}

	if badSchema(&stored) {
		s.logger.Info("Discarding stored answers with unsupported schema",
			"attempt", stored.Attempt)
		return nil
	}

	return &stored
}

// badSchema matches snapshots written before wrong answers were tracked.
func badSchema(stored *models.StoredAnswers) bool {
	return stored.Attempt > 0 && !stored.ConfirmedDone && stored.WrongAnswers == nil
}
