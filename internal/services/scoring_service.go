package services

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	apperrors "github.com/SAP-F-2025/quiz-service/internal/errors"
	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/questions"
)

// ScoringService turns a submitted form into a scored answer.
type ScoringService interface {
	// Score rejects incomplete forms with ValidationErrors naming the
	// missing fields, so extraction only ever sees validated input.
	Score(q *models.Question, form url.Values, start, end time.Time, explanation *string) (*models.TaggedAnswer, error)
}

type scoringService struct {
	registry *questions.Registry
	logger   *slog.Logger
}

func NewScoringService(registry *questions.Registry, logger *slog.Logger) ScoringService {
	return &scoringService{
		registry: registry,
		logger:   logger,
	}
}

func (s *scoringService) Score(q *models.Question, form url.Values, start, end time.Time, explanation *string) (*models.TaggedAnswer, error) {
	methods, err := s.registry.For(q)
	if err != nil {
		return nil, err
	}

	if missing := methods.MissingFields(q, form); len(missing) > 0 {
		return nil, apperrors.RequiredFields(missing)
	}

	answer, err := methods.AnswerFromForm(q, form)
	if err != nil {
		return nil, fmt.Errorf("failed to extract answer: %w", err)
	}

	correct, err := methods.CompareAnswers(q, answer)
	if err != nil {
		return nil, fmt.Errorf("failed to compare answers: %w", err)
	}

	s.logger.Debug("Scored answer",
		"question_type", q.Type,
		"correct", correct)

	return &models.TaggedAnswer{
		Answer:      answer,
		Correct:     correct,
		Start:       start.UnixMilli(),
		End:         end.UnixMilli(),
		Explanation: explanation,
	}, nil
}
