package repositories

import (
	"context"

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	"github.com/SAP-F-2025/quiz-service/internal/models"
	"gorm.io/gorm"
)

// ProgressRepository persists serialized quiz progress rows.
type ProgressRepository interface {
	// GetByKey returns nil without error when the key has no row.
	GetByKey(ctx context.Context, tx *gorm.DB, key string) (*models.QuizProgress, error)
	Upsert(ctx context.Context, tx *gorm.DB, progress *models.QuizProgress) error
}

type progressStore struct {
	repo ProgressRepository
}

// NewProgressStore exposes a ProgressRepository as a cache.Store.
func NewProgressStore(repo ProgressRepository) cache.Store {
	return &progressStore{repo: repo}
}

func (s *progressStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	progress, err := s.repo.GetByKey(ctx, nil, key)
	if err != nil {
		return nil, false, err
	}
	if progress == nil {
		return nil, false, nil
	}
	return []byte(progress.Payload), true, nil
}

func (s *progressStore) Set(ctx context.Context, key string, value []byte) error {
	return s.repo.Upsert(ctx, nil, &models.QuizProgress{Key: key, Payload: value})
}
