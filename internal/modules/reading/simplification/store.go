package simplification

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookbridge/core/internal/models"
)

// Store is the durable layer.
type Store interface {
	Get(ctx context.Context, key Key) (*models.SimplificationModel, error)
	Upsert(ctx context.Context, row *models.SimplificationModel) error
	Delete(ctx context.Context, key Key) (bool, error)
	DeleteBook(ctx context.Context, bookID string) (int64, error)
	DeleteStale(ctx context.Context, currentVersion string) (int64, error)
}

// GormStore keeps rows in the simplifications table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, key Key) (*models.SimplificationModel, error) {
	var row models.SimplificationModel
	err := s.db.WithContext(ctx).
		Where("book_id = ? AND chunk_index = ? AND level = ?", key.BookID, key.ChunkIndex, string(key.Level)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert writes the row in one statement inside a transaction and reloads it,
// so row reflects what is committed (including the id of a replaced row).
func (s *GormStore) Upsert(ctx context.Context, row *models.SimplificationModel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "book_id"}, {Name: "chunk_index"}, {Name: "level"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"text", "quality_score", "surface_score", "generator_version", "strategy", "updated_at",
			}),
		}).Create(row).Error
		if err != nil {
			return err
		}
		return tx.Where("book_id = ? AND chunk_index = ? AND level = ?", row.BookID, row.ChunkIndex, row.Level).
			First(row).Error
	})
}

func (s *GormStore) Delete(ctx context.Context, key Key) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("book_id = ? AND chunk_index = ? AND level = ?", key.BookID, key.ChunkIndex, string(key.Level)).
		Delete(&models.SimplificationModel{})
	return res.RowsAffected > 0, res.Error
}

func (s *GormStore) DeleteBook(ctx context.Context, bookID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("book_id = ?", bookID).Delete(&models.SimplificationModel{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) DeleteStale(ctx context.Context, currentVersion string) (int64, error) {
	res := s.db.WithContext(ctx).Where("generator_version <> ?", currentVersion).Delete(&models.SimplificationModel{})
	return res.RowsAffected, res.Error
}
