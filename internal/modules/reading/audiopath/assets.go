package audiopath

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookbridge/core/internal/models"
)

// Assets is the repository of audio asset rows.
type Assets struct {
	db *gorm.DB
}

func NewAssets(db *gorm.DB) *Assets {
	return &Assets{db: db}
}

// Find returns the asset for key, or nil when none is stored.
func (a *Assets) Find(ctx context.Context, key Key) (*models.AudioAssetModel, error) {
	var row models.AudioAssetModel
	err := a.db.WithContext(ctx).
		Where("book_id = ? AND chunk_index = ? AND level = ? AND voice_id = ?",
			key.BookID, key.ChunkIndex, string(key.Level), key.VoiceID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert overwrites the row of the same key; the path column stays unique
// across keys.
func (a *Assets) Upsert(ctx context.Context, row *models.AudioAssetModel) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "book_id"}, {Name: "chunk_index"}, {Name: "level"}, {Name: "voice_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"path", "byte_size", "duration_ms", "provider", "content_type",
				"client_speech", "text_hash", "generator_version", "updated_at",
			}),
		}).Create(row).Error
		if err != nil {
			return err
		}
		return tx.Where("book_id = ? AND chunk_index = ? AND level = ? AND voice_id = ?",
			row.BookID, row.ChunkIndex, row.Level, row.VoiceID).First(row).Error
	})
}

// ListBook returns every asset of a book.
func (a *Assets) ListBook(ctx context.Context, bookID string) ([]models.AudioAssetModel, error) {
	var rows []models.AudioAssetModel
	err := a.db.WithContext(ctx).Where("book_id = ?", bookID).Order("chunk_index, level, voice_id").Find(&rows).Error
	return rows, err
}

// DeleteBook removes the rows of a book and returns them.
func (a *Assets) DeleteBook(ctx context.Context, bookID string) ([]models.AudioAssetModel, error) {
	var rows []models.AudioAssetModel
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", bookID).Find(&rows).Error; err != nil {
			return err
		}
		return tx.Where("book_id = ?", bookID).Delete(&models.AudioAssetModel{}).Error
	})
	return rows, err
}
