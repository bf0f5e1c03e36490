// Package book ingests books, stores their chunks and removes them from the
// catalog.
package book

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/chunker"
	"github.com/bookbridge/core/internal/pkg/logx"
	"github.com/bookbridge/core/internal/pkg/objectstore"
	"github.com/bookbridge/core/internal/pkg/pagination"
	"github.com/bookbridge/core/internal/pkg/response"
)

// BookCache drops every cached rewrite of a book.
type BookCache interface {
	InvalidateBook(ctx context.Context, bookID string) (int64, error)
}

// AssetRemover deletes audio asset rows of a book and returns them.
type AssetRemover interface {
	DeleteBook(ctx context.Context, bookID string) ([]models.AudioAssetModel, error)
}

type Service struct {
	db      *gorm.DB
	chunk   chunker.Options
	cache   BookCache
	assets  AssetRemover
	objects objectstore.Store
	log     *zap.Logger
}

func NewService(db *gorm.DB, opts chunker.Options, cache BookCache, assets AssetRemover, objects objectstore.Store, log *zap.Logger) *Service {
	return &Service{
		db:      db,
		chunk:   opts,
		cache:   cache,
		assets:  assets,
		objects: objects,
		log:     logx.OrNop(log).Named("book"),
	}
}

// isDuplicateKey matches primary key violations from MySQL (1062) and SQLite.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Ingest stores a book and its chunks. Re-ingesting the same id with the
// same text returns the stored book.
func (s *Service) Ingest(ctx context.Context, dto IngestDTO) (*models.BookModel, error) {
	id := strings.TrimSpace(dto.ID)
	title := strings.TrimSpace(dto.Title)
	if id == "" || title == "" {
		return nil, fmt.Errorf("%w: id and title are required", ErrInvalidBook)
	}

	text := dto.Text
	switch strings.ToLower(strings.TrimSpace(dto.Format)) {
	case "", FormatPlain:
	case FormatMarkdown, "md":
		text = MarkdownToText(text)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidBook, dto.Format)
	}

	chunks, err := chunker.Chunk(text, s.chunk)
	if err != nil {
		return nil, err
	}
	hash := hashText(text)

	existing, err := s.Get(ctx, id)
	switch {
	case err == nil && existing.TextHash == hash:
		return existing, nil
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrBookExists, id)
	case !errors.Is(err, ErrBookNotFound):
		return nil, err
	}

	book := &models.BookModel{
		ID:         id,
		Title:      title,
		Author:     strings.TrimSpace(dto.Author),
		Text:       text,
		TextHash:   hash,
		ChunkCount: len(chunks),
	}
	rows := make([]models.ChunkModel, len(chunks))
	for i, c := range chunks {
		rows[i] = models.ChunkModel{
			BookID:    id,
			Index:     c.Index,
			Start:     c.Start,
			End:       c.End,
			Text:      c.Text,
			WordCount: c.WordCount,
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(book).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 200).Error
	})
	if isDuplicateKey(err) {
		// lost a race with a concurrent ingest of the same id
		if existing, gerr := s.Get(ctx, id); gerr == nil && existing.TextHash == hash {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrBookExists, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store book %s: %w", id, err)
	}
	s.log.Info("book ingested", zap.String("id", id), zap.Int("chunks", len(chunks)))
	return book, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.BookModel, error) {
	var book models.BookModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (s *Service) List(ctx context.Context, q pagination.Query) ([]models.BookModel, response.Pagination, error) {
	var books []models.BookModel
	page, err := pagination.Paginate(s.db.WithContext(ctx).Model(&models.BookModel{}).Order("created_at DESC"), q, &books)
	return books, page, err
}

// Chunk returns one chunk, or nil when the book or index is unknown.
func (s *Service) Chunk(ctx context.Context, bookID string, index int) (*models.ChunkModel, error) {
	var c models.ChunkModel
	err := s.db.WithContext(ctx).Where("book_id = ? AND chunk_index = ?", bookID, index).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) Chunks(ctx context.Context, bookID string) ([]models.ChunkModel, error) {
	var rows []models.ChunkModel
	err := s.db.WithContext(ctx).Where("book_id = ?", bookID).Order("chunk_index").Find(&rows).Error
	return rows, err
}

// Delete removes a book with its chunks, cached rewrites and audio rows.
// Audio objects are deleted only when purgeMedia is set; otherwise their
// keys are logged and returned.
func (s *Service) Delete(ctx context.Context, id string, purgeMedia bool) (*DeleteResult, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	res := &DeleteResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := tx.Where("book_id = ?", id).Delete(&models.ChunkModel{})
		if r.Error != nil {
			return r.Error
		}
		res.Chunks = r.RowsAffected
		return tx.Where("id = ?", id).Delete(&models.BookModel{}).Error
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		n, err := s.cache.InvalidateBook(ctx, id)
		if err != nil {
			return res, fmt.Errorf("invalidate simplifications: %w", err)
		}
		res.Simplifications = n
	}
	if s.assets != nil {
		assets, err := s.assets.DeleteBook(ctx, id)
		if err != nil {
			return res, fmt.Errorf("delete audio assets: %w", err)
		}
		res.AudioAssets = len(assets)
		for _, a := range assets {
			if a.Path == "" {
				continue
			}
			res.ObjectKeys = append(res.ObjectKeys, a.Path)
			if purgeMedia && s.objects != nil {
				if err := s.objects.Delete(ctx, a.Path); err != nil {
					s.log.Warn("delete audio object failed", zap.String("key", a.Path), zap.Error(err))
					continue
				}
				res.PurgedObjects++
			}
		}
	}

	s.log.Info("book removed",
		zap.String("id", id),
		zap.Int64("chunks", res.Chunks),
		zap.Int64("simplifications", res.Simplifications),
		zap.Int("audio_assets", res.AudioAssets),
		zap.Strings("object_keys", res.ObjectKeys),
		zap.Bool("purged", purgeMedia))
	return res, nil
}
