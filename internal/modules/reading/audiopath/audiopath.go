// Package audiopath maps audio asset keys to storage paths and guards
// against two keys ever sharing one path.
package audiopath

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
)

// Ext is the extension of synthesized audio objects.
const Ext = "mp3"

var ErrPathCollision = errors.New("audio path collision")

// Key identifies one audio asset. Level may be cefr.Original.
type Key struct {
	BookID     string
	ChunkIndex int
	Level      cefr.Level
	VoiceID    string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s/%s", k.BookID, k.ChunkIndex, k.Level, k.VoiceID)
}

func (k Key) Valid() bool {
	return k.BookID != "" && k.VoiceID != "" && k.ChunkIndex >= 0 &&
		(k.Level.Valid() || k.Level == cefr.Original)
}

// KeyOf returns the key an asset row is stored under.
func KeyOf(a *models.AudioAssetModel) Key {
	return Key{BookID: a.BookID, ChunkIndex: a.ChunkIndex, Level: cefr.Level(a.Level), VoiceID: a.VoiceID}
}

// segment escapes one path component. PathEscape is injective; dot-only
// results are encoded too so no segment can be read as "." or "..".
func segment(s string) string {
	e := url.PathEscape(s)
	if e == "." || e == ".." {
		return strings.ReplaceAll(e, ".", "%2E")
	}
	return e
}

// PathFor is a pure function of the key. Every component that varies between
// keys appears in the path, so distinct keys give distinct paths.
func PathFor(k Key) string {
	return fmt.Sprintf("audio/%s/%s/%s/chunk_%05d.%s",
		segment(k.BookID), segment(string(k.Level)), segment(k.VoiceID), k.ChunkIndex, Ext)
}

// CollisionError names two distinct keys that map to the same path.
type CollisionError struct {
	Path   string
	First  Key
	Second Key
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("audio path collision: %s claimed by %s and %s", e.Path, e.First, e.Second)
}

func (e *CollisionError) Is(target error) bool { return target == ErrPathCollision }

// AssertUnique checks that no two distinct keys share a computed path.
func AssertUnique(keys []Key) error {
	seen := make(map[string]Key, len(keys))
	for _, k := range keys {
		p := PathFor(k)
		if prev, ok := seen[p]; ok && prev != k {
			return &CollisionError{Path: p, First: prev, Second: k}
		}
		seen[p] = k
	}
	return nil
}

// Registry checks paths against the stored asset rows.
type Registry struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewRegistry(db *gorm.DB, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{db: db, log: log.Named("audiopath")}
}

// Claim refuses path when a row for another key already owns it.
func (r *Registry) Claim(ctx context.Context, key Key, path string) error {
	var owner models.AudioAssetModel
	err := r.db.WithContext(ctx).Where("path = ?", path).Limit(1).Find(&owner).Error
	if err != nil {
		return fmt.Errorf("look up path owner: %w", err)
	}
	if owner.ID == "" {
		return nil
	}
	if other := KeyOf(&owner); other != key {
		cerr := &CollisionError{Path: path, First: other, Second: key}
		r.log.Error("refusing audio write", zap.String("path", path),
			zap.String("owner", other.String()), zap.String("claimant", key.String()), zap.Error(cerr))
		return cerr
	}
	return nil
}

// Mismatch is a stored asset whose path differs from the computed one.
type Mismatch struct {
	Key      Key    `json:"key"`
	Stored   string `json:"stored"`
	Expected string `json:"expected"`
}

// AuditReport summarizes a scan over all stored assets.
type AuditReport struct {
	Assets     int        `json:"assets"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Audit recomputes the path of every stored asset and runs AssertUnique
// over their keys.
func (r *Registry) Audit(ctx context.Context) (*AuditReport, error) {
	var assets []models.AudioAssetModel
	if err := r.db.WithContext(ctx).Order("book_id, chunk_index, level, voice_id").Find(&assets).Error; err != nil {
		return nil, err
	}
	report := &AuditReport{Assets: len(assets)}
	keys := make([]Key, 0, len(assets))
	for i := range assets {
		k := KeyOf(&assets[i])
		keys = append(keys, k)
		if want := PathFor(k); want != assets[i].Path {
			report.Mismatches = append(report.Mismatches, Mismatch{Key: k, Stored: assets[i].Path, Expected: want})
		}
	}
	sort.Slice(report.Mismatches, func(i, j int) bool {
		return report.Mismatches[i].Stored < report.Mismatches[j].Stored
	})
	if err := AssertUnique(keys); err != nil {
		return report, err
	}
	return report, nil
}
