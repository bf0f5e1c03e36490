package simplification

import (
	"fmt"
	"net/url"

	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
)

// Key addresses one cached rewrite.
type Key struct {
	BookID     string
	ChunkIndex int
	Level      cefr.Level
}

// String is unique per key; the book id is escaped so it cannot spill into
// the other components.
func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s", url.PathEscape(k.BookID), k.ChunkIndex, k.Level)
}

func (k Key) Valid() bool {
	return k.BookID != "" && k.ChunkIndex >= 0 && k.Level.Valid()
}

// KeyOf returns the key a stored row occupies.
func KeyOf(row *models.SimplificationModel) Key {
	return Key{BookID: row.BookID, ChunkIndex: row.ChunkIndex, Level: cefr.Level(row.Level)}
}
