package book

import "errors"

var (
	ErrBookNotFound = errors.New("book not found")
	// ErrBookExists is returned when an id is re-ingested with different text.
	// Book text is immutable.
	ErrBookExists  = errors.New("book already exists with different text")
	ErrInvalidBook = errors.New("invalid book")
)

const (
	FormatPlain    = "plain"
	FormatMarkdown = "markdown"
)

// IngestDTO is the body of POST /books.
type IngestDTO struct {
	ID     string `json:"id"     binding:"required"`
	Title  string `json:"title"  binding:"required"`
	Author string `json:"author"`
	Text   string `json:"text"   binding:"required"`
	Format string `json:"format"`
}

// DeleteResult describes what a catalog removal touched.
type DeleteResult struct {
	Chunks          int64    `json:"chunks"`
	Simplifications int64    `json:"simplifications"`
	AudioAssets     int      `json:"audio_assets"`
	ObjectKeys      []string `json:"object_keys,omitempty"`
	PurgedObjects   int      `json:"purged_objects"`
}
