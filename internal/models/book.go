package models

import "time"

// BookModel is an ingested book. Text is immutable once stored.
type BookModel struct {
	ID         string    `json:"id"          gorm:"type:varchar(191);primaryKey"`
	Title      string    `json:"title"       gorm:"not null"`
	Author     string    `json:"author"`
	Text       string    `json:"-"           gorm:"type:longtext;not null"`
	TextHash   string    `json:"text_hash"   gorm:"type:char(64);not null"`
	ChunkCount int       `json:"chunk_count" gorm:"not null"`
	CreatedAt  time.Time `json:"created"`
}

func (BookModel) TableName() string { return "books" }

// ChunkModel is one addressable span of a book. Text == book.Text[Start:End].
type ChunkModel struct {
	ID        uint   `json:"-"          gorm:"primaryKey"`
	BookID    string `json:"book_id"    gorm:"type:varchar(191);uniqueIndex:ux_chunk_book_index,priority:1;not null"`
	Index     int    `json:"index"      gorm:"column:chunk_index;uniqueIndex:ux_chunk_book_index,priority:2;not null"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Text      string `json:"text"       gorm:"type:longtext;not null"`
	WordCount int    `json:"word_count"`
}

func (ChunkModel) TableName() string { return "book_chunks" }
