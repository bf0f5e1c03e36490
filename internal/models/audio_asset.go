package models

// AudioAssetModel records synthesized audio for a chunk variant.
// Path embeds the book id and is unique across all books.
type AudioAssetModel struct {
	Base
	BookID           string `json:"book_id"           gorm:"type:varchar(191);uniqueIndex:ux_audio_key,priority:1;not null"`
	ChunkIndex       int    `json:"chunk_index"       gorm:"uniqueIndex:ux_audio_key,priority:2;not null"`
	Level            string `json:"level"             gorm:"type:varchar(16);uniqueIndex:ux_audio_key,priority:3;not null"`
	VoiceID          string `json:"voice_id"          gorm:"type:varchar(64);uniqueIndex:ux_audio_key,priority:4;not null"`
	Path             string `json:"path"              gorm:"type:varchar(512);uniqueIndex;not null"`
	ByteSize         int64  `json:"byte_size"`
	DurationMs       int64  `json:"duration_ms"`
	Provider         string `json:"provider"          gorm:"type:varchar(64)"`
	ContentType      string `json:"content_type"      gorm:"type:varchar(64)"`
	ClientSpeech     bool   `json:"client_speech"`
	TextHash         string `json:"text_hash"         gorm:"type:char(64);not null"`
	GeneratorVersion string `json:"generator_version" gorm:"type:varchar(191)"`
}

func (AudioAssetModel) TableName() string { return "audio_assets" }
