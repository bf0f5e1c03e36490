package models

// SimplificationModel is the current validated rewrite of a chunk at a level.
// (book_id, chunk_index, level) is unique; regeneration overwrites in place.
type SimplificationModel struct {
	Base
	BookID           string  `json:"book_id"           gorm:"type:varchar(191);uniqueIndex:ux_simplification_key,priority:1;not null"`
	ChunkIndex       int     `json:"chunk_index"       gorm:"uniqueIndex:ux_simplification_key,priority:2;not null"`
	Level            string  `json:"level"             gorm:"type:varchar(16);uniqueIndex:ux_simplification_key,priority:3;not null"`
	Text             string  `json:"text"              gorm:"type:longtext;not null"`
	QualityScore     float64 `json:"quality_score"`
	SurfaceScore     float64 `json:"surface_score"`
	GeneratorVersion string  `json:"generator_version" gorm:"type:varchar(191);index;not null"`
	Strategy         string  `json:"strategy"          gorm:"type:varchar(64)"`
}

func (SimplificationModel) TableName() string { return "simplifications" }
