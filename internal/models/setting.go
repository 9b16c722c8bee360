package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting stores a DB-backed configuration value as raw JSON.
type Setting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Key   string         `gorm:"type:text;not null;uniqueIndex"` // Config key.
	Value datatypes.JSON `gorm:"type:jsonb"`                     // Raw JSON value.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
