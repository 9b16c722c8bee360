package models

import (
	"time"

	"gorm.io/datatypes"
)

// PendingCredit is a durable outbox row for a paid recharge whose ledger
// credit could not be committed. A background worker replays pending rows
// until the credit applies; a paid recharge is never silently dropped.
type PendingCredit struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"` // Related user ID.
	Tokens int64  `gorm:"not null"`       // Tokens to credit.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Payment metadata JSON.

	Attempts  int        `gorm:"not null;default:0"` // Replay attempt count.
	LastError string     `gorm:"type:text"`          // Last replay failure, if any.
	AppliedAt *time.Time `gorm:"index"`              // Set once the credit commits.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
