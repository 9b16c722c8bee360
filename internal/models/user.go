package models

import "time"

// User represents an end-user account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Name     string `gorm:"type:text"`                      // Display name.
	Email    string `gorm:"type:text;uniqueIndex"`          // Email address.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	// TokenBalance is the internal-token balance. Owned exclusively by the
	// ledger package; all mutation goes through Credit/Debit.
	TokenBalance int64 `gorm:"not null;default:0"`

	Active   bool `gorm:"not null;default:true"`  // Whether the user can sign in.
	Disabled bool `gorm:"not null;default:false"` // Explicit disable flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
