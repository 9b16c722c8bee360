package models

import "time"

// TokenTransactionType labels a ledger entry.
type TokenTransactionType string

// TokenTransactionType values.
const (
	// TransactionTypeRecharge marks a credit from a confirmed payment.
	TransactionTypeRecharge TokenTransactionType = "recharge"
	// TransactionTypeUsage marks a debit from API usage.
	TransactionTypeUsage TokenTransactionType = "usage"
)

// TokenTransaction is an immutable ledger entry. Rows are append-only:
// the sum of Amount over a user's rows always equals the user's balance.
type TokenTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Related user ID.
	User   User   `gorm:"foreignKey:UserID"` // Related user record.

	// Amount is signed: positive for credits, negative for debits.
	Amount int64                `gorm:"not null"`
	Type   TokenTransactionType `gorm:"type:text;not null;index"` // Entry type.

	PlanName    string `gorm:"type:text"` // Recharge package name, if any.
	PaymentHash string `gorm:"type:text"` // Lightning payment hash, if any.
	AmountSats  int64  `gorm:"not null;default:0"` // Paid amount in satoshis.
	Provider    string `gorm:"type:text"` // Payment provider (lnbits, opennode, admin_adjust).

	Description string `gorm:"type:text"` // Human-readable summary.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
