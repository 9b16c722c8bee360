package models

import "time"

// RechargeInvoice records a Lightning invoice issued for a recharge quote.
// The token amount is fixed at invoice time, so the credit applied on
// confirmation matches exactly what the user was quoted even if the BTC/USD
// rate moved in between.
type RechargeInvoice struct {
	ID     uint64 `gorm:"primaryKey" json:"id"` // Invoice ID.
	UserID uint64 `gorm:"index;not null" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`

	PackageID   string  `gorm:"size:32;not null" json:"package_id"`       // Recharge package key.
	USDPrice    float64 `gorm:"not null" json:"usd_price"`                // Quoted USD price.
	Tokens      int64   `gorm:"not null" json:"tokens"`                   // Tokens to credit on payment.
	AmountSats  int64   `gorm:"not null" json:"amount_sats"`              // Invoice amount in satoshis.
	BTCPriceUSD float64 `gorm:"not null" json:"btc_price_usd"`            // Rate used for the quote.
	PaymentHash string  `gorm:"size:128;uniqueIndex" json:"payment_hash"` // Lightning payment hash.
	Provider    string  `gorm:"size:32" json:"provider"`                  // Payment provider identifier.

	// CreditedAt marks the invoice as settled and credited. Confirmation is
	// idempotent: a non-nil value short-circuits any further credit.
	CreditedAt *time.Time `json:"credited_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
