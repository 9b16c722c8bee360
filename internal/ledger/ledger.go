// Package ledger owns the per-user token balance and its append-only
// transaction log. It is the only component allowed to mutate balances;
// every mutation is a single database transaction pairing the balance
// update with an immutable transaction record, so the sum of a user's
// transaction amounts always equals the user's balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	internaldb "github.com/libernet/sofia-billing/internal/db"
	"github.com/libernet/sofia-billing/internal/models"
	internalsettings "github.com/libernet/sofia-billing/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger errors.
var (
	// ErrInvalidAmount indicates a non-positive credit or debit amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrUnknownUser indicates the user row does not exist.
	ErrUnknownUser = errors.New("ledger: unknown user")
	// ErrLedgerWrite indicates the atomic balance mutation could not be
	// committed to storage.
	ErrLedgerWrite = errors.New("ledger: write failed")
)

// InsufficientBalanceError rejects a debit that would overdraw the balance.
// It carries the figures the caller needs for a structured 402-style
// response.
type InsufficientBalanceError struct {
	Balance  int64 // Balance at the time of the check.
	Required int64 // Tokens the debit needed.
}

// Error implements the error interface.
func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("ledger: insufficient balance: have %d, need %d", e.Balance, e.Required)
}

// Shortfall returns how many tokens were missing.
func (e *InsufficientBalanceError) Shortfall() int64 {
	return e.Required - e.Balance
}

// CreditMeta carries payment metadata for a recharge credit.
type CreditMeta struct {
	Plan        string // Recharge package name.
	PaymentHash string // Lightning payment hash.
	AmountSats  int64  // Paid amount in satoshis.
	Provider    string // Payment provider identifier.
	Description string // Optional override for the ledger entry text.
}

// DebitMeta carries context for a usage debit.
type DebitMeta struct {
	Model       string // Model tier that generated the usage.
	Description string // Optional override for the ledger entry text.
}

// Ledger performs atomic balance mutations against the backing store.
type Ledger struct {
	db *gorm.DB
}

// New constructs a Ledger.
func New(db *gorm.DB) *Ledger { return &Ledger{db: db} }

// lockForUpdate applies a row lock on dialects that support it. SQLite has
// no SELECT FOR UPDATE; its single-writer model serializes the transaction
// anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if internaldb.IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Credit atomically adds tokens to a user's balance and appends the
// matching positive transaction record. It returns the new balance.
func (l *Ledger) Credit(ctx context.Context, userID uint64, tokens int64, meta CreditMeta) (int64, error) {
	if tokens <= 0 {
		return 0, ErrInvalidAmount
	}

	var newBalance int64
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, errApply := applyCredit(tx, userID, tokens, meta)
		if errApply != nil {
			return errApply
		}
		newBalance = balance
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, ErrUnknownUser) {
			return 0, errTx
		}
		return 0, fmt.Errorf("%w: credit user %d: %v", ErrLedgerWrite, userID, errTx)
	}
	return newBalance, nil
}

// CreditTx applies a credit inside the caller's transaction, so the credit
// commits or rolls back together with the caller's own writes. It returns
// the new balance.
func (l *Ledger) CreditTx(tx *gorm.DB, userID uint64, tokens int64, meta CreditMeta) (int64, error) {
	if tokens <= 0 {
		return 0, ErrInvalidAmount
	}
	return applyCredit(tx, userID, tokens, meta)
}

// applyCredit performs the credit inside an existing transaction. Shared
// with the outbox replay so a replayed credit and its bookkeeping commit
// together.
func applyCredit(tx *gorm.DB, userID uint64, tokens int64, meta CreditMeta) (int64, error) {
	var user models.User
	if errFind := lockForUpdate(tx).
		Where("id = ?", userID).
		First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, ErrUnknownUser
		}
		return 0, errFind
	}

	newBalance := user.TokenBalance + tokens
	if errUpdate := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"token_balance": gorm.Expr("token_balance + ?", tokens),
			"updated_at":    time.Now().UTC(),
		}).Error; errUpdate != nil {
		return 0, errUpdate
	}

	description := meta.Description
	if description == "" {
		description = fmt.Sprintf("Recharge %s - %s tokens", meta.Plan, formatAmount(tokens))
	}
	record := models.TokenTransaction{
		UserID:      userID,
		Amount:      tokens,
		Type:        models.TransactionTypeRecharge,
		PlanName:    meta.Plan,
		PaymentHash: meta.PaymentHash,
		AmountSats:  meta.AmountSats,
		Provider:    meta.Provider,
		Description: description,
	}
	if errCreate := tx.Create(&record).Error; errCreate != nil {
		return 0, errCreate
	}
	return newBalance, nil
}

// Debit atomically checks sufficiency, subtracts tokens and appends the
// matching negative transaction record, all under a row lock on the user so
// two concurrent debits cannot both pass the check against a stale balance.
// It returns the new balance, or InsufficientBalanceError with no mutation.
func (l *Ledger) Debit(ctx context.Context, userID uint64, tokens int64, meta DebitMeta) (int64, error) {
	if tokens <= 0 {
		return 0, ErrInvalidAmount
	}

	var insufficient *InsufficientBalanceError
	var newBalance int64
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if errFind := lockForUpdate(tx).
			Where("id = ?", userID).
			First(&user).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrUnknownUser
			}
			return errFind
		}

		if user.TokenBalance < tokens {
			insufficient = &InsufficientBalanceError{Balance: user.TokenBalance, Required: tokens}
			return insufficient
		}

		if errUpdate := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"token_balance": gorm.Expr("token_balance - ?", tokens),
				"updated_at":    time.Now().UTC(),
			}).Error; errUpdate != nil {
			return errUpdate
		}

		description := meta.Description
		if description == "" {
			description = fmt.Sprintf("API usage - %s (%d tokens)", meta.Model, tokens)
		}
		record := models.TokenTransaction{
			UserID:      userID,
			Amount:      -tokens,
			Type:        models.TransactionTypeUsage,
			Description: description,
		}
		if errCreate := tx.Create(&record).Error; errCreate != nil {
			return errCreate
		}

		newBalance = user.TokenBalance - tokens
		return nil
	})
	if errTx != nil {
		if insufficient != nil {
			return insufficient.Balance, insufficient
		}
		if errors.Is(errTx, ErrUnknownUser) {
			return 0, errTx
		}
		// The caller already delivered the generated content; this charge
		// is lost and must surface in the operational log for manual
		// reconciliation.
		log.WithError(errTx).WithFields(log.Fields{
			"billing_anomaly": "debit_failed",
			"user_id":         userID,
			"tokens":          tokens,
			"model":           meta.Model,
		}).Error("ledger: debit failed after delivery")
		return 0, fmt.Errorf("%w: debit user %d: %v", ErrLedgerWrite, userID, errTx)
	}
	return newBalance, nil
}

// Balance returns the user's current balance, 0 for unknown users.
func (l *Ledger) Balance(ctx context.Context, userID uint64) (int64, error) {
	var user models.User
	errFind := l.db.WithContext(ctx).
		Select("token_balance").
		Where("id = ?", userID).
		First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger: read balance: %w", errFind)
	}
	return user.TokenBalance, nil
}

// Transactions returns the user's ledger entries newest-first. Limits are
// clamped to [1, MaxTransactionPageLimit]; non-positive limits use the
// default page size.
func (l *Ledger) Transactions(ctx context.Context, userID uint64, limit int) ([]models.TokenTransaction, error) {
	if limit <= 0 {
		limit = internalsettings.DefaultTransactionPageLimit
	}
	if limit > internalsettings.MaxTransactionPageLimit {
		limit = internalsettings.MaxTransactionPageLimit
	}

	var rows []models.TokenTransaction
	if errFind := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: list transactions: %w", errFind)
	}
	return rows, nil
}

// formatAmount renders a token amount with thousands separators.
func formatAmount(tokens int64) string {
	s := fmt.Sprintf("%d", tokens)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
