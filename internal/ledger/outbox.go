package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/libernet/sofia-billing/internal/models"
	internalsettings "github.com/libernet/sofia-billing/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// outboxBatchSize bounds one replay pass.
const outboxBatchSize = 50

// CreditOrEnqueue applies a credit, and on storage failure records it in
// the pending-credit outbox so a confirmed payment is never dropped. The
// returned bool reports whether the credit applied immediately.
func (l *Ledger) CreditOrEnqueue(ctx context.Context, userID uint64, tokens int64, meta CreditMeta) (int64, bool, error) {
	newBalance, errCredit := l.Credit(ctx, userID, tokens, meta)
	if errCredit == nil {
		return newBalance, true, nil
	}
	// Validation failures are not retryable; replaying them would churn
	// attempts forever.
	if errors.Is(errCredit, ErrInvalidAmount) || errors.Is(errCredit, ErrUnknownUser) {
		return 0, false, errCredit
	}

	log.WithError(errCredit).WithFields(log.Fields{
		"billing_anomaly": "credit_failed",
		"user_id":         userID,
		"tokens":          tokens,
		"payment_hash":    meta.PaymentHash,
	}).Error("ledger: credit failed, enqueueing for replay")

	if errEnqueue := l.EnqueueCredit(ctx, userID, tokens, meta, errCredit.Error()); errEnqueue != nil {
		// Both the credit and the outbox write failed: the payment is
		// confirmed but unrecorded anywhere durable.
		log.WithError(errEnqueue).WithFields(log.Fields{
			"billing_anomaly": "credit_lost",
			"user_id":         userID,
			"payment_hash":    meta.PaymentHash,
		}).Error("ledger: enqueue failed for paid recharge")
		return 0, false, errEnqueue
	}
	return 0, false, nil
}

// EnqueueCredit writes a pending-credit outbox row.
func (l *Ledger) EnqueueCredit(ctx context.Context, userID uint64, tokens int64, meta CreditMeta, lastError string) error {
	return l.EnqueueCreditTx(l.db.WithContext(ctx), userID, tokens, meta, lastError)
}

// EnqueueCreditTx writes a pending-credit outbox row using the caller's
// transaction, so the row commits together with the caller's bookkeeping.
func (l *Ledger) EnqueueCreditTx(tx *gorm.DB, userID uint64, tokens int64, meta CreditMeta, lastError string) error {
	if tokens <= 0 {
		return ErrInvalidAmount
	}
	payload, errMarshal := json.Marshal(meta)
	if errMarshal != nil {
		return fmt.Errorf("ledger: marshal credit metadata: %w", errMarshal)
	}
	row := models.PendingCredit{
		UserID:    userID,
		Tokens:    tokens,
		Metadata:  datatypes.JSON(payload),
		Attempts:  1,
		LastError: lastError,
	}
	if errCreate := tx.Create(&row).Error; errCreate != nil {
		return fmt.Errorf("%w: enqueue credit for user %d: %v", ErrLedgerWrite, userID, errCreate)
	}
	return nil
}

// PendingCredits lists unapplied outbox rows, oldest first.
func (l *Ledger) PendingCredits(ctx context.Context, limit int) ([]models.PendingCredit, error) {
	if limit <= 0 || limit > internalsettings.MaxTransactionPageLimit {
		limit = outboxBatchSize
	}
	var rows []models.PendingCredit
	if errFind := l.db.WithContext(ctx).
		Where("applied_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: list pending credits: %w", errFind)
	}
	return rows, nil
}

// Outbox replays pending credits on a fixed cadence.
type Outbox struct {
	ledger   *Ledger
	interval time.Duration
}

// NewOutbox constructs an Outbox. A zero interval gets the default retry
// cadence.
func NewOutbox(l *Ledger, interval time.Duration) *Outbox {
	if interval <= 0 {
		interval = internalsettings.DefaultOutboxRetryInterval
	}
	return &Outbox{ledger: l, interval: interval}
}

// Run replays pending credits on every tick until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, errReplay := o.ReplayOnce(ctx); errReplay != nil {
				log.WithError(errReplay).Warn("ledger outbox: replay pass failed")
			}
		}
	}
}

// errOutboxRowClaimed reports that another worker applied the pending row
// between the listing and the claim.
var errOutboxRowClaimed = errors.New("ledger: pending credit already applied")

// ReplayOnce attempts every pending credit once and returns how many
// applied.
func (o *Outbox) ReplayOnce(ctx context.Context) (int, error) {
	rows, errList := o.ledger.PendingCredits(ctx, outboxBatchSize)
	if errList != nil {
		return 0, errList
	}

	applied := 0
	for i := range rows {
		row := rows[i]

		var meta CreditMeta
		if len(row.Metadata) > 0 {
			_ = json.Unmarshal(row.Metadata, &meta)
		}

		errTx := o.replayRow(ctx, row, meta)
		if errors.Is(errTx, errOutboxRowClaimed) {
			continue
		}
		if errTx != nil {
			if errUpdate := o.ledger.db.WithContext(ctx).Model(&models.PendingCredit{}).
				Where("id = ?", row.ID).
				Updates(map[string]any{
					"attempts":   gorm.Expr("attempts + ?", 1),
					"last_error": errTx.Error(),
					"updated_at": time.Now().UTC(),
				}).Error; errUpdate != nil {
				log.WithError(errUpdate).Warn("ledger outbox: record attempt failed")
			}
			continue
		}
		applied++
		log.WithFields(log.Fields{
			"user_id":      row.UserID,
			"tokens":       row.Tokens,
			"payment_hash": meta.PaymentHash,
		}).Info("ledger outbox: replayed pending credit")
	}
	return applied, nil
}

// replayRow applies one pending credit. The credit and the applied marker
// commit in the same transaction; a row already claimed by a concurrent
// worker rolls the duplicate credit back.
func (o *Outbox) replayRow(ctx context.Context, row models.PendingCredit, meta CreditMeta) error {
	return o.ledger.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errApply := applyCredit(tx, row.UserID, row.Tokens, meta); errApply != nil {
			return errApply
		}
		now := time.Now().UTC()
		claim := tx.Model(&models.PendingCredit{}).
			Where("id = ? AND applied_at IS NULL", row.ID).
			Updates(map[string]any{
				"applied_at": now,
				"updated_at": now,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return errOutboxRowClaimed
		}
		return nil
	})
}
