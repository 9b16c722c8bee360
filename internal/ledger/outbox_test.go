package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/libernet/sofia-billing/internal/models"
)

func TestEnqueueAndReplayCredit(t *testing.T) {
	l, conn := newTestLedger(t)
	userID := createTestUser(t, conn, "alice")
	ctx := context.Background()

	meta := CreditMeta{
		Plan:        "Standard",
		PaymentHash: "hash-replay",
		AmountSats:  21276,
		Provider:    "lnbits",
	}
	if errEnqueue := l.EnqueueCredit(ctx, userID, 2_500_000, meta, "db unavailable"); errEnqueue != nil {
		t.Fatalf("EnqueueCredit: %v", errEnqueue)
	}

	pending, errList := l.PendingCredits(ctx, 0)
	if errList != nil {
		t.Fatalf("PendingCredits: %v", errList)
	}
	if len(pending) != 1 || pending[0].Tokens != 2_500_000 || pending[0].Attempts != 1 {
		t.Fatalf("unexpected pending rows: %+v", pending)
	}

	outbox := NewOutbox(l, 0)
	applied, errReplay := outbox.ReplayOnce(ctx)
	if errReplay != nil {
		t.Fatalf("ReplayOnce: %v", errReplay)
	}
	if applied != 1 {
		t.Fatalf("expected 1 replayed credit, got %d", applied)
	}

	balance, errBalance := l.Balance(ctx, userID)
	if errBalance != nil || balance != 2_500_000 {
		t.Fatalf("expected balance 2500000 after replay, got %d err=%v", balance, errBalance)
	}

	var record models.TokenTransaction
	if errFind := conn.Where("user_id = ?", userID).First(&record).Error; errFind != nil {
		t.Fatalf("find transaction: %v", errFind)
	}
	if record.PaymentHash != "hash-replay" || record.Type != models.TransactionTypeRecharge {
		t.Fatalf("replayed transaction missing metadata: %+v", record)
	}

	// The applied row must not replay twice.
	applied, errReplay = outbox.ReplayOnce(ctx)
	if errReplay != nil {
		t.Fatalf("second ReplayOnce: %v", errReplay)
	}
	if applied != 0 {
		t.Fatalf("expected no further replays, got %d", applied)
	}
	balance, _ = l.Balance(ctx, userID)
	if balance != 2_500_000 {
		t.Fatalf("balance changed on idempotent replay: %d", balance)
	}
}

func TestReplayRecordsFailedAttempts(t *testing.T) {
	l, conn := newTestLedger(t)
	ctx := context.Background()

	// Pending credit for a user that does not exist keeps failing and must
	// accumulate attempts instead of being dropped.
	if errEnqueue := l.EnqueueCredit(ctx, 9999, 1000, CreditMeta{PaymentHash: "hash-orphan"}, "initial failure"); errEnqueue != nil {
		t.Fatalf("EnqueueCredit: %v", errEnqueue)
	}

	outbox := NewOutbox(l, 0)
	applied, errReplay := outbox.ReplayOnce(ctx)
	if errReplay != nil {
		t.Fatalf("ReplayOnce: %v", errReplay)
	}
	if applied != 0 {
		t.Fatalf("expected no applied credits, got %d", applied)
	}

	var row models.PendingCredit
	if errFind := conn.First(&row).Error; errFind != nil {
		t.Fatalf("find pending credit: %v", errFind)
	}
	if row.Attempts != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", row.Attempts)
	}
	if row.LastError == "" {
		t.Fatalf("expected last error recorded")
	}
	if row.AppliedAt != nil {
		t.Fatalf("failed credit must not be marked applied")
	}
}

func TestEnqueueCreditRejectsInvalidAmount(t *testing.T) {
	l, _ := newTestLedger(t)
	if errEnqueue := l.EnqueueCredit(context.Background(), 1, 0, CreditMeta{}, ""); errEnqueue != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", errEnqueue)
	}
}

func TestCreditOrEnqueueUnknownUserNotEnqueued(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, applied, err := l.CreditOrEnqueue(ctx, 9999, 1000, CreditMeta{PaymentHash: "hash-ghost"})
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
	if applied {
		t.Fatalf("credit must not apply for an unknown user")
	}

	pending, errList := l.PendingCredits(ctx, 0)
	if errList != nil || len(pending) != 0 {
		t.Fatalf("non-retryable failure must not enqueue, got %d rows err=%v", len(pending), errList)
	}
}

func TestReplayRowClaimedByConcurrentWorker(t *testing.T) {
	l, conn := newTestLedger(t)
	userID := createTestUser(t, conn, "alice")
	ctx := context.Background()

	if errEnqueue := l.EnqueueCredit(ctx, userID, 1000, CreditMeta{PaymentHash: "hash-race"}, "db unavailable"); errEnqueue != nil {
		t.Fatalf("EnqueueCredit: %v", errEnqueue)
	}
	var row models.PendingCredit
	if errFind := conn.First(&row).Error; errFind != nil {
		t.Fatalf("find pending credit: %v", errFind)
	}

	// Another worker applies the row after this one listed it.
	if errClaim := conn.Model(&models.PendingCredit{}).
		Where("id = ?", row.ID).
		Update("applied_at", time.Now().UTC()).Error; errClaim != nil {
		t.Fatalf("mark applied: %v", errClaim)
	}

	outbox := NewOutbox(l, 0)
	if errReplay := outbox.replayRow(ctx, row, CreditMeta{PaymentHash: "hash-race"}); !errors.Is(errReplay, errOutboxRowClaimed) {
		t.Fatalf("expected claimed-row error, got %v", errReplay)
	}

	balance, errBalance := l.Balance(ctx, userID)
	if errBalance != nil || balance != 0 {
		t.Fatalf("duplicate credit must roll back, balance=%d err=%v", balance, errBalance)
	}
	var txCount int64
	if errCount := conn.Model(&models.TokenTransaction{}).Count(&txCount).Error; errCount != nil || txCount != 0 {
		t.Fatalf("expected no transaction rows, count=%d err=%v", txCount, errCount)
	}
}

func TestCreditOrEnqueueAppliesImmediately(t *testing.T) {
	l, conn := newTestLedger(t)
	userID := createTestUser(t, conn, "alice")

	balance, applied, err := l.CreditOrEnqueue(context.Background(), userID, 500, CreditMeta{Plan: "Light"})
	if err != nil {
		t.Fatalf("CreditOrEnqueue: %v", err)
	}
	if !applied || balance != 500 {
		t.Fatalf("expected immediate credit, applied=%v balance=%d", applied, balance)
	}

	pending, errList := l.PendingCredits(context.Background(), 0)
	if errList != nil || len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d rows err=%v", len(pending), errList)
	}
}
