package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/libernet/sofia-billing/internal/db"
	"github.com/libernet/sofia-billing/internal/models"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "sofia-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return New(conn), conn
}

func createTestUser(t *testing.T, conn *gorm.DB, username string) uint64 {
	t.Helper()
	user := models.User{
		Username: username,
		Password: "hashed",
		Active:   true,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user.ID
}

// transactionSum returns the sum of a user's ledger entry amounts.
func transactionSum(t *testing.T, conn *gorm.DB, userID uint64) int64 {
	t.Helper()
	var sum int64
	row := conn.Model(&models.TokenTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)")
	if errScan := row.Scan(&sum).Error; errScan != nil {
		t.Fatalf("sum transactions: %v", errScan)
	}
	return sum
}

func TestCreditAndBalance(t *testing.T) {
	l, conn := newTestLedger(t)
	userID := createTestUser(t, conn, "alice")
	ctx := context.Background()

	balance, err := l.Credit(ctx, userID, 1_250_000, CreditMeta{
		Plan:        "Light",
		PaymentHash: "hash-1",
		AmountSats:  10638,
		Provider:    "lnbits",
	})
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if balance != 1_250_000 {
		t.Fatalf("expected balance 1250000, got %d", balance)
	}

	stored, err := l.Balance(ctx, userID)
	if err != nil || stored != 1_250_000 {
		t.Fatalf("Balance = %d err=%v, want 1250000", stored, err)
	}

	var record models.TokenTransaction
	if errFind := conn.Where("user_id = ?", userID).First(&record).Error; errFind != nil {
		t.Fatalf("find transaction: %v", errFind)
	}
	if record.Amount != 1_250_000 || record.Type != models.TransactionTypeRecharge {
		t.Fatalf("unexpected transaction record: amount=%d type=%s", record.Amount, record.Type)
	}
	if record.PaymentHash != "hash-1" || record.AmountSats != 10638 {
		t.Fatalf("payment metadata not recorded: %+v", record)
	}
}

func TestCreditRejectsInvalidAmount(t *testing.T) {
	l, conn := newTestLedger(t)
	userID := createTestUser(t, conn, "alice")

	if _, err := l.Credit(context.Background(), userID, 0, CreditMeta{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero credit, got %v", err)
	}
	if _, err := l.Credit(context.Background(), userID, -10, CreditMeta{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative credit, got %v", err)
	}
}

func TestCreditUnknownUser(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.Credit(context.Background(), 9999, 100, CreditMeta{}); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestDebit(t *testing.T) {
	l, conn := newTestLedger(t)
	userID := createTestUser(t, conn, "alice")
	ctx := context.Background()

	if _, err := l.Credit(ctx, userID, 1000, CreditMeta{Plan: "Light"}); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	balance, err := l.Debit(ctx, userID, 47, DebitMeta{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if balance != 953 {
		t.Fatalf("expected balance 953, got %d", balance)
	}

	var record models.TokenTransaction
	if errFind := conn.Where("user_id = ? AND type = ?", userID, models.TransactionTypeUsage).
		First(&record).Error; errFind != nil {
		t.Fatalf("find usage transaction: %v", errFind)
	}
	if record.Amount != -47 {
		t.Fatalf("usage must be recorded as a negative amount, got %d", record.Amount)
	}

	if sum := transactionSum(t, conn, userID); sum != balance {
		t.Fatalf("transaction sum %d does not equal balance %d", sum, balance)
	}
}

func TestDebitInsufficientBalance(t *testing.T) {
	l, conn := newTestLedger(t)
	userID := createTestUser(t, conn, "alice")
	ctx := context.Background()

	if _, err := l.Credit(ctx, userID, 200, CreditMeta{Plan: "Light"}); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	_, err := l.Debit(ctx, userID, 500, DebitMeta{Model: "gpt-5"})
	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if insufficient.Balance != 200 || insufficient.Required != 500 {
		t.Fatalf("unexpected figures: %+v", insufficient)
	}
	if insufficient.Shortfall() != 300 {
		t.Fatalf("expected shortfall 300, got %d", insufficient.Shortfall())
	}

	// A rejected debit must not mutate anything.
	balance, errBalance := l.Balance(ctx, userID)
	if errBalance != nil || balance != 200 {
		t.Fatalf("balance changed after rejected debit: %d err=%v", balance, errBalance)
	}
	var count int64
	if errCount := conn.Model(&models.TokenTransaction{}).
		Where("user_id = ? AND type = ?", userID, models.TransactionTypeUsage).
		Count(&count).Error; errCount != nil {
		t.Fatalf("count transactions: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("rejected debit left %d usage records", count)
	}
}

func TestDebitUnknownUser(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.Debit(context.Background(), 9999, 100, DebitMeta{}); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestBalanceUnknownUser(t *testing.T) {
	l, _ := newTestLedger(t)
	balance, err := l.Balance(context.Background(), 9999)
	if err != nil || balance != 0 {
		t.Fatalf("expected zero balance for unknown user, got %d err=%v", balance, err)
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	l, conn := newTestLedger(t)
	userID := createTestUser(t, conn, "alice")
	ctx := context.Background()

	if _, err := l.Credit(ctx, userID, 1000, CreditMeta{Plan: "Light"}); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := l.Debit(ctx, userID, 10, DebitMeta{Model: "gpt-4o-mini"}); err != nil {
			t.Fatalf("Debit: %v", err)
		}
	}

	rows, err := l.Transactions(ctx, userID, 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 transactions, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1].ID < rows[i].ID {
			t.Fatalf("transactions not newest-first: %d before %d", rows[i-1].ID, rows[i].ID)
		}
	}

	limited, err := l.Transactions(ctx, userID, 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected 2 transactions with limit, got %d err=%v", len(limited), err)
	}
}

func TestConcurrentDebitsKeepLedgerConsistent(t *testing.T) {
	l, conn := newTestLedger(t)
	userID := createTestUser(t, conn, "alice")
	ctx := context.Background()

	if _, err := l.Credit(ctx, userID, 700, CreditMeta{Plan: "Light"}); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	const workers = 5
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errDebit := l.Debit(ctx, userID, 200, DebitMeta{Model: "gpt-5"})
			results <- errDebit
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for errDebit := range results {
		if errDebit == nil {
			succeeded++
		}
	}
	if succeeded > 3 {
		t.Fatalf("balance 700 cannot cover %d debits of 200", succeeded)
	}

	balance, errBalance := l.Balance(ctx, userID)
	if errBalance != nil {
		t.Fatalf("Balance: %v", errBalance)
	}
	if balance < 0 {
		t.Fatalf("balance went negative: %d", balance)
	}
	if want := int64(700 - 200*succeeded); balance != want {
		t.Fatalf("balance %d does not match %d successful debits (want %d)", balance, succeeded, want)
	}
	if sum := transactionSum(t, conn, userID); sum != balance {
		t.Fatalf("transaction sum %d does not equal balance %d", sum, balance)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		1:         "1",
		999:       "999",
		1000:      "1,000",
		1250000:   "1,250,000",
		123456789: "123,456,789",
	}
	for tokens, want := range cases {
		if got := formatAmount(tokens); got != want {
			t.Fatalf("formatAmount(%d) = %q, want %q", tokens, got, want)
		}
	}
}

func TestDebitDefaultDescription(t *testing.T) {
	l, conn := newTestLedger(t)
	userID := createTestUser(t, conn, "alice")
	ctx := context.Background()

	if _, err := l.Credit(ctx, userID, 1000, CreditMeta{Plan: "Light"}); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := l.Debit(ctx, userID, 47, DebitMeta{Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	var record models.TokenTransaction
	if errFind := conn.Where("user_id = ? AND type = ?", userID, models.TransactionTypeUsage).
		First(&record).Error; errFind != nil {
		t.Fatalf("find transaction: %v", errFind)
	}
	want := fmt.Sprintf("API usage - %s (%d tokens)", "gpt-4o-mini", 47)
	if record.Description != want {
		t.Fatalf("description %q, want %q", record.Description, want)
	}
}
