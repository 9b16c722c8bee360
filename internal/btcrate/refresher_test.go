package btcrate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/libernet/sofia-billing/internal/db"
	internalsettings "github.com/libernet/sofia-billing/internal/settings"
)

func TestRefreshOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":97250.5}}`))
	}))
	defer srv.Close()

	dsn := "file:" + filepath.Join(t.TempDir(), "sofia-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	cache := NewCache(48 * time.Hour)
	r := NewRefresher(cache, conn, srv.Client(), time.Hour)
	r.feedURL = srv.URL

	if errRefresh := r.RefreshOnce(context.Background()); errRefresh != nil {
		t.Fatalf("RefreshOnce: %v", errRefresh)
	}

	price, ok := cache.Price()
	if !ok || price != 97250.5 {
		t.Fatalf("expected cached price 97250.5, got %f ok=%v", price, ok)
	}

	persisted, found, errGet := internalsettings.GetFloat(conn, internalsettings.BTCPriceUSDKey)
	if errGet != nil || !found {
		t.Fatalf("expected persisted rate, found=%v err=%v", found, errGet)
	}
	if persisted != 97250.5 {
		t.Fatalf("persisted rate %f, want 97250.5", persisted)
	}
}

func TestRefreshOnceFeedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cache := NewCache(48 * time.Hour)
	cache.Store(95000, time.Now())

	r := NewRefresher(cache, nil, srv.Client(), time.Hour)
	r.feedURL = srv.URL

	if errRefresh := r.RefreshOnce(context.Background()); errRefresh == nil {
		t.Fatalf("expected error from failing feed")
	}
	// A failed refresh keeps the previous snapshot.
	price, ok := cache.Price()
	if !ok || price != 95000 {
		t.Fatalf("expected previous price kept, got %f ok=%v", price, ok)
	}
}

func TestRefreshOnceRejectsNonPositivePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":0}}`))
	}))
	defer srv.Close()

	cache := NewCache(48 * time.Hour)
	r := NewRefresher(cache, nil, srv.Client(), time.Hour)
	r.feedURL = srv.URL

	if errRefresh := r.RefreshOnce(context.Background()); errRefresh == nil {
		t.Fatalf("expected error for non-positive price")
	}
}
