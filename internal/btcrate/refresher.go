package btcrate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	internalsettings "github.com/libernet/sofia-billing/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// defaultFeedURL is the CoinGecko simple-price endpoint.
const defaultFeedURL = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"

// Refresher periodically fetches the BTC/USD rate and updates the cache and
// its persisted copy. Fetch failures keep the previous snapshot.
type Refresher struct {
	cache    *Cache
	db       *gorm.DB
	client   *http.Client
	feedURL  string
	interval time.Duration
}

// NewRefresher constructs a Refresher. A nil client gets a 10s-timeout
// default; a zero interval gets the default refresh cadence.
func NewRefresher(cache *Cache, conn *gorm.DB, client *http.Client, interval time.Duration) *Refresher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if interval <= 0 {
		interval = internalsettings.DefaultBTCRateRefreshInterval
	}
	return &Refresher{
		cache:    cache,
		db:       conn,
		client:   client,
		feedURL:  defaultFeedURL,
		interval: interval,
	}
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	if errRefresh := r.RefreshOnce(ctx); errRefresh != nil {
		log.WithError(errRefresh).Warn("btc rate: initial refresh failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if errRefresh := r.RefreshOnce(ctx); errRefresh != nil {
				log.WithError(errRefresh).Warn("btc rate: refresh failed")
			}
		}
	}
}

// RefreshOnce fetches the current rate and stores it in the cache and DB.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	price, errFetch := r.fetchPrice(ctx)
	if errFetch != nil {
		return errFetch
	}

	now := time.Now().UTC()
	r.cache.Store(price, now)
	if r.db != nil {
		if errPersist := r.cache.Persist(r.db); errPersist != nil {
			return fmt.Errorf("btc rate: persist: %w", errPersist)
		}
	}
	log.WithField("btc_price_usd", price).Info("btc rate updated")
	return nil
}

// fetchPrice queries the price feed and validates the response.
func (r *Refresher) fetchPrice(ctx context.Context) (float64, error) {
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, r.feedURL, nil)
	if errReq != nil {
		return 0, fmt.Errorf("btc rate: build request: %w", errReq)
	}

	resp, errDo := r.client.Do(req)
	if errDo != nil {
		return 0, fmt.Errorf("btc rate: fetch: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("btc rate: feed status %d", resp.StatusCode)
	}

	// body matches the CoinGecko simple-price response shape.
	var body struct {
		Bitcoin struct {
			USD float64 `json:"usd"`
		} `json:"bitcoin"`
	}
	if errDecode := json.NewDecoder(resp.Body).Decode(&body); errDecode != nil {
		return 0, fmt.Errorf("btc rate: decode: %w", errDecode)
	}
	if body.Bitcoin.USD <= 0 {
		return 0, fmt.Errorf("btc rate: feed returned non-positive price %f", body.Bitcoin.USD)
	}
	return body.Bitcoin.USD, nil
}
