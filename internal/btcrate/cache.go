// Package btcrate maintains the cached BTC/USD exchange rate used to price
// Lightning recharges: an in-memory snapshot refreshed periodically from an
// external feed and persisted to the settings table across restarts.
package btcrate

import (
	"sync/atomic"
	"time"

	"github.com/libernet/sofia-billing/internal/pricing"
	internalsettings "github.com/libernet/sofia-billing/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// snapshot holds one observed rate.
type snapshot struct {
	price     float64
	updatedAt time.Time
}

// Cache serves the most recent BTC/USD rate. Price reports ok=false when
// the snapshot is empty or older than the stale window; callers then fall
// back to pricing.DefaultBTCPriceUSD, and the fallback is counted so a
// broken feed is observable instead of silently mispricing recharges.
type Cache struct {
	current    atomic.Value // stores snapshot
	staleAfter time.Duration
	nowFn      func() time.Time

	fallbacks   atomic.Int64
	staleLogged atomic.Int64 // unix time of the stale window already logged
}

// NewCache constructs a Cache with the given stale window.
func NewCache(staleAfter time.Duration) *Cache {
	if staleAfter <= 0 {
		staleAfter = internalsettings.DefaultBTCRateStaleAfter
	}
	c := &Cache{staleAfter: staleAfter, nowFn: time.Now}
	c.current.Store(snapshot{})
	return c
}

// Price returns the cached rate and whether it is fresh enough to use.
func (c *Cache) Price() (float64, bool) {
	snap, _ := c.current.Load().(snapshot)
	if snap.price <= 0 || c.nowFn().UTC().Sub(snap.updatedAt) > c.staleAfter {
		return 0, false
	}
	return snap.price, true
}

// PriceOrDefault returns a usable rate: the cached one when fresh, otherwise
// the hardcoded fallback. Fallback use is counted and logged once per stale
// window.
func (c *Cache) PriceOrDefault() float64 {
	if price, ok := c.Price(); ok {
		return price
	}
	c.fallbacks.Add(1)
	now := c.nowFn().UTC()
	window := now.Truncate(c.staleAfter).Unix()
	if c.staleLogged.Swap(window) != window {
		log.WithFields(log.Fields{
			"fallback_price": pricing.DefaultBTCPriceUSD,
			"fallback_count": c.fallbacks.Load(),
		}).Warn("btc rate cache stale, using fallback price")
	}
	return pricing.DefaultBTCPriceUSD
}

// UpdatedAt returns the timestamp of the current snapshot.
func (c *Cache) UpdatedAt() time.Time {
	snap, _ := c.current.Load().(snapshot)
	return snap.updatedAt
}

// FallbackCount returns how many conversions used the fallback rate.
func (c *Cache) FallbackCount() int64 {
	return c.fallbacks.Load()
}

// Store replaces the snapshot. Non-positive prices are ignored.
func (c *Cache) Store(price float64, updatedAt time.Time) {
	if price <= 0 {
		return
	}
	c.current.Store(snapshot{price: price, updatedAt: updatedAt.UTC()})
}

// LoadFromDB seeds the cache from the persisted settings row, so a restart
// keeps the last known rate instead of reverting to the fallback.
func (c *Cache) LoadFromDB(conn *gorm.DB) error {
	price, ok, errPrice := internalsettings.GetFloat(conn, internalsettings.BTCPriceUSDKey)
	if errPrice != nil {
		return errPrice
	}
	if !ok || price <= 0 {
		return nil
	}
	updatedAt, _, errTime := internalsettings.GetTime(conn, internalsettings.BTCPriceUpdatedAtKey)
	if errTime != nil {
		return errTime
	}
	c.Store(price, updatedAt)
	return nil
}

// Persist writes the snapshot to the settings table.
func (c *Cache) Persist(conn *gorm.DB) error {
	snap, _ := c.current.Load().(snapshot)
	if snap.price <= 0 {
		return nil
	}
	if errSet := internalsettings.SetFloat(conn, internalsettings.BTCPriceUSDKey, snap.price); errSet != nil {
		return errSet
	}
	return internalsettings.SetTime(conn, internalsettings.BTCPriceUpdatedAtKey, snap.updatedAt)
}
