package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/libernet/sofia-billing/internal/models"
	"github.com/libernet/sofia-billing/internal/pricing"
	internalsettings "github.com/libernet/sofia-billing/internal/settings"
	"gorm.io/gorm"
)

// Migrate applies the schema and seeds default settings.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.User{},
		&models.TokenTransaction{},
		&models.PendingCredit{},
		&models.RechargeInvoice{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSeed := ensureBTCRateSetting(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// ensureBTCRateSetting seeds the BTC/USD rate cache row so conversions have
// a persisted starting point before the first refresh succeeds.
func ensureBTCRateSetting(conn *gorm.DB) error {
	var existing models.Setting
	errFind := conn.Where("key = ?", internalsettings.BTCPriceUSDKey).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: read btc rate setting: %w", errFind)
	}

	if errSet := internalsettings.SetFloat(conn, internalsettings.BTCPriceUSDKey, pricing.DefaultBTCPriceUSD); errSet != nil {
		return fmt.Errorf("db: seed btc rate setting: %w", errSet)
	}
	if errSet := internalsettings.SetTime(conn, internalsettings.BTCPriceUpdatedAtKey, time.Time{}); errSet != nil {
		return fmt.Errorf("db: seed btc rate timestamp: %w", errSet)
	}
	return nil
}
