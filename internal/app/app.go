// Package app boots the billing service: configuration, database, the
// background rate refresher and credit outbox, and the HTTP API.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/libernet/sofia-billing/internal/btcrate"
	"github.com/libernet/sofia-billing/internal/config"
	"github.com/libernet/sofia-billing/internal/db"
	"github.com/libernet/sofia-billing/internal/http/api/admin"
	"github.com/libernet/sofia-billing/internal/http/api/front"
	"github.com/libernet/sofia-billing/internal/ledger"
	"github.com/libernet/sofia-billing/internal/lightning"
	"github.com/libernet/sofia-billing/internal/ratelimit"
	internalsettings "github.com/libernet/sofia-billing/internal/settings"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the billing server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	svcCfg, errSvc := config.LoadServiceConfig(configPath)
	if errSvc != nil {
		return errSvc
	}
	setupLogging(svcCfg.Log)

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	var initState atomic.Bool
	initState.Store(initialized)

	tokenLedger := ledger.New(conn)

	rates := btcrate.NewCache(svcCfg.BTCRate.StaleAfter)
	if errLoad := rates.LoadFromDB(conn); errLoad != nil {
		log.WithError(errLoad).Warn("load persisted btc rate failed")
	}
	refresher := btcrate.NewRefresher(rates, conn, nil, svcCfg.BTCRate.RefreshInterval)
	go refresher.Run(ctx)

	outbox := ledger.NewOutbox(tokenLedger, internalsettings.DefaultOutboxRetryInterval)
	go outbox.Run(ctx)

	lnClient := lightning.NewClient(svcCfg.LNbits.Endpoint, svcCfg.LNbits.InvoiceKey, nil)
	if !lnClient.Configured() {
		log.Warn("lnbits not configured, recharge invoices disabled")
	}

	limiter := ratelimit.NewManager(svcCfg.Redis)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	registerInitRoutes(engine, conn, dsn, &initState)
	admin.RegisterAdminRoutes(engine, conn, tokenLedger, rates, svcCfg.JWT)
	front.RegisterFrontRoutes(engine, front.Deps{
		DB:        conn,
		Ledger:    tokenLedger,
		Lightning: lnClient,
		Rates:     rates,
		Limiter:   limiter,
		JWT:       svcCfg.JWT,
		RateLimit: svcCfg.RateLimit,
	})

	if defaultPort <= 0 {
		defaultPort = 8318
	}
	addr := fmt.Sprintf(":%d", defaultPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting billing server on %s with config=%s", addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && errListen != http.ErrServerClosed {
		return errListen
	}
	return nil
}
