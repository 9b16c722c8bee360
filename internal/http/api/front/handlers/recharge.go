package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/libernet/sofia-billing/internal/btcrate"
	"github.com/libernet/sofia-billing/internal/ledger"
	"github.com/libernet/sofia-billing/internal/lightning"
	"github.com/libernet/sofia-billing/internal/models"
	"github.com/libernet/sofia-billing/internal/pricing"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RechargeHandler drives the Lightning recharge flow: quote a package,
// issue an invoice, and credit the ledger once the payment settles.
type RechargeHandler struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	ln     *lightning.Client
	rates  *btcrate.Cache
}

// NewRechargeHandler constructs a RechargeHandler.
func NewRechargeHandler(db *gorm.DB, l *ledger.Ledger, ln *lightning.Client, rates *btcrate.Cache) *RechargeHandler {
	return &RechargeHandler{db: db, ledger: l, ln: ln, rates: rates}
}

// invoiceRequest selects the package to pay for.
type invoiceRequest struct {
	Package   string  `json:"package"`
	CustomUSD float64 `json:"custom_usd"`
}

// CreateInvoice quotes the selected package at the current BTC/USD rate and
// creates a Lightning invoice for it. The quote is persisted so the credit
// on confirmation matches it exactly.
func (h *RechargeHandler) CreateInvoice(c *gin.Context) {
	var body invoiceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	pkg, errPkg := pricing.PackageByID(pricing.PackageID(body.Package))
	if errPkg != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid package", "package": body.Package})
		return
	}
	if pkg.Custom && body.CustomUSD < pkg.MinUSD {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   fmt.Sprintf("custom amount must be at least $%.2f", pkg.MinUSD),
			"min_usd": pkg.MinUSD,
		})
		return
	}

	quote := pricing.Quote(pkg, body.CustomUSD, h.rates.PriceOrDefault())
	memo := fmt.Sprintf("Sofia recharge: %s (%s tokens)", pkg.Name, pricing.FormatTokens(quote.Tokens))

	invoice, errInvoice := h.ln.CreateInvoice(c.Request.Context(), quote.Sats, memo)
	if errInvoice != nil {
		if errors.Is(errInvoice, lightning.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lightning payments unavailable"})
			return
		}
		log.WithError(errInvoice).Warn("recharge: create invoice failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "create invoice failed"})
		return
	}

	record := models.RechargeInvoice{
		UserID:      getUserID(c),
		PackageID:   string(pkg.ID),
		USDPrice:    quote.USDPrice,
		Tokens:      quote.Tokens,
		AmountSats:  quote.Sats,
		BTCPriceUSD: quote.BTCPriceUSD,
		PaymentHash: invoice.PaymentHash,
		Provider:    lightning.ProviderLNbits,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&record).Error; errCreate != nil {
		log.WithError(errCreate).Error("recharge: persist invoice failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persist invoice failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment_hash":    invoice.PaymentHash,
		"payment_request": invoice.PaymentRequest,
		"package":         pkg.ID,
		"usd_price":       quote.USDPrice,
		"tokens":          quote.Tokens,
		"sats":            quote.Sats,
		"btc_price_usd":   quote.BTCPriceUSD,
	})
}

// confirmRequest identifies the invoice being confirmed.
type confirmRequest struct {
	PaymentHash string `json:"payment_hash"`
}

// errInvoiceCredited marks an invoice another confirm already claimed.
var errInvoiceCredited = errors.New("invoice already credited")

// Confirm checks the invoice with the payment backend and credits the
// quoted tokens once it has settled. Calling it again for an already
// credited invoice returns the recorded outcome without a second credit.
func (h *RechargeHandler) Confirm(c *gin.Context) {
	var body confirmRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.PaymentHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_hash is required"})
		return
	}
	userID := getUserID(c)

	var record models.RechargeInvoice
	errFind := h.db.WithContext(c.Request.Context()).
		Where("payment_hash = ? AND user_id = ?", body.PaymentHash, userID).
		First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown invoice"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query invoice failed"})
		return
	}

	if record.CreditedAt != nil {
		balance, _ := h.ledger.Balance(c.Request.Context(), userID)
		c.JSON(http.StatusOK, gin.H{
			"paid":             true,
			"already_credited": true,
			"tokens":           record.Tokens,
			"balance":          balance,
		})
		return
	}

	status, errStatus := h.ln.CheckPayment(c.Request.Context(), body.PaymentHash)
	if errStatus != nil {
		log.WithError(errStatus).Warn("recharge: check payment failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "check payment failed"})
		return
	}
	if !status.Paid {
		c.JSON(http.StatusOK, gin.H{"paid": false})
		return
	}

	// The claim and the credit commit in one transaction: a storage failure
	// rolls both back, so the invoice stays claimable and a retry can
	// re-drive the confirm. Concurrent confirms cannot both pass the claim.
	now := time.Now().UTC()
	claimInvoice := func(tx *gorm.DB) error {
		claim := tx.Model(&models.RechargeInvoice{}).
			Where("id = ? AND credited_at IS NULL", record.ID).
			Updates(map[string]any{"credited_at": now, "updated_at": now})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return errInvoiceCredited
		}
		return nil
	}

	pkg, _ := pricing.PackageByID(pricing.PackageID(record.PackageID))
	meta := ledger.CreditMeta{
		Plan:        pkg.Name,
		PaymentHash: record.PaymentHash,
		AmountSats:  record.AmountSats,
		Provider:    record.Provider,
	}

	var newBalance int64
	errCredit := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errClaim := claimInvoice(tx); errClaim != nil {
			return errClaim
		}
		balance, errApply := h.ledger.CreditTx(tx, userID, record.Tokens, meta)
		if errApply != nil {
			return errApply
		}
		newBalance = balance
		return nil
	})
	if errors.Is(errCredit, errInvoiceCredited) {
		balance, _ := h.ledger.Balance(c.Request.Context(), userID)
		c.JSON(http.StatusOK, gin.H{
			"paid":             true,
			"already_credited": true,
			"tokens":           record.Tokens,
			"balance":          balance,
		})
		return
	}
	if errors.Is(errCredit, ledger.ErrUnknownUser) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	if errCredit != nil {
		log.WithError(errCredit).WithFields(log.Fields{
			"billing_anomaly": "credit_failed",
			"user_id":         userID,
			"payment_hash":    record.PaymentHash,
		}).Error("recharge: credit failed, parking in outbox")

		// Park the paid credit in the outbox, again together with the
		// claim. If this fails too nothing committed anywhere and the
		// client's retry starts over.
		errEnqueue := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			if errClaim := claimInvoice(tx); errClaim != nil {
				return errClaim
			}
			return h.ledger.EnqueueCreditTx(tx, userID, record.Tokens, meta, errCredit.Error())
		})
		if errors.Is(errEnqueue, errInvoiceCredited) {
			balance, _ := h.ledger.Balance(c.Request.Context(), userID)
			c.JSON(http.StatusOK, gin.H{
				"paid":             true,
				"already_credited": true,
				"tokens":           record.Tokens,
				"balance":          balance,
			})
			return
		}
		if errEnqueue != nil {
			log.WithError(errEnqueue).WithFields(log.Fields{
				"billing_anomaly": "credit_failed",
				"user_id":         userID,
				"payment_hash":    record.PaymentHash,
			}).Error("recharge: outbox enqueue failed, invoice left claimable")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "credit failed"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"paid":    true,
			"tokens":  record.Tokens,
			"pending": true,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paid":    true,
		"tokens":  record.Tokens,
		"balance": newBalance,
	})
}
