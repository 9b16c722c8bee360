package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/libernet/sofia-billing/internal/btcrate"
	"github.com/libernet/sofia-billing/internal/ledger"
	"github.com/libernet/sofia-billing/internal/pricing"
)

// BillingHandler serves admin billing operations: manual balance
// adjustments, the pending-credit outbox, and BTC rate status.
type BillingHandler struct {
	ledger *ledger.Ledger
	rates  *btcrate.Cache
}

// NewBillingHandler constructs a BillingHandler.
func NewBillingHandler(l *ledger.Ledger, rates *btcrate.Cache) *BillingHandler {
	return &BillingHandler{ledger: l, rates: rates}
}

// adjustRequest defines a manual balance adjustment.
type adjustRequest struct {
	Tokens      int64  `json:"tokens"`
	Description string `json:"description"`
}

// providerAdminAdjust marks manual adjustments in transaction records.
const providerAdminAdjust = "admin_adjust"

// Credit manually adds tokens to a user through the ledger, so the
// adjustment appears in the transaction log like any recharge.
func (h *BillingHandler) Credit(c *gin.Context) {
	userID, errParse := parseID(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var body adjustRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	description := body.Description
	if description == "" {
		description = "Manual adjustment"
	}
	newBalance, errCredit := h.ledger.Credit(c.Request.Context(), userID, body.Tokens, ledger.CreditMeta{
		Plan:        "manual",
		Provider:    providerAdminAdjust,
		Description: description,
	})
	if errCredit != nil {
		if errors.Is(errCredit, ledger.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tokens must be positive"})
			return
		}
		if errors.Is(errCredit, ledger.ErrUnknownUser) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credit failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": userID, "balance": newBalance})
}

// PendingCredits lists unapplied outbox rows, oldest first.
func (h *BillingHandler) PendingCredits(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, errLimit := strconv.Atoi(raw)
		if errLimit != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	rows, errList := h.ledger.PendingCredits(c.Request.Context(), limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list pending credits failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending_credits": rows})
}

// BTCRate reports the cached BTC/USD rate and its freshness.
func (h *BillingHandler) BTCRate(c *gin.Context) {
	price, fresh := h.rates.Price()
	if !fresh {
		price = pricing.DefaultBTCPriceUSD
	}
	c.JSON(http.StatusOK, gin.H{
		"btc_price_usd":  price,
		"fresh":          fresh,
		"updated_at":     h.rates.UpdatedAt(),
		"fallback_count": h.rates.FallbackCount(),
	})
}
