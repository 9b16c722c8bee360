package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/libernet/sofia-billing/internal/ledger"
	"github.com/libernet/sofia-billing/internal/pricing"
)

// BalanceHandler serves balance and transaction history reads.
type BalanceHandler struct {
	ledger *ledger.Ledger
}

// NewBalanceHandler constructs a BalanceHandler.
func NewBalanceHandler(l *ledger.Ledger) *BalanceHandler {
	return &BalanceHandler{ledger: l}
}

// Balance returns the current token balance with display conversions.
func (h *BalanceHandler) Balance(c *gin.Context) {
	balance, errBalance := h.ledger.Balance(c.Request.Context(), getUserID(c))
	if errBalance != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read balance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":           balance,
		"balance_formatted": pricing.FormatTokens(balance),
		"balance_usd":       pricing.TokensToUSD(balance),
	})
}

// Transactions returns the user's ledger entries newest-first.
func (h *BalanceHandler) Transactions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	rows, errList := h.ledger.Transactions(c.Request.Context(), getUserID(c), limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}
