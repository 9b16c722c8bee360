package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/libernet/sofia-billing/internal/billing"
	"github.com/libernet/sofia-billing/internal/ledger"
	"github.com/libernet/sofia-billing/internal/pricing"
)

// UsageHandler charges completed provider calls against the ledger.
type UsageHandler struct {
	ledger *ledger.Ledger
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(l *ledger.Ledger) *UsageHandler {
	return &UsageHandler{ledger: l}
}

// usageRequest is the reported token consumption of one provider call.
type usageRequest struct {
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Record computes the real cost of the reported usage and debits it. An
// overdraw returns a structured 402 so the client can prompt a recharge with
// exact figures.
func (h *UsageHandler) Record(c *gin.Context) {
	var body usageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.InputTokens < 0 || body.OutputTokens < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token counts must be non-negative"})
		return
	}

	modelID := pricing.ModelID(body.Model)
	charge, errCost := billing.RealCost(modelID, body.InputTokens, body.OutputTokens)
	if errCost != nil {
		if errors.Is(errCost, pricing.ErrInvalidModel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model", "model": body.Model})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errCost.Error()})
		return
	}

	if charge == 0 {
		balance, errBalance := h.ledger.Balance(c.Request.Context(), getUserID(c))
		if errBalance != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read balance failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"charged": 0, "balance": balance})
		return
	}

	newBalance, errDebit := h.ledger.Debit(c.Request.Context(), getUserID(c), charge, ledger.DebitMeta{
		Model: string(modelID),
	})
	if errDebit != nil {
		var insufficient *ledger.InsufficientBalanceError
		if errors.As(errDebit, &insufficient) {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":     "insufficient balance",
				"balance":   insufficient.Balance,
				"required":  insufficient.Required,
				"shortfall": insufficient.Shortfall(),
			})
			return
		}
		if errors.Is(errDebit, ledger.ErrUnknownUser) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "charge failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"charged": charge,
		"balance": newBalance,
	})
}
