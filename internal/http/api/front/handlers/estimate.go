package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/libernet/sofia-billing/internal/billing"
	"github.com/libernet/sofia-billing/internal/ledger"
	"github.com/libernet/sofia-billing/internal/pricing"
)

// EstimateHandler serves pre-flight cost checks.
type EstimateHandler struct {
	ledger *ledger.Ledger
}

// NewEstimateHandler constructs an EstimateHandler.
func NewEstimateHandler(l *ledger.Ledger) *EstimateHandler {
	return &EstimateHandler{ledger: l}
}

// Estimate reports whether the user's balance covers one message on the
// requested model, with the estimated cost and shortage figures the UI
// needs to prompt a recharge.
func (h *EstimateHandler) Estimate(c *gin.Context) {
	modelID := pricing.ModelID(c.Query("model"))
	estimated, errEstimate := billing.EstimateCost(modelID)
	if errEstimate != nil {
		if errors.Is(errEstimate, pricing.ErrInvalidModel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model", "model": string(modelID)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "estimate failed"})
		return
	}

	balance, errBalance := h.ledger.Balance(c.Request.Context(), getUserID(c))
	if errBalance != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read balance failed"})
		return
	}

	sufficient, errSufficient := billing.CheckSufficientBalance(balance, modelID)
	if errSufficient != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "estimate failed"})
		return
	}
	shortage, errShortage := billing.Shortage(balance, modelID)
	if errShortage != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "estimate failed"})
		return
	}
	remaining, errRemaining := billing.MessagesRemaining(balance, modelID)
	if errRemaining != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "estimate failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"model":              modelID,
		"estimated_cost":     estimated,
		"balance":            balance,
		"sufficient":         sufficient,
		"shortage":           shortage,
		"messages_remaining": remaining,
	})
}
