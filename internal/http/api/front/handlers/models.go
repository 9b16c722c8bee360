package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/libernet/sofia-billing/internal/billing"
	"github.com/libernet/sofia-billing/internal/ledger"
	"github.com/libernet/sofia-billing/internal/pricing"
)

// ModelsHandler serves the model catalog with per-message pricing.
type ModelsHandler struct {
	ledger *ledger.Ledger
}

// NewModelsHandler constructs a ModelsHandler.
func NewModelsHandler(l *ledger.Ledger) *ModelsHandler {
	return &ModelsHandler{ledger: l}
}

// modelView is one catalog entry with its estimated per-message cost.
type modelView struct {
	ID                pricing.ModelID `json:"id"`
	Name              string          `json:"name"`
	DisplayName       string          `json:"display_name"`
	Description       string          `json:"description"`
	Icon              string          `json:"icon"`
	EstimatedCost     int64           `json:"estimated_cost_tokens"`
	EstimatedCostUSD  float64         `json:"estimated_cost_usd"`
	MessagesRemaining int64           `json:"messages_remaining"`
	InternetSurcharge bool            `json:"internet_surcharge"`
	AvgTokensPerMsg   int64           `json:"avg_tokens_per_message"`
}

// List returns every supported model with pricing and, for the current
// balance, how many messages remain on each tier.
func (h *ModelsHandler) List(c *gin.Context) {
	balance, errBalance := h.ledger.Balance(c.Request.Context(), getUserID(c))
	if errBalance != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read balance failed"})
		return
	}

	catalog := pricing.Models()
	views := make([]modelView, 0, len(catalog))
	for _, m := range catalog {
		estimated, errEstimate := billing.EstimateCost(m.ID)
		if errEstimate != nil {
			continue
		}
		remaining := int64(0)
		if estimated > 0 {
			remaining = balance / estimated
		}
		views = append(views, modelView{
			ID:                m.ID,
			Name:              m.Name,
			DisplayName:       m.DisplayName,
			Description:       m.Description,
			Icon:              m.Icon,
			EstimatedCost:     estimated,
			EstimatedCostUSD:  pricing.TokensToUSD(estimated),
			MessagesRemaining: remaining,
			InternetSurcharge: m.HasInternetSurcharge,
			AvgTokensPerMsg:   m.AvgTokensPerMessage,
		})
	}

	c.JSON(http.StatusOK, gin.H{"models": views, "balance": balance})
}
