package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/libernet/sofia-billing/internal/btcrate"
	"github.com/libernet/sofia-billing/internal/pricing"
)

// PackagesHandler serves recharge package quotes.
type PackagesHandler struct {
	rates *btcrate.Cache
}

// NewPackagesHandler constructs a PackagesHandler.
func NewPackagesHandler(rates *btcrate.Cache) *PackagesHandler {
	return &PackagesHandler{rates: rates}
}

// packageView is one quoted recharge offering.
type packageView struct {
	ID               pricing.PackageID         `json:"id"`
	Name             string                    `json:"name"`
	Description      string                    `json:"description"`
	Popular          bool                      `json:"popular"`
	Custom           bool                      `json:"custom"`
	MinUSD           float64                   `json:"min_usd,omitempty"`
	MaxUSD           float64                   `json:"max_usd,omitempty"`
	USDPrice         float64                   `json:"usd_price"`
	Tokens           int64                     `json:"tokens"`
	TokensFormatted  string                    `json:"tokens_formatted"`
	Sats             int64                     `json:"sats"`
	MessagesEstimate map[pricing.ModelID]int64 `json:"messages_estimate"`
}

// List returns every recharge package quoted at the current BTC/USD rate.
// custom_usd prices the variable-amount package; it is clamped server-side.
func (h *PackagesHandler) List(c *gin.Context) {
	customUSD := 0.0
	if raw := c.Query("custom_usd"); raw != "" {
		parsed, errParse := strconv.ParseFloat(raw, 64)
		if errParse != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid custom_usd"})
			return
		}
		customUSD = parsed
	}

	btcPrice := h.rates.PriceOrDefault()
	views := make([]packageView, 0, len(pricing.Packages()))
	for _, p := range pricing.Packages() {
		quote := pricing.Quote(p, customUSD, btcPrice)
		views = append(views, packageView{
			ID:               p.ID,
			Name:             p.Name,
			Description:      p.Description,
			Popular:          p.Popular,
			Custom:           p.Custom,
			MinUSD:           p.MinUSD,
			MaxUSD:           p.MaxUSD,
			USDPrice:         quote.USDPrice,
			Tokens:           quote.Tokens,
			TokensFormatted:  pricing.FormatTokens(quote.Tokens),
			Sats:             quote.Sats,
			MessagesEstimate: quote.MessagesEstimate,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"packages":      views,
		"btc_price_usd": btcPrice,
	})
}
