package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/libernet/sofia-billing/internal/ledger"
	"github.com/libernet/sofia-billing/internal/models"
	"github.com/libernet/sofia-billing/internal/pricing"
	"gorm.io/gorm"
)

// UserHandler serves admin user management.
type UserHandler struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, l *ledger.Ledger) *UserHandler {
	return &UserHandler{db: db, ledger: l}
}

// userView is one user row with balance conversions.
type userView struct {
	ID               uint64  `json:"id"`
	Username         string  `json:"username"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	TokenBalance     int64   `json:"token_balance"`
	BalanceUSD       float64 `json:"balance_usd"`
	BalanceFormatted string  `json:"balance_formatted"`
	Active           bool    `json:"active"`
	Disabled         bool    `json:"disabled"`
}

// List returns all users with their balances, newest first.
func (h *UserHandler) List(c *gin.Context) {
	var users []models.User
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("id DESC").
		Find(&users).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{
			ID:               u.ID,
			Username:         u.Username,
			Name:             u.Name,
			Email:            u.Email,
			TokenBalance:     u.TokenBalance,
			BalanceUSD:       pricing.TokensToUSD(u.TokenBalance),
			BalanceFormatted: pricing.FormatTokens(u.TokenBalance),
			Active:           u.Active,
			Disabled:         u.Disabled,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": views})
}

// Get returns one user with balance conversions.
func (h *UserHandler) Get(c *gin.Context) {
	userID, errParse := parseID(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	c.JSON(http.StatusOK, userView{
		ID:               user.ID,
		Username:         user.Username,
		Name:             user.Name,
		Email:            user.Email,
		TokenBalance:     user.TokenBalance,
		BalanceUSD:       pricing.TokensToUSD(user.TokenBalance),
		BalanceFormatted: pricing.FormatTokens(user.TokenBalance),
		Active:           user.Active,
		Disabled:         user.Disabled,
	})
}

// Transactions returns one user's ledger entries newest-first.
func (h *UserHandler) Transactions(c *gin.Context) {
	userID, errParse := parseID(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, errLimit := strconv.Atoi(raw)
		if errLimit != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	rows, errList := h.ledger.Transactions(c.Request.Context(), userID, limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

// Disable marks a user as disabled.
func (h *UserHandler) Disable(c *gin.Context) {
	h.setDisabled(c, true)
}

// Enable clears a user's disabled flag.
func (h *UserHandler) Enable(c *gin.Context) {
	h.setDisabled(c, false)
}

func (h *UserHandler) setDisabled(c *gin.Context, disabled bool) {
	userID, errParse := parseID(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", userID).
		Update("disabled", disabled)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": userID, "disabled": disabled})
}

// parseID parses a decimal route parameter into a user ID.
func parseID(raw string) (uint64, error) {
	return strconv.ParseUint(raw, 10, 64)
}
