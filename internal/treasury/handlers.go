package treasury

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainfolio/chainfolio/internal/access"
	"github.com/chainfolio/chainfolio/internal/pagination"
)

// Handler provides HTTP endpoints for treasury balances.
type Handler struct {
	treasury *Treasury
	guard    *access.Guard
}

// NewHandler creates a new treasury handler.
func NewHandler(treasury *Treasury, guard *access.Guard) *Handler {
	return &Handler{treasury: treasury, guard: guard}
}

// RegisterRoutes sets up treasury routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/treasury/:address/balance", h.GetBalance)
	r.GET("/treasury/:address/history", h.GetHistory)
	r.POST("/treasury/:address/deposits", h.RecordDeposit)
	r.POST("/treasury/:address/reconcile", h.Reconcile)
}

// DepositRequest is the request body for POST /v1/treasury/:address/deposits.
type DepositRequest struct {
	Amount    string `json:"amount" binding:"required"`
	Reference string `json:"reference"`
}

// RecordDeposit handles POST /v1/treasury/:address/deposits (admin only).
// In production this is called by the deposit indexer when funds arrive
// on-chain; it is the only way an investor balance comes into existence.
func (h *Handler) RecordDeposit(c *gin.Context) {
	if err := h.guard.RequireAdmin(c.GetString("callerAddr")); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not_admin", "message": err.Error()})
		return
	}

	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	reference := req.Reference
	if reference == "" {
		reference = "deposit"
	}

	address := c.Param("address")
	if err := h.treasury.Credit(c.Request.Context(), address, req.Amount, reference); err != nil {
		switch {
		case errors.Is(err, ErrBadAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": err.Error()})
		case errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	bal, err := h.treasury.Balance(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"balance": bal})
}

// GetBalance handles GET /v1/treasury/:address/balance
func (h *Handler) GetBalance(c *gin.Context) {
	bal, err := h.treasury.Balance(c.Request.Context(), c.Param("address"))
	if err != nil {
		if errors.Is(err, ErrBadAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal})
}

// GetHistory handles GET /v1/treasury/:address/history
func (h *Handler) GetHistory(c *gin.Context) {
	page := pagination.FromQuery(c)

	entries, err := h.treasury.History(c.Request.Context(), c.Param("address"), page.Start, page.Count)
	if err != nil {
		if errors.Is(err, ErrBadAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Reconcile handles POST /v1/treasury/:address/reconcile (admin only)
func (h *Handler) Reconcile(c *gin.Context) {
	if err := h.guard.RequireAdmin(c.GetString("callerAddr")); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not_admin", "message": err.Error()})
		return
	}

	result, err := h.treasury.Reconcile(c.Request.Context(), c.Param("address"))
	if err != nil {
		if errors.Is(err, ErrBadAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciliation": result})
}
