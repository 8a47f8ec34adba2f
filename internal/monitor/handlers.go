package monitor

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chainfolio/chainfolio/internal/pagination"
	"github.com/chainfolio/chainfolio/internal/risk"
)

// Handler provides HTTP endpoints for transaction monitoring.
type Handler struct {
	service *Service
}

// NewHandler creates a new monitoring handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up monitoring routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/monitor", h.MonitorTransaction)
	r.GET("/monitor/transactions", h.ListTransactions)
	r.GET("/monitor/transactions/:id", h.GetTransaction)
	r.GET("/monitor/addresses/:address/transactions", h.TransactionsForAddress)

	r.POST("/monitor/ratings", h.SetRating)
	r.GET("/monitor/ratings", h.ListRatings)
	r.POST("/monitor/admin/transfer", h.TransferAdmin)
}

// MonitorRequest is the request body for POST /v1/monitor.
type MonitorRequest struct {
	Sender   string `json:"sender" binding:"required"`
	Receiver string `json:"receiver" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

// SetRatingRequest is the request body for POST /v1/monitor/ratings.
type SetRatingRequest struct {
	Address string `json:"address" binding:"required"`
	Score   *int   `json:"score" binding:"required"`
}

// TransferAdminRequest is the request body for POST /v1/monitor/admin/transfer.
type TransferAdminRequest struct {
	NewAdmin string `json:"newAdmin" binding:"required"`
}

// MonitorTransaction handles POST /v1/monitor
func (h *Handler) MonitorTransaction(c *gin.Context) {
	var req MonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	tx, err := h.service.Monitor(c.Request.Context(), req.Sender, req.Receiver, req.Amount)
	if err != nil {
		status := http.StatusInternalServerError
		code := "monitor_failed"
		switch {
		case errors.Is(err, ErrBadAddress):
			status = http.StatusBadRequest
			code = "invalid_address"
		case errors.Is(err, ErrInvalidAmount):
			status = http.StatusBadRequest
			code = "invalid_amount"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// GetTransaction handles GET /v1/monitor/transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id", "message": "id must be an integer"})
		return
	}

	tx, err := h.service.GetTransaction(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTxNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// ListTransactions handles GET /v1/monitor/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	page := pagination.FromQuery(c)

	txs, err := h.service.ListTransactions(c.Request.Context(), page.Start, page.Count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	total, err := h.service.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs), "total": total})
}

// TransactionsForAddress handles GET /v1/monitor/addresses/:address/transactions
func (h *Handler) TransactionsForAddress(c *gin.Context) {
	ids, err := h.service.TransactionsForAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactionIds": ids, "count": len(ids)})
}

// SetRating handles POST /v1/monitor/ratings
func (h *Handler) SetRating(c *gin.Context) {
	var req SetRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	caller := c.GetString("callerAddr")
	err := h.service.SetRating(c.Request.Context(), caller, req.Address, *req.Score)
	if err != nil {
		status := http.StatusInternalServerError
		code := "set_rating_failed"
		switch {
		case errors.Is(err, ErrNotAdmin):
			status = http.StatusForbidden
			code = "not_admin"
		case errors.Is(err, ErrBadAddress):
			status = http.StatusBadRequest
			code = "invalid_address"
		case errors.Is(err, risk.ErrInvalidRating):
			status = http.StatusBadRequest
			code = "invalid_rating"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"address": req.Address, "score": *req.Score})
}

// ListRatings handles GET /v1/monitor/ratings
func (h *Handler) ListRatings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	caller := c.GetString("callerAddr")
	ratings, err := h.service.ListRatings(c.Request.Context(), caller, limit)
	if err != nil {
		if errors.Is(err, ErrNotAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not_admin", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ratings": ratings, "count": len(ratings)})
}

// TransferAdmin handles POST /v1/monitor/admin/transfer
func (h *Handler) TransferAdmin(c *gin.Context) {
	var req TransferAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	caller := c.GetString("callerAddr")
	if err := h.service.TransferAdmin(caller, req.NewAdmin); err != nil {
		status := http.StatusInternalServerError
		code := "transfer_failed"
		switch {
		case errors.Is(err, ErrNotAdmin):
			status = http.StatusForbidden
			code = "not_admin"
		case errors.Is(err, ErrEmptyAddress), errors.Is(err, ErrBadAddress):
			status = http.StatusBadRequest
			code = "invalid_address"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"admin": h.service.Admin()})
}
