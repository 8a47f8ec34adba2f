package portfolio

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chainfolio/chainfolio/internal/access"
	"github.com/chainfolio/chainfolio/internal/pagination"
)

// Handler provides HTTP endpoints for portfolio management.
type Handler struct {
	service *Service
}

// NewHandler creates a new portfolio handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up portfolio routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/portfolios", h.CreatePortfolio)
	r.GET("/portfolios", h.ListPortfolios)
	r.GET("/portfolios/:id", h.GetPortfolio)
	r.PUT("/portfolios/:id", h.UpdatePortfolio)
	r.POST("/portfolios/:id/deactivate", h.DeactivatePortfolio)
	r.POST("/portfolios/:id/reactivate", h.ReactivatePortfolio)

	r.GET("/portfolios/:id/assets", h.ListAssets)
	r.POST("/portfolios/:id/assets", h.AddAsset)
	r.DELETE("/portfolios/:id/assets/:tokenId", h.RemoveAsset)
	r.PUT("/portfolios/:id/assets/:tokenId/target", h.UpdateTargetAllocation)
	r.PUT("/portfolios/:id/allocations/current", h.UpdateCurrentAllocation)

	r.POST("/portfolios/:id/rebalances", h.RecordRebalance)
	r.POST("/portfolios/:id/transactions", h.RecordTransaction)
	r.GET("/portfolios/:id/transactions", h.ListTransactions)

	r.GET("/portfolios/:id/managers", h.ListManagers)
	r.POST("/portfolios/:id/managers", h.AddManager)
	r.DELETE("/portfolios/:id/managers/:address", h.RemoveManager)

	r.GET("/owners/:address/portfolios", h.PortfoliosForOwner)
}

// CreatePortfolioRequest is the request body for POST /v1/portfolios.
type CreatePortfolioRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// UpdatePortfolioRequest is the request body for PUT /v1/portfolios/:id.
type UpdatePortfolioRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// AddAssetRequest is the request body for POST /v1/portfolios/:id/assets.
type AddAssetRequest struct {
	TokenID   string `json:"tokenId" binding:"required"`
	Symbol    string `json:"symbol" binding:"required"`
	TargetBps *int   `json:"targetBps" binding:"required"`
}

// UpdateTargetRequest is the request body for the target-allocation update.
type UpdateTargetRequest struct {
	TargetBps *int `json:"targetBps" binding:"required"`
}

// UpdateCurrentRequest is the request body for the keeper allocation push.
type UpdateCurrentRequest struct {
	TokenIDs   []string `json:"tokenIds" binding:"required"`
	CurrentBps []int    `json:"currentBps" binding:"required"`
}

// RecordRebalanceRequest is the request body for POST rebalances.
type RecordRebalanceRequest struct {
	TokenIDs []string `json:"tokenIds" binding:"required"`
	Symbols  []string `json:"symbols" binding:"required"`
	Amounts  []string `json:"amounts" binding:"required"`
	Prices   []string `json:"prices" binding:"required"`
	Sides    []string `json:"sides" binding:"required"`
}

// RecordTransactionRequest is the request body for POST transactions.
type RecordTransactionRequest struct {
	TokenID string `json:"tokenId" binding:"required"`
	Symbol  string `json:"symbol" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Price   string `json:"price" binding:"required"`
	Side    string `json:"side" binding:"required"`
	Kind    string `json:"kind" binding:"required"`
}

// ManagerRequest is the request body for POST managers.
type ManagerRequest struct {
	Address string `json:"address" binding:"required"`
}

// CreatePortfolio handles POST /v1/portfolios
func (h *Handler) CreatePortfolio(c *gin.Context) {
	var req CreatePortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	p, err := h.service.CreatePortfolio(c.Request.Context(), c.GetString("callerAddr"), req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"portfolio": p})
}

// GetPortfolio handles GET /v1/portfolios/:id
func (h *Handler) GetPortfolio(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}

	p, err := h.service.GetPortfolio(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolio": p})
}

// ListPortfolios handles GET /v1/portfolios
func (h *Handler) ListPortfolios(c *gin.Context) {
	page := pagination.FromQuery(c)

	portfolios, err := h.service.ListPortfolios(c.Request.Context(), page.Start, page.Count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolios": portfolios, "count": len(portfolios)})
}

// PortfoliosForOwner handles GET /v1/owners/:address/portfolios
func (h *Handler) PortfoliosForOwner(c *gin.Context) {
	portfolios, err := h.service.PortfoliosForOwner(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolios": portfolios, "count": len(portfolios)})
}

// UpdatePortfolio handles PUT /v1/portfolios/:id
func (h *Handler) UpdatePortfolio(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	var req UpdatePortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	p, err := h.service.UpdatePortfolio(c.Request.Context(), c.GetString("callerAddr"), id, req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolio": p})
}

// DeactivatePortfolio handles POST /v1/portfolios/:id/deactivate
func (h *Handler) DeactivatePortfolio(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	if err := h.service.DeactivatePortfolio(c.Request.Context(), c.GetString("callerAddr"), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "isActive": false})
}

// ReactivatePortfolio handles POST /v1/portfolios/:id/reactivate
func (h *Handler) ReactivatePortfolio(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	if err := h.service.ReactivatePortfolio(c.Request.Context(), c.GetString("callerAddr"), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "isActive": true})
}

// AddAsset handles POST /v1/portfolios/:id/assets
func (h *Handler) AddAsset(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	var req AddAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	a, err := h.service.AddAsset(c.Request.Context(), c.GetString("callerAddr"), id, req.TokenID, req.Symbol, *req.TargetBps)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"asset": a})
}

// RemoveAsset handles DELETE /v1/portfolios/:id/assets/:tokenId
func (h *Handler) RemoveAsset(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	if err := h.service.RemoveAsset(c.Request.Context(), c.GetString("callerAddr"), id, c.Param("tokenId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "tokenId": c.Param("tokenId"), "removed": true})
}

// UpdateTargetAllocation handles PUT /v1/portfolios/:id/assets/:tokenId/target
func (h *Handler) UpdateTargetAllocation(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	var req UpdateTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	a, err := h.service.UpdateTargetAllocation(c.Request.Context(), c.GetString("callerAddr"), id, c.Param("tokenId"), *req.TargetBps)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": a})
}

// UpdateCurrentAllocation handles PUT /v1/portfolios/:id/allocations/current
func (h *Handler) UpdateCurrentAllocation(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	var req UpdateCurrentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	err := h.service.UpdateCurrentAllocation(c.Request.Context(), c.GetString("callerAddr"), id, req.TokenIDs, req.CurrentBps)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "updated": len(req.TokenIDs)})
}

// ListAssets handles GET /v1/portfolios/:id/assets
func (h *Handler) ListAssets(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	assets, err := h.service.Assets(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets, "count": len(assets)})
}

// RecordRebalance handles POST /v1/portfolios/:id/rebalances
func (h *Handler) RecordRebalance(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	var req RecordRebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	err := h.service.RecordRebalance(c.Request.Context(), c.GetString("callerAddr"), id,
		req.TokenIDs, req.Symbols, req.Amounts, req.Prices, req.Sides)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "legs": len(req.TokenIDs)})
}

// RecordTransaction handles POST /v1/portfolios/:id/transactions
func (h *Handler) RecordTransaction(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	var req RecordTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	tx, err := h.service.RecordTransaction(c.Request.Context(), c.GetString("callerAddr"), id,
		req.TokenID, req.Symbol, req.Amount, req.Price, req.Side, req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// ListTransactions handles GET /v1/portfolios/:id/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	page := pagination.FromQuery(c)

	txs, err := h.service.Transactions(c.Request.Context(), id, page.Start, page.Count)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := h.service.CountTransactions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs), "total": total})
}

// ListManagers handles GET /v1/portfolios/:id/managers
func (h *Handler) ListManagers(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	managers, err := h.service.Managers(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"managers": managers, "count": len(managers)})
}

// AddManager handles POST /v1/portfolios/:id/managers
func (h *Handler) AddManager(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	var req ManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	if err := h.service.AddManager(c.Request.Context(), c.GetString("callerAddr"), id, req.Address); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "manager": req.Address})
}

// RemoveManager handles DELETE /v1/portfolios/:id/managers/:address
func (h *Handler) RemoveManager(c *gin.Context) {
	id, ok := portfolioID(c)
	if !ok {
		return
	}
	if err := h.service.RemoveManager(c.Request.Context(), c.GetString("callerAddr"), id, c.Param("address")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "manager": c.Param("address"), "removed": true})
}

func portfolioID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id", "message": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrPortfolioNotFound), errors.Is(err, ErrAssetNotFound), errors.Is(err, ErrManagerNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrNotOwner), errors.Is(err, access.ErrNotKeeper):
		status = http.StatusForbidden
		code = "not_authorized"
	case errors.Is(err, ErrNotActive), errors.Is(err, ErrAlreadyActive), errors.Is(err, ErrAlreadyInactive):
		status = http.StatusConflict
		code = "invalid_state"
	case errors.Is(err, ErrAllocationExceeded):
		status = http.StatusUnprocessableEntity
		code = "allocation_exceeded"
	case errors.Is(err, ErrDuplicateAsset), errors.Is(err, ErrManagerExists):
		status = http.StatusConflict
		code = "already_exists"
	case errors.Is(err, ErrInvalidBps), errors.Is(err, ErrInvalidName), errors.Is(err, ErrBadAddress),
		errors.Is(err, ErrLengthMismatch), errors.Is(err, ErrInvalidTx):
		status = http.StatusBadRequest
		code = "validation_failed"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
