package investment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chainfolio/chainfolio/internal/access"
	"github.com/chainfolio/chainfolio/internal/pagination"
	"github.com/chainfolio/chainfolio/internal/treasury"
)

// Handler provides HTTP endpoints for strategies and investments.
type Handler struct {
	service *Service
}

// NewHandler creates a new investment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up strategy and investment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/strategies", h.CreateStrategy)
	r.GET("/strategies", h.ListStrategies)
	r.GET("/strategies/:id", h.GetStrategy)
	r.PUT("/strategies/:id", h.UpdateStrategy)
	r.POST("/strategies/:id/deactivate", h.DeactivateStrategy)

	r.POST("/investments", h.CreateInvestment)
	r.GET("/investments/:id", h.GetInvestment)
	r.PUT("/investments/:id/value", h.UpdateInvestmentValue)
	r.POST("/investments/:id/claim", h.ClaimYield)
	r.POST("/investments/:id/close", h.CloseInvestment)
	r.GET("/investments/:id/claims", h.ListYieldClaims)
	r.GET("/investors/:address/investments", h.InvestmentsForInvestor)
	r.GET("/investors/:address/claims", h.YieldClaimsForInvestor)

	r.GET("/platform/settings", h.GetSettings)
	r.PUT("/platform/fee", h.SetPlatformFee)
	r.PUT("/platform/fee-collector", h.SetFeeCollector)
	r.PUT("/platform/investments-enabled", h.SetInvestmentsEnabled)
}

// StrategyRequest is the request body for strategy create/update.
type StrategyRequest struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	Protocol       string `json:"protocol" binding:"required"`
	AssetID        string `json:"assetId" binding:"required"`
	ExpectedAPYBps int    `json:"expectedApyBps"`
	RiskLevel      int    `json:"riskLevel" binding:"required"`
	LockPeriodSecs int64  `json:"lockPeriodSecs"`
	MinInvestment  string `json:"minInvestment"`
	MaxInvestment  string `json:"maxInvestment"`
}

func (r *StrategyRequest) toStrategy() *Strategy {
	return &Strategy{
		Name:           r.Name,
		Description:    r.Description,
		Protocol:       r.Protocol,
		AssetID:        r.AssetID,
		ExpectedAPYBps: r.ExpectedAPYBps,
		RiskLevel:      r.RiskLevel,
		LockPeriodSecs: r.LockPeriodSecs,
		MinInvestment:  r.MinInvestment,
		MaxInvestment:  r.MaxInvestment,
	}
}

// CreateInvestmentRequest is the request body for POST /v1/investments.
type CreateInvestmentRequest struct {
	StrategyID int64  `json:"strategyId" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
}

// UpdateValueRequest is the keeper's value push body.
type UpdateValueRequest struct {
	Value string `json:"value" binding:"required"`
}

// SetFeeRequest is the request body for PUT /v1/platform/fee.
type SetFeeRequest struct {
	Bps *int `json:"bps" binding:"required"`
}

// SetCollectorRequest is the request body for PUT /v1/platform/fee-collector.
type SetCollectorRequest struct {
	Address string `json:"address" binding:"required"`
}

// SetEnabledRequest is the request body for PUT /v1/platform/investments-enabled.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// CreateStrategy handles POST /v1/strategies
func (h *Handler) CreateStrategy(c *gin.Context) {
	var req StrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	st, err := h.service.CreateStrategy(c.Request.Context(), c.GetString("callerAddr"), req.toStrategy())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"strategy": st})
}

// GetStrategy handles GET /v1/strategies/:id
func (h *Handler) GetStrategy(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	st, err := h.service.GetStrategy(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": st})
}

// ListStrategies handles GET /v1/strategies
func (h *Handler) ListStrategies(c *gin.Context) {
	page := pagination.FromQuery(c)
	activeOnly := c.DefaultQuery("active", "true") == "true"

	strategies, err := h.service.ListStrategies(c.Request.Context(), activeOnly, page.Start, page.Count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies, "count": len(strategies)})
}

// UpdateStrategy handles PUT /v1/strategies/:id
func (h *Handler) UpdateStrategy(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	var req StrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	st, err := h.service.UpdateStrategy(c.Request.Context(), c.GetString("callerAddr"), id, req.toStrategy())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": st})
}

// DeactivateStrategy handles POST /v1/strategies/:id/deactivate
func (h *Handler) DeactivateStrategy(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	if err := h.service.DeactivateStrategy(c.Request.Context(), c.GetString("callerAddr"), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "isActive": false})
}

// CreateInvestment handles POST /v1/investments
func (h *Handler) CreateInvestment(c *gin.Context) {
	var req CreateInvestmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	inv, err := h.service.CreateInvestment(c.Request.Context(), c.GetString("callerAddr"), req.StrategyID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"investment": inv})
}

// GetInvestment handles GET /v1/investments/:id
func (h *Handler) GetInvestment(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	inv, err := h.service.GetInvestment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investment": inv})
}

// UpdateInvestmentValue handles PUT /v1/investments/:id/value
func (h *Handler) UpdateInvestmentValue(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	var req UpdateValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	inv, err := h.service.UpdateInvestmentValue(c.Request.Context(), c.GetString("callerAddr"), id, req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investment": inv})
}

// ClaimYield handles POST /v1/investments/:id/claim
func (h *Handler) ClaimYield(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	claim, err := h.service.ClaimYield(c.Request.Context(), c.GetString("callerAddr"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"claim": claim})
}

// CloseInvestment handles POST /v1/investments/:id/close
func (h *Handler) CloseInvestment(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	inv, err := h.service.CloseInvestment(c.Request.Context(), c.GetString("callerAddr"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investment": inv})
}

// ListYieldClaims handles GET /v1/investments/:id/claims
func (h *Handler) ListYieldClaims(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	claims, err := h.service.YieldClaims(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claims": claims, "count": len(claims)})
}

// InvestmentsForInvestor handles GET /v1/investors/:address/investments
func (h *Handler) InvestmentsForInvestor(c *gin.Context) {
	ids, err := h.service.InvestmentsForInvestor(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investmentIds": ids, "count": len(ids)})
}

// YieldClaimsForInvestor handles GET /v1/investors/:address/claims
func (h *Handler) YieldClaimsForInvestor(c *gin.Context) {
	ids, err := h.service.YieldClaimsForInvestor(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimIds": ids, "count": len(ids)})
}

// GetSettings handles GET /v1/platform/settings
func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"settings": h.service.PlatformSettings()})
}

// SetPlatformFee handles PUT /v1/platform/fee
func (h *Handler) SetPlatformFee(c *gin.Context) {
	var req SetFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	if err := h.service.SetPlatformFee(c.GetString("callerAddr"), *req.Bps); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": h.service.PlatformSettings()})
}

// SetFeeCollector handles PUT /v1/platform/fee-collector
func (h *Handler) SetFeeCollector(c *gin.Context) {
	var req SetCollectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	if err := h.service.SetFeeCollector(c.GetString("callerAddr"), req.Address); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": h.service.PlatformSettings()})
}

// SetInvestmentsEnabled handles PUT /v1/platform/investments-enabled
func (h *Handler) SetInvestmentsEnabled(c *gin.Context) {
	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	if err := h.service.SetInvestmentsEnabled(c.GetString("callerAddr"), *req.Enabled); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": h.service.PlatformSettings()})
}

func entityID(c *gin.Context) (int64, bool) {
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
	case errors.Is(err, ErrStrategyNotFound), errors.Is(err, ErrInvestmentNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrNotInvestor), errors.Is(err, access.ErrNotAdmin), errors.Is(err, access.ErrNotKeeper):
		status = http.StatusForbidden
		code = "not_authorized"
	case errors.Is(err, ErrStrategyInactive), errors.Is(err, ErrInvestmentClosed):
		status = http.StatusConflict
		code = "invalid_state"
	case errors.Is(err, ErrStillLocked):
		status = http.StatusConflict
		code = "still_locked"
	case errors.Is(err, ErrNoYield):
		status = http.StatusConflict
		code = "no_yield_available"
	case errors.Is(err, ErrInvestmentsDisabled):
		status = http.StatusForbidden
		code = "investments_disabled"
	case errors.Is(err, ErrAmountOutOfBounds):
		status = http.StatusUnprocessableEntity
		code = "amount_out_of_bounds"
	case errors.Is(err, treasury.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
		code = "insufficient_balance"
	case errors.Is(err, ErrInvalidRiskLevel), errors.Is(err, ErrInvalidBounds), errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrFeeTooHigh), errors.Is(err, ErrBadAddress):
		status = http.StatusBadRequest
		code = "validation_failed"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
