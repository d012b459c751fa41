package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jmcale/bookpay/internal/booking"
	"github.com/jmcale/bookpay/internal/gateway"
	"github.com/jmcale/bookpay/internal/validation"
)

// Handler provides HTTP endpoints for escrow operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/bookings/:id/authorize", h.Authorize)
	r.POST("/bookings/:id/release", h.Release)
	r.POST("/bookings/:id/refund", h.Refund)
	r.GET("/bookings/:id/escrow", h.GetSummary)
}

// Authorize handles POST /v1/bookings/:id/authorize
func (h *Handler) Authorize(c *gin.Context) {
	bookingID := c.Param("id")
	if !validation.IsValidID(bookingID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid booking ID",
		})
		return
	}

	// Body is optional; capture mode defaults to manual.
	var req AuthorizeRequest
	_ = c.ShouldBindJSON(&req)
	req.BookingID = bookingID
	if req.CaptureMode != "" &&
		req.CaptureMode != gateway.CaptureManual && req.CaptureMode != gateway.CaptureAutomatic {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Capture mode must be manual or automatic",
		})
		return
	}

	account, err := h.service.Authorize(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "authorize_failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"escrow": account})
}

// Release handles POST /v1/bookings/:id/release
func (h *Handler) Release(c *gin.Context) {
	account, err := h.service.Release(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "release_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": account})
}

// Refund handles POST /v1/bookings/:id/refund
func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	account, err := h.service.Refund(c.Request.Context(), c.Param("id"), req.Amount, req.Reason)
	if err != nil {
		respondError(c, err, "refund_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": account})
}

// GetSummary handles GET /v1/bookings/:id/escrow
func (h *Handler) GetSummary(c *gin.Context) {
	account, settled, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "escrow_lookup_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"escrow":       account,
		"settledTotal": settled,
	})
}

func respondError(c *gin.Context, err error, code string) {
	switch {
	case errors.Is(err, ErrEscrowNotFound), errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInvalidState), errors.Is(err, booking.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": err.Error(),
		})
	case errors.Is(err, ErrOverRelease):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "over_release",
			"message": err.Error(),
		})
	case errors.Is(err, gateway.ErrChargeDeclined):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "charge_declined",
			"message": err.Error(),
		})
	case errors.Is(err, ErrPaymentFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "payment_failed",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   code,
			"message": "Operation failed",
		})
	}
}
