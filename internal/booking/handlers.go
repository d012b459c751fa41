package booking

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jmcale/bookpay/internal/idgen"
	"github.com/jmcale/bookpay/internal/validation"
)

// Handler provides HTTP endpoints for booking records.
type Handler struct {
	store Store
}

// NewHandler creates a new booking handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up booking routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/bookings", h.CreateBooking)
	r.GET("/bookings/:id", h.GetBooking)
	r.GET("/customers/:id/bookings", h.ListByCustomer)
	r.GET("/providers/:id/bookings", h.ListByProvider)
}

// CreateRequest contains the parameters for creating a booking.
type CreateRequest struct {
	CustomerID string    `json:"customerId" binding:"required"`
	ProviderID string    `json:"providerId" binding:"required"`
	ServiceID  string    `json:"serviceId"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
	Amount     int64     `json:"amount" binding:"required"`
	Currency   string    `json:"currency" binding:"required"`
}

// CreateBooking handles POST /v1/bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.PositiveAmount("amount", req.Amount),
		validation.ValidCurrency("currency", req.Currency),
		validation.MaxLength("serviceId", req.ServiceID, 64),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	if req.CustomerID == req.ProviderID {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Customer and provider cannot be the same party",
		})
		return
	}

	now := time.Now()
	b := &Booking{
		ID:         idgen.WithPrefix("bkg_"),
		CustomerID: req.CustomerID,
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		StartsAt:   req.StartsAt,
		EndsAt:     req.EndsAt,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.store.Create(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "booking_failed",
			"message": "Failed to create booking",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"booking": b})
}

// GetBooking handles GET /v1/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	b, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Booking not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": "Failed to load booking",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// ListByCustomer handles GET /v1/customers/:id/bookings
func (h *Handler) ListByCustomer(c *gin.Context) {
	h.list(c, func(limit int) ([]*Booking, error) {
		return h.store.ListByCustomer(c.Request.Context(), c.Param("id"), limit)
	})
}

// ListByProvider handles GET /v1/providers/:id/bookings
func (h *Handler) ListByProvider(c *gin.Context) {
	h.list(c, func(limit int) ([]*Booking, error) {
		return h.store.ListByProvider(c.Request.Context(), c.Param("id"), limit)
	})
}

func (h *Handler) list(c *gin.Context, fetch func(limit int) ([]*Booking, error)) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	bookings, err := fetch(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": "Failed to list bookings",
		})
		return
	}
	if bookings == nil {
		bookings = []*Booking{}
	}
	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}
