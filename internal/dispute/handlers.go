package dispute

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jmcale/bookpay/internal/validation"
)

// Handler provides HTTP endpoints for the dispute workflow.
type Handler struct {
	service *Service
}

// NewHandler creates a new dispute handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up dispute routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/disputes", h.FileDispute)
	r.GET("/disputes/:id", h.GetStatus)
	r.GET("/disputes/:id/evidence", h.ListEvidence)
	r.POST("/disputes/:id/evidence", h.SubmitEvidence)
	r.POST("/disputes/:id/decision", h.SubmitDecision)
	r.GET("/bookings/:id/dispute", h.GetActiveByBooking)
}

// FileDispute handles POST /v1/disputes
func (h *Handler) FileDispute(c *gin.Context) {
	var req FileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidID(req.BookingID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid booking ID",
		})
		return
	}
	req.Description = validation.SanitizeString(req.Description, validation.MaxDescriptionLength)

	d, err := h.service.File(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispute": d})
}

// GetStatus handles GET /v1/disputes/:id
func (h *Handler) GetStatus(c *gin.Context) {
	report, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListEvidence handles GET /v1/disputes/:id/evidence
func (h *Handler) ListEvidence(c *gin.Context) {
	if _, err := h.service.Get(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	evidence, err := h.service.Evidence(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evidence": evidence})
}

// SubmitEvidence handles POST /v1/disputes/:id/evidence
func (h *Handler) SubmitEvidence(c *gin.Context) {
	var req EvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.Content = validation.SanitizeString(req.Content, validation.MaxDescriptionLength)

	d, err := h.service.SubmitEvidence(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// SubmitDecision handles POST /v1/disputes/:id/decision
func (h *Handler) SubmitDecision(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	d, err := h.service.SubmitManualDecision(c.Request.Context(), c.Param("id"), req.Outcome)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// GetActiveByBooking handles GET /v1/bookings/:id/dispute
func (h *Handler) GetActiveByBooking(c *gin.Context) {
	d, err := h.service.GetActiveByBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrDisputeNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrDisputeActive):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "dispute_already_active",
			"message": err.Error(),
		})
	case errors.Is(err, ErrBookingNotEligible):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "booking_not_eligible",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInvalidReason), errors.Is(err, ErrNotParty):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "dispute_operation_failed",
			"message": "Operation failed",
		})
	}
}
