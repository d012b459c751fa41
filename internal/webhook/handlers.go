package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jmcale/bookpay/internal/logging"
	"github.com/jmcale/bookpay/internal/validation"
)

// Handler receives gateway webhook deliveries over HTTP.
type Handler struct {
	processor *Processor
}

// NewHandler creates a webhook handler.
func NewHandler(processor *Processor) *Handler {
	return &Handler{processor: processor}
}

// RegisterRoutes sets up the webhook ingress route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/stripe", h.Receive)
}

// Receive handles POST /v1/webhooks/stripe
func (h *Handler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, validation.MaxRequestSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Could not read request body",
		})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := h.processor.Process(c.Request.Context(), payload, signature); err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			logging.L(c.Request.Context()).Warn("rejected webhook with bad signature",
				"remoteAddr", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_signature",
				"message": "Webhook signature verification failed",
			})
			return
		}
		// Non-2xx makes the gateway redeliver; dedup makes that safe.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "processing_failed",
			"message": "Event could not be processed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
