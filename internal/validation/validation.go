// Package validation provides input validation helpers for the API layer.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxDescriptionLength bounds free-text fields (dispute descriptions, evidence)
const MaxDescriptionLength = 10000

var (
	// idRegex matches prefixed record IDs, e.g. "bk_1a2b..." or "dsp_9f8e..."
	idRegex = regexp.MustCompile(`^[a-z]{2,4}_[a-f0-9]{16,32}$`)
	// currencyRegex matches lowercase ISO 4217 codes
	currencyRegex = regexp.MustCompile(`^[a-z]{3}$`)
)

// RequestSizeMiddleware caps request body size before handlers read it.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID reports whether id is a well-formed prefixed record ID.
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// IsValidCurrency reports whether code is a lowercase ISO 4217 code.
func IsValidCurrency(code string) bool {
	return currencyRegex.MatchString(code)
}

// SanitizeString trims whitespace, strips NUL bytes, and truncates.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError names the field that failed and why.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects per-field failures so a response can report all
// of them at once instead of one per round trip.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs each check and collects the failures.
func Validate(checks ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, check := range checks {
		if err := check(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required rejects empty or whitespace-only values.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// PositiveAmount checks that a minor-unit amount is positive
func PositiveAmount(field string, amount int64) func() *ValidationError {
	return func() *ValidationError {
		if amount <= 0 {
			return &ValidationError{Field: field, Message: "must be a positive amount in minor units"}
		}
		return nil
	}
}

// ValidCurrency checks if a field is a valid currency code
func ValidCurrency(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidCurrency(value) {
			return &ValidationError{Field: field, Message: "must be a lowercase ISO currency code"}
		}
		return nil
	}
}

// MaxLength rejects values longer than limit bytes.
func MaxLength(field, value string, limit int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > limit {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}
