package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

// handleServiceError maps service-level sentinel errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var message string

	switch {
	case errors.Is(err, models.ErrInsufficientFunds):
		statusCode = http.StatusPaymentRequired
		message = "Not enough coins for this story"
	case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, models.ErrInvalidCredentials):
		statusCode = http.StatusUnauthorized
		message = "Invalid email or password"
	case errors.Is(err, models.ErrEmailAlreadyExists):
		statusCode = http.StatusConflict
		message = "Email already in use"
	case errors.Is(err, models.ErrNotAnonymous):
		statusCode = http.StatusConflict
		message = "Account is already registered"
	case errors.Is(err, models.ErrReferralCodeTaken):
		statusCode = http.StatusConflict
		message = "Referral code already in use"
	case errors.Is(err, models.ErrUserNotFound):
		statusCode = http.StatusNotFound
		message = "User not found"
	case errors.Is(err, models.ErrStoryNotFound):
		statusCode = http.StatusNotFound
		message = "Story not found"
	case errors.Is(err, models.ErrUserInactive):
		statusCode = http.StatusForbidden
		message = "Account is deactivated"
	case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrTokenExpired), errors.Is(err, models.ErrTokenNotFound):
		statusCode = http.StatusUnauthorized
		message = "Session is invalid or expired"
	case errors.Is(err, models.ErrTextGenerationFailed):
		statusCode = http.StatusBadGateway
		message = "Story generation failed, coins were refunded"
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		message = "An unexpected internal error occurred"
	}

	c.AbortWithStatusJSON(statusCode, errorResponse{Error: message})
}
