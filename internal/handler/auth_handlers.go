package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// startAnonymous creates a new anonymous user with the starting balance and
// issues a session for it. Called by the client on first visit.
func (h *Handler) startAnonymous(c *gin.Context) {
	user, err := h.users.CreateAnonymous(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	tokens, err := h.tokens.IssueTokens(c.Request.Context(), user.ID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sessionResponse{User: user, Tokens: tokens})
}

// register converts the calling anonymous user into a registered account.
func (h *Handler) register(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "Invalid request data: " + err.Error()})
		return
	}

	user, err := h.users.ConvertToRegistered(c.Request.Context(), userID, req.Email, req.Name, req.Password, req.ReferralCode)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{User: user})
}

// login authenticates a registered user. If the caller still holds a valid
// session for a different anonymous account, that balance is merged in; the
// bearer token is the proof of ownership, a bare user ID is never trusted.
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "Invalid request data: " + err.Error()})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	if anonID, ok := h.callerFromBearer(c); ok && anonID != user.ID {
		if mergeErr := h.users.MergeAnonymousBalance(c.Request.Context(), anonID, user.ID); mergeErr != nil {
			// Login still succeeds; the stray balance stays recoverable.
			h.logger.Error("Failed to merge anonymous balance on login",
				zap.String("anonymousID", anonID.String()),
				zap.String("userID", user.ID.String()),
				zap.Error(mergeErr),
			)
		} else if refreshed, getErr := h.users.GetUser(c.Request.Context(), user.ID); getErr == nil {
			user = refreshed
		}
	}

	tokens, err := h.tokens.IssueTokens(c.Request.Context(), user.ID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{User: user, Tokens: tokens})
}

// refresh rotates a refresh token into a new session pair.
func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "Invalid request data: " + err.Error()})
		return
	}

	userID, err := h.tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	tokens, err := h.tokens.IssueTokens(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{Tokens: tokens})
}

// me returns the calling user together with their recent ledger history.
func (h *Handler) me(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	history, err := h.ledger.History(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":         user,
		"transactions": history,
	})
}
