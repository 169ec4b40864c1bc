package handler

import "storybook-server/internal/models"

// --- Request/Response Structs ---

type registerRequest struct {
	Email        string `json:"email" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Password     string `json:"password" binding:"required,min=8,max=100"`
	ReferralCode string `json:"referralCode"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type sessionResponse struct {
	User   *models.User         `json:"user"`
	Tokens *models.TokenDetails `json:"tokens"`
}

type errorResponse struct {
	Error string `json:"error"`
}
