package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound      = errors.New("resource not found")
	ErrStoryNotFound = errors.New("story not found")

	// User & Authentication Errors
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotAnonymous       = errors.New("user is already registered")
	ErrReferralCodeTaken  = errors.New("referral code already in use")
	ErrUserInactive       = errors.New("user account is deactivated")
	ErrUnauthorized       = errors.New("unauthorized")

	// Token Errors
	ErrTokenInvalid  = errors.New("token is invalid")
	ErrTokenExpired  = errors.New("token has expired")
	ErrTokenNotFound = errors.New("token not found in storage")

	// Ledger Errors
	ErrInsufficientFunds = errors.New("insufficient coin balance")
	ErrInvalidAmount     = errors.New("amount must be a positive integer")

	// Story Generation Errors
	ErrTextGenerationFailed = errors.New("story text generation failed")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrInvalidInput   = errors.New("invalid input data")
)
