package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the system. Anonymous users are created
// implicitly on first visit and carry no email or password credential until
// they are converted to a registered account.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email,omitempty"`
	DisplayName  string    `db:"display_name" json:"displayName"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Coins        int64     `db:"coins" json:"coins"`
	IsAnonymous  bool      `db:"is_anonymous" json:"isAnonymous"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	ReferralCode string    `db:"referral_code" json:"referralCode,omitempty"`
	ReferredBy   string    `db:"referred_by" json:"referredBy,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}
