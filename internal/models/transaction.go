package models

import (
	"time"

	"github.com/google/uuid"
)

// CoinReason classifies a ledger entry. New reasons must also be added to the
// coin_transactions CHECK constraint.
type CoinReason string

const (
	CoinReasonWelcome         CoinReason = "welcome"
	CoinReasonRegistration    CoinReason = "registration"
	CoinReasonSubscription    CoinReason = "subscription"
	CoinReasonGeneration      CoinReason = "generation"
	CoinReasonRefund          CoinReason = "refund"
	CoinReasonAdminAdjustment CoinReason = "admin-adjustment"
)

// CoinTransaction is one append-only ledger entry. The user's cached balance
// is the sum of deltas over all of their entries.
type CoinTransaction struct {
	ID        int64      `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"userId"`
	Delta     int64      `db:"delta" json:"delta"` // positive = credit, negative = debit
	Reason    CoinReason `db:"reason" json:"reason"`
	Memo      string     `db:"memo" json:"memo"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}
