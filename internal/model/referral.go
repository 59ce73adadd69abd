package model

import (
	"time"
)

type Referral struct {
	ID             int64     `json:"id" db:"id"`
	ReferrerUserID string    `json:"referrer_user_id" db:"referrer_user_id"`
	ReferredUserID string    `json:"referred_user_id" db:"referred_user_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ReferralStats is what the Mini App shows on the balance screen.
// RefCode is nil when the user is unknown.
type ReferralStats struct {
	RefCode       *string `json:"refCode"`
	ReferredCount int     `json:"referredCount"`
}
