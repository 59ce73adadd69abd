package model

import (
	"time"
)

// Balance amounts are integer credits (1 credit = 1 unit of the payment currency).
const (
	InitialBalance = 30
	ReferrerBonus  = 10
	ReferredBonus  = 5
)

type User struct {
	ID              int64      `json:"id" db:"id"`
	TelegramUserID  string     `json:"telegram_user_id" db:"telegram_user_id"`
	ChatID          string     `json:"chat_id" db:"chat_id"`
	Username        *string    `json:"username,omitempty" db:"username"`
	FirstName       *string    `json:"first_name,omitempty" db:"first_name"`
	LastName        *string    `json:"last_name,omitempty" db:"last_name"`
	Balance         int        `json:"balance" db:"balance"`
	RefCode         string     `json:"ref_code" db:"ref_code"`
	ReferredBy      *string    `json:"referred_by,omitempty" db:"referred_by"`
	TermsAcceptedAt *time.Time `json:"terms_accepted_at,omitempty" db:"terms_accepted_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

type UserWithReferrals struct {
	User
	ReferredCount int `json:"referred_count" db:"referred_count"`
}
