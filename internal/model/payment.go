package model

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	PaymentMethodSBP      PaymentMethod = "sbp"
	PaymentMethodCrypto   PaymentMethod = "crypto"
	PaymentMethodExternal PaymentMethod = "external"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Top-up bounds in credits.
const (
	MinTopUpAmount = 100
	MaxTopUpAmount = 50000
)

type Payment struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	TelegramUserID string        `json:"telegram_user_id" db:"telegram_user_id"`
	Amount         int           `json:"amount" db:"amount"`
	Method         PaymentMethod `json:"method" db:"method"`
	Status         PaymentStatus `json:"status" db:"status"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}
