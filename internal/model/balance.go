package model

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeInitialGrant  TransactionType = "initial_grant"
	TransactionTypeReferralBonus TransactionType = "referral_bonus"
	TransactionTypeCharge        TransactionType = "charge"
	TransactionTypeTopUp         TransactionType = "top_up"
	TransactionTypeManual        TransactionType = "manual"
	TransactionTypeAdminSet      TransactionType = "admin_set"
)

// BalanceTransaction is an append-only audit row written alongside every
// balance mutation, inside the same database transaction.
type BalanceTransaction struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	TelegramUserID string          `json:"telegram_user_id" db:"telegram_user_id"`
	Amount         int             `json:"amount" db:"amount"` // positive = credit, negative = debit
	Type           TransactionType `json:"type" db:"type"`
	Description    *string         `json:"description,omitempty" db:"description"`
	ReferenceID    *uuid.UUID      `json:"reference_id,omitempty" db:"reference_id"`
	BalanceBefore  int             `json:"balance_before" db:"balance_before"`
	BalanceAfter   int             `json:"balance_after" db:"balance_after"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// BalanceCheck is the advisory pre-flight answer. It does not reserve funds.
type BalanceCheck struct {
	Allowed   bool `json:"allowed"`
	Balance   int  `json:"balance"`
	Required  int  `json:"required"`
	Shortfall int  `json:"shortfall"`
}

// ChargeResult reports the post-delivery debit. Balance is set only when the
// charge actually happened.
type ChargeResult struct {
	Charged bool `json:"charged"`
	Price   int  `json:"price"`
	Balance *int `json:"balance,omitempty"`
}
