// Package transaction defines the persisted transaction entities and their
// postgres repository.
package transaction

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxType is the direction of a transaction.
type TxType string

const (
	TypeDebit  TxType = "debit"
	TypeCredit TxType = "credit"
)

// Source identifies which mechanism produced a categorization.
type Source string

const (
	SourceRule   Source = "rule"
	SourceLLM    Source = "llm"
	SourceUser   Source = "user"
	SourceSystem Source = "system"
)

// Transaction is a persisted bank transaction owned by a user. Amount is
// always the absolute value; direction lives in Type.
type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	FileID      *uuid.UUID
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Type        TxType
	AccountCode string
	Confidence  float64
	IsRecurring bool
	Tags        []string
	Notes       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Categorization is one entry in a transaction's append-only
// categorization history. The most recent entry is the active one.
type Categorization struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	CategoryCode  string
	Confidence    float64
	Source        Source
	Reasoning     *string
	CreatedAt     time.Time
}

// ClampConfidence bounds a confidence score to [0,1].
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
