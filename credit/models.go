package credit

import (
	"time"

	"github.com/xraph/licensor/id"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TypePurchase    TransactionType = "purchase"
	TypeConsumption TransactionType = "consumption"
	TypeRefund      TransactionType = "refund"
)

// Entry is an immutable balance delta. Purchases are positive, consumption
// and refunds negative. A balance is the sum of an identity's entries.
type Entry struct {
	ID             id.CreditEntryID `json:"id"`
	IdentityID     id.IdentityID    `json:"identity_id"`
	Amount         int64            `json:"amount"`
	Type           TransactionType  `json:"transaction_type"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	Description    string           `json:"description,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Debit reports whether the entry reduces the balance.
func (e *Entry) Debit() bool { return e.Amount < 0 }

type ListOpts struct {
	Type   TransactionType
	Limit  int
	Offset int
}
