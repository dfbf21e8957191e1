package models

import "time"

type Purchase struct {
	ID                int64          `json:"id"`
	UserID            string         `json:"userId"`
	EventID           int64          `json:"eventId"`
	Quantity          int            `json:"quantity"`
	UnitPrice         Money          `json:"unitPrice"`
	Total             Money          `json:"total"`
	Status            PurchaseStatus `json:"status"`
	PaymentMethod     *string        `json:"paymentMethod"`
	PurchaseTimestamp time.Time      `json:"purchaseTimestamp"`
	PaymentTimestamp  *time.Time     `json:"paymentTimestamp"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// PurchaseDetail is a purchase enriched with the current event snapshot.
// Event is nil when the snapshot could not be obtained.
type PurchaseDetail struct {
	Purchase
	Event *Event `json:"event"`
}

type PurchaseStatus string

const (
	StatusPending   PurchaseStatus = "pending"
	StatusPaid      PurchaseStatus = "paid"
	StatusCancelled PurchaseStatus = "cancelled"
)

func (s PurchaseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
// Only pending purchases move, and only to a terminal status.
func (s PurchaseStatus) CanTransitionTo(next PurchaseStatus) bool {
	return s == StatusPending && (next == StatusPaid || next == StatusCancelled)
}

// StatusUpdate is a conditional partial update: it applies only while the
// stored status still equals From.
type StatusUpdate struct {
	From             PurchaseStatus
	To               PurchaseStatus
	PaymentMethod    *string
	PaymentTimestamp *time.Time
}
