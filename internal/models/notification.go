package models

import (
	"context"
	"time"
)

// PaymentNotification is published after a payment confirmation is committed.
type PaymentNotification struct {
	PurchaseID       int64     `json:"purchaseId"`
	UserID           string    `json:"userId"`
	EventID          int64     `json:"eventId"`
	Quantity         int       `json:"quantity"`
	Total            Money     `json:"total"`
	PaymentMethod    string    `json:"paymentMethod"`
	PaymentTimestamp time.Time `json:"paymentTimestamp"`
}

func NewPaymentNotification(p *Purchase, method string, paidAt time.Time) PaymentNotification {
	return PaymentNotification{
		PurchaseID:       p.ID,
		UserID:           p.UserID,
		EventID:          p.EventID,
		Quantity:         p.Quantity,
		Total:            p.Total,
		PaymentMethod:    method,
		PaymentTimestamp: paidAt,
	}
}

// NotificationHandler processes one consumed payment notification.
type NotificationHandler func(ctx context.Context, n PaymentNotification) error
