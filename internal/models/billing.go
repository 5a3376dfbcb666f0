package models

import "github.com/google/uuid"

// Card statuses.
const (
	CardStatusActive   = "ACTIVE"
	CardStatusInactive = "INACTIVE"
	CardStatusDeleted  = "DELETED"
)

// Card is a tokenized payment instrument stored for recurring receipts.
// The token comes from the gateway's subscribe API; no PAN is kept locally.
type Card struct {
	BaseModel
	UserID   *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Token    string     `json:"-"`
	Brand    string     `json:"brand"`
	Expire   string     `json:"expire"`
	First6   string     `json:"first6"`
	Last4    string     `json:"last4"`
	Phone    string     `json:"phone"`
	IsVerify bool       `json:"is_verify"`
	Status   string     `gorm:"default:ACTIVE" json:"status"`
}

// Transaction records a payment-gateway transaction against an order.
// Times are unix milliseconds as reported by the gateway.
type Transaction struct {
	BaseModel
	CardID        *uuid.UUID `gorm:"type:uuid" json:"card_id"`
	TransactionID string     `gorm:"index" json:"transaction_id"`
	OrderID       *uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	CreateTime    int64      `json:"create_time"`
	PerformTime   int64      `json:"perform_time"`
	CancelTime    int64      `json:"cancel_time"`
	State         int        `json:"state"`
	Amount        float64    `json:"amount"`
	Reason        *int       `json:"reason"`
	Error         string     `json:"error"`
}
