package models

import "github.com/google/uuid"

// Order payment statuses.
const (
	PaymentStatusCreated   = "created"
	PaymentStatusPaid      = "paid"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

// OrderCheckout is an immutable snapshot of a cart's unpaid items taken when
// the user starts payment.
type OrderCheckout struct {
	BaseModel
	UserID   uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	Total    float64        `json:"total"`
	Paid     bool           `json:"paid"`
	IsActive bool           `gorm:"default:true" json:"is_active"`
	Items    []CheckoutItem `gorm:"foreignKey:CheckoutID" json:"items,omitempty"`
}

type CheckoutItem struct {
	BaseModel
	CheckoutID uuid.UUID `gorm:"type:uuid;index" json:"checkout_id"`
	CourseID   uuid.UUID `gorm:"type:uuid;index" json:"course_id"`
	Course     *Course   `json:"course,omitempty"`
}

// Order is the payable unit referencing a checkout snapshot. PublicID is the
// identifier exposed to the payment gateway. A user has at most one active
// order at a time.
type Order struct {
	BaseModel
	UserID        uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	PublicID      string         `gorm:"uniqueIndex" json:"public_id"`
	CheckoutID    uuid.UUID      `gorm:"type:uuid;index" json:"checkout_id"`
	Checkout      *OrderCheckout `json:"checkout,omitempty"`
	Subtotal      float64        `json:"subtotal"`
	Total         float64        `json:"total"`
	PaymentStatus string         `gorm:"default:created" json:"payment_status"`
	// State mirrors the Paycom transaction state enum:
	// 0 invoice created, 1 pending, 2 paid, -1/-2 cancelled.
	State    int  `json:"state"`
	IsActive bool `gorm:"default:true" json:"is_active"`
}
