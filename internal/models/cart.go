package models

import "github.com/google/uuid"

// Insert types for cart rows.
const (
	InsertUnpaid = "UNPAID"
	InsertPaid   = "PAID"
	InsertDesire = "DESIRE"
)

// Cart is a user's mutable selection of courses. A user has at most one
// active cart; the partial unique index in the database backs the invariant
// and cart creation always runs inside a deactivate-then-create transaction.
type Cart struct {
	BaseModel
	UserID   uuid.UUID    `gorm:"type:uuid;index" json:"user_id"`
	Subtotal float64      `json:"subtotal"`
	Total    float64      `json:"total"`
	IsActive bool         `gorm:"default:true" json:"is_active"`
	Items    []CartCourse `json:"items,omitempty"`
}

// CartCourse joins a cart to a course. Rows added through a certificated
// bundle carry the bundle id so removal can re-expand the bundle.
type CartCourse struct {
	BaseModel
	CartID               uuid.UUID  `gorm:"type:uuid;index" json:"cart_id"`
	CourseID             uuid.UUID  `gorm:"type:uuid;index" json:"course_id"`
	Course               *Course    `json:"course,omitempty"`
	CertificatedCourseID *uuid.UUID `gorm:"type:uuid" json:"certificated_course_id"`
	InsertType           string     `gorm:"default:UNPAID;index" json:"insert_type"`
	Paid                 bool       `json:"paid"`
}
