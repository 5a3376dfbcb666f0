package services

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/models"
	"github.com/example/aristotle/internal/utils"
)

// ErrEmptyCheckout is returned when the active cart holds nothing to pay for.
var ErrEmptyCheckout = errors.New("no unpaid items to check out")

// OrderService builds checkout snapshots and orders and fulfills them when
// the gateway confirms payment.
type OrderService struct {
	db       *gorm.DB
	carts    *CartService
	referral *ReferralService
}

// NewOrderService constructs an OrderService.
func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{
		db:       db,
		carts:    NewCartService(db),
		referral: NewReferralService(db),
	}
}

// Checkout snapshots the active cart's unpaid items into a checkout and an
// order. When an active unpaid order already covers exactly the same course
// set, it is reused as-is; otherwise the old order and checkout are retired
// and fresh ones are built from the cart.
func (s *OrderService) Checkout(userID uuid.UUID) (*models.Order, error) {
	cart, err := s.carts.ActiveCart(userID)
	if err != nil {
		return nil, err
	}
	items, err := s.carts.Items(cart.ID, models.InsertUnpaid)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCheckout
	}

	existing, err := s.ActiveOrder(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil && existing.PaymentStatus == models.PaymentStatusCreated {
		same, err := s.sameCourseSet(existing.CheckoutID, items)
		if err != nil {
			return nil, err
		}
		if same {
			return existing, nil
		}
	}

	var order *models.Order
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if existing != nil {
			if err := tx.Model(&models.Order{}).Where("id = ?", existing.ID).
				Update("is_active", false).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.OrderCheckout{}).Where("id = ?", existing.CheckoutID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}

		checkout := models.OrderCheckout{UserID: userID, Total: cart.Total, IsActive: true}
		if err := tx.Create(&checkout).Error; err != nil {
			return err
		}
		for _, item := range items {
			ci := models.CheckoutItem{CheckoutID: checkout.ID, CourseID: item.CourseID}
			if err := tx.Create(&ci).Error; err != nil {
				return err
			}
		}

		publicID, err := utils.RandomOrderID()
		if err != nil {
			return err
		}
		order = &models.Order{
			UserID:        userID,
			PublicID:      publicID,
			CheckoutID:    checkout.ID,
			Subtotal:      cart.Subtotal,
			Total:         cart.Total,
			PaymentStatus: models.PaymentStatusCreated,
			IsActive:      true,
		}
		return tx.Create(order).Error
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// sameCourseSet compares the checkout's snapshot with the cart's current
// unpaid items as sets of course ids.
func (s *OrderService) sameCourseSet(checkoutID uuid.UUID, items []models.CartCourse) (bool, error) {
	var snapshot []models.CheckoutItem
	if err := s.db.Where("checkout_id = ?", checkoutID).Find(&snapshot).Error; err != nil {
		return false, err
	}
	if len(snapshot) != len(items) {
		return false, nil
	}
	inSnapshot := make(map[uuid.UUID]bool, len(snapshot))
	for _, ci := range snapshot {
		inSnapshot[ci.CourseID] = true
	}
	for _, item := range items {
		if !inSnapshot[item.CourseID] {
			return false, nil
		}
	}
	return true, nil
}

// ActiveOrder returns the user's single active order, or gorm.ErrRecordNotFound.
func (s *OrderService) ActiveOrder(userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.Where("user_id = ? AND is_active = ?", userID, true).
		Preload("Checkout").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ByPublicID resolves an order by the id exposed to the payment gateway.
func (s *OrderService) ByPublicID(publicID string) (*models.Order, error) {
	var order models.Order
	err := s.db.Where("public_id = ?", publicID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// History lists the user's orders, newest first.
func (s *OrderService) History(userID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.Where("user_id = ?", userID).
		Preload("Checkout").
		Order("created_at desc").
		Find(&orders).Error
	return orders, err
}

// Fulfill marks the order paid and propagates the payment in one
// transaction: the checkout is closed, the cart rows covered by the snapshot
// flip to paid, the cart totals drop by the order total and the buyer's
// referral bonus is awarded. Fulfilling twice is a no-op.
func (s *OrderService) Fulfill(tx *gorm.DB, order *models.Order) error {
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil
	}

	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"payment_status": models.PaymentStatusPaid,
		"state":          2,
		"is_active":      false,
	}).Error; err != nil {
		return err
	}
	order.PaymentStatus = models.PaymentStatusPaid
	order.State = 2
	order.IsActive = false

	if err := tx.Model(&models.OrderCheckout{}).Where("id = ?", order.CheckoutID).Updates(map[string]any{
		"paid":      true,
		"is_active": false,
	}).Error; err != nil {
		return err
	}

	var snapshot []models.CheckoutItem
	if err := tx.Where("checkout_id = ?", order.CheckoutID).Find(&snapshot).Error; err != nil {
		return err
	}
	courseIDs := make([]uuid.UUID, 0, len(snapshot))
	for _, ci := range snapshot {
		courseIDs = append(courseIDs, ci.CourseID)
	}

	var cart models.Cart
	err := tx.Where("user_id = ? AND is_active = ?", order.UserID, true).First(&cart).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err == nil && len(courseIDs) > 0 {
		if err := tx.Model(&models.CartCourse{}).
			Where("cart_id = ? AND insert_type = ? AND course_id IN ?", cart.ID, models.InsertUnpaid, courseIDs).
			Updates(map[string]any{"insert_type": models.InsertPaid, "paid": true}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Cart{}).Where("id = ?", cart.ID).Updates(map[string]any{
			"subtotal": gorm.Expr("subtotal - ?", order.Total),
			"total":    gorm.Expr("total - ?", order.Total),
		}).Error; err != nil {
			return err
		}
	}

	// The referral bonus is tied to the user's first paid order only.
	var paidOrders int64
	if err := tx.Model(&models.Order{}).
		Where("user_id = ? AND payment_status = ?", order.UserID, models.PaymentStatusPaid).
		Count(&paidOrders).Error; err != nil {
		return err
	}
	if paidOrders > 1 {
		return nil
	}
	return s.referral.awardWithin(tx, order.UserID)
}

// Cancel retires an unpaid order and its checkout so the user can start a
// fresh payment attempt.
func (s *OrderService) Cancel(order *models.Order, state int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
			"payment_status": models.PaymentStatusCancelled,
			"state":          state,
			"is_active":      false,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.OrderCheckout{}).Where("id = ?", order.CheckoutID).
			Update("is_active", false).Error
	})
}
