package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/example/aristotle/internal/models"
)

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	orders := NewOrderService(db)

	if _, err := orders.Checkout(user.ID); !errors.Is(err, ErrEmptyCheckout) {
		t.Fatalf("expected ErrEmptyCheckout, got %v", err)
	}
}

func TestCheckoutSnapshotsTheCart(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)
	orders := NewOrderService(db)

	c1 := seedCourse(t, db, "Latin I", 100)
	c2 := seedCourse(t, db, "Latin II", 200)
	cart, err := carts.ActiveCart(user.ID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}
	if err := carts.AddItems(cart, []uuid.UUID{c1.ID, c2.ID}, nil); err != nil {
		t.Fatalf("add items: %v", err)
	}

	order, err := orders.Checkout(user.ID)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !strings.HasPrefix(order.PublicID, "10") || len(order.PublicID) != 11 {
		t.Fatalf("expected an 11-digit public id starting with 10, got %q", order.PublicID)
	}
	if order.Total != 300 {
		t.Fatalf("expected order total 300, got %.2f", order.Total)
	}

	var items int64
	if err := db.Model(&models.CheckoutItem{}).Where("checkout_id = ?", order.CheckoutID).Count(&items).Error; err != nil {
		t.Fatalf("count checkout items: %v", err)
	}
	if items != 2 {
		t.Fatalf("expected 2 snapshot items, got %d", items)
	}
}

func TestCheckoutReusesMatchingOrder(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)
	orders := NewOrderService(db)

	c1 := seedCourse(t, db, "Greek I", 100)
	c2 := seedCourse(t, db, "Greek II", 200)
	cart, err := carts.ActiveCart(user.ID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}
	if err := carts.AddItems(cart, []uuid.UUID{c1.ID}, nil); err != nil {
		t.Fatalf("add first item: %v", err)
	}

	first, err := orders.Checkout(user.ID)
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	same, err := orders.Checkout(user.ID)
	if err != nil {
		t.Fatalf("repeat checkout: %v", err)
	}
	if same.ID != first.ID {
		t.Fatal("expected the unchanged cart to reuse the active order")
	}

	// Changing the cart retires the old order and builds a fresh one.
	if err := carts.AddItems(cart, []uuid.UUID{c2.ID}, nil); err != nil {
		t.Fatalf("add second item: %v", err)
	}
	rebuilt, err := orders.Checkout(user.ID)
	if err != nil {
		t.Fatalf("rebuild checkout: %v", err)
	}
	if rebuilt.ID == first.ID {
		t.Fatal("expected a fresh order after the cart changed")
	}
	if rebuilt.Total != 300 {
		t.Fatalf("expected rebuilt order total 300, got %.2f", rebuilt.Total)
	}

	var old models.Order
	if err := db.First(&old, "id = ?", first.ID).Error; err != nil {
		t.Fatalf("reload old order: %v", err)
	}
	if old.IsActive {
		t.Fatal("expected the superseded order deactivated")
	}

	var active int64
	if err := db.Model(&models.Order{}).Where("user_id = ? AND is_active = ?", user.ID, true).Count(&active).Error; err != nil {
		t.Fatalf("count active orders: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected exactly one active order, got %d", active)
	}
}

func TestFulfillGrantsCoursesAndFirstOrderBonus(t *testing.T) {
	db := newTestDB(t)
	referrer := seedUser(t, db, nextPhone())
	buyer := seedUser(t, db, nextPhone())
	carts := NewCartService(db)
	orders := NewOrderService(db)
	referrals := NewReferralService(db)

	if _, err := referrals.AttachReferral(buyer, referrer.Ref); err != nil {
		t.Fatalf("attach referral: %v", err)
	}

	course := seedCourse(t, db, "Rhetoric", 100)
	cart, err := carts.ActiveCart(buyer.ID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}
	if err := carts.AddItems(cart, []uuid.UUID{course.ID}, nil); err != nil {
		t.Fatalf("add item: %v", err)
	}

	order, err := orders.Checkout(buyer.ID)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := orders.Fulfill(db, order); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	if order.PaymentStatus != models.PaymentStatusPaid || order.IsActive {
		t.Fatalf("expected a closed paid order, got %+v", order)
	}

	gate := NewAccessGate(db)
	paid, err := gate.CoursePaid(buyer.ID, course.ID)
	if err != nil {
		t.Fatalf("course paid: %v", err)
	}
	if !paid {
		t.Fatal("expected the course granted after fulfillment")
	}

	var freshCart models.Cart
	if err := db.First(&freshCart, "id = ?", cart.ID).Error; err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	if freshCart.Total != 0 {
		t.Fatalf("expected the cart total released, got %.2f", freshCart.Total)
	}

	if b := balanceOf(t, db, referrer.ID); b.Bonus != 2 {
		t.Fatalf("expected the referrer credited 2 points, got %d", b.Bonus)
	}
	if b := balanceOf(t, db, buyer.ID); b.Bonus != 1 {
		t.Fatalf("expected the buyer credited 1 point, got %d", b.Bonus)
	}

	// Fulfilling the same order again changes nothing.
	if err := orders.Fulfill(db, order); err != nil {
		t.Fatalf("refulfill: %v", err)
	}
	if b := balanceOf(t, db, referrer.ID); b.Bonus != 2 {
		t.Fatalf("expected no double credit, got %d", b.Bonus)
	}
}

func TestFulfillAwardsBonusOnlyOnFirstPaidOrder(t *testing.T) {
	db := newTestDB(t)
	referrer := seedUser(t, db, nextPhone())
	buyer := seedUser(t, db, nextPhone())
	carts := NewCartService(db)
	orders := NewOrderService(db)
	referrals := NewReferralService(db)

	if _, err := referrals.AttachReferral(buyer, referrer.Ref); err != nil {
		t.Fatalf("attach referral: %v", err)
	}

	buy := func(name string) {
		t.Helper()
		course := seedCourse(t, db, name, 100)
		cart, err := carts.ActiveCart(buyer.ID)
		if err != nil {
			t.Fatalf("active cart: %v", err)
		}
		if err := carts.AddItems(cart, []uuid.UUID{course.ID}, nil); err != nil {
			t.Fatalf("add item: %v", err)
		}
		order, err := orders.Checkout(buyer.ID)
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		if err := orders.Fulfill(db, order); err != nil {
			t.Fatalf("fulfill: %v", err)
		}
	}

	buy("Logic I")
	buy("Logic II")

	if b := balanceOf(t, db, referrer.ID); b.Bonus != 2 {
		t.Fatalf("expected the bonus tied to the first paid order only, referrer at %d", b.Bonus)
	}
	if b := balanceOf(t, db, buyer.ID); b.Bonus != 1 {
		t.Fatalf("expected the bonus tied to the first paid order only, buyer at %d", b.Bonus)
	}
}

func TestCancelRetiresOrderAndCheckout(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)
	orders := NewOrderService(db)

	course := seedCourse(t, db, "Poetics", 100)
	cart, err := carts.ActiveCart(user.ID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}
	if err := carts.AddItems(cart, []uuid.UUID{course.ID}, nil); err != nil {
		t.Fatalf("add item: %v", err)
	}
	order, err := orders.Checkout(user.ID)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if err := orders.Cancel(order, TransactionStatePendingCanceled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var saved models.Order
	if err := db.First(&saved, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if saved.PaymentStatus != models.PaymentStatusCancelled || saved.IsActive || saved.State != -1 {
		t.Fatalf("expected a cancelled inactive order, got %+v", saved)
	}

	var checkout models.OrderCheckout
	if err := db.First(&checkout, "id = ?", order.CheckoutID).Error; err != nil {
		t.Fatalf("reload checkout: %v", err)
	}
	if checkout.IsActive {
		t.Fatal("expected the checkout deactivated")
	}
}
