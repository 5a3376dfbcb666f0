package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/example/aristotle/internal/models"
)

func TestActiveCartIsReused(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)

	first, err := carts.ActiveCart(user.ID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}
	second, err := carts.ActiveCart(user.ID)
	if err != nil {
		t.Fatalf("active cart again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same active cart, got %s and %s", first.ID, second.ID)
	}

	var count int64
	if err := db.Model(&models.Cart{}).Where("user_id = ? AND is_active = ?", user.ID, true).Count(&count).Error; err != nil {
		t.Fatalf("count carts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one active cart, got %d", count)
	}
}

func TestAddItemsBumpsTotalsOnce(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)

	go1 := seedCourse(t, db, "Go Basics", 100)
	go2 := seedCourse(t, db, "Go Advanced", 250)

	cart, err := carts.ActiveCart(user.ID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}

	if err := carts.AddItems(cart, []uuid.UUID{go1.ID, go2.ID}, nil); err != nil {
		t.Fatalf("add items: %v", err)
	}
	if cart.Subtotal != 350 || cart.Total != 350 {
		t.Fatalf("expected totals 350, got subtotal %.2f total %.2f", cart.Subtotal, cart.Total)
	}

	// Re-adding a course already in the cart contributes nothing.
	if err := carts.AddItems(cart, []uuid.UUID{go1.ID}, nil); err != nil {
		t.Fatalf("re-add item: %v", err)
	}
	if cart.Total != 350 {
		t.Fatalf("expected total unchanged at 350, got %.2f", cart.Total)
	}

	items, err := carts.Items(cart.ID, models.InsertUnpaid)
	if err != nil {
		t.Fatalf("cart items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 unpaid items, got %d", len(items))
	}
}

func TestValidateCoursesCollectsEveryInvalidID(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)

	valid := seedCourse(t, db, "Algebra", 100)
	paid := seedCourse(t, db, "Geometry", 100)
	markCoursePaid(t, db, user.ID, paid.ID)
	unknown := uuid.New()

	invalid, err := carts.ValidateCourses(user.ID, []uuid.UUID{valid.ID, paid.ID, unknown})
	if err != nil {
		t.Fatalf("validate courses: %v", err)
	}
	if len(invalid) != 2 {
		t.Fatalf("expected 2 invalid ids, got %d: %v", len(invalid), invalid)
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range invalid {
		seen[id] = true
	}
	if !seen[paid.ID] || !seen[unknown] {
		t.Fatalf("expected both the paid and the unknown course flagged, got %v", invalid)
	}
}

func TestAddBundleUsesDiscountedPrice(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)

	c1 := seedCourse(t, db, "Physics I", 100)
	c2 := seedCourse(t, db, "Physics II", 200)
	bundle := seedBundle(t, db, "Physics Track", 10, c1, c2)

	cart, err := carts.ActiveCart(user.ID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}
	if err := carts.AddItems(cart, nil, []uuid.UUID{bundle.ID}); err != nil {
		t.Fatalf("add bundle: %v", err)
	}

	// (100 + 200) with a 10% discount.
	if cart.Total != 270 {
		t.Fatalf("expected bundle price 270, got %.2f", cart.Total)
	}

	items, err := carts.Items(cart.ID, models.InsertUnpaid)
	if err != nil {
		t.Fatalf("cart items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 bundle rows, got %d", len(items))
	}
	for _, item := range items {
		if item.CertificatedCourseID == nil || *item.CertificatedCourseID != bundle.ID {
			t.Fatalf("expected item %s tagged with the bundle", item.CourseID)
		}
	}

	// Adding the same bundle again changes nothing.
	if err := carts.AddItems(cart, nil, []uuid.UUID{bundle.ID}); err != nil {
		t.Fatalf("re-add bundle: %v", err)
	}
	if cart.Total != 270 {
		t.Fatalf("expected total unchanged at 270, got %.2f", cart.Total)
	}
}

func TestBundlePriceCollapsesAfterPartialPayment(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)

	c1 := seedCourse(t, db, "Chemistry I", 100)
	c2 := seedCourse(t, db, "Chemistry II", 200)
	bundle := seedBundle(t, db, "Chemistry Track", 10, c1, c2)

	markCoursePaid(t, db, user.ID, c1.ID)

	var loaded models.CertificatedCourse
	if err := db.Preload("SubCourses").First(&loaded, "id = ?", bundle.ID).Error; err != nil {
		t.Fatalf("load bundle: %v", err)
	}

	// Once any sub-course is paid the discount no longer applies: the price
	// is the plain sum of the remaining unpaid sub-courses.
	price, err := carts.BundlePriceFor(user.ID, &loaded)
	if err != nil {
		t.Fatalf("bundle price: %v", err)
	}
	if price != 200 {
		t.Fatalf("expected collapsed bundle price 200, got %.2f", price)
	}
}

func TestRemoveBundleItemReExpandsSiblings(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)

	c1 := seedCourse(t, db, "History I", 100)
	c2 := seedCourse(t, db, "History II", 200)
	bundle := seedBundle(t, db, "History Track", 10, c1, c2)

	cart, err := carts.ActiveCart(user.ID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}
	if err := carts.AddItems(cart, nil, []uuid.UUID{bundle.ID}); err != nil {
		t.Fatalf("add bundle: %v", err)
	}

	if err := carts.RemoveItem(cart, c1.ID); err != nil {
		t.Fatalf("remove bundle item: %v", err)
	}

	items, err := carts.Items(cart.ID, models.InsertUnpaid)
	if err != nil {
		t.Fatalf("cart items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 remaining item, got %d", len(items))
	}
	if items[0].CourseID != c2.ID {
		t.Fatalf("expected the sibling course to remain, got %s", items[0].CourseID)
	}
	if items[0].CertificatedCourseID != nil {
		t.Fatal("expected the sibling re-added as an individually priced item")
	}

	// The sibling now costs its own price, not a share of the discount.
	if cart.Total != 200 {
		t.Fatalf("expected total 200 after re-expansion, got %.2f", cart.Total)
	}
}

func TestRemoveSingleItem(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)

	course := seedCourse(t, db, "Biology", 150)
	cart, err := carts.ActiveCart(user.ID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}
	if err := carts.AddItems(cart, []uuid.UUID{course.ID}, nil); err != nil {
		t.Fatalf("add item: %v", err)
	}

	if err := carts.RemoveItem(cart, course.ID); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if cart.Total != 0 {
		t.Fatalf("expected empty cart total 0, got %.2f", cart.Total)
	}

	if err := carts.RemoveItem(cart, course.ID); !errors.Is(err, ErrNotInCart) {
		t.Fatalf("expected ErrNotInCart on second removal, got %v", err)
	}
}

func TestWishlistDoesNotTouchTotals(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	carts := NewCartService(db)

	course := seedCourse(t, db, "Astronomy", 300)
	cart, err := carts.ActiveCart(user.ID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}

	if err := carts.AddDesire(cart, []uuid.UUID{course.ID}); err != nil {
		t.Fatalf("add desire: %v", err)
	}
	if err := carts.AddDesire(cart, []uuid.UUID{course.ID}); err != nil {
		t.Fatalf("re-add desire: %v", err)
	}

	items, err := carts.Items(cart.ID, models.InsertDesire)
	if err != nil {
		t.Fatalf("wishlist items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 wishlist item, got %d", len(items))
	}
	if cart.Total != 0 {
		t.Fatalf("wishlist must not affect totals, got %.2f", cart.Total)
	}

	if err := carts.RemoveDesire(cart, course.ID); err != nil {
		t.Fatalf("remove desire: %v", err)
	}
	if err := carts.RemoveDesire(cart, course.ID); !errors.Is(err, ErrNotInCart) {
		t.Fatalf("expected ErrNotInCart, got %v", err)
	}
}
