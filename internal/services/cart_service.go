package services

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/models"
)

// ErrNotInCart is returned when a removal targets a course the active cart
// does not hold as an unpaid item.
var ErrNotInCart = errors.New("course is not in the cart")

// CartService maintains the user's single active cart and its totals.
type CartService struct {
	db   *gorm.DB
	gate *AccessGate
}

// NewCartService constructs a CartService.
func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db, gate: NewAccessGate(db)}
}

// ActiveCart returns the user's active cart, creating one when absent.
// Creation deactivates any lingering active carts in the same transaction;
// the partial unique index backs the invariant under concurrency.
func (s *CartService) ActiveCart(userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.Where("user_id = ? AND is_active = ?", userID, true).First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cart = models.Cart{UserID: userID, IsActive: true}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Cart{}).
			Where("user_id = ? AND is_active = ?", userID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&cart).Error
	})
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// ValidateCourses checks the whole batch and returns every id that is
// unknown or already paid by the user. A non-empty result means the batch
// must be rejected as a whole.
func (s *CartService) ValidateCourses(userID uuid.UUID, courseIDs []uuid.UUID) ([]uuid.UUID, error) {
	var invalid []uuid.UUID
	for _, id := range courseIDs {
		var course models.Course
		if err := s.db.First(&course, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				invalid = append(invalid, id)
				continue
			}
			return nil, err
		}

		paid, err := s.gate.CoursePaid(userID, id)
		if err != nil {
			return nil, err
		}
		if paid {
			invalid = append(invalid, id)
		}
	}
	return invalid, nil
}

// AddItems adds individual courses and certificated bundles to the cart and
// bumps the totals by the newly created items' worth. Re-adding a course that
// is already in the cart contributes nothing.
func (s *CartService) AddItems(cart *models.Cart, courseIDs, bundleIDs []uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		total, err := s.createCartCourses(tx, cart, courseIDs, nil)
		if err != nil {
			return err
		}

		for _, bundleID := range bundleIDs {
			bundleTotal, err := s.addBundle(tx, cart, bundleID)
			if err != nil {
				return err
			}
			total += bundleTotal
		}

		return s.adjustTotals(tx, cart, total)
	})
}

// createCartCourses creates one UNPAID row per course not already held in
// the cart (within the same bundle tag) and returns the sum of the newly
// created rows' prices.
func (s *CartService) createCartCourses(tx *gorm.DB, cart *models.Cart, courseIDs []uuid.UUID, bundleID *uuid.UUID) (float64, error) {
	var total float64
	for _, courseID := range courseIDs {
		var course models.Course
		if err := tx.First(&course, "id = ?", courseID).Error; err != nil {
			return 0, err
		}

		query := tx.Model(&models.CartCourse{}).
			Where("cart_id = ? AND course_id = ? AND insert_type = ?", cart.ID, courseID, models.InsertUnpaid)
		if bundleID == nil {
			query = query.Where("certificated_course_id IS NULL")
		} else {
			query = query.Where("certificated_course_id = ?", *bundleID)
		}

		var count int64
		if err := query.Count(&count).Error; err != nil {
			return 0, err
		}
		if count > 0 {
			continue
		}

		item := models.CartCourse{
			CartID:               cart.ID,
			CourseID:             courseID,
			CertificatedCourseID: bundleID,
			InsertType:           models.InsertUnpaid,
		}
		if err := tx.Create(&item).Error; err != nil {
			return 0, err
		}
		total += course.Price
	}
	return total, nil
}

// addBundle resolves the bundle's unpaid sub-courses for the cart's user,
// skips those already present in the cart, adds the rest as UNPAID rows
// tagged with the bundle, and returns the bundle's per-user price when at
// least one row was created.
func (s *CartService) addBundle(tx *gorm.DB, cart *models.Cart, bundleID uuid.UUID) (float64, error) {
	var bundle models.CertificatedCourse
	if err := tx.Preload("SubCourses").First(&bundle, "id = ?", bundleID).Error; err != nil {
		return 0, err
	}

	unpaid, paidExists, err := s.unpaidSubCourses(tx, cart.UserID, &bundle)
	if err != nil {
		return 0, err
	}

	toAdd := make([]uuid.UUID, 0, len(unpaid))
	for _, course := range unpaid {
		var count int64
		if err := tx.Model(&models.CartCourse{}).
			Where("cart_id = ? AND course_id = ?", cart.ID, course.ID).
			Count(&count).Error; err != nil {
			return 0, err
		}
		if count == 0 {
			toAdd = append(toAdd, course.ID)
		}
	}

	created, err := s.createCartCourses(tx, cart, toAdd, &bundle.ID)
	if err != nil {
		return 0, err
	}
	if created == 0 {
		return 0, nil
	}

	return bundlePrice(&bundle, unpaid, paidExists), nil
}

// unpaidSubCourses splits a bundle's sub-courses for the user: courses still
// in the "new" state are unpaid; paidExists reports whether any sub-course
// has been paid for or completed already.
func (s *CartService) unpaidSubCourses(db *gorm.DB, userID uuid.UUID, bundle *models.CertificatedCourse) ([]models.Course, bool, error) {
	gate := NewAccessGate(db)
	var unpaid []models.Course
	paidExists := false
	for _, course := range bundle.SubCourses {
		status, err := gate.CourseStatus(userID, course.ID)
		if err != nil {
			return nil, false, err
		}
		if status == models.StatusNew {
			unpaid = append(unpaid, course)
		} else {
			paidExists = true
		}
	}
	return unpaid, paidExists, nil
}

// bundlePrice is the per-user bundle price: the discounted list price, or
// the plain sum of the unpaid sub-courses once any sub-course was paid.
func bundlePrice(bundle *models.CertificatedCourse, unpaid []models.Course, paidExists bool) float64 {
	if paidExists && len(unpaid) > 0 {
		var sum float64
		for _, c := range unpaid {
			sum += c.Price
		}
		return sum
	}
	return bundle.ListPrice()
}

// BundlePriceFor exposes the per-user bundle price for catalog decoration.
func (s *CartService) BundlePriceFor(userID uuid.UUID, bundle *models.CertificatedCourse) (float64, error) {
	unpaid, paidExists, err := s.unpaidSubCourses(s.db, userID, bundle)
	if err != nil {
		return 0, err
	}
	return bundlePrice(bundle, unpaid, paidExists), nil
}

// RemoveItem removes an unpaid course from the cart. Rows that came in
// through a bundle re-expand it: the sibling rows are dropped and re-added
// as individually priced items, and the totals give back the difference
// between the bundle price and the re-added items' sum.
func (s *CartService) RemoveItem(cart *models.Cart, courseID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var item models.CartCourse
		err := tx.Where("cart_id = ? AND course_id = ? AND insert_type = ?", cart.ID, courseID, models.InsertUnpaid).
			First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotInCart
		}
		if err != nil {
			return err
		}

		var delta float64
		if item.CertificatedCourseID != nil {
			delta, err = s.removeBundleItem(tx, cart, &item)
		} else {
			delta, err = s.removeSingleItem(tx, &item)
		}
		if err != nil {
			return err
		}

		return s.adjustTotals(tx, cart, -delta)
	})
}

func (s *CartService) removeSingleItem(tx *gorm.DB, item *models.CartCourse) (float64, error) {
	var course models.Course
	if err := tx.First(&course, "id = ?", item.CourseID).Error; err != nil {
		return 0, err
	}
	if err := tx.Delete(item).Error; err != nil {
		return 0, err
	}
	return course.Price, nil
}

func (s *CartService) removeBundleItem(tx *gorm.DB, cart *models.Cart, item *models.CartCourse) (float64, error) {
	var bundle models.CertificatedCourse
	if err := tx.Preload("SubCourses").First(&bundle, "id = ?", *item.CertificatedCourseID).Error; err != nil {
		return 0, err
	}

	unpaid, paidExists, err := s.unpaidSubCourses(tx, cart.UserID, &bundle)
	if err != nil {
		return 0, err
	}
	wholePrice := bundlePrice(&bundle, unpaid, paidExists)

	subIDs := make([]uuid.UUID, 0, len(bundle.SubCourses))
	siblings := make([]uuid.UUID, 0, len(bundle.SubCourses))
	for _, sub := range bundle.SubCourses {
		subIDs = append(subIDs, sub.ID)
		if sub.ID != item.CourseID {
			siblings = append(siblings, sub.ID)
		}
	}

	if err := tx.Where("cart_id = ? AND insert_type = ? AND course_id IN ?", cart.ID, models.InsertUnpaid, subIDs).
		Delete(&models.CartCourse{}).Error; err != nil {
		return 0, err
	}

	readded, err := s.createCartCourses(tx, cart, siblings, nil)
	if err != nil {
		return 0, err
	}

	return wholePrice - readded, nil
}

// adjustTotals applies one atomic increment to the cart's totals and
// refreshes the in-memory copy.
func (s *CartService) adjustTotals(tx *gorm.DB, cart *models.Cart, delta float64) error {
	if delta == 0 {
		return nil
	}
	if err := tx.Model(&models.Cart{}).
		Where("id = ?", cart.ID).
		Updates(map[string]any{
			"subtotal": gorm.Expr("subtotal + ?", delta),
			"total":    gorm.Expr("total + ?", delta),
		}).Error; err != nil {
		return err
	}
	return tx.First(cart, "id = ?", cart.ID).Error
}

// AddDesire puts courses on the wishlist. Wishlist rows never affect totals.
func (s *CartService) AddDesire(cart *models.Cart, courseIDs []uuid.UUID) error {
	for _, courseID := range courseIDs {
		var count int64
		if err := s.db.Model(&models.CartCourse{}).
			Where("cart_id = ? AND course_id = ? AND insert_type = ?", cart.ID, courseID, models.InsertDesire).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		item := models.CartCourse{CartID: cart.ID, CourseID: courseID, InsertType: models.InsertDesire}
		if err := s.db.Create(&item).Error; err != nil {
			return err
		}
	}
	return nil
}

// RemoveDesire drops a course from the wishlist.
func (s *CartService) RemoveDesire(cart *models.Cart, courseID uuid.UUID) error {
	result := s.db.Where("cart_id = ? AND course_id = ? AND insert_type = ?", cart.ID, courseID, models.InsertDesire).
		Delete(&models.CartCourse{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotInCart
	}
	return nil
}

// Items returns the cart rows of one insert type with courses preloaded.
func (s *CartService) Items(cartID uuid.UUID, insertType string) ([]models.CartCourse, error) {
	var items []models.CartCourse
	err := s.db.Where("cart_id = ? AND insert_type = ?", cartID, insertType).
		Preload("Course").
		Find(&items).Error
	return items, err
}
