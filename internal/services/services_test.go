package services

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/aristotle/internal/database"
	"github.com/example/aristotle/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, phone string) *models.User {
	t.Helper()
	user := models.User{
		Phone:    phone,
		Ref:      phone[len(phone)-5:],
		IsActive: true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := db.Create(&models.UserReferral{UserID: user.ID}).Error; err != nil {
		t.Fatalf("seed user referral: %v", err)
	}
	if err := db.Create(&models.AccountBalance{UserID: user.ID}).Error; err != nil {
		t.Fatalf("seed account balance: %v", err)
	}
	return &user
}

func seedCourse(t *testing.T, db *gorm.DB, name string, price float64) *models.Course {
	t.Helper()
	course := models.Course{Name: name, Price: price, IsActive: true}
	if err := db.Create(&course).Error; err != nil {
		t.Fatalf("seed course %q: %v", name, err)
	}
	return &course
}

func seedBundle(t *testing.T, db *gorm.DB, name string, discount int, courses ...*models.Course) *models.CertificatedCourse {
	t.Helper()
	bundle := models.CertificatedCourse{Name: name, DiscountPercent: discount}
	for _, c := range courses {
		bundle.SubCourses = append(bundle.SubCourses, *c)
	}
	if err := db.Create(&bundle).Error; err != nil {
		t.Fatalf("seed bundle %q: %v", name, err)
	}
	return &bundle
}

// markCoursePaid plants a paid cart row so the access gate sees the course
// as purchased by the user.
func markCoursePaid(t *testing.T, db *gorm.DB, userID, courseID uuid.UUID) {
	t.Helper()
	carts := NewCartService(db)
	cart, err := carts.ActiveCart(userID)
	if err != nil {
		t.Fatalf("active cart: %v", err)
	}
	row := models.CartCourse{
		CartID:     cart.ID,
		CourseID:   courseID,
		InsertType: models.InsertPaid,
		Paid:       true,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("mark course paid: %v", err)
	}
}

func balanceOf(t *testing.T, db *gorm.DB, userID uuid.UUID) *models.AccountBalance {
	t.Helper()
	var balance models.AccountBalance
	if err := db.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	return &balance
}

var testPhoneSeq int

func nextPhone() string {
	testPhoneSeq++
	return fmt.Sprintf("9989%08d", testPhoneSeq)
}
