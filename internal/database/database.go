package database

import (
	"database/sql"
	"log"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/aristotle/internal/models"
)

var db *gorm.DB

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) *gorm.DB {
	if db != nil {
		return db
	}

	if err := ensureDatabase(dsn); err != nil {
		log.Fatalf("failed to ensure database: %v", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Printf("warning: failed to ensure uuid-ossp extension: %v", err)
	}

	if err := Migrate(conn); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	if err := ensureInvariantIndexes(conn); err != nil {
		log.Fatalf("failed to ensure invariant indexes: %v", err)
	}

	db = conn
	return db
}

// DB exposes the initialized gorm.DB instance.
func DB() *gorm.DB {
	return db
}

// Migrate runs auto-migration for every model.
func Migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.User{},
		&models.PhoneActivation{},
		&models.BonusRate{},
		&models.AccountBalance{},
		&models.UserReferral{},
		&models.Notification{},
		&models.Category{},
		&models.Course{},
		&models.Topic{},
		&models.Lesson{},
		&models.UserLesson{},
		&models.CertificatedCourse{},
		&models.CourseCertificate{},
		&models.Quiz{},
		&models.Question{},
		&models.Answer{},
		&models.QuizTaker{},
		&models.UserAnswer{},
		&models.Cart{},
		&models.CartCourse{},
		&models.OrderCheckout{},
		&models.CheckoutItem{},
		&models.Order{},
		&models.Card{},
		&models.Transaction{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return err
		}
	}

	return nil
}

// ensureInvariantIndexes adds the partial unique indexes that back the
// one-active-row invariants: one active cart and one active order per user,
// one active bonus rate globally. Concurrent deactivate-then-create races
// surface as unique violations instead of duplicate active rows.
func ensureInvariantIndexes(conn *gorm.DB) error {
	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_cart_per_user ON carts (user_id) WHERE is_active`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_order_per_user ON orders (user_id) WHERE is_active`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_bonus_rate ON bonus_rates ((is_active)) WHERE is_active`,
	}

	for _, stmt := range statements {
		if err := conn.Exec(stmt).Error; err != nil {
			return err
		}
	}

	return nil
}

func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	masterDSN := parsed.String()

	sqlDB, err := sql.Open("postgres", masterDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}

	if exists {
		return nil
	}

	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}
