package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/aristotle/internal/config"
	"github.com/example/aristotle/internal/database"
	"github.com/example/aristotle/internal/middleware"
	"github.com/example/aristotle/internal/models"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB, *config.Config) {
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

	cfg := &config.Config{JWTSecret: "test-secret", TokenExpires: time.Hour}

	auth := NewAuthHandler(db, cfg, nil)
	profiles := NewProfileHandler(db)

	app := fiber.New()
	app.Post("/api/auth/v1/create", auth.Register)
	app.Post("/api/auth/v1/activate", auth.Activate)
	app.Post("/api/auth/v1/login", auth.Login)
	app.Get("/api/profiles/v1/balance", middleware.AuthMiddleware(cfg), profiles.Balance)

	return app, db, cfg
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) map[string]any {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response from %s: %v", path, err)
	}
	return decoded
}

func flowCode(t *testing.T, body map[string]any) int {
	t.Helper()
	code, ok := body["code"].(float64)
	if !ok {
		t.Fatalf("expected a flow code in %v", body)
	}
	return int(code)
}

func TestRegisterActivateLoginFlow(t *testing.T) {
	app, db, _ := newTestApp(t)
	phone := "998901234567"

	created := postJSON(t, app, "/api/auth/v1/create", map[string]any{
		"phone":      phone,
		"password":   "s3cret",
		"first_name": "Abu",
		"last_name":  "Ali",
	})
	if flowCode(t, created) != 102 {
		t.Fatalf("expected registration code 102, got %v", created)
	}

	// Registering the same pending phone again reports the pending state.
	pending := postJSON(t, app, "/api/auth/v1/create", map[string]any{
		"phone":    phone,
		"password": "s3cret",
	})
	if flowCode(t, pending) != 101 {
		t.Fatalf("expected pending code 101, got %v", pending)
	}

	// Login is refused until the account is activated.
	req := httptest.NewRequest(http.MethodPost, "/api/auth/v1/login",
		bytes.NewReader([]byte(`{"phone":"`+phone+`","password":"s3cret"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("login before activation: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 before activation, got %d", resp.StatusCode)
	}

	wrong := postJSON(t, app, "/api/auth/v1/activate", map[string]any{
		"phone": phone,
		"code":  "0000x",
	})
	if flowCode(t, wrong) != 106 {
		t.Fatalf("expected invalid-code 106, got %v", wrong)
	}

	var activation models.PhoneActivation
	if err := db.Where("phone = ?", phone).First(&activation).Error; err != nil {
		t.Fatalf("load activation: %v", err)
	}
	activated := postJSON(t, app, "/api/auth/v1/activate", map[string]any{
		"phone": phone,
		"code":  activation.Code,
	})
	if flowCode(t, activated) != 104 {
		t.Fatalf("expected activation code 104, got %v", activated)
	}

	logged := postJSON(t, app, "/api/auth/v1/login", map[string]any{
		"phone":    phone,
		"password": "s3cret",
	})
	token, ok := logged["token"].(string)
	if !ok || token == "" {
		t.Fatalf("expected a token after login, got %v", logged)
	}

	// The issued token opens the protected profile surface.
	balanceReq := httptest.NewRequest(http.MethodGet, "/api/profiles/v1/balance", nil)
	balanceReq.Header.Set("Authorization", "Bearer "+token)
	balanceResp, err := app.Test(balanceReq, -1)
	if err != nil {
		t.Fatalf("balance request: %v", err)
	}
	defer balanceResp.Body.Close()
	if balanceResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from the balance endpoint, got %d", balanceResp.StatusCode)
	}
}

func TestDuplicateActivePhoneRejected(t *testing.T) {
	app, db, _ := newTestApp(t)
	phone := "998907654321"

	postJSON(t, app, "/api/auth/v1/create", map[string]any{"phone": phone, "password": "pw"})
	if err := db.Model(&models.User{}).Where("phone = ?", phone).
		Update("is_active", true).Error; err != nil {
		t.Fatalf("activate user: %v", err)
	}

	dup := postJSON(t, app, "/api/auth/v1/create", map[string]any{"phone": phone, "password": "pw"})
	if flowCode(t, dup) != 100 {
		t.Fatalf("expected duplicate code 100, got %v", dup)
	}
}

func TestProtectedRouteNeedsToken(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/profiles/v1/balance", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}
}
