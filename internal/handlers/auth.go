package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/config"
	"github.com/example/aristotle/internal/models"
	"github.com/example/aristotle/internal/services"
	"github.com/example/aristotle/internal/utils"
)

// AuthHandler bundles dependencies for account and activation endpoints.
type AuthHandler struct {
	db       *gorm.DB
	cfg      *config.Config
	sms      *services.SMSService
	referral *services.ReferralService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, sms *services.SMSService) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, sms: sms, referral: services.NewReferralService(db)}
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	Referrer  string `json:"referrer"`
}

// Register creates an inactive account and sends the activation code.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Phone == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing required fields")
	}

	var existing models.User
	err := h.db.Where("phone = ?", req.Phone).First(&existing).Error
	if err == nil {
		if existing.IsActive {
			return c.JSON(fiber.Map{
				"success": false, "code": 100,
				"error": "an active user exists with this phone number",
			})
		}
		return c.JSON(fiber.Map{
			"success": false, "code": 101,
			"error": "this phone number is already registered and awaiting activation",
		})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	ref, err := h.referral.GenerateReferralCode()
	if err != nil {
		return err
	}
	code, err := utils.RandomPhoneCode()
	if err != nil {
		return err
	}

	user := models.User{
		Phone:        req.Phone,
		Ref:          ref,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: passwordHash,
	}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		activation := models.PhoneActivation{UserID: user.ID, Phone: user.Phone, Code: code}
		if err := tx.Create(&activation).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.UserReferral{UserID: user.ID}).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.AccountBalance{UserID: user.ID}).Error; err != nil {
			return err
		}
		return services.CreateNotification(tx, user.ID,
			"Xush kelibsiz. Siz muvaffaqiyatli ro'yhatdan o'tdingiz. Iltimos shaxsiy ma'lumotlaringizni to'ldiring.")
	})
	if err != nil {
		return c.JSON(fiber.Map{
			"success": false, "code": 103,
			"error": "failed to create user",
		})
	}

	if err := h.sms.SendActivationCode(user.Phone, code); err != nil {
		log.Printf("activation sms to %s failed: %v", user.Phone, err)
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 102,
		"user": fiber.Map{
			"id":         user.ID,
			"phone":      user.Phone,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"ref":        user.Ref,
			"referrer":   req.Referrer,
		},
	})
}

type activateRequest struct {
	Phone    string `json:"phone"`
	Code     string `json:"code"`
	Referrer string `json:"referrer"`
}

// Activate confirms the SMS code, activates the account and attributes the
// referral.
func (h *AuthHandler) Activate(c *fiber.Ctx) error {
	var req activateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	var activation models.PhoneActivation
	if err := h.db.Where("phone = ?", req.Phone).First(&user).Error; err != nil ||
		h.db.Where("phone = ?", req.Phone).Order("created_at desc").First(&activation).Error != nil {
		return c.JSON(fiber.Map{
			"success": false, "code": 107,
			"error": "unknown phone number",
		})
	}

	if user.IsActive && activation.Activated {
		return c.JSON(fiber.Map{
			"success": false, "code": 105,
			"message": "user is already activated",
		})
	}

	if activation.Code != req.Code || activation.ForcedExpired || activation.Expired(time.Now()) {
		return c.JSON(fiber.Map{
			"success": false, "code": 106,
			"error": "invalid confirmation code",
		})
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PhoneActivation{}).Where("id = ?", activation.ID).
			Update("activated", true).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("is_active", true).Error
	})
	if err != nil {
		return err
	}

	if _, err := h.referral.AttachReferral(&user, req.Referrer); err != nil {
		log.Printf("referral attribution for %s failed: %v", user.Phone, err)
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 104,
		"message": "activation succeeded",
	})
}

type resendRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// ResendSMS re-sends the activation code, updating the pending account's
// password along the way.
func (h *AuthHandler) ResendSMS(c *fiber.Ctx) error {
	var req resendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	var activation models.PhoneActivation
	if err := h.db.Where("phone = ?", req.Phone).First(&user).Error; err != nil ||
		h.db.Where("phone = ?", req.Phone).Order("created_at desc").First(&activation).Error != nil {
		return c.JSON(fiber.Map{
			"success": false, "code": 110,
			"error": "unknown phone number",
		})
	}

	if user.IsActive && activation.Activated {
		return c.JSON(fiber.Map{
			"success": false, "code": 109,
			"error": "this phone number is already activated",
		})
	}

	if req.Password != "" {
		passwordHash, err := utils.HashPassword(req.Password)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
		}
		if err := h.db.Model(&models.User{}).Where("id = ?", user.ID).
			Update("password_hash", passwordHash).Error; err != nil {
			return err
		}
	}

	code, err := utils.RandomPhoneCode()
	if err != nil {
		return err
	}
	if err := h.db.Model(&models.PhoneActivation{}).Where("id = ?", activation.ID).
		Updates(map[string]any{"code": code, "created_at": time.Now()}).Error; err != nil {
		return err
	}
	if err := h.sms.SendActivationCode(user.Phone, code); err != nil {
		log.Printf("activation sms to %s failed: %v", user.Phone, err)
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 108,
		"message": "confirmation code re-sent",
	})
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates an activated user and issues a JWT.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	if err := h.db.Where("phone = ?", req.Phone).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	if !user.IsActive {
		return fiber.NewError(fiber.StatusUnauthorized, "account is not activated")
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user": fiber.Map{
			"id":         user.ID,
			"phone":      user.Phone,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
		},
		"token": token,
	})
}
