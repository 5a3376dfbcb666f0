package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/middleware"
	"github.com/example/aristotle/internal/models"
	"github.com/example/aristotle/internal/services"
	"github.com/example/aristotle/internal/utils"
)

// PasswordHandler covers the reset (forgotten password) and change
// (authenticated) flows.
type PasswordHandler struct {
	db  *gorm.DB
	sms *services.SMSService
}

// NewPasswordHandler constructs a PasswordHandler.
func NewPasswordHandler(db *gorm.DB, sms *services.SMSService) *PasswordHandler {
	return &PasswordHandler{db: db, sms: sms}
}

type resetSendRequest struct {
	Phone string `json:"phone"`
}

// ResetSend sends a fresh confirmation code to an activated account.
func (h *PasswordHandler) ResetSend(c *fiber.Ctx) error {
	var req resetSendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	var activation models.PhoneActivation
	if err := h.db.Where("phone = ? AND is_active = ?", req.Phone, true).First(&user).Error; err != nil ||
		h.db.Where("phone = ? AND activated = ?", req.Phone, true).Order("created_at desc").First(&activation).Error != nil {
		return c.JSON(fiber.Map{
			"success": false, "code": 112,
			"error": "unknown phone number",
		})
	}

	code, err := utils.RandomPhoneCode()
	if err != nil {
		return err
	}
	if err := h.db.Model(&models.PhoneActivation{}).Where("id = ?", activation.ID).
		Update("code", code).Error; err != nil {
		return err
	}
	if err := h.sms.SendActivationCode(user.Phone, code); err != nil {
		log.Printf("reset sms to %s failed: %v", user.Phone, err)
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 111,
		"message": "confirmation code sent",
	})
}

type resetVerifyRequest struct {
	Phone string `json:"phone"`
	SMS   string `json:"sms"`
}

// ResetVerify checks the code before the client shows the new-password form.
func (h *PasswordHandler) ResetVerify(c *fiber.Ctx) error {
	var req resetVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var count int64
	if err := h.db.Model(&models.PhoneActivation{}).
		Where("phone = ? AND code = ? AND activated = ?", req.Phone, req.SMS, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return c.JSON(fiber.Map{
			"success": false, "code": 114,
			"error": "invalid confirmation code",
		})
	}
	return c.JSON(fiber.Map{
		"success": true, "code": 113,
		"message": "code verified",
	})
}

type resetRestoreRequest struct {
	Phone     string `json:"phone"`
	SMS       string `json:"sms"`
	Password1 string `json:"password1"`
}

// ResetRestore sets the new password after a verified code.
func (h *PasswordHandler) ResetRestore(c *fiber.Ctx) error {
	var req resetRestoreRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	var count int64
	if err := h.db.Where("phone = ? AND is_active = ?", req.Phone, true).First(&user).Error; err != nil {
		return c.JSON(fiber.Map{
			"success": false, "code": 116,
			"error": "invalid confirmation code",
		})
	}
	if err := h.db.Model(&models.PhoneActivation{}).
		Where("phone = ? AND code = ? AND activated = ?", req.Phone, req.SMS, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return c.JSON(fiber.Map{
			"success": false, "code": 116,
			"error": "invalid confirmation code",
		})
	}

	passwordHash, err := utils.HashPassword(req.Password1)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	if err := h.db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("password_hash", passwordHash).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 115,
		"message": "account restored",
	})
}

type changeVerifyRequest struct {
	OldPassword string `json:"old_password"`
}

// ChangeVerify confirms the current password before a change.
func (h *PasswordHandler) ChangeVerify(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}
	var req changeVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return err
	}
	if !utils.CheckPassword(user.PasswordHash, req.OldPassword) {
		return c.JSON(fiber.Map{
			"success": false, "code": 118,
			"error": "incorrect password",
		})
	}
	return c.JSON(fiber.Map{
		"success": true, "code": 117,
		"message": "password verified",
	})
}

type changeRequest struct {
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

// Change sets a new password for the authenticated user.
func (h *PasswordHandler) Change(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}
	var req changeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Password1 != req.Password2 {
		return c.JSON(fiber.Map{
			"success": false, "code": 120,
			"error": "passwords do not match",
		})
	}

	passwordHash, err := utils.HashPassword(req.Password1)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	if err := h.db.Model(&models.User{}).Where("id = ?", userID).
		Update("password_hash", passwordHash).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 119,
		"message": "password changed",
	})
}
