package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/middleware"
	"github.com/example/aristotle/internal/models"
	"github.com/example/aristotle/internal/services"
)

// ProfileHandler serves the authenticated user's profile surface:
// account data, notifications, balance and referral information.
type ProfileHandler struct {
	db       *gorm.DB
	referral *services.ReferralService
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{db: db, referral: services.NewReferralService(db)}
}

// GetUser returns the current user.
func (h *ProfileHandler) GetUser(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
	})
}

type updateUserRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
}

// UpdateUser partially updates the current user's editable fields.
func (h *ProfileHandler) UpdateUser(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]any{}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if len(updates) > 0 {
		if err := h.db.Model(&models.User{}).Where("id = ?", userID).
			Updates(updates).Error; err != nil {
			return err
		}
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
	})
}

// Notifications lists the user's visible notifications, newest first.
func (h *ProfileHandler) Notifications(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var notifications []models.Notification
	if err := h.db.Where("user_id = ? AND show_status = ?", userID, true).
		Order("created_at desc").
		Find(&notifications).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    notifications,
	})
}

// HideNotification marks one notification as seen.
func (h *ProfileHandler) HideNotification(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	result := h.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", c.Params("id"), userID).
		Update("show_status", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "notification not found")
	}

	return c.JSON(fiber.Map{"success": true})
}

// Balance returns the user's bonus points and their monetary value.
func (h *ProfileHandler) Balance(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var balance models.AccountBalance
	if err := h.db.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		balance = models.AccountBalance{UserID: userID}
	}

	rate, err := h.referral.CurrentRate()
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"bonus":  balance.Bonus,
			"amount": balance.Amount,
			"rate":   rate.Value,
		},
	})
}

// ReferralInfo returns the user's referral code and the users they brought in.
func (h *ProfileHandler) ReferralInfo(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return err
	}

	referred, err := h.referral.ReferredUsers(userID)
	if err != nil {
		return err
	}

	type referredUser struct {
		ID        any    `json:"id"`
		Phone     string `json:"phone"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	list := make([]referredUser, 0, len(referred))
	for _, u := range referred {
		list = append(list, referredUser{ID: u.ID, Phone: u.Phone, FirstName: u.FirstName, LastName: u.LastName})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"ref":            user.Ref,
			"referred_users": list,
		},
	})
}
