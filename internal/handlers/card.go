package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/middleware"
	"github.com/example/aristotle/internal/models"
	"github.com/example/aristotle/internal/services"
)

// CardHandler serves stored-card tokenization endpoints.
type CardHandler struct {
	db        *gorm.DB
	subscribe *services.SubscribeService
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(db *gorm.DB, subscribe *services.SubscribeService) *CardHandler {
	return &CardHandler{db: db, subscribe: subscribe}
}

type createCardRequest struct {
	Number string `json:"number"`
	Expire string `json:"expire"`
}

// Create tokenizes a card and stores it unverified.
func (h *CardHandler) Create(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var req createCardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Number == "" || req.Expire == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing card number or expire")
	}

	card, err := h.subscribe.CreateCard(userID, req.Number, req.Expire)
	if err != nil {
		return c.JSON(fiber.Map{"success": false, "code": 751, "message": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 750,
		"card": card,
	})
}

// RequestVerifyCode asks the gateway to send the verification SMS.
func (h *CardHandler) RequestVerifyCode(c *fiber.Ctx) error {
	card, err := h.userCard(c)
	if err != nil {
		return err
	}

	phone, err := h.subscribe.RequestVerifyCode(card)
	if err != nil {
		return c.JSON(fiber.Map{"success": false, "code": 751, "message": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 750,
		"phone": phone,
	})
}

type verifyCardRequest struct {
	Code string `json:"code"`
}

// Verify confirms the SMS code and activates the card.
func (h *CardHandler) Verify(c *fiber.Ctx) error {
	card, err := h.userCard(c)
	if err != nil {
		return err
	}

	var req verifyCardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.subscribe.VerifyCard(card, req.Code); err != nil {
		return c.JSON(fiber.Map{"success": false, "code": 752, "message": err.Error()})
	}

	return c.JSON(fiber.Map{"success": true, "code": 750})
}

// List returns the user's stored cards.
func (h *CardHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	cards, err := h.subscribe.Cards(userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    cards,
	})
}

// Remove deletes the token on the gateway and marks the card deleted.
func (h *CardHandler) Remove(c *fiber.Ctx) error {
	card, err := h.userCard(c)
	if err != nil {
		return err
	}

	if err := h.subscribe.RemoveCard(card); err != nil {
		return c.JSON(fiber.Map{"success": false, "code": 751, "message": err.Error()})
	}

	return c.JSON(fiber.Map{"success": true, "code": 750})
}

func (h *CardHandler) userCard(c *fiber.Ctx) (*models.Card, error) {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return nil, err
	}
	cardID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid card id")
	}
	card, err := h.subscribe.CardByID(userID, cardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "card not found")
		}
		return nil, err
	}
	return card, nil
}
