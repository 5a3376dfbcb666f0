package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/config"
	"github.com/example/aristotle/internal/middleware"
	"github.com/example/aristotle/internal/models"
	"github.com/example/aristotle/internal/services"
	"github.com/example/aristotle/internal/utils"
)

const paycomCheckoutURL = "https://checkout.paycom.uz/"

// OrderHandler serves checkout, order history and the payment entry points.
type OrderHandler struct {
	db        *gorm.DB
	cfg       *config.Config
	orders    *services.OrderService
	subscribe *services.SubscribeService
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(db *gorm.DB, cfg *config.Config, subscribe *services.SubscribeService) *OrderHandler {
	return &OrderHandler{
		db:        db,
		cfg:       cfg,
		orders:    services.NewOrderService(db),
		subscribe: subscribe,
	}
}

// Checkout snapshots the active cart into an order, reusing the open order
// when its course set is unchanged.
func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	order, err := h.orders.Checkout(userID)
	if err != nil {
		if errors.Is(err, services.ErrEmptyCheckout) {
			return c.JSON(fiber.Map{
				"success": false, "code": 704,
				"error": "no course selected for payment",
			})
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{
				"success": false, "code": 702,
				"error": "no active cart",
			})
		}
		return c.JSON(fiber.Map{
			"success": false, "code": 701,
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 700,
		"order_unique_id": order.PublicID,
	})
}

// ActiveOrder returns the user's single open order.
func (h *OrderHandler) ActiveOrder(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	order, err := h.orders.ActiveOrder(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{
				"success": false, "code": 711,
				"message": "no active order",
			})
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 710,
		"order": order,
	})
}

// ListOrders returns the user's orders, optionally filtered by payment
// status.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	p := utils.ParsePagination(c)
	query := h.db.Where("user_id = ?", userID)
	if status := c.Query("payment_status"); status != "" {
		query = query.Where("payment_status = ?", status)
	}

	var orders []models.Order
	if err := query.Preload("Checkout").
		Order("created_at desc").
		Offset(p.Offset).Limit(p.Limit).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"page":    p.Page,
		"limit":   p.Limit,
	})
}

// GetOrder returns one of the user's orders by public id.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var order models.Order
	if err := h.db.Where("user_id = ? AND public_id = ?", userID, c.Params("id")).
		Preload("Checkout").
		Preload("Checkout.Items").
		Preload("Checkout.Items.Course").
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"order":   order,
	})
}

type merchantPayRequest struct {
	OrderUniqueID string `json:"order_unique_id"`
}

// MerchantPayURL builds the hosted checkout link for the active order.
func (h *OrderHandler) MerchantPayURL(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var req merchantPayRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var order models.Order
	if err := h.db.Where("user_id = ? AND public_id = ? AND is_active = ?", userID, req.OrderUniqueID, true).
		First(&order).Error; err != nil {
		return c.JSON(fiber.Map{
			"success": false, "code": 761,
			"error": "active order not found",
		})
	}

	amount := int64(order.Total) * 100
	redirectURL := h.cfg.CertificateDomain + "/user"
	params := fmt.Sprintf("m=%s;ac.order_id=%s;a=%d;c=%s", h.cfg.PaycomMerchantID, order.PublicID, amount, redirectURL)
	encoded := base64.StdEncoding.EncodeToString([]byte(params))

	return c.JSON(fiber.Map{
		"success": true, "code": 760,
		"url": paycomCheckoutURL + encoded,
	})
}

type receiptPayRequest struct {
	CardID uuid.UUID `json:"card_id"`
}

// ReceiptPay charges a stored verified card for the user's active order and
// fulfills it on success.
func (h *OrderHandler) ReceiptPay(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var req receiptPayRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.orders.ActiveOrder(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{
				"success": false, "code": 754,
				"error": "no active order",
			})
		}
		return err
	}

	card, err := h.subscribe.CardByID(userID, req.CardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{
				"success": false, "code": 754,
				"error": "card not found",
			})
		}
		return err
	}

	receiptID, err := h.subscribe.PayOrder(order, card)
	if err != nil {
		return c.JSON(fiber.Map{
			"success": false, "paid": false, "code": 756,
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true, "paid": true, "code": 757,
		"message":    "payment completed",
		"receipt_id": receiptID,
	})
}
