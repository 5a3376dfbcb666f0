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

// CartHandler serves the active cart and the wishlist.
type CartHandler struct {
	db    *gorm.DB
	carts *services.CartService
}

// NewCartHandler constructs a CartHandler.
func NewCartHandler(db *gorm.DB) *CartHandler {
	return &CartHandler{db: db, carts: services.NewCartService(db)}
}

func (h *CartHandler) cartPayload(cart *models.Cart) (fiber.Map, error) {
	items, err := h.carts.Items(cart.ID, models.InsertUnpaid)
	if err != nil {
		return nil, err
	}
	return fiber.Map{
		"id":       cart.ID,
		"subtotal": cart.Subtotal,
		"total":    cart.Total,
		"items":    items,
	}, nil
}

// ActiveCart returns the user's active cart, creating one when absent.
func (h *CartHandler) ActiveCart(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	cart, err := h.carts.ActiveCart(userID)
	if err != nil {
		return err
	}
	payload, err := h.cartPayload(cart)
	if err != nil {
		return err
	}
	payload["success"] = true
	payload["code"] = 400
	return c.JSON(payload)
}

type addToCartRequest struct {
	Courses             []uuid.UUID `json:"courses"`
	CertificatedCourses []uuid.UUID `json:"certificated_courses"`
}

// AddToCart adds courses and bundles to the cart. The whole batch is
// validated first; any unknown or already-paid id rejects it with the full
// list of offending ids.
func (h *CartHandler) AddToCart(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var req addToCartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Courses) == 0 && len(req.CertificatedCourses) == 0 {
		return c.JSON(fiber.Map{
			"success": false, "code": 405,
			"message": "provide courses or certificated_courses",
		})
	}

	cart, err := h.carts.ActiveCart(userID)
	if err != nil {
		return err
	}

	invalid, err := h.carts.ValidateCourses(userID, req.Courses)
	if err != nil {
		return err
	}
	if len(invalid) > 0 {
		return c.JSON(fiber.Map{
			"success": false, "code": 403,
			"message":     "invalid course ids or already paid courses",
			"invalid_ids": invalid,
		})
	}

	if err := h.carts.AddItems(cart, req.Courses, req.CertificatedCourses); err != nil {
		return err
	}

	payload, err := h.cartPayload(cart)
	if err != nil {
		return err
	}
	payload["success"] = true
	payload["code"] = 402
	return c.JSON(payload)
}

type removeFromCartRequest struct {
	ID uuid.UUID `json:"id"`
}

// RemoveFromCart removes one unpaid course; a bundle-tagged row re-expands
// its bundle into individually priced items.
func (h *CartHandler) RemoveFromCart(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var req removeFromCartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cart, err := h.carts.ActiveCart(userID)
	if err != nil {
		return err
	}

	if err := h.carts.RemoveItem(cart, req.ID); err != nil {
		if errors.Is(err, services.ErrNotInCart) || errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{
				"success": false, "code": 407,
				"message": "invalid object id",
			})
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "code": 406})
}

// Wishlist returns the DESIRE rows of the active cart.
func (h *CartHandler) Wishlist(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	cart, err := h.carts.ActiveCart(userID)
	if err != nil {
		return err
	}
	items, err := h.carts.Items(cart.ID, models.InsertDesire)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 400,
		"items": items,
	})
}

type wishlistRequest struct {
	Courses []uuid.UUID `json:"courses"`
}

// AddToWishlist puts courses on the wishlist.
func (h *CartHandler) AddToWishlist(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var req wishlistRequest
	if err := c.BodyParser(&req); err != nil || len(req.Courses) == 0 {
		return c.JSON(fiber.Map{
			"success": false, "code": 405,
			"message": "invalid data",
		})
	}

	cart, err := h.carts.ActiveCart(userID)
	if err != nil {
		return err
	}

	invalid, err := h.carts.ValidateCourses(userID, req.Courses)
	if err != nil {
		return err
	}
	if len(invalid) > 0 {
		return c.JSON(fiber.Map{
			"success": false, "code": 403,
			"message":     "invalid course ids or already paid courses",
			"invalid_ids": invalid,
		})
	}

	if err := h.carts.AddDesire(cart, req.Courses); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "code": 410})
}

// RemoveFromWishlist drops one course from the wishlist.
func (h *CartHandler) RemoveFromWishlist(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var req removeFromCartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cart, err := h.carts.ActiveCart(userID)
	if err != nil {
		return err
	}

	if err := h.carts.RemoveDesire(cart, req.ID); err != nil {
		if errors.Is(err, services.ErrNotInCart) {
			return c.JSON(fiber.Map{
				"success": false, "code": 407,
				"message": "invalid course id",
			})
		}
		return err
	}
	return c.JSON(fiber.Map{"success": true, "code": 409})
}
