package handlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/services"
)

// PaycomHandler serves the gateway's JSON-RPC callback.
type PaycomHandler struct {
	db     *gorm.DB
	paycom *services.PaycomService
}

func NewPaycomHandler(db *gorm.DB, paycom *services.PaycomService) *PaycomHandler {
	return &PaycomHandler{db: db, paycom: paycom}
}

type paycomRPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     any             `json:"id"`
}

// Pay dispatches one JSON-RPC call from the gateway.
func (h *PaycomHandler) Pay(c *fiber.Ctx) error {
	var req paycomRPCRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("[Paycom] failed to parse request body: %v", err)
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := context.Background()

	switch req.Method {
	case "CheckPerformTransaction":
		var params services.CheckPerformParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		if err := h.paycom.CheckPerformTransaction(ctx, params, req.ID); err != nil {
			return writePaycomError(c, err)
		}
		return c.JSON(fiber.Map{"result": fiber.Map{"allow": true}})
	case "CheckTransaction":
		var params services.CheckTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		result, err := h.paycom.CheckTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaycomError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "CreateTransaction":
		var params services.CreateTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		result, err := h.paycom.CreateTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaycomError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "PerformTransaction":
		var params services.PerformTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		result, err := h.paycom.PerformTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaycomError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "CancelTransaction":
		var params services.CancelTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		result, err := h.paycom.CancelTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaycomError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "GetStatement":
		var params services.StatementParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		result, err := h.paycom.GetStatement(ctx, params)
		if err != nil {
			return writePaycomError(c, err)
		}
		return c.JSON(fiber.Map{"result": fiber.Map{"transactions": result}})
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unsupported method")
	}
}

func writePaycomError(c *fiber.Ctx, err error) error {
	if txErr, ok := err.(*services.TransactionError); ok {
		info := txErr.Info
		return c.JSON(fiber.Map{
			"error": fiber.Map{
				"code": info.Code,
				"message": fiber.Map{
					"uz": info.Message["uz"],
					"ru": info.Message["ru"],
					"en": info.Message["en"],
				},
				"data": txErr.Data,
			},
			"id": txErr.ID,
		})
	}
	return err
}
