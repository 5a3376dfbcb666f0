package middleware

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/aristotle/internal/services"
)

type paycomRequestID struct {
	ID any `json:"id"`
}

// PaycomAuthMiddleware validates the Paycom callback Authorization header.
// The gateway sends Basic credentials containing the merchant key.
func PaycomAuthMiddleware(merchantKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var reqID paycomRequestID
		_ = json.Unmarshal(c.Body(), &reqID)

		authHeader := c.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 {
			return writePaycomAuthError(c, reqID.ID)
		}

		decoded, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return writePaycomAuthError(c, reqID.ID)
		}

		if merchantKey == "" || !strings.Contains(string(decoded), merchantKey) {
			return writePaycomAuthError(c, reqID.ID)
		}

		return c.Next()
	}
}

func writePaycomAuthError(c *fiber.Ctx, id any) error {
	info := services.PaycomErrorInvalidAuthorization
	return c.JSON(fiber.Map{
		"error": fiber.Map{
			"code": info.Code,
			"message": fiber.Map{
				"uz": info.Message["uz"],
				"ru": info.Message["ru"],
				"en": info.Message["en"],
			},
			"data": nil,
		},
		"id": id,
	})
}
