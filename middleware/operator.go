// middleware/operator.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// OperatorAuthMiddleware admits requests carrying the operator bearer
// token. An empty token locks the operator routes entirely.
func OperatorAuthMiddleware(expectedToken string) fiber.Handler {
	log := logrus.WithField("module", "operator_auth")
	if expectedToken == "" {
		log.Warn("OPERATOR_TOKEN is not set, operator routes will reject every request")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.WithField("path", c.Path()).Warn("missing Authorization header")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "operator token missing",
			})
		}

		// accept "Bearer <token>" or the raw token
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.WithField("path", c.Path()).Warn("invalid operator token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "invalid operator token",
			})
		}

		c.Locals("operator", true)
		return c.Next()
	}
}
