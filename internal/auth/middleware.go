package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const localsUserID = "user_id"

// UserID is the caller set by the middleware, empty on public routes.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsUserID).(string)
	return id
}

// Middleware rejects requests without a valid access token and records the
// caller for UserID.
func (s *Service) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearer(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		userID, err := s.ValidateAccessToken(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals(localsUserID, userID)
		return c.Next()
	}
}

func bearer(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
