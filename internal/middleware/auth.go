package middleware

import (
	"atelier-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const userLocal = "user"

// RequireAuth ensures a user is in the session. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals(userLocal)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		if _, ok := CurrentAccountID(c); !ok {
			return response.Unauthorized(c, "Session has no account")
		}
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}

// CurrentAccountID is the escrow account of the session user. A user's
// account id is their user id.
func CurrentAccountID(c *fiber.Ctx) (uuid.UUID, bool) {
	m, ok := GetUser(c).(map[string]interface{})
	if !ok {
		return uuid.Nil, false
	}
	s, _ := m["user_id"].(string)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
