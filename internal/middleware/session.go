package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SessionHeader carries the wizard session id in both directions
const SessionHeader = "X-Session-ID"

// Session reads the wizard session id from the X-Session-ID header, issuing a
// new one when it is missing or malformed, and echoes it on the response.
func Session() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Get(SessionHeader)
		if sessionID == "" {
			sessionID = c.Query("session")
		}
		if _, err := uuid.Parse(sessionID); err != nil {
			sessionID = uuid.New().String()
		}

		c.Locals("sessionId", sessionID)
		c.Set(SessionHeader, sessionID)

		return c.Next()
	}
}

// GetSessionID extracts the session id from context
func GetSessionID(c *fiber.Ctx) string {
	if sessionID, ok := c.Locals("sessionId").(string); ok {
		return sessionID
	}
	return ""
}
