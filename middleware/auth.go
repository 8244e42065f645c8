package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

const (
	LocalMemberID   = "member_id"
	LocalMemberName = "member_name"
)

// MemberContextMiddleware reads the chat identity the gateway forwards.
// X-User-ID is mandatory; X-User-Name falls back to the id. Both are copied
// out of the request buffer since registrations outlive the request.
func MemberContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		memberID := fiberutils.CopyString(strings.TrimSpace(c.Get("X-User-ID")))
		if memberID == "" {
			log.Printf("❌ [MEMBER_CTX] X-User-ID missing on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID",
			})
		}
		name := fiberutils.CopyString(strings.TrimSpace(c.Get("X-User-Name")))
		if name == "" {
			name = memberID
		}

		c.Locals(LocalMemberID, memberID)
		c.Locals(LocalMemberName, name)
		return c.Next()
	}
}

// Member returns the identity stored by MemberContextMiddleware.
func Member(c *fiber.Ctx) (id, name string) {
	id, _ = c.Locals(LocalMemberID).(string)
	name, _ = c.Locals(LocalMemberName).(string)
	return id, name
}
