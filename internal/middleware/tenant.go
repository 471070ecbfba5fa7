package middleware

import (
	"crypto/subtle"

	"github.com/Fairfood/Navigate-Server/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	CompanyIDHeader = "X-Company-Id"
	AdminKeyHeader  = "X-Admin-Key"
	companyLocal    = "company_id"
)

// RequireCompany reads the tenant from X-Company-Id into Locals. Requests
// without a valid company id are rejected with 400.
func RequireCompany() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(CompanyIDHeader)
		if raw == "" {
			return response.Error(c, "Missing "+CompanyIDHeader+" header", fiber.StatusBadRequest, nil)
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return response.Error(c, "Invalid "+CompanyIDHeader+" header", fiber.StatusBadRequest, nil)
		}
		c.Locals(companyLocal, id)
		return c.Next()
	}
}

// CompanyID returns the tenant placed in Locals by RequireCompany.
func CompanyID(c *fiber.Ctx) uuid.UUID {
	if id, ok := c.Locals(companyLocal).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// RequireAdminKey guards operator endpoints. An empty key disables them.
func RequireAdminKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(AdminKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return response.Error(c, "Forbidden", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}
