package middleware

import (
	"strings"

	"github.com/Fairfood/Navigate-Server/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig lists the origin suffixes allowed to call the API from a browser.
type CORSConfig struct {
	AllowedSuffixes []string
	AllowLocalhost  bool
}

// CORS allows origins ending with one of AllowedSuffixes, and localhost when
// AllowLocalhost is set. Requests without an Origin pass through.
func CORS(cfg CORSConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin == "" {
			return c.Next()
		}
		if !originAllowed(cfg, origin) {
			return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
		}
		setCORSHeaders(c, origin)
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func originAllowed(cfg CORSConfig, origin string) bool {
	o := strings.ToLower(origin)
	if cfg.AllowLocalhost && (strings.HasPrefix(o, "http://localhost:") || strings.HasPrefix(o, "http://127.0.0.1:")) {
		return true
	}
	for _, s := range cfg.AllowedSuffixes {
		if s != "" && strings.HasSuffix(o, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func setCORSHeaders(c *fiber.Ctx, origin string) {
	c.Set("Access-Control-Allow-Origin", origin)
	c.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
	c.Set("Access-Control-Allow-Headers", "Content-Type, "+CompanyIDHeader+", "+traceIDHeader)
	c.Set("Vary", "Origin")
}
