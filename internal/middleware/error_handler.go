package middleware

import (
	"context"
	"time"

	"github.com/Fairfood/Navigate-Server/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrorHandler is the global error handler. Returns the standard error format.
// Server errors are logged and, when rdb is set, kept in the health error log.
func ErrorHandler(rdb *redis.Client) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Msg("Unhandled request error")
			RecordError(context.Background(), rdb, map[string]interface{}{
				"time":     time.Now().UTC(),
				"trace_id": GetTraceID(c),
				"method":   c.Method(),
				"path":     c.Path(),
				"error":    err.Error(),
			})
		}
		return response.Error(c, message, code, nil)
	}
}
