package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys holding fleet-wide request statistics for the health endpoint.
const (
	KeyReqTotal  = "navigate:health:req_total"
	KeyReqErrors = "navigate:health:req_errors"
	KeyResTime   = "navigate:health:res_time_total"
	KeyResCount  = "navigate:health:res_count"
	KeyStartTime = "navigate:health:start_time"
	KeyLastReq   = "navigate:health:last_request"
	KeyErrorLog  = "navigate:health:error_log"

	errorLogSize = 50
)

// HealthKeys lists every statistics key, for resets.
var HealthKeys = []string{KeyReqTotal, KeyReqErrors, KeyResTime, KeyResCount, KeyStartTime, KeyLastReq, KeyErrorLog}

// HealthMarker records request stats in Redis (skips /health*, /metrics and favicon).
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if rdb == nil || strings.HasPrefix(path, "/health") || path == "/metrics" || strings.HasPrefix(path, "/favicon") {
			return c.Next()
		}

		start := time.Now()
		lastReq := map[string]interface{}{
			"time":   start,
			"ip":     c.IP(),
			"path":   c.OriginalURL(),
			"method": c.Method(),
		}
		b, _ := json.Marshal(lastReq)
		ctx := context.Background()
		pipe := rdb.Pipeline()
		pipe.Set(ctx, KeyLastReq, b, 0)
		pipe.Incr(ctx, KeyReqTotal)
		_, _ = pipe.Exec(ctx)

		err := c.Next()

		ms := time.Since(start).Milliseconds()
		pipe = rdb.Pipeline()
		pipe.Incr(ctx, KeyResCount)
		pipe.IncrByFloat(ctx, KeyResTime, float64(ms))
		if err != nil || c.Response().StatusCode() >= 500 {
			pipe.Incr(ctx, KeyReqErrors)
		}
		_, _ = pipe.Exec(ctx)
		return err
	}
}

// RecordError prepends an entry to the bounded error log.
func RecordError(ctx context.Context, rdb *redis.Client, entry map[string]interface{}) {
	if rdb == nil {
		return
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	pipe := rdb.Pipeline()
	pipe.LPush(ctx, KeyErrorLog, b)
	pipe.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
	_, _ = pipe.Exec(ctx)
}
