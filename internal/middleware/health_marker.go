package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys shared with the health handlers.
const (
	KeyReqTotal     = "health:global:req_total"
	KeyReqErrors    = "health:global:req_errors"
	KeyResTime      = "health:global:res_time_total"
	KeyResCount     = "health:global:res_count"
	KeyStartTime    = "health:global:start_time"
	KeyLastReq      = "health:global:last_request"
	KeyErrorLog     = "health:global:error_log"
	KeyIntegrityLog = "health:global:integrity_log"
)

const errorLogSize = 50

// HealthMarker records request stats in Redis. Health routes and price
// streams are skipped; a stream stays open for the life of the client.
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/" || strings.HasPrefix(path, "/health") || strings.HasSuffix(path, "/stream") {
			return c.Next()
		}

		start := time.Now()
		ctx := context.Background()
		lastReq, _ := json.Marshal(map[string]interface{}{
			"time":   start.UTC(),
			"ip":     c.IP(),
			"path":   c.OriginalURL(),
			"method": c.Method(),
		})
		pipe := rdb.Pipeline()
		pipe.Set(ctx, KeyLastReq, lastReq, 0)
		pipe.Incr(ctx, KeyReqTotal)
		_, _ = pipe.Exec(ctx)

		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = StatusFor(err)
		}

		pipe = rdb.Pipeline()
		pipe.Incr(ctx, KeyResCount)
		pipe.IncrByFloat(ctx, KeyResTime, float64(time.Since(start).Milliseconds()))
		if status >= fiber.StatusInternalServerError {
			entry, _ := json.Marshal(map[string]interface{}{
				"time":     time.Now().UTC(),
				"path":     c.OriginalURL(),
				"method":   c.Method(),
				"status":   status,
				"trace_id": GetTraceID(c),
			})
			pipe.Incr(ctx, KeyReqErrors)
			pipe.LPush(ctx, KeyErrorLog, entry)
			pipe.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
		}
		_, _ = pipe.Exec(ctx)
		return err
	}
}
