package health

import (
	"encoding/json"
	"strconv"
	"time"

	healthsvc "atelier-backend/internal/application/health"
	"atelier-backend/internal/application/ledger"
	"atelier-backend/internal/middleware"
	"atelier-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Rdb            *redis.Client
	DB             healthsvc.DBPinger
	Escrow         healthsvc.EscrowCounter
	IntegrityLog   *healthsvc.IntegrityLog
	Ledger         *ledger.Service
	HealthAdminKey string
}

func (h *Handlers) admin(c *fiber.Ctx) bool {
	key := c.Query("key")
	return key != "" && key == h.HealthAdminKey
}

// Reset clears health stats in Redis. Requires query key=HEALTH_ADMIN_KEY.
// The integrity log is kept; it is cleared only by hand.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	if !h.admin(c) {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}
	ctx := c.Context()
	keys := []string{middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime, middleware.KeyResCount, middleware.KeyStartTime, middleware.KeyLastReq, middleware.KeyErrorLog}
	if err := h.Rdb.Del(ctx, keys...).Err(); err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	if err := h.Rdb.Set(ctx, middleware.KeyStartTime, strconv.FormatInt(time.Now().UnixMilli(), 10), 0).Err(); err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Stats reset successfully", fiber.Map{"success": true}, nil)
}

// JSON returns service status, runtime, traffic, dependencies and escrow figures.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	result := healthsvc.CollectHealth(c.Context(), h.Rdb, h.DB, h.Escrow)
	code := fiber.StatusOK
	if result.Status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"service":      "atelier-api",
		"status":       result.Status,
		"runtime":      result.Runtime,
		"traffic":      result.Traffic,
		"dependencies": result.Dependencies,
		"escrow":       result.Escrow,
	})
}

// Errors returns the last 50 error log entries from Redis.
func (h *Handlers) Errors(c *fiber.Ctx) error {
	entries, err := h.Rdb.LRange(c.Context(), middleware.KeyErrorLog, 0, 49).Result()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON([]interface{}{})
	}
	out := make([]map[string]interface{}, 0, len(entries))
	for _, s := range entries {
		var m map[string]interface{}
		if json.Unmarshal([]byte(s), &m) == nil && m != nil {
			out = append(out, m)
		}
	}
	return c.JSON(out)
}

// Integrity lists recent integrity incidents. With run=1 it first reconciles
// every account, which reports any new mismatch into the log.
func (h *Handlers) Integrity(c *fiber.Ctx) error {
	if !h.admin(c) {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}
	meta := fiber.Map{}
	if c.Query("run") == "1" && h.Ledger != nil {
		bad, err := h.Ledger.ReconcileAll(c.Context())
		if err != nil {
			return middleware.Fail(c, err)
		}
		meta["mismatched_accounts"] = len(bad)
	}
	incidents, err := h.IntegrityLog.Recent(c.Context(), 50)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Integrity incidents", incidents, meta)
}
