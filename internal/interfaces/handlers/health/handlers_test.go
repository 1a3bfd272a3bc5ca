package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	healthsvc "atelier-backend/internal/application/health"
	"atelier-backend/internal/application/ledger"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/infrastructure/database"
	"atelier-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupHealthHandlers(t *testing.T) (*Handlers, *gorm.DB, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	ilog := &healthsvc.IntegrityLog{Rdb: rdb}
	return &Handlers{
		Rdb:            rdb,
		DB:             &healthsvc.GormPinger{DB: db},
		Escrow:         &healthsvc.GormEscrowCounter{DB: db},
		IntegrityLog:   ilog,
		Ledger:         &ledger.Service{DB: db, Reporter: ilog},
		HealthAdminKey: "test-admin-key",
	}, db, rdb
}

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	var out map[string]interface{}
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestReset_Unauthorized(t *testing.T) {
	h, _, _ := setupHealthHandlers(t)
	app := fiber.New()
	app.Get("/reset", h.Reset)

	resp, err := app.Test(httptest.NewRequest("GET", "/reset", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	out := decode(t, resp.Body)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "Unauthorized", out["error"].(map[string]interface{})["message"])

	resp, err = app.Test(httptest.NewRequest("GET", "/reset?key=wrong", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestReset_Success(t *testing.T) {
	h, _, rdb := setupHealthHandlers(t)
	app := fiber.New()
	app.Get("/reset", h.Reset)

	ctx := context.Background()
	require.NoError(t, rdb.Set(ctx, middleware.KeyReqTotal, "42", 0).Err())
	require.NoError(t, rdb.LPush(ctx, middleware.KeyIntegrityLog, "{}").Err())

	resp, err := app.Test(httptest.NewRequest("GET", "/reset?key=test-admin-key", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, int64(0), rdb.Exists(ctx, middleware.KeyReqTotal).Val())
	assert.Equal(t, int64(1), rdb.Exists(ctx, middleware.KeyStartTime).Val())
	assert.Equal(t, int64(1), rdb.LLen(ctx, middleware.KeyIntegrityLog).Val())
}

func TestJSON_ReportsEscrow(t *testing.T) {
	h, db, _ := setupHealthHandlers(t)
	require.NoError(t, db.Create(&domain.Account{AccountID: uuid.New(), Total: 1000, Escrowed: 400, Available: 600}).Error)
	app := fiber.New()
	app.Get("/health/json", h.JSON)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode(t, resp.Body)
	assert.Equal(t, "ok", out["status"])
	escrow := out["escrow"].(map[string]interface{})
	assert.Equal(t, float64(400), escrow["escrowedTotal"])
}

func TestErrors_ReturnsLog(t *testing.T) {
	h, _, rdb := setupHealthHandlers(t)
	require.NoError(t, rdb.LPush(context.Background(), middleware.KeyErrorLog, `{"path":"/x","status":500}`).Err())
	app := fiber.New()
	app.Get("/health/errors", h.Errors)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/errors", nil))
	require.NoError(t, err)
	var out []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "/x", out[0]["path"])
}

func TestIntegrity_RunReconciles(t *testing.T) {
	h, db, _ := setupHealthHandlers(t)
	// Escrowed funds with no open hold behind them.
	require.NoError(t, db.Create(&domain.Account{AccountID: uuid.New(), Total: 1000, Escrowed: 400, Available: 600}).Error)
	app := fiber.New()
	app.Get("/health/integrity", h.Integrity)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/integrity?key=test-admin-key&run=1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode(t, resp.Body)
	assert.Equal(t, float64(1), out["metadata"].(map[string]interface{})["mismatched_accounts"])
	assert.Len(t, out["data"].([]interface{}), 1)
}
