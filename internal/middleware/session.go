package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// SessionConfig for the Redis-backed session. Sessions are issued by the
// account service; this API only reads them.
type SessionConfig struct {
	Secret   string
	RedisURL string
}

const (
	SessionCookieName  = "atelier.sid"
	SessionRedisPrefix = "session:"
	sessionMaxAge      = 24 * time.Hour
)

// SessionUser is the shape stored in session under "user".
type SessionUser struct {
	UserID   string `json:"user_id"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Session returns a Fiber middleware that loads the session from Redis and
// slides its expiry on every authenticated request.
func Session(cfg SessionConfig) (fiber.Handler, *redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opt)
	return SessionWithClient(rdb), rdb, nil
}

func SessionWithClient(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(SessionCookieName)
		// Signed cookies look like "s:id.signature"
		if strings.HasPrefix(sessionID, "s:") {
			sessionID = strings.SplitN(sessionID[2:], ".", 2)[0]
		}

		var data map[string]interface{}
		if sessionID != "" {
			b, err := rdb.Get(c.Context(), SessionRedisPrefix+sessionID).Bytes()
			if err == nil {
				_ = json.Unmarshal(b, &data)
			}
		}
		c.Locals("session_id", sessionID)
		if u, ok := data["user"]; ok {
			c.Locals(userLocal, u)
			rdb.Expire(context.Background(), SessionRedisPrefix+sessionID, sessionMaxAge)
		} else {
			c.Locals(userLocal, nil)
		}
		return c.Next()
	}
}

// StoreSession writes a session for user under id. Used by the account
// service's fixtures and by tests.
func StoreSession(ctx context.Context, rdb *redis.Client, id string, user SessionUser) error {
	b, err := json.Marshal(map[string]interface{}{"user": user})
	if err != nil {
		return err
	}
	return rdb.Set(ctx, SessionRedisPrefix+id, b, sessionMaxAge).Err()
}

// GetSessionID returns the current session ID from context.
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals("session_id").(string)
	return sid
}
