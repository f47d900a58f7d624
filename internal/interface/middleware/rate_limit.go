package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/mtreat/mtreat-backend/pkg/response"
)

// KeyFunc names the Redis counter a request is charged to.
type KeyFunc func(c *gin.Context) string

// AllowFunc reports whether a request skips the limiter entirely.
type AllowFunc func(*gin.Context) bool

// login bodies are tiny; anything longer is not worth decoding for a key
const maxLoginPeek = 4 << 10

func clientIP(c *gin.Context) string {
	if ip := c.GetString(CtxRealIPKey); ip != "" {
		return ip
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// routeOf keys on the registered route so /login and /login/ share a counter.
func routeOf(c *gin.Context) string {
	p := c.FullPath()
	if p == "" {
		p = c.Request.URL.Path
	}
	return strings.TrimSuffix(p, "/")
}

// KeyByIP charges every request from one client address to a single counter.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:ip:" + clientIP(c)
	}
}

// KeyByIPAndPath gives each account route its own per-address budget.
func KeyByIPAndPath() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:route:" + routeOf(c) + ":ip:" + clientIP(c)
	}
}

// KeyByUserID charges authenticated calls to the patient; JWTAuth must run first.
func KeyByUserID() KeyFunc {
	return func(c *gin.Context) string {
		if uid := c.GetString(CtxUserIDKey); uid != "" {
			return "rl:patient:" + uid
		}
		return "rl:patient:anon:ip:" + clientIP(c)
	}
}

// KeyByLoginAttempt counts login attempts per address and claimed username.
// Requests without a readable username fall back to the address alone.
func KeyByLoginAttempt() KeyFunc {
	return func(c *gin.Context) string {
		key := "rl:login:ip:" + clientIP(c)
		if u := loginUsername(c); u != "" {
			key += ":user:" + u
		}
		return key
	}
}

// KeyByLoginUsername counts login attempts against one account from any address.
func KeyByLoginUsername() KeyFunc {
	return func(c *gin.Context) string {
		if u := loginUsername(c); u != "" {
			return "rl:login:user:" + u
		}
		return "rl:login:ip:" + clientIP(c)
	}
}

// loginUsername reads the username from a JSON login body and puts the body
// back so the handler can still bind it.
func loginUsername(c *gin.Context) string {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return ""
	}
	head, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLoginPeek))
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), c.Request.Body), c.Request.Body}
	if err != nil {
		return ""
	}

	var body struct {
		Username string `json:"username"`
	}
	if json.Unmarshal(head, &body) != nil {
		return ""
	}
	return strings.TrimSpace(body.Username)
}

// fixedWindow bumps the counter, starts the window on the first hit and
// returns the count with the milliseconds left in the window.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RateLimit allows max requests per key within window using a Redis fixed window.
// It sets X-RateLimit-* headers and answers 429 with Retry-After once the budget
// is spent. A nil client turns it into a no-op and Redis errors let requests through.
func RateLimit(rdb *redis.Client, max int, window time.Duration, keyFn KeyFunc, allow AllowFunc) gin.HandlerFunc {
	if rdb == nil || max <= 0 || window <= 0 || keyFn == nil {
		return func(c *gin.Context) { c.Next() }
	}
	limit := strconv.Itoa(max)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || (allow != nil && allow(c)) {
			c.Next()
			return
		}

		res, err := fixedWindow.Run(c.Request.Context(), rdb, []string{keyFn(c)}, window.Milliseconds()).Int64Slice()
		if err != nil || len(res) != 2 {
			c.Next()
			return
		}
		count, ttlMs := int(res[0]), res[1]

		reset := 0
		if ttlMs > 0 {
			reset = int((time.Duration(ttlMs)*time.Millisecond + time.Second - 1) / time.Second)
		}
		c.Header("X-RateLimit-Limit", limit)
		remaining := max - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(reset))

		if count > max {
			if reset > 0 {
				c.Header("Retry-After", strconv.Itoa(reset))
			}
			response.Abort(c, http.StatusTooManyRequests, "too many requests, try again later", nil)
			return
		}
		c.Next()
	}
}
