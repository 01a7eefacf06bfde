package http

import (
	"log"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"

	ctxRequestID = "rid"
	ctxUserID    = "uid"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)
		c.Set(ctxRequestID, rid)
		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		rid, _ := c.Get(ctxRequestID)
		log.Printf("[http] rid=%v %s %s status=%d dur=%s",
			rid, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Identity reads the caller id set by the upstream gateway.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.GetHeader(headerUserID), 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing or invalid " + headerUserID})
			return
		}
		c.Set(ctxUserID, id)
		c.Next()
	}
}

func userID(c *gin.Context) uint64 {
	return c.GetUint64(ctxUserID)
}

// RateProfile is a request budget per client IP over a window.
type RateProfile struct {
	Name     string
	Requests int
	Window   time.Duration
}

var (
	ProfileGeneral    = RateProfile{Name: "general", Requests: 100, Window: 15 * time.Minute}
	ProfileStrict     = RateProfile{Name: "strict", Requests: 20, Window: 15 * time.Minute}
	ProfileVeryStrict = RateProfile{Name: "veryStrict", Requests: 10, Window: 15 * time.Minute}
	ProfilePublic     = RateProfile{Name: "public", Requests: 200, Window: 15 * time.Minute}
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Buckets idle for a
// full window are dropped.
type RateLimiter struct {
	profile RateProfile
	now     func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	sweptAt  time.Time
}

func NewRateLimiter(p RateProfile) *RateLimiter {
	return &RateLimiter{profile: p, now: time.Now, visitors: make(map[string]*visitor)}
}

func (l *RateLimiter) limiter(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.sweptAt) > l.profile.Window {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.profile.Window {
				delete(l.visitors, k)
			}
		}
		l.sweptAt = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		every := l.profile.Window / time.Duration(l.profile.Requests)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), l.profile.Requests)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := l.now()
		r := l.limiter(c.ClientIP(), now).ReserveN(now, 1)
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			retryAfter := int(math.Ceil(delay.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "too many requests, please try again later",
				"retryAfter": retryAfter,
			})
			return
		}
		c.Next()
	}
}
