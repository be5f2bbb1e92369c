package token

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// VerifyPath is the token server endpoint verifying tokens.
const VerifyPath = "/v1/token/verify"

// DefaultClientIdleTimeout is how long an idle client keeps its rate
// limit bucket.
const DefaultClientIdleTimeout = 10 * time.Minute

// ServerConfig configures a token server.
type ServerConfig struct {
	AppID       string
	Certificate string
	TTL         time.Duration

	// RequestsPerSecond and Burst bound requests per client address.
	// A non-positive RequestsPerSecond disables limiting.
	RequestsPerSecond float64
	Burst             int
	// ClientIdleTimeout drops the bucket of a client not seen for this
	// long. Zero selects DefaultClientIdleTimeout.
	ClientIdleTimeout time.Duration

	// TrustedProxies are the addresses or CIDRs allowed to name the client
	// through X-Forwarded-For. Empty trusts none and limits by the peer
	// address.
	TrustedProxies []string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultServerConfig returns a configuration with limits suitable for a
// development server. AppID and Certificate must still be set.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		TTL:               DefaultTTL,
		RequestsPerSecond: 5,
		Burst:             10,
		ClientIdleTimeout: DefaultClientIdleTimeout,
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid  bool   `json:"valid"`
	Claims Claims `json:"claims"`
	Error  string `json:"error,omitempty"`
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter hands out one token bucket per client address. Buckets
// idle for longer than idle are swept on access, at most once per idle
// period.
type clientLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
	clients   map[string]*clientBucket
}

func newClientLimiter(rps float64, burst int, idle time.Duration, now func() time.Time) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idle <= 0 {
		idle = DefaultClientIdleTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &clientLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		idle:      idle,
		now:       now,
		lastSweep: now(),
		clients:   make(map[string]*clientBucket),
	}
}

func (cl *clientLimiter) allow(client string) bool {
	now := cl.now()

	cl.mu.Lock()
	if now.Sub(cl.lastSweep) >= cl.idle {
		cl.sweepLocked(now)
	}
	b, ok := cl.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[client] = b
	}
	b.lastSeen = now
	cl.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

func (cl *clientLimiter) sweepLocked(now time.Time) {
	before := len(cl.clients)
	for client, b := range cl.clients {
		if now.Sub(b.lastSeen) >= cl.idle {
			delete(cl.clients, client)
		}
	}
	cl.lastSweep = now

	if swept := before - len(cl.clients); swept > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "clientLimiter.sweep",
			"swept":    swept,
			"clients":  len(cl.clients),
		}).Debug("Dropped idle rate limit buckets")
	}
}

func (cl *clientLimiter) size() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.clients)
}

// NewServer builds the token server router. The gin mode is left to the
// caller.
func NewServer(cfg ServerConfig) (*gin.Engine, error) {
	builder := &DevBuilder{
		AppID:       cfg.AppID,
		Certificate: cfg.Certificate,
		TTL:         cfg.TTL,
		Role:        RolePublisher,
		Now:         cfg.Now,
	}
	if !builder.IsConfigured() {
		return nil, ErrNotConfigured
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	if cfg.RequestsPerSecond > 0 {
		r.Use(rateLimit(newClientLimiter(cfg.RequestsPerSecond, cfg.Burst, cfg.ClientIdleTimeout, cfg.Now)))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST(IssuePath, issueHandler(builder))
	r.POST(VerifyPath, verifyHandler(builder))

	logrus.WithFields(logrus.Fields{
		"function": "NewServer",
		"app_id":   cfg.AppID,
		"ttl":      builder.TTL,
		"rps":      cfg.RequestsPerSecond,
		"proxies":  len(cfg.TrustedProxies),
	}).Info("Token server configured")

	return r, nil
}

func issueHandler(builder *DevBuilder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IssueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if req.Channel == "" {
			c.JSON(http.StatusBadRequest, errorResponse{Error: ErrEmptyChannel.Error()})
			return
		}
		if req.Role != RolePublisher && req.Role != RoleSubscriber {
			req.Role = RolePublisher
		}

		tok, claims, err := builder.Build(req.Channel, req.UID, req.Role)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "issueHandler",
				"channel_id": req.Channel,
				"error":      err.Error(),
			}).Error("Failed to issue token")
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "token generation failed"})
			return
		}

		c.JSON(http.StatusOK, IssueResponse{Token: tok, ExpiresAt: claims.ExpiresAt})
	}
}

func verifyHandler(builder *DevBuilder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "token is required"})
			return
		}

		claims, err := builder.Verify(req.Token)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, verifyResponse{Valid: true, Claims: claims})
		case errors.Is(err, ErrExpired):
			c.JSON(http.StatusOK, verifyResponse{Claims: claims, Error: err.Error()})
		default:
			c.JSON(http.StatusOK, verifyResponse{Error: err.Error()})
		}
	}
}

func rateLimit(cl *clientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			"function": "requestLogger",
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"client":   c.ClientIP(),
			"latency":  time.Since(start),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Token server request failed")
			return
		}
		entry.Debug("Token server request")
	}
}
