// Package httpapi exposes a Ledger over HTTP using gin.
//
// Routes, relative to the base path (default "/sigil"):
//
//	POST /tokens               issue a token
//	POST /tokens/:id/consume   reveal a token's content once
//	GET  /tokens/:id           token status, never content
//	GET  /tiers                the tier table
//	GET  /healthz              store health
package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/xraph/sigil"
)

// DefaultBasePath is the route prefix used when none is configured.
const DefaultBasePath = "/sigil"

const requestIDKey = "request_id"

// Server holds the HTTP handlers for a Ledger.
type Server struct {
	ledger   *sigil.Ledger
	logger   *slog.Logger
	basePath string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBasePath sets the route prefix.
func WithBasePath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.basePath = path
		}
	}
}

// New creates a Server for l.
func New(l *sigil.Ledger, opts ...Option) *Server {
	s := &Server{
		ledger:   l,
		logger:   slog.Default(),
		basePath: DefaultBasePath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BasePath returns the route prefix.
func (s *Server) BasePath() string { return s.basePath }

// Engine returns a gin engine with recovery, request ids, access logging
// and all routes mounted under the base path. Callers may add routes
// (such as /metrics) before serving it.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog())
	s.Register(r.Group(s.basePath))
	return r
}

// Register mounts the routes on rg.
func (s *Server) Register(rg *gin.RouterGroup) {
	tokens := rg.Group("/tokens")
	{
		tokens.POST("", s.HandleIssue)
		tokens.GET("/:id", s.HandleStatus)
		tokens.POST("/:id/consume", s.HandleConsume)
	}

	rg.GET("/tiers", s.HandleTiers)
	rg.GET("/healthz", s.HandleHealth)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
