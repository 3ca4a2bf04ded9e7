package statusapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Server serves the read-only status endpoint over HTTP.
type Server struct {
	projector     *Projector
	allowedOrigin string
	engine        *gin.Engine
	http          *http.Server

	limiter     *slidingWindowLimiter
	burstLimiter *rate.Limiter
}

func NewServer(projector *Projector, allowedOrigin string, port int) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.HandleMethodNotAllowed = true

	s := &Server{
		projector:     projector,
		allowedOrigin: allowedOrigin,
		engine:        r,
		limiter:       newSlidingWindowLimiter(),
		burstLimiter:  rate.NewLimiter(rate.Limit(30), 60),
		http:          &http.Server{Addr: ":" + strconv.Itoa(port), Handler: r},
	}

	r.NoRoute(s.notFound)
	r.NoMethod(s.methodNotAllowed)
	r.GET("/status", s.handleStatus)
	r.OPTIONS("/status", s.handleOptions)

	return s
}

func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

func (s *Server) Close() error {
	return s.http.Close()
}

func (s *Server) handleStatus(c *gin.Context) {
	s.applyCORS(c)
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")

	ip := c.ClientIP()
	if !s.burstLimiter.Allow() || !s.limiter.Allow(ip, time.Now()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "retryAfterSeconds": 60})
		return
	}

	snap, err := s.projector.Build()
	if err != nil {
		log.WithError(err).Error("statusapi: failed to build snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleOptions(c *gin.Context) {
	s.applyCORS(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) methodNotAllowed(c *gin.Context) {
	s.applyCORS(c)
	c.Status(http.StatusMethodNotAllowed)
}

func (s *Server) notFound(c *gin.Context) {
	s.applyCORS(c)
	c.Status(http.StatusNotFound)
}

// applyCORS emits a wildcard header when the configured origin is "*", or
// echoes the request's Origin only on an exact match, with Vary: Origin
// so caches don't conflate responses for different origins.
func (s *Server) applyCORS(c *gin.Context) {
	if s.allowedOrigin == "*" {
		c.Header("Access-Control-Allow-Origin", "*")
		return
	}
	origin := c.Request.Header.Get("Origin")
	if origin != "" && origin == s.allowedOrigin {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
	}
}
