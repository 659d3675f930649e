package api

import (
	"net/http"
	"time"

	"compliance-gate/internal/events"
	"compliance-gate/internal/gate"
	"compliance-gate/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires the operator console endpoints around the gate registry.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Registry  *gate.Registry
	RulesDir  string
	JWTSecret string
}

// Options carries the tunables that come from configuration.
type Options struct {
	JWTSecret      string
	RulesDir       string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewServer(bus *events.Bus, database *db.Database, registry *gate.Registry, opts Options) *Server {
	r := gin.New()

	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 20
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 40
	}

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Registry:  registry,
		RulesDir:  opts.RulesDir,
		JWTSecret: opts.JWTSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerOperator)
			auth.POST("/login", s.loginOperator)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/strategies", s.listStrategies)
			protected.GET("/strategies/:name/rules", s.getRuleSummary)
			protected.GET("/strategies/:name/orders/pending", s.getPendingOrders)
			protected.GET("/strategies/:name/orders", s.getOrders)
			protected.GET("/strategies/:name/audit", s.getAuditLogs)
			protected.GET("/strategies/:name/report", s.getExecutionReport)

			// Signal intake (upstream strategy processes post here)
			protected.POST("/strategies/:name/signals", s.submitSignal)

			// Approval workflow
			protected.POST("/orders/:strategy/:id/approve", s.approveOrder)
			protected.POST("/orders/:strategy/:id/reject", s.rejectOrder)
			protected.POST("/orders/:strategy/:id/cancel", s.cancelOrder)

			// Strategy actions
			protected.POST("/strategies/:name/halt/clear", s.clearHalt)
			protected.POST("/strategies/:name/rules/reload", s.reloadRules)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
