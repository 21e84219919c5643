// Package api exposes the engine's collaborator operations over a small
// management HTTP surface.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"feed-aggregator/internal/config"
	"feed-aggregator/internal/engine"
	"feed-aggregator/internal/health"
)

// Server holds the HTTP router over one engine instance.
type Server struct {
	engine  *engine.Engine
	checker *health.Checker
	logger  zerolog.Logger
	router  *gin.Engine
}

// NewServer builds the router. The metrics endpoint is mounted when
// enabled in the configuration.
func NewServer(eng *engine.Engine, cfg *config.Config, logger zerolog.Logger) *Server {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	checker := health.NewChecker(logger)
	checker.Register("database", health.DatabaseCheck(eng.StorePing))
	checker.Register("updates", health.OnlineCheck(eng.Online))

	s := &Server{
		engine:  eng,
		checker: checker,
		logger:  logger.With().Str("component", "api").Logger(),
		router:  gin.New(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(cors.Default())

	s.router.GET("/health", s.handleHealth)
	if cfg.Metrics.Enabled {
		s.router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/subscriptions", s.handleListSubscriptions)
		v1.POST("/subscriptions", s.handleSubscribe)
		v1.DELETE("/subscriptions/:id", s.handleUnsubscribe)
		v1.POST("/subscriptions/:id/update", s.handleUpdate)
		v1.POST("/subscriptions/update-all", s.handleUpdateAll)
		v1.GET("/subscriptions/:id/items", s.handleItemSet)
		v1.POST("/subscriptions/:id/read-all", s.handleMarkAllRead)
		v1.GET("/subscriptions/:id/unread-count", s.handleUnreadCount)
		v1.GET("/items/:id", s.handleItem)
		v1.DELETE("/items/:id", s.handleRemoveItem)
		v1.PUT("/online", s.handleSetOnline)
		v1.GET("/online", s.handleGetOnline)
	}

	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	status, checks := s.checker.RunAll(c.Request.Context())

	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

type subscribeRequest struct {
	Source         string `json:"source" binding:"required"`
	Title          string `json:"title"`
	UpdateInterval int    `json:"update_interval"`
	FilterCmd      string `json:"filter_cmd"`
	Username       string `json:"username"`
	Password       string `json:"password"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	nodeID, err := s.engine.Subscribe(req.Source, engine.SubscribeOptions{
		Title:          req.Title,
		UpdateInterval: req.UpdateInterval,
		FilterCmd:      req.FilterCmd,
		Username:       req.Username,
		Password:       req.Password,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"node_id": nodeID})
}

func (s *Server) handleListSubscriptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subscriptions": s.engine.Subscriptions()})
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	if err := s.engine.Unsubscribe(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdate(c *gin.Context) {
	flags := engine.FlagPriorityHigh
	if c.Query("reset_title") == "true" {
		flags |= engine.FlagResetTitle
	}

	if err := s.engine.Update(c.Param("id"), flags); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleUpdateAll(c *gin.Context) {
	s.engine.UpdateAll(0)
	c.Status(http.StatusAccepted)
}

func (s *Server) handleItemSet(c *gin.Context) {
	items, err := s.engine.LoadItemSet(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handleMarkAllRead(c *gin.Context) {
	if err := s.engine.MarkAllRead(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnreadCount(c *gin.Context) {
	count, err := s.engine.UnreadCount(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (s *Server) handleItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	item, err := s.engine.LoadItem(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) handleRemoveItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	if err := s.engine.RemoveItem(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type onlineRequest struct {
	Online *bool `json:"online" binding:"required"`
}

func (s *Server) handleSetOnline(c *gin.Context) {
	var req onlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.engine.SetOnline(*req.Online)
	c.JSON(http.StatusOK, gin.H{"online": s.engine.Online()})
}

func (s *Server) handleGetOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": s.engine.Online()})
}
