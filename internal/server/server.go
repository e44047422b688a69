package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dyike/AnalystCouncil/internal/council"
	"github.com/dyike/AnalystCouncil/internal/history"
	"github.com/dyike/AnalystCouncil/models"
)

const maxRequestBodySize = 64 << 10

// Backend is what the API serves; the runtime swaps the engine behind it on config reload.
type Backend interface {
	Analyze(ctx context.Context, subject string, requireApproval bool) (*models.CouncilReport, error)
	Recent(ctx context.Context, limit int) ([]models.ReportRecord, error)
	Members() (experts []models.AgentIdentity, chair models.AgentIdentity)
}

type analyzeRequest struct {
	Subject         string `json:"subject"`
	RequireApproval bool   `json:"require_approval"`
}

type Server struct {
	backend Backend
	router  *gin.Engine
	log     logrus.FieldLogger
}

func New(backend Backend, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{backend: backend, log: log.WithField("component", "server")}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
		c.Next()
	})
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/health", s.health)
	api := router.Group("/api")
	api.GET("/council", s.members)
	api.POST("/analyze", s.analyze)
	api.GET("/history", s.history)

	s.router = router
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("analyst council API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down API server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "Analyst Council API",
	})
}

func (s *Server) members(c *gin.Context) {
	experts, chair := s.backend.Members()
	c.JSON(http.StatusOK, gin.H{
		"experts": experts,
		"chair":   chair,
	})
}

func (s *Server) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	// approval needs an operator at a terminal
	if req.RequireApproval {
		c.JSON(http.StatusBadRequest, gin.H{"error": "require_approval is not supported over HTTP"})
		return
	}

	report, err := s.backend.Analyze(c.Request.Context(), req.Subject, false)
	switch {
	case errors.Is(err, council.ErrInvalidSubject):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.log.WithError(err).WithField("subject", req.Subject).Error("analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) history(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	records, err := s.backend.Recent(c.Request.Context(), limit)
	switch {
	case errors.Is(err, history.ErrDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.log.WithError(err).Error("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []models.ReportRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": records})
}
