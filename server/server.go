// Package server exposes the workbench's tool sessions over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	simpleverse "github.com/nguyennamkkb/Simpleverse-home"
	"github.com/nguyennamkkb/Simpleverse-home/core"
)

// maxMultipartMemory bounds the in-memory part of an upload; larger parts
// spill to temp files.
const maxMultipartMemory = 32 << 20

type Server struct {
	wb     *simpleverse.Workbench
	log    core.Logger
	router *gin.Engine
	http   *http.Server
}

// New builds the router for wb.  Call Start to listen on addr.
func New(wb *simpleverse.Workbench, addr string, log core.Logger) *Server {
	if log == nil {
		log = core.NopLogger{}
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.MaxMultipartMemory = maxMultipartMemory

	s := &Server{wb: wb, log: log, router: r}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.GET("/metrics", s.handleMetrics)
	api.GET("/tools", s.handleTools)
	api.GET("/previews/:handle", s.handlePreview)

	tool := api.Group("/tools/:tool", s.withSession)
	tool.GET("/items", s.handleListItems)
	tool.POST("/items", s.handleAddItems)
	tool.DELETE("/items", s.handleClear)
	tool.GET("/items/:id", s.handleGetItem)
	tool.DELETE("/items/:id", s.handleRemoveItem)
	tool.PATCH("/items/:id/settings", s.handleUpdateSettings)
	tool.POST("/items/:id/process", s.handleProcessOne)
	tool.GET("/items/:id/download", s.handleDownload)
	tool.POST("/items/:id/save", s.handleSave)
	tool.POST("/items/:id/crop/move", s.handleMoveCrop)
	tool.POST("/items/:id/crop/drag", s.handleDragCrop)
	tool.GET("/settings", s.handleDefaults)
	tool.PATCH("/settings", s.handleApplyToAll)
	tool.POST("/process", s.handleProcessAll)
	tool.GET("/archive", s.handleArchive)
	tool.POST("/archive/save", s.handleSaveArchive)
	tool.GET("/stats", s.handleStats)

	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("server.listen", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(log core.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
