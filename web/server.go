package web

import (
	iface "CourtVision/interface"
	"CourtVision/logger"
	"CourtVision/manager"
	"CourtVision/video"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxImageBytes = 20 * 1024 * 1024

// Pipeline is satisfied by *manager.Manager.
type Pipeline interface {
	Analyze(ctx context.Context, frame iface.Frame) (iface.FrameResult, error)
	Status() manager.Status
	Reset()
}

// RequestCounter is satisfied by *monitor.Metrics.
type RequestCounter interface {
	RequestServed(surface string)
}

type Server struct {
	pipeline Pipeline
	hub      *Hub
	counter  RequestCounter
	engine   *gin.Engine
	log      *zap.Logger
}

func NewServer(p Pipeline, hub *Hub, counter RequestCounter) *Server {
	s := &Server{
		pipeline: p,
		hub:      hub,
		counter:  counter,
		engine:   gin.New(),
		log:      logger.Named("web"),
	}
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.routes()
	return s
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if s.counter != nil {
			s.counter.RequestServed("http")
		}
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": s.pipeline.Status()})
	})
	r.POST("/api/analyze", s.analyze)
	r.POST("/api/reset", func(c *gin.Context) {
		s.pipeline.Reset()
		c.JSON(http.StatusOK, gin.H{"data": "reset"})
	})
	r.GET("/ws/results", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})
}

func (s *Server) analyze(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image upload failed: " + err.Error()})
		return
	}
	if file.Size > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	buf, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	frame, err := video.DecodeImage(buf, 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.pipeline.Analyze(c.Request.Context(), frame)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, iface.ErrInvalidInput) {
			code = http.StatusBadRequest
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	s.hub.Broadcast(res)
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on port until ctx is done.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.engine,
	}
	go func() {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("http server listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
