// Package server exposes the command lifecycle to chat integrations over HTTP.
//
// Routes:
//
//	POST /v1/events/command  {user_id, text}
//	POST /v1/events/confirm  {user_id, command_id}
//	POST /v1/events/cancel   {user_id, command_id}
//	GET  /healthz
//	GET  /metrics
//
// Lifecycle outcomes, including failed ones, are answered with 200 and the
// reply as JSON. Only malformed event bodies produce 400.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"leadbot/cli/internal/lifecycle"
)

// Service is the part of the lifecycle the server drives.
type Service interface {
	HandleText(ctx context.Context, userID, text string) lifecycle.Reply
	Confirm(ctx context.Context, userID, commandID string) lifecycle.Reply
	Cancel(ctx context.Context, userID, commandID string) lifecycle.Reply
}

// Options configures the router.
type Options struct {
	// Token, when set, must be presented as "Authorization: Bearer <token>"
	// on every /v1 route.
	Token string
}

type commandEvent struct {
	UserID string `json:"user_id" binding:"required"`
	Text   string `json:"text"`
}

type decisionEvent struct {
	UserID    string `json:"user_id" binding:"required"`
	CommandID string `json:"command_id" binding:"required"`
}

type handlers struct {
	svc Service
}

// New builds the gin engine.
func New(svc Service, opts Options, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{svc: svc}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	if opts.Token != "" {
		v1.Use(bearer(opts.Token))
	}
	events := v1.Group("/events")
	{
		events.POST("/command", h.command)
		events.POST("/confirm", h.confirm)
		events.POST("/cancel", h.cancel)
	}
	return r
}

func (h *handlers) command(c *gin.Context) {
	var ev commandEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.HandleText(c.Request.Context(), ev.UserID, ev.Text))
}

func (h *handlers) confirm(c *gin.Context) {
	var ev decisionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Confirm(c.Request.Context(), ev.UserID, ev.CommandID))
}

func (h *handlers) cancel(c *gin.Context) {
	var ev decisionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Cancel(c.Request.Context(), ev.UserID, ev.CommandID))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid event",
		"message": err.Error(),
	})
}

func bearer(token string) gin.HandlerFunc {
	want := []byte("Bearer " + token)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Run serves h on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errc
	return nil
}
