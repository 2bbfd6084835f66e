// api/router.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 10 * time.Second
)

func NewRouter(storage *Storage) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(storage), AccessLog(storage.Log))

	// статические "служебные" маршруты СНАЧАЛА
	r.GET("/api/meta", MetaListHandler(storage))
	r.GET("/api/meta/:entity", MetaEntityHandler(storage))
	r.POST("/api/_uid", UIDHandler(storage))
	r.POST("/api/admin/migrate", AdminMigrateHandler(storage))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/:entity/one", FindOneHandler(storage))
		apiGroup.POST("/:entity/_mark_deleted", MarkDeletedHandler(storage))

		apiGroup.GET("/:entity", FindHandler(storage))
		apiGroup.POST("/:entity", CreateHandler(storage))
		apiGroup.PATCH("/:entity", UpdateHandler(storage))
		apiGroup.DELETE("/:entity", DeleteHandler(storage))
	}
	return r
}

// RequestID проставляет id запроса (ulid), если клиент не прислал свой.
func RequestID(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = storage.newID()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog пишет по строке на запрос.
func AccessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// RunServer обслуживает addr до отмены ctx, затем плавно останавливается.
func RunServer(ctx context.Context, addr string, storage *Storage) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(storage),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		storage.Log.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		storage.Log.Info("http server shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
