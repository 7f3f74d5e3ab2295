package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"OrderAtlas/src/config"
	"OrderAtlas/src/processor"
	"OrderAtlas/src/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 类别排行默认返回的条数
const defaultCategoryLimit = 5

// Provider 返回当前的看板，数据源不可用时返回错误
type Provider interface {
	Dashboard(ctx context.Context) (*processor.Dashboard, error)
}

// ProviderFunc 让普通函数实现 Provider
type ProviderFunc func(ctx context.Context) (*processor.Dashboard, error)

func (f ProviderFunc) Dashboard(ctx context.Context) (*processor.Dashboard, error) { return f(ctx) }

// Server 提供看板数据的JSON接口和实时日志
type Server struct {
	router   *gin.Engine
	addr     string
	provider Provider
	logger   *storage.Logger

	defaultSample int
	zoom          int
}

func NewServer(cfg *config.Config, provider Provider, logger *storage.Logger) *Server {
	if logger == nil {
		logger = storage.Nop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		router:        router,
		addr:          cfg.HTTP.Addr,
		provider:      provider,
		logger:        logger,
		defaultSample: cfg.Heatmap.DefaultSample,
		zoom:          cfg.Heatmap.ZoomStart,
	}
	s.setupRoutes()
	return s
}

// Router 返回路由，供测试直接调用
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.NoRoute(func(c *gin.Context) {
		RespondWithError(c, http.StatusNotFound, ErrCodeNotFound, "route not found",
			gin.H{"available_endpoints": []string{
				"GET /healthz",
				"GET /logs",
				"GET /api/range",
				"GET /api/categories",
				"GET /api/delivery-review",
				"GET /api/heatmap",
			}})
	})

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/logs", s.streamLogs)

	api := s.router.Group("/api")
	api.GET("/range", s.handleRange)
	api.GET("/categories", s.handleCategories)
	api.GET("/delivery-review", s.handleDeliveryReview)
	api.GET("/heatmap", s.handleHeatmap)
}

// Start 启动服务，ctx 取消后优雅关闭
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP服务已启动", zap.String("addr", s.addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// dashboardAndRange 取看板并解析 start/end 参数，失败时已写出响应
func (s *Server) dashboardAndRange(c *gin.Context) (*processor.Dashboard, processor.DateRange, bool) {
	d, err := s.provider.Dashboard(c.Request.Context())
	if err != nil {
		RespondWithPipelineError(c, err)
		return nil, processor.DateRange{}, false
	}
	r, err := d.DefaultRange(c.Query("start"), c.Query("end"))
	if err != nil {
		if errors.Is(err, processor.ErrDataSource) {
			RespondWithPipelineError(c, err)
		} else {
			ValidationError(c, "start/end", err)
		}
		return nil, processor.DateRange{}, false
	}
	return d, r, true
}

func (s *Server) handleRange(c *gin.Context) {
	d, err := s.provider.Dashboard(c.Request.Context())
	if err != nil {
		RespondWithPipelineError(c, err)
		return
	}
	bounds, ok, err := d.DateBounds()
	if err != nil {
		RespondWithPipelineError(c, err)
		return
	}
	data := gin.H{"loaded_at": d.Tables().LoadedAt}
	if ok {
		data["start"] = bounds.Start.Format(processor.DateLayout)
		data["end"] = bounds.End.Format(processor.DateLayout)
	}
	RespondWithSuccess(c, data)
}

func (s *Server) handleCategories(c *gin.Context) {
	limit := defaultCategoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			ValidationError(c, "limit", fmt.Errorf("limit must be a positive integer, got %q", v))
			return
		}
		limit = n
	}

	d, r, ok := s.dashboardAndRange(c)
	if !ok {
		return
	}
	ranking, err := d.Categories(r)
	if err != nil {
		RespondWithPipelineError(c, err)
		return
	}
	RespondWithSuccess(c, gin.H{
		"range":      r.String(),
		"total":      ranking.Total(),
		"categories": ranking,
		"best":       ranking.Best(limit),
		"worst":      ranking.Worst(limit),
	})
}

func (s *Server) handleDeliveryReview(c *gin.Context) {
	d, r, ok := s.dashboardAndRange(c)
	if !ok {
		return
	}
	result, err := d.DeliveryReview(r)
	if err != nil {
		RespondWithPipelineError(c, err)
		return
	}
	RespondWithSuccess(c, gin.H{
		"range":     r.String(),
		"points":    result.Points,
		"anomalies": result.Anomalies,
		"trend":     result.Trend,
	})
}

func (s *Server) handleHeatmap(c *gin.Context) {
	n := s.defaultSample
	if v := c.Query("sample"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			ValidationError(c, "sample", err)
			return
		}
		n = parsed
	}
	if err := processor.ValidateSampleSize(n); err != nil {
		ValidationError(c, "sample", err)
		return
	}

	var opts []processor.SampleOption
	if v := c.Query("seed"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			ValidationError(c, "seed", err)
			return
		}
		opts = append(opts, processor.WithSeed(seed))
	}

	d, r, ok := s.dashboardAndRange(c)
	if !ok {
		return
	}
	heat, err := d.Heatmap(r, n, opts...)
	if err != nil {
		RespondWithPipelineError(c, err)
		return
	}
	RespondWithSuccess(c, gin.H{
		"range":      r.String(),
		"sample":     n,
		"population": heat.Population,
		"center":     heat.Center,
		"zoom":       s.zoom,
		"points":     heat.Pairs(),
	})
}

// streamLogs 以分块响应持续推送日志，客户端断开时结束
func (s *Server) streamLogs(c *gin.Context) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")

	logChan := s.logger.Subscribe()
	defer s.logger.Unsubscribe(logChan)

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return false
			}
			_, err := fmt.Fprintln(w, msg)
			return err == nil
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// requestLogger 记录每个请求的状态码和耗时
func requestLogger(logger *storage.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/logs" {
			return
		}
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
