package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradearena/internal/logger"
	"tradearena/internal/simulation"
)

// Server 暴露模拟竞技场的 HTTP API：提交模拟、轮询进度、拉取结果、即席辩论。
type Server struct {
	addr   string
	router *gin.Engine
}

// AgentSource 提供当前参赛代理列表（热更新的 profile 快照）。
type AgentSource interface {
	AgentSpecs() []simulation.AgentSpec
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr   string
	Engine *simulation.Engine
	Agents AgentSource
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("http server 需要 simulation engine")
	}
	if cfg.Agents == nil {
		return nil, errors.New("http server 需要 agent source")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), corsHeaders())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r := newRouter(cfg.Engine, cfg.Agents)
	r.register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Start 启动并阻塞，ctx 取消时优雅退出。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP 服务监听 %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler 返回底层路由，测试用。
func (s *Server) Handler() http.Handler { return s.router }

// corsHeaders 前端轮询用的宽松 CORS 头。
func corsHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		status := c.Writer.Status()
		if status >= http.StatusBadRequest {
			logger.Warnf("HTTP %s %s -> %d (%s)", method, path, status, time.Since(start))
			return
		}
		logger.Debugf("HTTP %s %s -> %d (%s)", method, path, status, time.Since(start))
	}
}
