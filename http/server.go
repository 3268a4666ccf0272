// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heartrisk/db"
	"heartrisk/ml"
	"heartrisk/monitoring"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
	StaticDir      string
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           5000,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxBodyBytes:   1 << 16,
		AllowedOrigins: []string{"*"},
	}
}

// ModelInfoProvider 提供已加载模型的元数据
type ModelInfoProvider interface {
	Info() ml.ModelInfo
}

// Services 处理器依赖，Predictor 必填，其余可选
type Services struct {
	Predictor ml.Predictor
	Model     ModelInfoProvider
	Metrics   *monitoring.PredictionMetrics
	Store     *db.Store
	// AuditPredictions 为 true 且 Store 非空时记录每次推理
	AuditPredictions bool
	Hub              *monitoring.WebSocketHub
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, services Services, logger *zap.Logger) (*Server, error) {
	if services.Predictor == nil {
		return nil, errors.New("predictor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultServerConfig().MaxBodyBytes
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	a := &api{
		services:     services,
		logger:       logger,
		staticDir:    config.StaticDir,
		maxBodyBytes: config.MaxBodyBytes,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	a.register(mux)

	chain := Chain(
		RecoveryMiddleware(logger),            // 1. 恢复中间件（最先执行，捕获panic）
		RequestIDMiddleware,                   // 2. 请求ID
		LoggerMiddleware(logger),              // 3. 日志中间件
		SecurityHeadersMiddleware,             // 4. 安全头中间件
		CORSMiddleware(config.AllowedOrigins), // 5. CORS中间件
		RequestSizeMiddleware(config.MaxBodyBytes),
	)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      chain(mux),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		logger: logger,
	}, nil
}

// Handler 返回带中间件的根处理器
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start 启动服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve 在给定的 listener 上提供服务
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("predict", "/predict"),
		zap.String("websocket", "/api/ws/predict"))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
