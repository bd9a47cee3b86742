package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"X402FM/cache"
	"X402FM/config"
	"X402FM/core/access"
	"X402FM/core/payment"
	"X402FM/db"
	"X402FM/logger"
	"X402FM/repository"
	"X402FM/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(getLogLevel()),
		OutputPath: os.Getenv("LOG_FILE"),
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}

	// 会话缓存可选：Redis 不可用时校验直接回源数据库
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis 不可用，会话缓存关闭", logger.ErrorField(err))
	} else {
		defer cache.CloseRedis()
		logger.Info("Successfully connected to Redis")
	}

	// 对象存储可选，仅用于上传镜像
	if err := storage.InitMinio(cfg); err != nil {
		logger.Warn("MinIO 初始化失败，上传镜像关闭", logger.ErrorField(err))
	}

	// Create necessary directories if they don't exist
	ensureDirExists(cfg.UploadDir)
	ensureDirExists(cfg.AudioUploadDir)
	ensureDirExists(cfg.CoverUploadDir)

	trackRepo := repository.NewMySQLTrackRepository()
	sessionRepo := repository.NewMySQLStreamSessionRepository()

	payClient := payment.NewClient(cfg)
	issuer := access.NewIssuer(sessionRepo, cfg.StreamTTL, cfg.AccessTokenBytes)
	validator := access.NewValidator(sessionRepo, trackRepo, cfg.AllowedOrigins)

	apiHandler := NewAPIHandler(trackRepo, sessionRepo, validator, issuer, payClient, cfg)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// 支付与流会话
	router.HandleFunc("/api/pay/{track_id}", apiHandler.PayHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/stream/check/{stream_id}", apiHandler.StreamCheckHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/stream/{stream_id}", apiHandler.StreamHandler).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)

	// 公开文件路由（仅封面，音频被拦截）
	router.HandleFunc("/api/file/{path:.*}", apiHandler.FileHandler).Methods(http.MethodGet, http.MethodOptions)

	// 目录与上传
	router.HandleFunc("/api/tracks", apiHandler.GetTracksHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/artist/tracks", apiHandler.GetArtistTracksHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/upload", apiHandler.UploadTrackHandler).Methods(http.MethodPost, http.MethodOptions)

	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// 写超时必须覆盖整段音频的慢速拉取，与结算窗口同级
		WriteTimeout: cfg.StreamTTL + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}

// corsMiddleware 放行跨域请求并暴露流式传输所需的头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range, X-Payment, X-Payer-Wallet")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getLogLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "info"
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("Creating directory", logger.String("path", path))
		if err := os.MkdirAll(path, 0755); err != nil {
			logger.Fatal("Failed to create directory", logger.String("path", path), logger.ErrorField(err))
		}
	} else if err != nil {
		logger.Fatal("Failed to check directory", logger.String("path", path), logger.ErrorField(err))
	}
}
