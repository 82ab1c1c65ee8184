package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/replay-engine/internal/auth"
	"github.com/annel0/replay-engine/internal/logging"
	"github.com/annel0/replay-engine/internal/middleware"
	"github.com/annel0/replay-engine/internal/playback"
)

// Controller - то, чем управляет REST API
type Controller interface {
	SessionID() string
	CurrentTime() int32
	Duration() int32
	Loaded() bool
	Load(ctx context.Context, progress func(float64)) error
	Seek(target int32) error
	Reset()
}

var _ Controller = (*playback.Controller)(nil)

// RestServer представляет REST API управления воспроизведением
type RestServer struct {
	router  *gin.Engine
	server  *http.Server
	logger  *logging.Logger
	port    string
	metrics *ServerMetrics
	packets *PacketStats
	signer  *auth.Signer

	// mu упорядочивает вызовы контроллера: он не потокобезопасен
	mu         sync.Mutex
	controller Controller
	summary    func() (interface{}, error)
	progress   float64
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port       string // порт для запуска сервера
	Controller Controller
	Signer     *auth.Signer
	// Summary необязателен: без него /api/summary отвечает 404
	Summary  func() (interface{}, error)
	Packets  *PacketStats
	Registry *prometheus.Registry
	Logger   *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SeekRequest представляет запрос перемотки
type SeekRequest struct {
	Time *int32 `json:"time" binding:"required"`
}

// StatusResponse описывает состояние сессии воспроизведения
type StatusResponse struct {
	SessionID   string                 `json:"session_id"`
	Loaded      bool                   `json:"loaded"`
	CurrentTime int32                  `json:"current_time"`
	Duration    int32                  `json:"duration"`
	Progress    float64                `json:"load_progress"`
	Packets     map[string]int         `json:"packets,omitempty"`
	Server      map[string]interface{} `json:"server"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}
	if config.Packets == nil {
		config.Packets = NewPacketStats()
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	loggerMw := middleware.NewRequestLogger(config.Logger)
	router.Use(loggerMw.Handler())
	router.Use(otelgin.Middleware("replay_api"))

	promMw := middleware.NewPrometheusMiddleware("replay_api", config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router:     router,
		logger:     config.Logger,
		port:       config.Port,
		metrics:    NewServerMetrics(),
		packets:    config.Packets,
		signer:     config.Signer,
		controller: config.Controller,
		summary:    config.Summary,
	}
	rs.setupRoutes()
	return rs
}

// Handler возвращает http.Handler сервера
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	rs.router.GET("/health", rs.handleHealth)

	protected := rs.router.Group("/api")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/status", rs.handleStatus)
		protected.GET("/summary", rs.handleSummary)

		control := protected.Group("/")
		control.Use(rs.controlMiddleware())
		{
			control.POST("/load", rs.handleLoad)
			control.POST("/seek", rs.handleSeek)
			control.POST("/reset", rs.handleReset)
		}
	}
}

// Start запускает HTTP сервер и блокируется до его остановки
func (rs *RestServer) Start() error {
	rs.server = &http.Server{
		Addr:              rs.port,
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rs.logger.Info("🌐 REST API запущен на %s", rs.port)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ошибка REST API: %w", err)
	}
	return nil
}

// Stop останавливает HTTP сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.server == nil {
		return nil
	}
	return rs.server.Shutdown(ctx)
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": rs.metrics.GetUptime(),
	})
}

func (rs *RestServer) handleStatus(c *gin.Context) {
	rs.mu.Lock()
	status := StatusResponse{
		SessionID:   rs.controller.SessionID(),
		Loaded:      rs.controller.Loaded(),
		CurrentTime: rs.controller.CurrentTime(),
		Duration:    rs.controller.Duration(),
		Progress:    rs.progress,
	}
	rs.mu.Unlock()

	status.Packets = rs.packets.Counts()
	status.Server = rs.metrics.Snapshot()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: status})
}

func (rs *RestServer) handleSummary(c *gin.Context) {
	if rs.summary == nil {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Сводка недоступна"})
		return
	}
	rs.mu.Lock()
	summary, err := rs.summary()
	rs.mu.Unlock()
	if errors.Is(err, playback.ErrNotLoaded) {
		c.JSON(http.StatusConflict, GenericResponse{Success: false, Message: "Запись не загружена"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: summary})
}

func (rs *RestServer) handleLoad(c *gin.Context) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.progress = 0
	err := rs.controller.Load(c.Request.Context(), func(p float64) { rs.progress = p })
	if err != nil {
		rs.logger.Error("Не удалось загрузить запись: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Запись загружена",
		Data:    gin.H{"duration": rs.controller.Duration()},
	})
}

func (rs *RestServer) handleSeek(c *gin.Context) {
	var req SeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}
	target := *req.Time

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.controller.Loaded() {
		c.JSON(http.StatusConflict, GenericResponse{Success: false, Message: "Запись не загружена"})
		return
	}
	if target < 0 || target > rs.controller.Duration() {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Время вне записи: 0..%d", rs.controller.Duration()),
		})
		return
	}
	if err := rs.controller.Seek(target); err != nil {
		rs.logger.Error("Перемотка на %d не удалась: %v", target, err)
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "ok",
		Data:    gin.H{"current_time": rs.controller.CurrentTime()},
	})
}

func (rs *RestServer) handleReset(c *gin.Context) {
	rs.mu.Lock()
	rs.controller.Reset()
	rs.mu.Unlock()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok"})
}
