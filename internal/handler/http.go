package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"storybook-server/internal/config"
	"storybook-server/internal/service"
)

// Handler wires the HTTP surface to the services.
type Handler struct {
	users   *service.UserService
	ledger  *service.LedgerService
	stories *service.StoryService
	tokens  *service.TokenService
	logger  *zap.Logger
}

// New creates a new Handler.
func New(
	users *service.UserService,
	ledger *service.LedgerService,
	stories *service.StoryService,
	tokens *service.TokenService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:   users,
		ledger:  ledger,
		stories: stories,
		tokens:  tokens,
		logger:  logger.Named("Handler"),
	}
}

// Router builds the gin engine with middleware and all routes registered.
func (h *Handler) Router(cfg config.ServerConfig, appEnv string) *gin.Engine {
	if appEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ZapLoggingMiddleware(h.logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	prom := ginprometheus.NewPrometheus("gin")
	prom.Use(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/anonymous", h.startAnonymous)
			auth.POST("/login", h.login)
			auth.POST("/refresh", h.refresh)
			auth.POST("/register", h.AuthMiddleware(), h.register)
		}

		authorized := api.Group("")
		authorized.Use(h.AuthMiddleware())
		{
			authorized.GET("/me", h.me)
			authorized.POST("/stories", h.generateStory)
			authorized.GET("/stories", h.listStories)
			authorized.GET("/stories/:id", h.getStory)
		}
	}

	return router
}
