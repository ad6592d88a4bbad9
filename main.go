package main

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/support-relay-api/config"
	"github.com/kendall-kelly/support-relay-api/controllers"
	"github.com/kendall-kelly/support-relay-api/logger"
	"github.com/kendall-kelly/support-relay-api/middleware"
	"github.com/kendall-kelly/support-relay-api/models"
	"github.com/kendall-kelly/support-relay-api/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// dependencies are the services the router hands to its controllers
type dependencies struct {
	relay  *services.RelayService
	images services.ImageService
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		panic("failed to initialise logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Infow("Starting Support Relay API server...", "env", cfg.GoEnv)

	// Connect to database
	if err := config.ConnectDatabase(cfg); err != nil {
		logger.Fatalw("Failed to connect to database", "error", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatalw("Failed to migrate database", "error", err)
	}
	logger.Infow("Database migration completed successfully")

	telegram := services.NewTelegramService(cfg)
	if !telegram.IsConfigured() {
		logger.Warnw("Telegram is not configured, support messages will be stored but not relayed")
	}

	deps := dependencies{
		relay: services.NewRelayService(services.NewConversationStore(db), telegram),
	}

	if cfg.StorageConfigured() {
		storage, err := services.NewS3Service(context.Background(), cfg)
		if err != nil {
			logger.Fatalw("Failed to initialise S3 storage", "error", err)
		}
		deps.images = services.NewImageService(storage)
		telegram.MirrorFilesTo(storage)
	} else {
		logger.Warnw("AWS_S3_BUCKET not set, image uploads are disabled and support photos link to Telegram directly")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(cfg, deps)

	addr := ":" + cfg.Port
	logger.Infow("Server is running", "addr", addr)
	if err := router.Run(addr); err != nil {
		logger.Fatalw("Failed to start server", "error", err)
	}
}

// setupRouter wires middleware and every route onto a new engine
func setupRouter(cfg *config.Config, deps dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.RequestMetrics())
	router.Use(cors.New(corsConfig(cfg)))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	conversationController := controllers.NewConversationController(deps.relay)
	uploadController := controllers.NewUploadController(deps.images)
	webhookController := controllers.NewWebhookController(deps.relay, cfg)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Database status endpoint
		v1.GET("/database/status", databaseStatus)

		support := v1.Group("/support")
		{
			support.POST("/identity", controllers.IssueAnonymousID)

			support.GET("/conversations", conversationController.ListConversations)
			support.POST("/conversations", conversationController.CreateConversation)
			support.GET("/conversations/:id", conversationController.GetConversation)
			support.PATCH("/conversations/:id", conversationController.UpdateConversation)
			support.POST("/conversations/:id/messages", conversationController.SendMessage)
			support.POST("/conversations/:id/read", conversationController.MarkRead)

			support.POST("/upload", uploadController.UploadImage)
		}

		telegram := v1.Group("/telegram")
		{
			telegram.POST("/webhook", middleware.RequireWebhookSecret(cfg.TelegramWebhookSecret), webhookController.HandleUpdate)
			telegram.GET("/webhook", webhookController.Status)
		}
	}

	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}

	allowed := cfg.CORSAllowedOrigins
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowed
	}
	return corsCfg
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Support Relay API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		logger.Errorw("Database ping failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	// Works on both postgres and sqlite
	tables, err := db.Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
