package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fhdautomacao/fhdautomacaosite-sub001/billing"
	"github.com/fhdautomacao/fhdautomacaosite-sub001/config"
	"github.com/fhdautomacao/fhdautomacaosite-sub001/handlers"
	"github.com/fhdautomacao/fhdautomacaosite-sub001/middleware"
	"github.com/fhdautomacao/fhdautomacaosite-sub001/utils"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Build the installment engine. Everything is an explicitly constructed
	// service object; nothing lives in package-level state.
	gateway := billing.NewGormGateway(db)
	scheduler := billing.NewScheduler(nil)
	domains := billing.DefaultDomains()

	var dispatcher billing.Dispatcher = &billing.LogDispatcher{Log: logger}
	if cfg.SMTPHost != "" {
		dispatcher = utils.NewEmailDispatcher(cfg, logger)
	}

	reconciler := billing.NewReconciler(gateway, domains, dispatcher, logger, nil)
	receipts := billing.NewReceiptService(gateway, domains, logger, nil)

	// Periodic overdue check. SkipIfStillRunning plus the reconciler's own
	// guard keeps overlapping passes from stacking up.
	scheduleRunner := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := scheduleRunner.AddFunc(cfg.ReconcileSpec, func() {
		reconciler.Run(context.Background())
	}); err != nil {
		logger.Fatalf("Invalid reconcile schedule %q: %v", cfg.ReconcileSpec, err)
	}
	scheduleRunner.Start()
	defer scheduleRunner.Stop()

	// Setup router
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "fhd-billing-api",
		})
	})

	// API routes
	obligationHandler := handlers.NewObligationHandler(gateway, scheduler, receipts, reconciler, logger)
	api := router.Group("/api/v1")
	api.Use(middleware.JwtAuthMiddleware(cfg))
	{
		api.POST("/obligations", obligationHandler.CreateObligation)
		api.GET("/obligations", obligationHandler.ListObligations)
		api.GET("/obligations/:id", obligationHandler.GetObligation)

		api.POST("/installments/:id/receipt", obligationHandler.AttachReceipt)
		api.DELETE("/installments/:id/receipt", obligationHandler.DetachReceipt)
		api.POST("/installments/:id/cancel", obligationHandler.CancelInstallment)

		api.POST("/reconciliation/run", middleware.RequireRole(middleware.RoleAdmin), obligationHandler.ForceReconcile)
	}

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	logger.Infof("Starting FHD billing API server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
