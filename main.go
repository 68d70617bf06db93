package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alarmsync/config"
	"alarmsync/database"
	"alarmsync/events"
	"alarmsync/routes"
	"alarmsync/utils"
	"alarmsync/workers"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize configuration
	cfg := config.Load()

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize logger
	setupLogger(cfg)

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatal("Failed to connect to database: ", err)
	}
	defer database.Disconnect()

	// Initialize Redis
	redisClient := config.InitRedis(cfg)
	defer redisClient.Close()

	// Initialize push transport (FCM commands + notifications, Twilio alerts)
	push, err := utils.NewPushService(
		cfg.FirebaseCredentials,
		cfg.TwilioAccountSID,
		cfg.TwilioAuthToken,
		cfg.TwilioPhoneNumber,
	)
	if err != nil {
		logrus.Fatal("Failed to initialize push service: ", err)
	}

	// Initialize event hub
	hub := events.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Build the service graph once. The reconcile worker and the API share it
	// so batch operations on a device's alarms contend on one collection guard.
	repos := routes.NewRepositories(db)
	svcs := routes.NewServices(cfg, repos, redisClient, hub, push)

	// Initialize workers
	deliveryWorker := workers.StartDeliveryWorker(cfg, db, push, hub)
	defer deliveryWorker.Stop()

	reconcileWorker := workers.StartReconcileWorker(cfg, svcs.Alarm, svcs.Alert, repos.Device, redisClient)
	defer reconcileWorker.Stop()

	// Setup routes
	router := routes.SetupRoutes(cfg, db, redisClient, repos, svcs, hub)

	// Create HTTP server
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in goroutine
	go func() {
		logrus.Info("🚀 alarmsync server starting on port ", cfg.Port)
		logrus.Info("⏰ Alarm API: /api/v1/alarms")
		logrus.Info("📱 WebSocket endpoint: /ws")
		logrus.Info("💖 Health Check: /health")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Fatal("Server forced to shutdown: ", err)
	}

	logrus.Info("✅ Server shutdown complete")
}

func setupLogger(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if cfg.Environment == "development" {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
