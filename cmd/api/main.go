package main

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harentsoaR/clinic-rbac/internal/auth"
	"github.com/harentsoaR/clinic-rbac/internal/config"
	"github.com/harentsoaR/clinic-rbac/internal/handlers"
	"github.com/harentsoaR/clinic-rbac/internal/logger"
	"github.com/harentsoaR/clinic-rbac/internal/metrics"
	"github.com/harentsoaR/clinic-rbac/internal/middleware"
	"github.com/harentsoaR/clinic-rbac/internal/rbac"
	"github.com/harentsoaR/clinic-rbac/internal/services"
	"github.com/harentsoaR/clinic-rbac/internal/store"
	"github.com/harentsoaR/clinic-rbac/internal/utils"
)

func main() {
	cfg, dotenvLoaded, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if !dotenvLoaded {
		log.Info("No .env file found, relying on environment variables.")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.WithFields(logrus.Fields{
		"port":         cfg.Port,
		"store":        cfg.StoreDriver,
		"database":     cfg.MongoDatabase,
		"jwt_ttl":      cfg.JWTTTL.String(),
		"sms_enabled":  cfg.TextbeltAPIKey != "",
		"cors_origins": cfg.CORSAllowedOrigins,
	}).Info("Configuration loaded")

	// --- Store ---
	var s store.Store
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("Using in-memory store; data is lost on restart")
		s = store.NewMemoryStore()
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			cancel()
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			cancel()
			log.Fatalf("Failed to reach MongoDB: %v", err)
		}
		defer client.Disconnect(context.Background())

		ms := store.NewMongoStore(client, client.Database(cfg.MongoDatabase))
		if err := ms.EnsureIndexes(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to create indexes: %v", err)
		}
		cancel()
		s = ms
		log.Info("Successfully connected to MongoDB!")
	}

	// --- Services ---
	m := metrics.New()
	signer := utils.NewTokenSigner(cfg.JWTSecret, cfg.JWTTTL)
	notificationSvc := services.NewNotificationService(cfg.TextbeltAPIKey, log)
	assignments := services.NewAssignmentManager(s, log, m, notificationSvc)
	registry := services.NewRegistry(s, rbac.NewAuthorizer(log, m), rbac.NewResolver(s), assignments, log, cfg.BcryptCost)

	if cfg.AdminEmail != "" {
		created, err := registry.EnsureAdmin(context.Background(), cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			log.Fatalf("Failed to bootstrap admin: %v", err)
		}
		if created {
			log.WithField("email", cfg.AdminEmail).Info("Bootstrap admin created")
		}
	}

	verifier, err := auth.NewCredentialVerifier(s, signer, log, m, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("Failed to build credential verifier: %v", err)
	}
	h := handlers.NewHandler(registry, verifier, auth.NewTokenValidator(s, signer), log)

	// --- Gin Router ---
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Stack(log, m)...)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	h.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	log.Infof("Starting server on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
