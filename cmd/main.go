package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"formloc/db"
	"formloc/internal/annotation"
	"formloc/internal/auth"
	"formloc/internal/cache"
	"formloc/internal/config"
	"formloc/internal/geolocation"
	"formloc/internal/submission"
	"formloc/internal/validation"
	"formloc/internal/web"
	"formloc/middleware"
)

var (
	infoLogger  = log.New(os.Stdout, "", log.LstdFlags)
	errorLogger = log.New(os.Stderr, "", log.LstdFlags)
)

// runCacheCleanup periodically removes expired entries from the persistent
// cache so stale rows do not accumulate between lookups.
func runCacheCleanup(locationRepo db.LocationRepository, done <-chan bool) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	infoLogger.Println("Cache cleanup worker started")
	for {
		select {
		case <-done:
			infoLogger.Println("Cache cleanup worker stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			removed, err := locationRepo.CleanupExpired(ctx)
			cancel()
			if err != nil {
				errorLogger.Printf("Cache cleanup failed: %v", err)
				continue
			}
			if removed > 0 {
				infoLogger.Printf("Cache cleanup removed %d expired entries", removed)
			}
		}
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		errorLogger.Fatalf("Failed to load configuration: %v", err)
	}

	var sqliteDB *sql.DB
	var mongoClient *mongo.Client

	switch cfg.DatabaseType {
	case config.MongoDB:
		infoLogger.Println("Using MongoDB database")
		mongoClient, err = db.ConnectToMongo(cfg.MongoURI)
		if err != nil {
			errorLogger.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
	default:
		infoLogger.Println("Using SQLite database")
		sqliteDB, err = db.ConnectToSQLite(cfg.SQLitePath)
		if err != nil {
			errorLogger.Fatalf("Failed to connect to SQLite: %v", err)
		}
		defer sqliteDB.Close()

		if err := db.InitializeSchema(sqliteDB); err != nil {
			errorLogger.Fatalf("Failed to initialize database schema: %v", err)
		}
	}

	repoFactory := db.NewRepositoryFactory(sqliteDB, mongoClient, cfg.DatabaseName)
	locationRepo := repoFactory.NewLocationRepository()
	submissionRepo := repoFactory.NewSubmissionRepository()
	noteRepo := repoFactory.NewNoteRepository()
	settingsRepo := repoFactory.NewFormSettingsRepository()

	requestCache, err := cache.NewRequestCache(cfg.RequestCacheMaxSize)
	if err != nil {
		errorLogger.Fatalf("Failed to create request cache: %v", err)
	}

	// The interface stays nil unless a Redis client actually connected;
	// assigning a failed *RedisCache here would make the nil layer guard
	// pass and crash the first lookup.
	var objectCache cache.ObjectCache
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr)
		if err != nil {
			errorLogger.Printf("Redis unavailable, continuing without object cache: %v", err)
		} else {
			infoLogger.Printf("Object cache connected at %s", cfg.RedisAddr)
			objectCache = redisCache
			defer redisCache.Close()
		}
	}

	locationCache := cache.NewMultiLayerCache(requestCache, objectCache, locationRepo)

	ipstackClient := geolocation.NewClient(cfg.IPStackUseHTTPS)
	resolver := geolocation.NewResolver(locationCache, ipstackClient, cfg.IPStackAccessKey, cfg.SuccessCacheTTL, cfg.ErrorCacheTTL)
	if !resolver.HasAccessKey() {
		infoLogger.Println("Warning: IPSTACK_ACCESS_KEY is not set, lookups will fail closed when validation is enabled")
	} else {
		infoLogger.Printf("IPStack access key configured: %s", geolocation.MaskKey(cfg.IPStackAccessKey))
	}

	gate := validation.NewGate(resolver)
	annotator := annotation.NewAnnotator(noteRepo)
	submissionService := submission.NewService(settingsRepo, submissionRepo, resolver, gate, annotator)

	done := make(chan bool)
	go runCacheCleanup(locationRepo, done)

	authHandlers := auth.NewAuthHandlers(cfg)
	mw := middleware.NewMiddleware(cfg)
	handler := web.NewHandler(submissionService, resolver, settingsRepo, submissionRepo, noteRepo)
	router := handler.SetupRoutes(authHandlers, mw)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		infoLogger.Printf("Server starting on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errorLogger.Fatalf("Server error: %v", err)
		}
	}()

	waitForShutdown(server, done)
}

func waitForShutdown(server *http.Server, done chan bool) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	sig := <-stop
	infoLogger.Printf("Received shutdown signal: %v", sig)
	close(done)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		errorLogger.Printf("Server shutdown error: %v", err)
		os.Exit(1)
	}
	infoLogger.Println("Server stopped")
}
