package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"pasarbekas/internal/adapter/api"
	"pasarbekas/internal/adapter/api/handler"
	apimiddleware "pasarbekas/internal/adapter/api/middleware"
	"pasarbekas/internal/adapter/api/router"
	"pasarbekas/internal/adapter/repository"
	domainrepo "pasarbekas/internal/domain/repository"
	"pasarbekas/internal/infrastructure/auth"
	"pasarbekas/internal/infrastructure/firebase"
	"pasarbekas/internal/infrastructure/lock"
	"pasarbekas/internal/infrastructure/ratelimit"
	"pasarbekas/internal/infrastructure/websocket"
	"pasarbekas/internal/usecase"
	"pasarbekas/pkg/config"
	"pasarbekas/pkg/logger"
)

type stores struct {
	listings     domainrepo.ListingRepository
	chat         domainrepo.ChatRepository
	transactions domainrepo.TransactionRepository
	audit        domainrepo.AuditRepository
	health       handler.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(logger.Options{
		Level:       cfg.Log.Level,
		Development: cfg.IsDevelopment(),
		FilePath:    cfg.Log.FilePath,
		MaxSizeMB:   50,
		MaxBackups:  5,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	var firebaseApp *fbapp.App
	var clientOpt option.ClientOption
	if cfg.Storage.Driver == "firestore" || cfg.Auth.Verifier == "firebase" {
		if cfg.Firebase.ServiceAccountJSON != "" {
			logger.Info("Using Firebase service account from environment variable")
			clientOpt = option.WithCredentialsJSON([]byte(cfg.Firebase.ServiceAccountJSON))
		} else {
			if _, err := os.Stat(cfg.Firebase.ServiceAccountPath); err != nil {
				log.Fatalf("Service account file does not exist: %s", cfg.Firebase.ServiceAccountPath)
			}
			logger.Info("Using Firebase service account from file: %s", cfg.Firebase.ServiceAccountPath)
			clientOpt = option.WithCredentialsFile(cfg.Firebase.ServiceAccountPath)
		}

		firebaseApp, err = fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.Firebase.ProjectID}, clientOpt)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
	}

	var s stores
	switch cfg.Storage.Driver {
	case "firestore":
		firestoreClient, err := firestore.NewClient(ctx, cfg.Firebase.ProjectID, clientOpt)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		s = stores{
			listings:     repository.NewFirestoreListingRepository(firestoreClient),
			chat:         repository.NewFirestoreChatRepository(firestoreClient),
			transactions: repository.NewFirestoreTransactionRepository(firestoreClient),
			audit:        repository.NewFirestoreAuditRepository(firestoreClient),
			health:       repository.NewFirestorePinger(firestoreClient),
		}
	case "sqlite":
		db, err := repository.OpenSQLite(cfg.Storage.SQLiteDSN)
		if err != nil {
			log.Fatalf("Failed to open SQLite database: %v", err)
		}
		defer db.Close()

		s = stores{
			listings:     repository.NewSQLiteListingRepository(db),
			chat:         repository.NewSQLiteChatRepository(db),
			transactions: repository.NewSQLiteTransactionRepository(db),
			audit:        repository.NewSQLiteAuditRepository(db),
			health:       db,
		}
	default:
		log.Fatalf("Unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Audit.Driver == "bolt" {
		boltAudit, err := repository.OpenBoltAuditRepository(cfg.Audit.BoltPath)
		if err != nil {
			log.Fatalf("Failed to open audit log %s: %v", cfg.Audit.BoltPath, err)
		}
		defer boltAudit.Close()
		s.audit = boltAudit
	}

	var verifier auth.Verifier
	switch cfg.Auth.Verifier {
	case "firebase":
		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		verifier = firebase.NewFirebaseAuthClient(authClient)
	case "header":
		if !cfg.IsDevelopment() {
			log.Fatalf("The header verifier is only allowed in development")
		}
		logger.Warn("Trusting X-User-ID headers; never run this outside development")
		verifier = auth.HeaderVerifier{}
	default:
		log.Fatalf("Unknown auth verifier %q", cfg.Auth.Verifier)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	authorizer := auth.NewRoleAuthorizer(cfg.Auth.RoleCapabilities)
	locks := lock.NewKeyedMutex()

	limiter := ratelimit.NewRateLimiter(clock, map[string]ratelimit.Rule{
		ratelimit.ActionSendMessage: ratelimit.PerMinute(cfg.RateLimit.MessagesPerMinute, cfg.RateLimit.MessageBurst),
		ratelimit.ActionRequest:     ratelimit.PerSecond(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.RequestBurst),
	}, ratelimit.PerSecond(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.RequestBurst))
	limiter.StartCleanupRoutine(ctx, 10*time.Minute, cfg.RateLimit.IdleEviction)

	// The manager needs the chat engine and the chat engine needs the manager to push.
	wsManager := websocket.NewManager(nil, clock)

	auditUseCase := usecase.NewAuditUseCase(s.audit, wsManager, clock, registry)
	listingUseCase := usecase.NewListingUseCase(s.listings, auditUseCase, authorizer, locks, clock)
	moderationUseCase := usecase.NewModerationUseCase(listingUseCase, auditUseCase, authorizer, cfg.Moderation)
	chatUseCase := usecase.NewChatUseCase(s.chat, s.listings, auditUseCase, authorizer, wsManager, limiter, locks, clock)
	transactionUseCase := usecase.NewTransactionUseCase(s.transactions, s.listings, listingUseCase, chatUseCase,
		auditUseCase, authorizer, locks, clock, cfg.Transaction)

	wsManager.SetChat(chatUseCase)
	wsManager.Start(ctx)

	handler.Setup(listingUseCase, moderationUseCase, chatUseCase, transactionUseCase, auditUseCase)
	handler.SetupHealthHandler(s.health, cfg.Storage.Driver)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)
	adminMiddleware := apimiddleware.NewAdminMiddleware(authorizer)
	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.AllowedOrigins)

	router.Setup(e, authMiddleware, adminMiddleware, apimiddleware.RateLimit(limiter), wsHandler, registry)

	go func() {
		logger.Info("Starting server on port %s (storage=%s, audit=%s)", cfg.ServerPort, cfg.Storage.Driver, cfg.Audit.Driver)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}
