package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/helpline-labs/support-desk/internal/api/http"
	"github.com/helpline-labs/support-desk/internal/api/http/handlers"
	"github.com/helpline-labs/support-desk/internal/attachment"
	"github.com/helpline-labs/support-desk/internal/auth"
	"github.com/helpline-labs/support-desk/internal/config"
	"github.com/helpline-labs/support-desk/internal/events"
	"github.com/helpline-labs/support-desk/internal/notify"
	"github.com/helpline-labs/support-desk/internal/observability"
	"github.com/helpline-labs/support-desk/internal/persistence"
	"github.com/helpline-labs/support-desk/internal/repository"
	"github.com/helpline-labs/support-desk/internal/repository/memory"
	"github.com/helpline-labs/support-desk/internal/service"
	"github.com/helpline-labs/support-desk/internal/worker"
)

const shutdownTimeout = 15 * time.Second

type repositories struct {
	tickets     repository.TicketRepository
	comments    repository.TicketCommentRepository
	history     repository.TicketHistoryRepository
	attachments repository.AttachmentRepository
	ingestions  repository.EmailIngestionRepository
	users       repository.UserRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	healthChecks := map[string]handlers.Pinger{}
	var repos repositories
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		repos = repositories{
			tickets:     repository.NewTicketRepository(pool),
			comments:    repository.NewTicketCommentRepository(pool),
			history:     repository.NewTicketHistoryRepository(pool),
			attachments: repository.NewAttachmentRepository(pool),
			ingestions:  repository.NewEmailIngestionRepository(pool),
			users:       repository.NewUserRepository(pool),
		}
		healthChecks["postgres"] = pg
	} else {
		store := memory.New()
		repos = repositories{
			tickets:     store.Tickets(),
			comments:    store.Comments(),
			history:     store.History(),
			attachments: store.Attachments(),
			ingestions:  store.EmailIngestions(),
			users:       store.Users(),
		}
	}

	var messageLock service.MessageLock = persistence.NewLocalMessageLock()
	if redis := persistence.NewRedis(cfg.Redis, logger); redis != nil {
		defer redis.Close()
		messageLock = persistence.NewMessageLock(redis.Client, cfg.Ingestion.LockTTL)
		healthChecks["redis"] = redis
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to init attachment storage", zap.Error(err), zap.String("backend", cfg.Attachments.Backend))
	}
	files := attachment.NewStore(backend, attachment.StoreOptions{
		TokenTTL:     cfg.Attachments.TokenTTL,
		MaxSizeBytes: cfg.Attachments.MaxSizeBytes,
	})

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger, metrics)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     repos.tickets,
		CommentRepo:    repos.comments,
		HistoryRepo:    repos.history,
		AttachmentRepo: repos.attachments,
		Files:          files,
		Dispatcher:     dispatcher,
		Logger:         logger.Named("tickets"),
		EditWindow:     cfg.Tickets.EditWindow,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		Tickets:  ticketService,
		UserRepo: repos.users,
		Logger:   logger.Named("assignments"),
	})
	attachmentService := service.NewAttachmentService(service.AttachmentDependencies{
		TicketRepo:     repos.tickets,
		AttachmentRepo: repos.attachments,
		Validator:      attachment.NewValidator(cfg.Attachments.MaxSizeBytes),
		Files:          files,
		Dispatcher:     dispatcher,
		Logger:         logger.Named("attachments"),
	})
	ingestionService := service.NewIngestionService(service.IngestionDependencies{
		IngestionRepo: repos.ingestions,
		UserRepo:      repos.users,
		TicketRepo:    repos.tickets,
		Lock:          messageLock,
		Dispatcher:    dispatcher,
		Logger:        logger.Named("ingestion"),
	})

	notifications := service.NewNotificationService(dispatcher, notify.NewMailer(cfg.Notification, logger), logger.Named("notifications"))
	notificationWorker := worker.StartNotificationWorker(ctx, notifications, dispatcher, logger.Named("worker"))

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes)
	app := httptransport.NewServer(httptransport.ServerOptions{
		AppName:        cfg.App.Name,
		BodyLimit:      int(cfg.Attachments.MaxSizeBytes) + 1<<20,
		RequestTimeout: cfg.App.RequestTimeout(),
	}, logger, metrics, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthChecks),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Tickets:        handlers.NewTicketsHandler(ticketService, assignmentService),
		Attachments:    handlers.NewAttachmentsHandler(attachmentService, logger),
		Ingestion:      handlers.NewIngestionHandler(ingestionService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, logger),
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	notificationWorker.Wait()
}

func newBackend(ctx context.Context, cfg *config.Config) (attachment.Backend, error) {
	if cfg.Attachments.Backend == "s3" {
		return attachment.NewS3Backend(ctx, cfg.S3)
	}
	return attachment.NewLocalBackend(cfg.Attachments.Dir)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
