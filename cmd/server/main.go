package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"clientportal/config"
	"clientportal/internal/api"
	"clientportal/internal/httpserver"
	"clientportal/internal/repository"
	"clientportal/internal/service/auth"
	"clientportal/internal/service/invoice"
	"clientportal/internal/service/notify"
	"clientportal/internal/service/payment"
	"clientportal/internal/service/progression"
	"clientportal/pkg/db"
	"clientportal/pkg/logger"
	"clientportal/pkg/mq"
	"clientportal/pkg/outbox"
	redisclient "clientportal/pkg/redis"
	"clientportal/pkg/util"
)

func main() {
	// 1. Load config
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	// 2. Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// 3. Init Redis
	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduperWithLogger(rdb, 24*time.Hour, log)

	// 4. Init RabbitMQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// 5. Init repositories
	userRepo := repository.NewUserRepository(dbConn)
	clientRepo := repository.NewClientRepository(dbConn)
	projectRepo := repository.NewProjectRepository(dbConn)
	phaseRepo := repository.NewPhaseRepository(dbConn)
	negotiationRepo := repository.NewNegotiationRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	notifRepo := repository.NewNotificationRepository(dbConn)
	outboxRepo := outbox.NewRepository(dbConn)

	// 6. Init services
	notifier := notify.NewDispatcher(dbConn, notifRepo, deduper, log)
	engine := progression.NewEngine(
		projectRepo,
		negotiationRepo,
		phaseRepo,
		paymentRepo,
		clientRepo,
		notifier,
		publisher,
		progression.Config{
			AdminRecipients: cfg.Billing.AdminRecipients,
			FinalDueDays:    cfg.Billing.FinalDueDays,
			Currency:        cfg.Billing.Currency,
		},
		log,
	)
	paymentService := payment.NewService(
		paymentRepo,
		projectRepo,
		clientRepo,
		notifier,
		publisher,
		cfg.Billing.AdminRecipients,
		log,
	)
	authService := auth.NewService(userRepo, clientRepo, cfg.JWT.Secret)
	renderer := invoice.NewRenderer()
	replayService := outbox.NewReplayService(outboxRepo, publisher)

	// 7. Start outbox dispatcher (轮询 pending 事件并发布)
	outboxDispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go outboxDispatcher.Start(dispatcherCtx)

	// 8. Init handlers
	authHandler := api.NewAuthHandler(authService)
	projectHandler := api.NewProjectHandler(projectRepo, clientRepo, engine)
	paymentHandler := api.NewPaymentHandler(paymentService, projectRepo, clientRepo)
	invoiceHandler := api.NewInvoiceHandler(paymentService, paymentHandler, projectRepo, clientRepo, renderer, cfg.Billing)
	outboxHandler := api.NewOutboxHandler(outboxRepo, replayService)

	// 9. Init router
	router := httpserver.NewRouter(
		authHandler,
		projectHandler,
		paymentHandler,
		invoiceHandler,
		outboxHandler,
		dbConn,
		publisher,
		cfg.JWT.Secret,
	)

	// 10. Run server
	log.Info("Starting portal server", zap.String("port", cfg.Server.Port))
	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatal("server start failed", zap.Error(err))
	}
}
