package main

import (
	"time"

	"go.uber.org/zap"

	"clientportal/config"
	"clientportal/internal/mqhandler"
	"clientportal/internal/repository"
	"clientportal/internal/service/mailer"
	"clientportal/pkg/db"
	"clientportal/pkg/logger"
	"clientportal/pkg/mq"
	redisclient "clientportal/pkg/redis"
	"clientportal/pkg/util"
)

func main() {
	// Load config
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting worker service...")

	// Init Redis
	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduperWithLogger(rdb, 24*time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	log.Info("Database connection established")

	// Init MQ publisher (死信投递用)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()
	if err := publisher.DeclareDLQ("notification.created"); err != nil {
		log.Fatal("failed to declare DLQ", zap.Error(err))
	}

	// Init repositories and mailer
	notifRepo := repository.NewNotificationRepository(dbConn)
	mailerClient := mailer.NewClient(cfg.Mailer)

	// Init handlers
	notifHandler := mqhandler.NewNotificationCreatedHandler(notifRepo, mailerClient, retryCounter, publisher, log)
	paymentHandler := mqhandler.NewPaymentEventHandler(deduper, log)

	// (1) Consumer for notification delivery
	log.Info("Initializing notification consumer", zap.String("queue", "portal.notification.deliver.q"))
	consumerNotif, err := mq.NewConsumer(cfg.MQ.URL, "portal.notification.deliver.q", "notification.created", log)
	if err != nil {
		log.Fatal("failed to init notification consumer", zap.Error(err))
	}
	consumerNotif.SetHandler(notifHandler.HandleNotificationCreated)
	go func() {
		log.Info("Starting notification consumer")
		if err := consumerNotif.StartConsuming(); err != nil {
			log.Fatal("notification consumer failed", zap.Error(err))
		}
	}()
	defer consumerNotif.Close()

	// (2) Consumer for payment.submitted audit
	log.Info("Initializing payment-submitted consumer", zap.String("queue", "portal.payment.submitted.q"))
	consumerSubmitted, err := mq.NewConsumer(cfg.MQ.URL, "portal.payment.submitted.q", "payment.submitted", log)
	if err != nil {
		log.Fatal("failed to init payment-submitted consumer", zap.Error(err))
	}
	consumerSubmitted.SetHandler(paymentHandler.HandlePaymentSubmitted)
	go func() {
		log.Info("Starting payment-submitted consumer")
		if err := consumerSubmitted.StartConsuming(); err != nil {
			log.Fatal("payment-submitted consumer failed", zap.Error(err))
		}
	}()
	defer consumerSubmitted.Close()

	// (3) Consumer for payment.approved audit
	log.Info("Initializing payment-approved consumer", zap.String("queue", "portal.payment.approved.q"))
	consumerApproved, err := mq.NewConsumer(cfg.MQ.URL, "portal.payment.approved.q", "payment.approved", log)
	if err != nil {
		log.Fatal("failed to init payment-approved consumer", zap.Error(err))
	}
	consumerApproved.SetHandler(paymentHandler.HandlePaymentApproved)
	go func() {
		log.Info("Starting payment-approved consumer")
		if err := consumerApproved.StartConsuming(); err != nil {
			log.Fatal("payment-approved consumer failed", zap.Error(err))
		}
	}()
	defer consumerApproved.Close()

	log.Info("All consumers started, worker is ready to process messages")

	// Keep worker running
	select {}
}
