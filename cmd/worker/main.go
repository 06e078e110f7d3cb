// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kusinaph/reminder-backend/internal/config"
	"github.com/kusinaph/reminder-backend/internal/db"
	"github.com/kusinaph/reminder-backend/internal/queue"
	"github.com/kusinaph/reminder-backend/internal/repository"
	"github.com/kusinaph/reminder-backend/internal/sender"
	"github.com/kusinaph/reminder-backend/internal/service"
	"github.com/kusinaph/reminder-backend/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}
	if err := logger.Init(cfg.LogPath); err != nil {
		log.Fatal("failed to init logger: ", err)
	}
	defer logger.Sync()

	conn, err := db.Connect()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	window, err := service.NewWindow(cfg.Timezone, cfg.WindowStartHour, cfg.WindowEndHour)
	if err != nil {
		log.Fatal(err)
	}

	entityRepo := &repository.EntityRepository{DB: conn}
	reminderRepo := &repository.ReminderRepository{DB: conn}
	logRepo := &repository.DeliveryLogRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}

	smsSender := sender.NewSMSSender(cfg.SMSGatewayURL, cfg.SMSAPIKey, cfg.SMSSenderName)
	emailSender := sender.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom)

	scheduleService := &service.ScheduleService{
		EntityRepo:   entityRepo,
		ReminderRepo: reminderRepo,
		Config:       cfg,
	}
	dispatchService := &service.DispatchService{
		EntityRepo:   entityRepo,
		ReminderRepo: reminderRepo,
		LogRepo:      logRepo,
		TemplateRepo: templateRepo,
		Senders: map[string]sender.Sender{
			smsSender.Channel():   smsSender,
			emailSender.Channel(): emailSender,
		},
		Window: window,
		Config: cfg,
	}
	syncService := &service.SyncService{
		LogRepo: logRepo,
		SMS:     smsSender,
		Delay:   cfg.StatusSyncDelay,
	}

	// Schedule events from the API arrive over RabbitMQ.
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatal("failed to connect to RabbitMQ: ", err)
		}
		defer amqpQueue.Close()
		queue.StartScheduleSubscriber(amqpQueue, scheduleService)
	}

	c := cron.New()

	// Fixed-cadence dispatch invocations.
	_, err = c.AddFunc("@every "+cfg.DispatchInterval.String(), func() {
		if _, err := dispatchService.Run(context.Background()); err != nil {
			logger.Error("dispatch invocation failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal(err)
	}

	// Nightly provider-status reconciliation, off-peak.
	_, err = c.AddFunc("0 2 * * *", func() {
		if _, err := syncService.SyncAll(context.Background()); err != nil {
			logger.Error("status reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal(err)
	}

	c.Start()
	log.Println("worker running, dispatch every", cfg.DispatchInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	<-c.Stop().Done()
	log.Println("worker stopped")
}
