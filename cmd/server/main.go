// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/kusinaph/reminder-backend/internal/config"
	"github.com/kusinaph/reminder-backend/internal/controller"
	"github.com/kusinaph/reminder-backend/internal/db"
	"github.com/kusinaph/reminder-backend/internal/queue"
	"github.com/kusinaph/reminder-backend/internal/repository"
	"github.com/kusinaph/reminder-backend/internal/sender"
	"github.com/kusinaph/reminder-backend/internal/service"
	"github.com/kusinaph/reminder-backend/pkg/logger"
)

func main() {
	// Load .env
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
	senders := map[string]sender.Sender{
		smsSender.Channel():   smsSender,
		emailSender.Channel(): emailSender,
	}

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
		Senders:      senders,
		Window:       window,
		Config:       cfg,
	}
	syncService := &service.SyncService{
		LogRepo: logRepo,
		SMS:     smsSender,
		Delay:   cfg.StatusSyncDelay,
	}

	// With a broker configured the worker consumes schedule events;
	// otherwise this process handles them in memory.
	var q queue.Queue
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatal(err)
		}
		defer amqpQueue.Close()
		q = amqpQueue
	} else {
		memQueue := queue.NewInMemoryQueue()
		queue.StartScheduleSubscriber(memQueue, scheduleService)
		q = memQueue
	}

	reminderController := &controller.ReminderController{
		EntityRepo:      entityRepo,
		ReminderRepo:    reminderRepo,
		ScheduleService: scheduleService,
		DispatchService: dispatchService,
		SyncService:     syncService,
		Queue:           q,
	}

	r := chi.NewRouter()

	// Entity lifecycle (called by the checkout/reservation flow)
	r.Post("/entities", reminderController.CreateEntity)
	r.Post("/entities/{id}/schedule", reminderController.Schedule)
	r.Post("/entities/{id}/status", reminderController.UpdateEntityStatus)
	r.Get("/entities/{id}", reminderController.GetEntity)

	// Operator surface
	r.Post("/dispatch", reminderController.Dispatch)
	r.Post("/entities/{id}/send", reminderController.ManualSend)
	r.Post("/reconcile", reminderController.Reconcile)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Println("server running on :" + port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
