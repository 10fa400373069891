package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"academic360-notifications/internal/api"
	awsclients "academic360-notifications/internal/common/aws"
	"academic360-notifications/internal/common/config"
	"academic360-notifications/internal/common/database"
	"academic360-notifications/internal/common/dispatcher"
	httpclient "academic360-notifications/internal/common/http"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/common/observability"
	"academic360-notifications/internal/models"
	"academic360-notifications/internal/notifications/audit"
	"academic360-notifications/internal/notifications/events"
	"academic360-notifications/internal/notifications/queue"
	"academic360-notifications/internal/notifications/render"
	"academic360-notifications/internal/notifications/service"
	"academic360-notifications/internal/workers/delivery"
	emailsend "academic360-notifications/internal/workers/delivery/email-send"
	inapppush "academic360-notifications/internal/workers/delivery/inapp-push"
	smssend "academic360-notifications/internal/workers/delivery/sms-send"
	whatsappsend "academic360-notifications/internal/workers/delivery/whatsapp-send"
	requeuestale "academic360-notifications/internal/workers/maintenance/requeue-stale"
	"academic360-notifications/pkg/registry"
)

var connectRetry = dispatcher.RetryConfig{
	MaxRetries: 10,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

type registration struct {
	taskType  string
	configKey string
	queueType models.QueueType
	handler   dispatcher.Handler
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service":     cfg.App.Name,
		"environment": cfg.App.Environment,
	})

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Postgres ---
	var pg *database.PostgresClient
	err = dispatcher.WithBackoff(ctx, "postgres connection", connectRetry, func(ctx context.Context) error {
		var err error
		if pg, err = database.NewPostgres(cfg.Database.Postgres); err != nil {
			return err
		}
		return pg.Ping(ctx)
	})
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis ---
	rdb := database.NewRedis(cfg.Database.Redis)
	if err := dispatcher.WithBackoff(ctx, "redis connection", connectRetry, rdb.Ping); err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	checks := map[string]api.Pinger{"postgres": pg, "redis": rdb}

	// --- Core services ---
	store := queue.NewStore(pg.DB, queue.ConfigFromApp(cfg), log)
	alerts := render.NewCachedAlertRepository(
		render.NewPostgresAlertRepository(pg.DB),
		rdb.Client,
		time.Duration(cfg.Notifications.AlertCacheTTL)*time.Second,
		log,
	)
	svc := service.New(pg.DB, store, alerts, log)
	router := delivery.NewRouter(cfg, svc, log)

	// --- Outcome listeners ---
	var listeners []dispatcher.OutcomeListener

	if cfg.Notifications.Events.Enabled {
		producer, err := events.NewSyncProducer(cfg.Integrations.Kafka.Brokers, cfg.Integrations.Kafka.ClientID)
		if err != nil {
			zapLog.Fatal("kafka producer failed", zap.Error(err))
		}
		publisher := events.NewPublisher(producer, cfg.Notifications.Events.Topic, log)
		defer publisher.Close()
		listeners = append(listeners, publisher)
		zapLog.Info("Outcome events enabled", zap.String("topic", cfg.Notifications.Events.Topic))
	}

	if cfg.Notifications.Audit.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch client failed", zap.Error(err))
		}
		if err := dispatcher.WithBackoff(ctx, "elasticsearch connection", connectRetry, es.Ping); err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		checks["elasticsearch"] = es
		listeners = append(listeners, audit.NewDeadLetterIndexer(es.Client, cfg.Notifications.Audit.Index, log))
		zapLog.Info("Dead-letter audit enabled", zap.String("index", cfg.Notifications.Audit.Index))
	}

	// --- Channel handlers ---
	var registrations []registration

	if config.IsWorkerEnabled(cfg, emailsend.TaskType) {
		templates, err := registry.LoadRegistry(cfg.Template.RegistryPath)
		if err != nil {
			zapLog.Fatal("email template registry load failed", zap.Error(err))
		}
		if err := templates.Validate(); err != nil {
			zapLog.Fatal("email template registry invalid", zap.Error(err))
		}

		emailCfg := emailsend.NewConfig(cfg)
		if err := emailCfg.Validate(); err != nil {
			zapLog.Fatal("email-send config invalid", zap.Error(err))
		}

		var sender emailsend.Sender
		if emailCfg.Provider == emailsend.ProviderSMTP {
			sender = emailsend.NewSMTPSender(emailCfg)
		} else {
			sesClient, err := awsclients.NewSESClient(ctx, cfg.Integrations.AWS.Region)
			if err != nil {
				zapLog.Fatal("ses client failed", zap.Error(err))
			}
			sender = emailsend.NewSESSender(sesClient)
		}

		registrations = append(registrations, registration{
			taskType:  emailsend.TaskType,
			queueType: models.QueueEmail,
			handler:   emailsend.NewHandler(emailCfg, router, templates, sender, log),
		})
	}

	if config.IsWorkerEnabled(cfg, whatsappsend.TaskType) {
		waCfg := whatsappsend.NewConfig(cfg)
		if err := waCfg.Validate(); err != nil {
			zapLog.Fatal("whatsapp-send config invalid", zap.Error(err))
		}
		registrations = append(registrations, registration{
			taskType:  whatsappsend.TaskType,
			queueType: models.QueueWhatsapp,
			handler:   whatsappsend.NewHandler(waCfg, router, httpclient.NewClient(waCfg.Timeout), log),
		})
	}

	if config.IsWorkerEnabled(cfg, smssend.TaskType) {
		smsCfg := smssend.NewConfig(cfg)
		snsClient, err := awsclients.NewSNSClient(ctx, cfg.Integrations.AWS.Region, smsCfg.SenderID)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		registrations = append(registrations, registration{
			taskType:  smssend.TaskType,
			queueType: models.QueueSMS,
			handler:   smssend.NewHandler(smsCfg, router, snsClient, log),
		})
	}

	if config.IsWorkerEnabled(cfg, inapppush.TaskType) {
		push := inapppush.NewHandler(inapppush.DefaultConfig(), rdb.Client, log)
		registrations = append(registrations,
			registration{taskType: inapppush.TaskType, queueType: models.QueueInApp, handler: push},
			registration{taskType: inapppush.WebTaskType, configKey: inapppush.TaskType, queueType: models.QueueWeb, handler: push},
		)
	}

	// --- Workers ---
	var wg sync.WaitGroup
	for _, reg := range registrations {
		key := reg.configKey
		if key == "" {
			key = reg.taskType
		}
		wc := config.GetWorkerConfig(cfg, key)
		for i := 0; i < wc.Instances; i++ {
			w := dispatcher.NewWorker(reg.taskType, reg.queueType, dispatcher.ConfigFromWorker(wc),
				store, svc, reg.handler, log,
				dispatcher.WithListeners(listeners...),
				dispatcher.WithObservability(obs),
				dispatcher.WithInstance(i),
			)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := w.Run(ctx); err != nil && ctx.Err() == nil {
					zapLog.Error("worker stopped", zap.String("workerId", w.ID()), zap.Error(err))
				}
			}()
		}
		zapLog.Info("Worker registered",
			zap.String("taskType", reg.taskType),
			zap.String("queueType", string(reg.queueType)),
			zap.Int("instances", wc.Instances),
		)
	}

	// --- Staleness sweep ---
	sweep := requeuestale.NewHandler(requeuestale.NewConfig(cfg), store, log)
	if err := sweep.Start(); err != nil {
		zapLog.Fatal("staleness sweep failed to start", zap.Error(err))
	}

	// --- HTTP ---
	server := api.NewServer(cfg.Server.Address, svc, store, checks, log)
	go func() {
		if err := server.Start(); err != nil {
			zapLog.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("http server shutdown", zap.Error(err))
	}
	sweep.Stop(shutdownCtx)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		zapLog.Info("All workers stopped")
	case <-shutdownCtx.Done():
		zapLog.Warn("Shutdown timed out; in-flight rows will be reclaimed by the staleness sweep")
	}
}
