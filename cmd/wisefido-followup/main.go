package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-followup/common/database"
	"wisefido-followup/common/logger"
	mqttcommon "wisefido-followup/common/mqtt"
	rediscommon "wisefido-followup/common/redis"
	"wisefido-followup/internal/config"
	httpapi "wisefido-followup/internal/http"
	"wisefido-followup/internal/notifier"
	"wisefido-followup/internal/pending"
	"wisefido-followup/internal/quickresponse"
	"wisefido-followup/internal/repository"
	"wisefido-followup/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. logger
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-followup")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. record store: postgres when enabled and reachable, memory otherwise
	var db *sql.DB
	var store repository.IncidentStore
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			pg := repository.NewPostgresIncidentStore(d, log, cfg.FollowUp.StoreRetries)
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Fatal("Failed to ensure incidents schema", zap.Error(err))
			}
			db = d
			store = pg
			log.Info("DB enabled for wisefido-followup")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory store", zap.Error(err))
		}
	}
	if store == nil {
		store = repository.NewMemoryIncidentStore(cfg.FollowUp.StoreRetries)
	}

	// 4. quick-response queue
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	var queue quickresponse.Queue
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		log.Warn("Redis unavailable, quick responses will not be reconciled", zap.Error(err))
	} else {
		queue = quickresponse.NewRedisQueue(redisClient, cfg.FollowUp.Queue.Key)
	}

	// 5. notification surface
	var mqttClient *mqttcommon.Client
	var surface notifier.Surface = notifier.NoopSurface{}
	switch cfg.FollowUp.Notify.Surface {
	case "mqtt":
		if c, err := mqttcommon.NewClient(&cfg.MQTT, log); err == nil {
			mqttClient = c
			surface = notifier.NewMQTTSurface(c, cfg.FollowUp.Notify.Topic, cfg.MQTT.QoS, log)
		} else {
			log.Warn("MQTT unavailable, notifications degraded", zap.Error(err))
		}
	case "webhook":
		surface = notifier.NewWebhookSurface(cfg.FollowUp.Notify.WebhookURL, log)
	}
	scheduler := notifier.NewScheduler(surface, time.Now, log)

	// 6. services
	repo := repository.NewFollowUpRepository(store, time.Now, log)
	pendingSvc := pending.NewService(repo, cfg.Lookahead(), log)
	followUps := service.NewFollowUpService(repo, scheduler, pendingSvc, time.Now, log)

	var reconciler *quickresponse.Reconciler
	if queue != nil {
		reconciler = quickresponse.NewReconciler(queue, followUps, cfg.QueueRetention(), time.Now, log)
	}
	if _, err := followUps.Startup(ctx, reconciler); err != nil {
		log.Error("Follow-up startup incomplete", zap.Error(err))
	}

	// 7. HTTP
	router := httpapi.NewRouter(log)
	router.RegisterFollowUpRoutes(httpapi.NewFollowUpHandler(followUps, log))
	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("HTTP server error", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)

	scheduler.Stop()
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	_ = rediscommon.Close(redisClient)
	if db != nil {
		database.Close(db)
	}
	log.Info("wisefido-followup stopped")
}
