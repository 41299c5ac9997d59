package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-followup/common/logger"
	mqttcommon "wisefido-followup/common/mqtt"
	rediscommon "wisefido-followup/common/redis"
	"wisefido-followup/internal/config"
	"wisefido-followup/internal/quickresponse"

	"go.uber.org/zap"
)

// Background capturer: notification action taps -> redis queue.
// Never opens the incident store; wisefido-followup reconciles the queue on start.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-followup-capture")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	err = rediscommon.Ping(ctx, redisClient)
	cancel()
	if err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer rediscommon.Close(redisClient)

	// separate session from the foreground service
	cfg.MQTT.ClientID = cfg.MQTT.ClientID + "-capture"
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, log)
	if err != nil {
		log.Fatal("Failed to connect to MQTT", zap.Error(err))
	}
	defer mqttClient.Disconnect()

	queue := quickresponse.NewRedisQueue(redisClient, cfg.FollowUp.Queue.Key)
	capturer := quickresponse.NewCapturer(queue, time.Now, log)

	topic := cfg.FollowUp.Notify.ActionTopic
	if err := mqttClient.Subscribe(topic, cfg.MQTT.QoS, capturer.HandleMessage); err != nil {
		log.Fatal("Failed to subscribe to action topic", zap.Error(err))
	}
	log.Info("Quick response capture started", zap.String("topic", topic))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	if err := mqttClient.Unsubscribe(topic); err != nil {
		log.Warn("Failed to unsubscribe", zap.Error(err))
	}
}
