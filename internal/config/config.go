package config

import (
	"os"
	"strconv"
	"time"

	"wisefido-followup/common/config"
)

// Config follow-up service configuration
type Config struct {
	Database  config.DatabaseConfig
	DBEnabled bool
	Redis     config.RedisConfig
	MQTT      config.MQTTConfig

	HTTP struct {
		Addr string
	}

	FollowUp struct {
		// window for the "upcoming" bucket of the pending query
		LookaheadMinutes int
		// optimistic retries for the transactional update
		StoreRetries int

		Queue struct {
			Key            string // redis hash holding quick responses
			RetentionHours int    // processed entries older than this are purged
		}

		Notify struct {
			Surface     string // mqtt | webhook | none
			Topic       string // notifications published here
			ActionTopic string // notification action taps arrive here
			WebhookURL  string
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Lookahead upcoming window as a duration
func (c *Config) Lookahead() time.Duration {
	return time.Duration(c.FollowUp.LookaheadMinutes) * time.Minute
}

// QueueRetention processed quick-response retention as a duration
func (c *Config) QueueRetention() time.Duration {
	return time.Duration(c.FollowUp.Queue.RetentionHours) * time.Hour
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "owlrd"
	cfg.Database.SSLMode = "disable"
	cfg.Database.LoadFromEnv("DB")
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") != "false"

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "wisefido-followup"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.FollowUp.LookaheadMinutes = getEnvInt("FOLLOWUP_LOOKAHEAD_MINUTES", 60)
	cfg.FollowUp.StoreRetries = getEnvInt("FOLLOWUP_STORE_RETRIES", 5)
	cfg.FollowUp.Queue.Key = getEnv("FOLLOWUP_QUEUE_KEY", "followup:quick-responses")
	cfg.FollowUp.Queue.RetentionHours = getEnvInt("FOLLOWUP_QUEUE_RETENTION_HOURS", 168)
	cfg.FollowUp.Notify.Surface = getEnv("FOLLOWUP_NOTIFY_SURFACE", "mqtt")
	cfg.FollowUp.Notify.Topic = getEnv("FOLLOWUP_NOTIFY_TOPIC", "followup/notifications")
	cfg.FollowUp.Notify.ActionTopic = getEnv("FOLLOWUP_ACTION_TOPIC", "followup/actions")
	cfg.FollowUp.Notify.WebhookURL = getEnv("FOLLOWUP_WEBHOOK_URL", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}
