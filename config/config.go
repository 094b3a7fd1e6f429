package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	ServerPort int
	Mongo      MongoConfig
	JWT        JWTConfig
	Mail       MailConfig
	RabbitMQ   RabbitMQConfig
	PubSub     PubSubConfig
}

type MongoConfig struct {
	URI    string
	DBName string
}

type JWTConfig struct {
	Secret    string
	TTL       time.Duration
	CookieTTL time.Duration
}

// MailConfig selects the broker used for outbound mail jobs.
// Backend is one of "rabbitmq", "pubsub" or "log".
type MailConfig struct {
	Backend string
	Channel string
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	return Config{
		Env:        getEnv("ENV", "dev"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Mongo: MongoConfig{
			URI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
			DBName: getEnv("MONGO_DB", "wandertours"),
		},
		JWT: JWTConfig{
			Secret:    os.Getenv("JWT_SECRET"),
			TTL:       getEnvDuration("JWT_EXPIRES_IN", 90*24*time.Hour),
			CookieTTL: getEnvDuration("JWT_COOKIE_EXPIRES_IN", 90*24*time.Hour),
		},
		Mail: MailConfig{
			Backend: strings.ToLower(getEnv("MAIL_BACKEND", "log")),
			Channel: getEnv("MAIL_CHANNEL", "emails"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    true,
			QueueAutoDelete: false,
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 8),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
