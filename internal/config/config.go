package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// QueueConfig holds the RabbitMQ connection and queue names
type QueueConfig struct {
	AMQPURL       string
	DailyRunQueue string
}

// WorkerConfig controls the background worker
type WorkerConfig struct {
	Concurrency      int
	DispatchInterval time.Duration
	DispatchBatch    int
}

// EmailConfig configures the email provider
type EmailConfig struct {
	APIKey    string
	From      string
	Endpoint  string
	RateLimit float64
}

// SMSConfig configures the SMS provider
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	Endpoint   string
	RateLimit  float64
}

// ChatConfig configures the chat messaging provider
type ChatConfig struct {
	AccessToken   string
	PhoneNumberID string
	Endpoint      string
	RateLimit     float64
}

// ProviderConfig holds per-channel provider settings. A channel whose
// credentials are empty is left unregistered.
type ProviderConfig struct {
	Email   EmailConfig
	SMS     SMSConfig
	Chat    ChatConfig
	Timeout time.Duration
}

// Config holds all configuration
type Config struct {
	ServiceName string
	DB          DBConfig
	Server      ServerConfig
	Log         LogConfig
	Queue       QueueConfig
	Worker      WorkerConfig
	Providers   ProviderConfig
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		ServiceName: serviceName,
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "retention"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Queue: QueueConfig{
			AMQPURL:       getEnv("AMQP_URL", ""),
			DailyRunQueue: getEnv("DAILY_RUN_QUEUE", "retention_daily_runs"),
		},
		Worker: WorkerConfig{
			Concurrency:      getEnvAsInt("WORKER_CONCURRENCY", 4),
			DispatchInterval: getEnvAsDuration("WORKER_DISPATCH_INTERVAL", time.Minute),
			DispatchBatch:    getEnvAsInt("WORKER_DISPATCH_BATCH", 100),
		},
		Providers: ProviderConfig{
			Email: EmailConfig{
				APIKey:    getEnv("EMAIL_API_KEY", ""),
				From:      getEnv("EMAIL_FROM", ""),
				Endpoint:  getEnv("EMAIL_ENDPOINT", "https://api.resend.com/emails"),
				RateLimit: getEnvAsFloat("EMAIL_RATE_LIMIT", 10),
			},
			SMS: SMSConfig{
				AccountSID: getEnv("SMS_ACCOUNT_SID", ""),
				AuthToken:  getEnv("SMS_AUTH_TOKEN", ""),
				From:       getEnv("SMS_FROM", ""),
				Endpoint:   getEnv("SMS_ENDPOINT", "https://api.twilio.com/2010-04-01"),
				RateLimit:  getEnvAsFloat("SMS_RATE_LIMIT", 5),
			},
			Chat: ChatConfig{
				AccessToken:   getEnv("CHAT_ACCESS_TOKEN", ""),
				PhoneNumberID: getEnv("CHAT_PHONE_NUMBER_ID", ""),
				Endpoint:      getEnv("CHAT_ENDPOINT", "https://graph.facebook.com/v19.0"),
				RateLimit:     getEnvAsFloat("CHAT_RATE_LIMIT", 5),
			},
			Timeout: getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
		},
	}

	if config.Worker.Concurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", config.Worker.Concurrency)
	}
	if config.Worker.DispatchInterval <= 0 {
		return nil, fmt.Errorf("WORKER_DISPATCH_INTERVAL must be positive")
	}

	return config, nil
}

// LogConfig returns the configuration as zap fields, without secrets
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.Bool("amqp_enabled", c.Queue.AMQPURL != ""),
		zap.Bool("email_enabled", c.Providers.Email.APIKey != ""),
		zap.Bool("sms_enabled", c.Providers.SMS.AuthToken != ""),
		zap.Bool("chat_enabled", c.Providers.Chat.AccessToken != ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
