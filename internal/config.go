package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	SMS           SMSConfig           `mapstructure:"sms"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration"`
	BCryptCost           int           `mapstructure:"bcrypt_cost"`
	ServiceKey           string        `mapstructure:"service_key"`
}

type PaymentConfig struct {
	Currency        string        `mapstructure:"currency"`
	SettlementDelay time.Duration `mapstructure:"settlement_delay"`
	SuccessRate     float64       `mapstructure:"success_rate"`
	FailureReason   string        `mapstructure:"failure_reason"`
	MaxWorkers      int           `mapstructure:"max_workers"`
	JobQueueSize    int           `mapstructure:"job_queue_size"`
	WorkerPoolSize  int           `mapstructure:"worker_pool_size"`
	MaxRetries      uint64        `mapstructure:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
}

type SMSConfig struct {
	SendDelay   time.Duration `mapstructure:"send_delay"`
	FailureRate float64       `mapstructure:"failure_rate"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	DefaultCurrency        = "KES"
	DefaultSettlementDelay = 30 * time.Second
	DefaultSuccessRate     = 0.9
	DefaultFailureReason   = "Payment timeout or insufficient funds"
	DefaultSMSSendDelay    = time.Second
)

// LoadConfigFromEnv builds the configuration for container deployments, where the
// database URL and the service credential come from the process environment.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8080),
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			OpenAPIPath:       getEnv("OPENAPI_PATH", "./api/openapi.yml"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			AccessTokenSecret:    getEnv("JWT_ACCESS_SECRET", ""),
			RefreshTokenSecret:   getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenDuration:  getEnvAsDuration("ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration: getEnvAsDuration("REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			BCryptCost:           getEnvAsInt("BCRYPT_COST", 12),
			ServiceKey:           getEnv("SERVICE_KEY", ""),
		},
		Payment: PaymentConfig{
			Currency:        getEnv("PAYMENT_CURRENCY", DefaultCurrency),
			SettlementDelay: getEnvAsDuration("SETTLEMENT_DELAY", DefaultSettlementDelay),
			SuccessRate:     getEnvAsFloat("SETTLEMENT_SUCCESS_RATE", DefaultSuccessRate),
			FailureReason:   getEnv("SETTLEMENT_FAILURE_REASON", DefaultFailureReason),
			MaxWorkers:      getEnvAsInt("SETTLEMENT_MAX_WORKERS", 10),
			JobQueueSize:    getEnvAsInt("SETTLEMENT_JOB_QUEUE_SIZE", 100),
			WorkerPoolSize:  getEnvAsInt("SETTLEMENT_WORKER_POOL_SIZE", 10),
			MaxRetries:      uint64(getEnvAsInt("SETTLEMENT_MAX_RETRIES", 3)),
			RetryBaseDelay:  getEnvAsDuration("SETTLEMENT_RETRY_BASE_DELAY", 500*time.Millisecond),
		},
		SMS: SMSConfig{
			SendDelay:   getEnvAsDuration("SMS_SEND_DELAY", DefaultSMSSendDelay),
			FailureRate: getEnvAsFloat("SMS_FAILURE_RATE", 0),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if err := c.SMS.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("sms config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return errors.New("access_token_secret and refresh_token_secret are required")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.ServiceKey == "" {
		return errors.New("service_key is required")
	}
	if c.BCryptCost != 0 && (c.BCryptCost < 10 || c.BCryptCost > 15) {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *PaymentConfig) Validate() error {
	if c.Currency != "" && len(c.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code, got %q", c.Currency)
	}
	if c.SettlementDelay < 0 {
		return errors.New("settlement_delay cannot be negative")
	}
	if c.SuccessRate < 0 || c.SuccessRate > 1 {
		return errors.New("success_rate must be between 0 and 1")
	}
	return nil
}

// WithDefaults fills zero values with the service defaults.
func (c PaymentConfig) WithDefaults() PaymentConfig {
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if c.SettlementDelay == 0 {
		c.SettlementDelay = DefaultSettlementDelay
	}
	if c.SuccessRate == 0 {
		c.SuccessRate = DefaultSuccessRate
	}
	if c.FailureReason == "" {
		c.FailureReason = DefaultFailureReason
	}
	return c
}

func (c *SMSConfig) Validate() error {
	if c.SendDelay < 0 {
		return errors.New("send_delay cannot be negative")
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return errors.New("failure_rate must be between 0 and 1")
	}
	return nil
}
