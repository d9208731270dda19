package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	HTTP     ServerConfig
	MySQL    MySQLConfig
	Log      LogConfig
	Kafka    KafkaConfig
	Vnpay    VnpayConfig
	Momo     MomoConfig
	Payos    PayosConfig
	Payments PaymentsConfig
	Jobs     JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type KafkaConfig struct {
	Brokers            []string
	NotificationsTopic string
}

type VnpayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

type MomoConfig struct {
	PartnerCode    string
	AccessKey      string
	SecretKey      string
	CreateEndpoint string
	RefundEndpoint string
	IpnURL         string
	ReturnURL      string
	HTTPTimeout    time.Duration
}

type PayosConfig struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	PartnerCode string
	APIURL      string
	ReturnURL   string
	HTTPTimeout time.Duration
}

type PaymentsConfig struct {
	PendingTimeout      time.Duration
	JobBatchSize        int32
	NotifyMaxAttempts   int32
	NotifyRetryInterval time.Duration
}

type JobsConfig struct {
	NotifyDispatchInterval time.Duration
	ExpirePendingInterval  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "payments-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Kafka: KafkaConfig{
			Brokers:            getListEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			NotificationsTopic: getEnv("KAFKA_NOTIFICATIONS_TOPIC", "payments.notifications"),
		},
		Vnpay: VnpayConfig{
			TmnCode:    getEnv("VNPAY_TMN_CODE", ""),
			HashSecret: getEnv("VNPAY_HASH_SECRET", ""),
			PayURL:     getEnv("VNPAY_PAY_URL", ""),
			ReturnURL:  getEnv("VNPAY_RETURN_URL", ""),
		},
		Momo: MomoConfig{
			PartnerCode:    getEnv("MOMO_PARTNER_CODE", ""),
			AccessKey:      getEnv("MOMO_ACCESS_KEY", ""),
			SecretKey:      getEnv("MOMO_SECRET_KEY", ""),
			CreateEndpoint: getEnv("MOMO_CREATE_ENDPOINT", ""),
			RefundEndpoint: getEnv("MOMO_REFUND_ENDPOINT", ""),
			IpnURL:         getEnv("MOMO_IPN_URL", ""),
			ReturnURL:      getEnv("MOMO_RETURN_URL", ""),
			HTTPTimeout:    getSecondsEnv("MOMO_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payos: PayosConfig{
			ClientID:    getEnv("PAYOS_CLIENT_ID", ""),
			APIKey:      getEnv("PAYOS_API_KEY", ""),
			ChecksumKey: getEnv("PAYOS_CHECKSUM_KEY", ""),
			PartnerCode: getEnv("PAYOS_PARTNER_CODE", ""),
			APIURL:      getEnv("PAYOS_API_URL", ""),
			ReturnURL:   getEnv("PAYOS_RETURN_URL", ""),
			HTTPTimeout: getSecondsEnv("PAYOS_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payments: PaymentsConfig{
			PendingTimeout:      getMinutesEnv("PAYMENTS_PENDING_TIMEOUT_MINUTES", 60*time.Minute),
			JobBatchSize:        int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
			NotifyMaxAttempts:   int32(getIntEnv("PAYMENTS_NOTIFY_MAX_ATTEMPTS", 10)),
			NotifyRetryInterval: getMinutesEnv("PAYMENTS_NOTIFY_RETRY_INTERVAL_MINUTES", 5*time.Minute),
		},
		Jobs: JobsConfig{
			NotifyDispatchInterval: getMinutesEnv("PAYMENTS_NOTIFY_DISPATCH_INTERVAL_MINUTES", time.Minute),
			ExpirePendingInterval:  getMinutesEnv("PAYMENTS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
