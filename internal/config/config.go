package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the service reads at startup. It is loaded
// once by the factory and treated as read-only afterwards.
type Config struct {
	Environment string

	Server        ServerConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	OTC           OTCConfig
	SMS           SMSConfig
	Identity      IdentityConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CertFile     string
	KeyFile      string
	EnableTLS    bool
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers          []string
	EventTopic       string
	NotifyTopic      string
	PublishTimeout   time.Duration
	DisablePublisher bool
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type KMSConfig struct {
	Enabled  bool
	KeyID    string
	Region   string
	CacheTTL time.Duration
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
}

type OTCConfig struct {
	CodeTTL            time.Duration
	MaxAttempts        int
	RateLimitWindow    time.Duration
	RateLimitMax       int
	DeleteGraceDelay   time.Duration
	IssuanceLockTTL    time.Duration
	DispatchTimeout    time.Duration
	StoreTimeout       time.Duration
}

type SMSConfig struct {
	GatewayURL string
	APIKey     string
	SenderID   string
	Timeout    time.Duration
}

type IdentityConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	TokenIssuer   string
	TokenAudience string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from the environment. In development a
// local .env file is honoured; in production everything must come from the
// process environment.
func LoadConfig() *Config {
	env := getEnv("APP_ENV", "development")
	if env != "production" {
		_ = godotenv.Load()
		// Re-read in case .env set it.
		env = getEnv("APP_ENV", env)
	}

	return &Config{
		Environment: env,
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    splitList(getEnv("SCYLLA_NODES", "localhost:9042")),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "verify"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:          splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			EventTopic:       getEnv("KAFKA_EVENT_TOPIC", "verify.events"),
			NotifyTopic:      getEnv("KAFKA_NOTIFY_TOPIC", "verify.notifications"),
			PublishTimeout:   getEnvDuration("KAFKA_PUBLISH_TIMEOUT", 5*time.Second),
			DisablePublisher: getEnvBool("KAFKA_DISABLE_PUBLISHER", false),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_AUDIT_INDEX", "verify-audit"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "verify"),
		},
		KMS: KMSConfig{
			Enabled:  getEnvBool("KMS_ENABLED", false),
			KeyID:    getEnv("KMS_KEY_ID", ""),
			Region:   getEnv("AWS_REGION", "eu-west-1"),
			CacheTTL: getEnvDuration("KMS_CACHE_TTL", time.Hour),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 64*1024),
			Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 2),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
		},
		OTC: OTCConfig{
			CodeTTL:          getEnvDuration("OTC_CODE_TTL", 5*time.Minute),
			MaxAttempts:      getEnvInt("OTC_MAX_ATTEMPTS", 5),
			RateLimitWindow:  getEnvDuration("OTC_RATE_LIMIT_WINDOW", 15*time.Minute),
			RateLimitMax:     getEnvInt("OTC_RATE_LIMIT_MAX", 3),
			DeleteGraceDelay: getEnvDuration("OTC_DELETE_GRACE_DELAY", 30*time.Second),
			IssuanceLockTTL:  getEnvDuration("OTC_ISSUANCE_LOCK_TTL", 30*time.Second),
			DispatchTimeout:  getEnvDuration("OTC_DISPATCH_TIMEOUT", 30*time.Second),
			StoreTimeout:     getEnvDuration("OTC_STORE_TIMEOUT", 5*time.Second),
		},
		SMS: SMSConfig{
			GatewayURL: getEnv("SMS_GATEWAY_URL", "http://localhost:9100/v1/messages"),
			APIKey:     getEnv("SMS_API_KEY", ""),
			SenderID:   getEnv("SMS_SENDER_ID", "VERIFY"),
			Timeout:    getEnvDuration("SMS_TIMEOUT", 30*time.Second),
		},
		Identity: IdentityConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenTTL:      getEnvDuration("JWT_TOKEN_TTL", 24*time.Hour),
			TokenIssuer:   getEnv("JWT_ISSUER", "verify-service"),
			TokenAudience: getEnv("JWT_AUDIENCE", "verify-clients"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Validate rejects configurations the service cannot safely start with.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.Identity.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.SMS.APIKey == "" {
			return fmt.Errorf("SMS_API_KEY is required in production")
		}
	}
	if c.OTC.MaxAttempts <= 0 {
		return fmt.Errorf("OTC_MAX_ATTEMPTS must be positive")
	}
	if c.OTC.RateLimitMax <= 0 {
		return fmt.Errorf("OTC_RATE_LIMIT_MAX must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
