package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"token_chat/pkg/log"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Chat      ChatConfig
	Price     PriceConfig
	Redis     RedisConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Log       log.Config
}

type ServerConfig struct {
	Address         string
	RoomPrefix      string        `mapstructure:"room_prefix"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	User            string
	Password        string
	Name            string
	Port            int
	SSLMode         string        `mapstructure:"sslmode"`
	FilePath        string        `mapstructure:"file_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type ChatConfig struct {
	RetentionLimit int `mapstructure:"retention_limit"`
}

type PriceConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	APIKey       string        `mapstructure:"api_key"`
	Chain        string        `mapstructure:"chain"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxRetries   uint          `mapstructure:"max_retries"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Enabled 沒有設定地址時不使用快取
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

type WebSocketConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	ValidateAddress bool          `mapstructure:"validate_address"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Load 依序讀取 .env、config.yaml 與環境變數
func Load() (*Config, error) {
	// .env 不存在時直接略過
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./pkg/config")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return unmarshal(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":3001")
	v.SetDefault("server.room_prefix", "tc")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "token_chat")
	v.SetDefault("db.user", "token_chat_user")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.file_path", "token_chat.db")
	v.SetDefault("db.max_open_conns", 50)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", "1h")

	v.SetDefault("chat.retention_limit", 500)

	v.SetDefault("price.api_url", "https://public-api.birdeye.so/defi")
	v.SetDefault("price.api_key", "")
	v.SetDefault("price.chain", "solana")
	v.SetDefault("price.poll_interval", "30s")
	v.SetDefault("price.fetch_timeout", "10s")
	v.SetDefault("price.max_retries", 3)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "price")
	v.SetDefault("redis.ttl", "10m")

	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.validate_address", true)
	v.SetDefault("websocket.rate_limit", 5)
	v.SetDefault("websocket.rate_burst", 10)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "token-chat")
}

// bindEnv 保留舊版服務使用的環境變數名稱
func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("db.host", "DB_HOST")
	_ = v.BindEnv("db.port", "DB_PORT")
	_ = v.BindEnv("db.name", "DB_NAME")
	_ = v.BindEnv("db.user", "DB_USER")
	_ = v.BindEnv("db.password", "DB_PASSWORD")
	_ = v.BindEnv("price.api_key", "BIRDEYE_API_KEY")
	_ = v.BindEnv("redis.address", "REDIS_ADDRESS")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("server.port", "PORT")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// PORT 只給埠號，覆蓋 server.address
	if port := v.GetString("server.port"); port != "" {
		cfg.Server.Address = ":" + strings.TrimPrefix(port, ":")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 檢查設定值
func (c *Config) Validate() error {
	if c.Chat.RetentionLimit < 1 {
		return fmt.Errorf("chat.retention_limit must be positive, got %d", c.Chat.RetentionLimit)
	}
	if c.Price.PollInterval <= 0 {
		return fmt.Errorf("price.poll_interval must be positive, got %s", c.Price.PollInterval)
	}
	if c.Price.FetchTimeout <= 0 {
		return fmt.Errorf("price.fetch_timeout must be positive, got %s", c.Price.FetchTimeout)
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.DB.Driver)
	}
	if c.Server.RoomPrefix == "" {
		return errors.New("server.room_prefix must not be empty")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth is enabled")
	}
	return nil
}
