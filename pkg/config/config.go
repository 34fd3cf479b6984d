package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	DB        DBConfig
	Auth      AuthConfig
	Session   SessionConfig
	Lock      LockConfig
	Quiz      QuizConfig
	Broadcast BroadcastConfig
	NATS      NATSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig 選擇共享儲存的實作：memory 或 redis
type StoreConfig struct {
	Driver string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DBConfig Enabled 為 false 時不連線資料庫，顯示名稱以 memberId 代替且房間不綁定題庫
type DBConfig struct {
	Enabled         bool
	Host            string
	User            string
	Password        string
	Name            string
	Port            int
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SigningKey string        `mapstructure:"signing_key"`
	WSTokenTTL time.Duration `mapstructure:"ws_token_ttl"`
}

// SessionConfig 連線會話設定；Directory 為 memory 或 store
type SessionConfig struct {
	Directory     string
	TTL           time.Duration
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MarkerTTL     time.Duration `mapstructure:"marker_ttl"`
	Heartbeat     time.Duration
}

type LockConfig struct {
	WaitTime      time.Duration `mapstructure:"wait_time"`
	LeaseTime     time.Duration `mapstructure:"lease_time"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type QuizConfig struct {
	KeyTTL time.Duration `mapstructure:"key_ttl"`
}

// BroadcastConfig 選擇廣播傳輸：store 或 nats
type BroadcastConfig struct {
	Transport string
}

type NATSConfig struct {
	URL string
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.driver", "memory")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.name", "quizzle")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.ssl_mode", "disable")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.signing_key", "change-me-too")
	v.SetDefault("auth.ws_token_ttl", time.Minute)

	v.SetDefault("session.directory", "store")
	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.sweep_interval", 30*time.Second)
	v.SetDefault("session.marker_ttl", time.Minute)
	v.SetDefault("session.heartbeat", 30*time.Second)

	v.SetDefault("lock.wait_time", 3*time.Second)
	v.SetDefault("lock.lease_time", 5*time.Second)
	v.SetDefault("lock.retry_interval", 50*time.Millisecond)

	v.SetDefault("quiz.key_ttl", 2*time.Hour)

	v.SetDefault("broadcast.transport", "store")
	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load 從 path 目錄讀取 config.yaml；檔案不存在時使用預設值。
// 環境變數以 QUIZZLE_ 為前綴覆寫，例如 QUIZZLE_REDIS_ADDR。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetEnvPrefix("quizzle")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
