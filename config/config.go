package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 进程启动时装配的全量配置（显式传递，不使用全局单例）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Fanout   FanoutConfig   `mapstructure:"fanout"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Log      LogConfig      `mapstructure:"log"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Trace    TraceConfig    `mapstructure:"trace"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug / release
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`  // 每秒请求数
	RateBurst    int           `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 扇出任务的 Kafka 传输配置（transport=outbox 时不启用）
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// FanoutConfig 扇出与物化相关的可调参数
type FanoutConfig struct {
	Transport        string        `mapstructure:"transport"`          // outbox / kafka
	PushThreshold    int64         `mapstructure:"push_threshold"`     // 粉丝数超过该值走拉模式
	Workers          int           `mapstructure:"workers"`
	BatchSize        int           `mapstructure:"batch_size"`         // inbox 批量 upsert 大小
	ClaimLimit       int           `mapstructure:"claim_limit"`        // 每次 claim 的 outbox 条数
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ReplicatorQueue  int           `mapstructure:"replicator_queue"`
	FollowerCountTTL time.Duration `mapstructure:"follower_count_ttl"` // 粉丝数缓存 TTL
}

type FeedConfig struct {
	DefaultLimit    int           `mapstructure:"default_limit"`
	MaxLimit        int           `mapstructure:"max_limit"`
	PullConcurrency int           `mapstructure:"pull_concurrency"` // 拉模式并发抓取上限
	PullWindow      int           `mapstructure:"pull_window"`      // 每个热点作者抓取的最近帖子数
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	SnapshotTTL     time.Duration `mapstructure:"snapshot_ttl"`     // 作者快照缓存 TTL
}

type SweepConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	LookBack     time.Duration `mapstructure:"look_back"`      // 补偿扫描回看窗口
	StuckTimeout time.Duration `mapstructure:"stuck_timeout"`  // processing 超时重置
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json / console
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TraceConfig struct {
	Endpoint string `mapstructure:"endpoint"` // otlp http endpoint，空则关闭
}

// Load 读取 config.yaml 并允许环境变量覆盖（PUPPIES_SERVER_PORT 等）
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("puppies")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 允许无配置文件，全部走默认值 + 环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_burst", 200)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "puppies")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "feed.fanout")
	v.SetDefault("kafka.group_id", "feed-materializer")

	v.SetDefault("fanout.transport", "outbox")
	v.SetDefault("fanout.push_threshold", 10000)
	v.SetDefault("fanout.workers", 4)
	v.SetDefault("fanout.batch_size", 500)
	v.SetDefault("fanout.claim_limit", 64)
	v.SetDefault("fanout.poll_interval", "50ms")
	v.SetDefault("fanout.replicator_queue", 10000)
	v.SetDefault("fanout.follower_count_ttl", "30s")

	v.SetDefault("feed.default_limit", 20)
	v.SetDefault("feed.max_limit", 100)
	v.SetDefault("feed.pull_concurrency", 4)
	v.SetDefault("feed.pull_window", 50)
	v.SetDefault("feed.read_timeout", "2s")
	v.SetDefault("feed.snapshot_ttl", "10m")

	v.SetDefault("sweep.interval", "1m")
	v.SetDefault("sweep.look_back", "15m")
	v.SetDefault("sweep.stuck_timeout", "5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
