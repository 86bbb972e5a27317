package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "TRACKPOINT"

type Config struct {
	HTTP    HTTP
	DB      DB
	Apps    Apps
	CORS    CORS
	Auth    Auth
	Track   Track
	Reports Reports
	Log     Log
	Forward Forward
}

type HTTP struct {
	Addr string
}

type DB struct {
	DSN string
}

type Apps struct {
	Path string
}

type CORS struct {
	Origins []string
}

type Auth struct {
	JWTSecret string
}

type Track struct {
	RequireAPIKey bool
}

type Reports struct {
	TTL time.Duration
}

type Log struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type Forward struct {
	Type      string
	QueueSize int
	Redis     RedisForward
	Kafka     KafkaForward
}

type RedisForward struct {
	URL    string
	Stream string
	MaxLen int64
}

type KafkaForward struct {
	Brokers []string
	Topic   string
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":1024")
	v.SetDefault("db.dsn", "file:data/track.db")
	v.SetDefault("apps.path", "./app-metadata.json")
	v.SetDefault("cors.origins", []string{"*"})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("track.require_api_key", false)
	v.SetDefault("reports.ttl", "1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("forward.type", "noop")
	v.SetDefault("forward.queue_size", 1024)
	v.SetDefault("forward.redis.url", "redis://localhost:6379/0")
	v.SetDefault("forward.redis.stream", "trackpoint:events")
	v.SetDefault("forward.redis.max_len", 100000)
	v.SetDefault("forward.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("forward.kafka.topic", "trackpoint.events")
}

// BindEnv makes every key readable from TRACKPOINT_<SECTION>_<KEY>.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v, falling back to defaults for unset keys.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	ttl, err := time.ParseDuration(v.GetString("reports.ttl"))
	if err != nil {
		return nil, fmt.Errorf("parse reports.ttl: %w", err)
	}

	cfg := &Config{
		HTTP:    HTTP{Addr: v.GetString("http.addr")},
		DB:      DB{DSN: v.GetString("db.dsn")},
		Apps:    Apps{Path: v.GetString("apps.path")},
		CORS:    CORS{Origins: stringList(v, "cors.origins")},
		Auth:    Auth{JWTSecret: v.GetString("auth.jwt_secret")},
		Track:   Track{RequireAPIKey: v.GetBool("track.require_api_key")},
		Reports: Reports{TTL: ttl},
		Log: Log{
			Level:      strings.ToLower(v.GetString("log.level")),
			Format:     strings.ToLower(v.GetString("log.format")),
			File:       v.GetString("log.file"),
			MaxSize:    v.GetInt("log.max_size"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAge:     v.GetInt("log.max_age"),
			Compress:   v.GetBool("log.compress"),
		},
		Forward: Forward{
			Type:      strings.ToLower(v.GetString("forward.type")),
			QueueSize: v.GetInt("forward.queue_size"),
			Redis: RedisForward{
				URL:    v.GetString("forward.redis.url"),
				Stream: v.GetString("forward.redis.stream"),
				MaxLen: v.GetInt64("forward.redis.max_len"),
			},
			Kafka: KafkaForward{
				Brokers: stringList(v, "forward.kafka.brokers"),
				Topic:   v.GetString("forward.kafka.topic"),
			},
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Reports.TTL < 0 {
		return fmt.Errorf("reports.ttl must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q is not one of console|json", c.Log.Format)
	}
	if c.Forward.QueueSize <= 0 {
		return fmt.Errorf("forward.queue_size must be positive")
	}
	switch c.Forward.Type {
	case "noop", "":
	case "redis":
		if c.Forward.Redis.Stream == "" {
			return fmt.Errorf("forward.redis.stream is required")
		}
	case "kafka":
		if len(c.Forward.Kafka.Brokers) == 0 || c.Forward.Kafka.Topic == "" {
			return fmt.Errorf("forward.kafka.brokers and forward.kafka.topic are required")
		}
	default:
		return fmt.Errorf("forward.type %q is not one of noop|redis|kafka", c.Forward.Type)
	}
	return nil
}

// stringList accepts both a list and a comma separated string, the form lists take
// when they come from the environment.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
