package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "LECTERN"

type Config struct {
	Mode       string   `mapstructure:"mode"`
	Port       int      `mapstructure:"port"`
	LogLevel   string   `mapstructure:"log_level"`
	StaticPath string   `mapstructure:"static_path"`
	ReadLimit  int64    `mapstructure:"read_limit"`
	Secret     string   `mapstructure:"secret"`
	JWTSecret  string   `mapstructure:"jwt_secret"`
	JWTIssuer  string   `mapstructure:"jwt_issuer"`
	Policy     string   `mapstructure:"policy"`
	ICEServers []string `mapstructure:"ice_servers"`

	Liveness  LivenessConfig  `mapstructure:"liveness"`
	Meeting   MeetingConfig   `mapstructure:"meeting"`
	Recording RecordingConfig `mapstructure:"recording"`
	Expiry    ExpiryConfig    `mapstructure:"expiry"`
	Store     StoreConfig     `mapstructure:"store"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type LivenessConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type MeetingConfig struct {
	MaxDuration     time.Duration `mapstructure:"max_duration"`
	MaxParticipants int           `mapstructure:"max_participants"`
	ArchiveAfter    time.Duration `mapstructure:"archive_after"`
}

type RecordingConfig struct {
	BufferChunks  int           `mapstructure:"buffer_chunks"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxChunkBytes int           `mapstructure:"max_chunk_bytes"`
	Retention     time.Duration `mapstructure:"retention"`
	Format        string        `mapstructure:"format"`
	ContentType   string        `mapstructure:"content_type"`
	URLTTL        time.Duration `mapstructure:"url_ttl"`
}

// ExpiryConfig holds cron expressions; an empty one disables the sweep.
type ExpiryConfig struct {
	Meetings   string `mapstructure:"meetings"`
	Recordings string `mapstructure:"recordings"`
	Archive    string `mapstructure:"archive"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	Root     string `mapstructure:"root"`
	BaseURL  string `mapstructure:"base_url"`
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Prefix   string `mapstructure:"prefix"`
	Endpoint string `mapstructure:"endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_path", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("secret", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "lectern")
	v.SetDefault("policy", "simple")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("liveness.interval", "10s")
	v.SetDefault("liveness.timeout", "30s")

	v.SetDefault("meeting.max_duration", "5h")
	v.SetDefault("meeting.max_participants", 50)
	v.SetDefault("meeting.archive_after", "24h")

	v.SetDefault("recording.buffer_chunks", 16)
	v.SetDefault("recording.write_timeout", "5s")
	v.SetDefault("recording.max_chunk_bytes", 10<<20)
	v.SetDefault("recording.retention", "72h")
	v.SetDefault("recording.format", "webm")
	v.SetDefault("recording.content_type", "audio/webm")
	v.SetDefault("recording.url_ttl", "1h")

	v.SetDefault("expiry.meetings", "*/5 * * * *")
	v.SetDefault("expiry.recordings", "0 2 * * *")
	v.SetDefault("expiry.archive", "0 1 * * *")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "lectern.db")

	v.SetDefault("storage.driver", "fs")
	v.SetDefault("storage.root", "./data")
	v.SetDefault("storage.base_url", "http://localhost:8080")
}

// Load reads fileName, or config/config.<CONFIG_ENV>.yaml when fileName is
// empty. Values from .env and LECTERN_* variables override the file; a
// missing file falls back to defaults.
func Load(fileName string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).Str("storage", cfg.Storage.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	switch c.Storage.Driver {
	case "fs":
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("config: storage.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.JWTSecret == "" {
		return errors.New("config: jwt_secret is required")
	}
	if c.Secret == "" {
		c.Secret = c.JWTSecret
	}
	return nil
}
