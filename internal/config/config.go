// Package config loads runtime settings and watches for the bot
// credential and operator id to become usable.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/quailyquaily/telegramdock/internal/logutil"
)

const (
	EnvPrefix   = "TELEGRAMDOCK"
	DefaultPath = "config/config.yaml"

	PlaceholderToken      = "YOUR_BOT_TOKEN_HERE"
	PlaceholderOperatorID = "YOUR_ADMIN_USER_ID_HERE"

	BackendFile  = "file"
	BackendRedis = "redis"
)

var (
	ErrCredentialMissing = errors.New("config: bot token is missing or a placeholder")
	ErrOperatorMissing   = errors.New("config: operator id is missing, a placeholder or not numeric")
)

type Config struct {
	Bot      BotConfig      `mapstructure:"bot" yaml:"bot"`
	Messages MessagesConfig `mapstructure:"messages" yaml:"messages"`
	Logging  logutil.Config `mapstructure:"logging" yaml:"logging"`
	Data     DataConfig     `mapstructure:"data" yaml:"data"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

type BotConfig struct {
	Token string `mapstructure:"token" yaml:"token"`
	// OperatorID stays a string so placeholders survive decoding.
	OperatorID     string        `mapstructure:"operator_id" yaml:"operator_id"`
	APIBaseURL     string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

type MessagesConfig struct {
	StartMessage   string `mapstructure:"start_message" yaml:"start_message"`
	ForwardSuccess string `mapstructure:"forward_success" yaml:"forward_success"`
	ForwardFailed  string `mapstructure:"forward_failed" yaml:"forward_failed"`
}

type DataConfig struct {
	Backend         string `mapstructure:"backend" yaml:"backend"`
	Dir             string `mapstructure:"dir" yaml:"dir"`
	UsersFile       string `mapstructure:"users_file" yaml:"users_file"`
	MessagesFile    string `mapstructure:"messages_file" yaml:"messages_file"`
	AuditCapacity   int    `mapstructure:"audit_capacity" yaml:"audit_capacity"`
	SummaryMaxChars int    `mapstructure:"summary_max_chars" yaml:"summary_max_chars"`

	// LockTimeout bounds how long a save waits for another writer.
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type ServerConfig struct {
	HealthListen string `mapstructure:"health_listen" yaml:"health_listen"`
}

// Default is the configuration written on first run.
func Default() Config {
	return Config{
		Bot: BotConfig{
			Token:          PlaceholderToken,
			OperatorID:     PlaceholderOperatorID,
			APIBaseURL:     "https://api.telegram.org",
			PollTimeout:    30 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxConcurrency: 4,
			RateLimit:      25,
			RateBurst:      5,
		},
		Messages: MessagesConfig{
			StartMessage:   "",
			ForwardSuccess: "📨 您的消息已成功转发给客服人员，我们会尽快回复您！",
			ForwardFailed:  "❌ 消息转发失败，请稍后重试或联系技术支持。",
		},
		Logging: logutil.Config{
			Level:  "info",
			Format: "text",
		},
		Data: DataConfig{
			Backend:         BackendFile,
			Dir:             "config/data",
			UsersFile:       "users.json",
			MessagesFile:    "messages.json",
			AuditCapacity:   1000,
			SummaryMaxChars: 100,
			LockTimeout:     5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:      "127.0.0.1:6379",
			KeyPrefix: "telegramdock:",
		},
		Watch: WatchConfig{Interval: 30 * time.Second},
	}
}

// Loader reads configuration from a file, the environment and, when set,
// command-line flags. Every Load starts from a fresh viper instance so a
// re-read sees the file as it is now.
type Loader struct {
	Path  string
	Flags *pflag.FlagSet
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"health-listen": "server.health_listen",
}

func Load(path string) (Config, error) {
	return Loader{Path: path}.Load()
}

func (l Loader) Load() (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if l.Flags != nil {
		for name, key := range flagKeys {
			if f := l.Flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path := strings.TrimSpace(l.Path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("bot.token", d.Bot.Token)
	v.SetDefault("bot.operator_id", d.Bot.OperatorID)
	v.SetDefault("bot.api_base_url", d.Bot.APIBaseURL)
	v.SetDefault("bot.poll_timeout", d.Bot.PollTimeout)
	v.SetDefault("bot.request_timeout", d.Bot.RequestTimeout)
	v.SetDefault("bot.max_concurrency", d.Bot.MaxConcurrency)
	v.SetDefault("bot.rate_limit", d.Bot.RateLimit)
	v.SetDefault("bot.rate_burst", d.Bot.RateBurst)

	v.SetDefault("messages.start_message", d.Messages.StartMessage)
	v.SetDefault("messages.forward_success", d.Messages.ForwardSuccess)
	v.SetDefault("messages.forward_failed", d.Messages.ForwardFailed)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.add_source", d.Logging.AddSource)

	v.SetDefault("data.backend", d.Data.Backend)
	v.SetDefault("data.dir", d.Data.Dir)
	v.SetDefault("data.users_file", d.Data.UsersFile)
	v.SetDefault("data.messages_file", d.Data.MessagesFile)
	v.SetDefault("data.audit_capacity", d.Data.AuditCapacity)
	v.SetDefault("data.summary_max_chars", d.Data.SummaryMaxChars)
	v.SetDefault("data.lock_timeout", d.Data.LockTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("watch.interval", d.Watch.Interval)
	v.SetDefault("server.health_listen", d.Server.HealthListen)
}

func (c Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Data.Backend)) {
	case BackendFile, BackendRedis:
	default:
		return fmt.Errorf("config: unknown data.backend %q", c.Data.Backend)
	}
	if c.Data.AuditCapacity < 0 || c.Data.SummaryMaxChars < 0 {
		return fmt.Errorf("config: data.audit_capacity and data.summary_max_chars must not be negative")
	}
	if c.Data.LockTimeout < 0 {
		return fmt.Errorf("config: data.lock_timeout must not be negative")
	}
	if c.Watch.Interval < 0 {
		return fmt.Errorf("config: watch.interval must not be negative")
	}
	return nil
}

// Backend is the normalized data.backend value.
func (c Config) Backend() string {
	return strings.ToLower(strings.TrimSpace(c.Data.Backend))
}

// UsersPath and MessagesPath resolve data files against data.dir unless
// they are absolute.
func (c Config) UsersPath() string { return c.dataPath(c.Data.UsersFile) }

func (c Config) MessagesPath() string { return c.dataPath(c.Data.MessagesFile) }

func (c Config) dataPath(name string) string {
	name = strings.TrimSpace(name)
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(strings.TrimSpace(c.Data.Dir), name)
}

// Status reports whether the two required values are usable.
type Status struct {
	Token       string
	OperatorID  int64
	TokenErr    error
	OperatorErr error
}

func (s Status) HasCredential() bool { return s.TokenErr == nil }

func (s Status) HasOperator() bool { return s.OperatorErr == nil }

// Complete means both values are usable and operator routing can start.
func (s Status) Complete() bool { return s.HasCredential() && s.HasOperator() }

// Err joins whichever of ErrCredentialMissing and ErrOperatorMissing apply.
func (s Status) Err() error { return errors.Join(s.TokenErr, s.OperatorErr) }

func (c Config) Status() Status {
	var st Status
	token := strings.TrimSpace(c.Bot.Token)
	if token == "" || token == PlaceholderToken {
		st.TokenErr = ErrCredentialMissing
	} else {
		st.Token = token
	}

	raw := strings.TrimSpace(c.Bot.OperatorID)
	if raw == "" || raw == PlaceholderOperatorID {
		st.OperatorErr = ErrOperatorMissing
		return st
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		st.OperatorErr = fmt.Errorf("%w: %q", ErrOperatorMissing, raw)
		return st
	}
	st.OperatorID = id
	return st
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
