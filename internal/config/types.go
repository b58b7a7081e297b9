package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"badlionbot/internal/ratelimit"
	"badlionbot/internal/responder/reply"
	logx "badlionbot/pkg/logx"
)

const (
	DefaultPath        = "./config.yaml"
	DefaultDebugAddr   = "127.0.0.1:6060"
	DefaultQueueSize   = 256
	DefaultLogPath     = "./badlionbot.log"
	DefaultStoragePath = "./badlionbot_audit"
	DefaultDiscordRate = 1
	defaultReadTimeout = 10 * time.Second
	defaultIdleTimeout = 60 * time.Second
	defaultBusyTimeout = 5 * time.Second
)

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Responder ResponderConfig `json:"responder"`
	Logging   LoggingConfig   `json:"logging"`
	Debug     DebugConfig     `json:"debug"`
	Status    StatusConfig    `json:"status"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type DiscordConfig struct {
	// Token is normally supplied through DISCORD_TOKEN; the environment wins.
	Token string `json:"token,omitempty"`
	// IntentsMembers requests the privileged guild members intent, needed
	// for member join events.
	IntentsMembers *bool `json:"intents_members,omitempty"`
}

type ResponderConfig struct {
	// AccountsAvailable selects the reply mode. Omitted means available;
	// EMPTY=true in the environment overrides it to claimed.
	AccountsAvailable *bool `json:"accounts_available,omitempty"`
	SpamLimit         int   `json:"spam_limit,omitempty"`
	Workers           int   `json:"workers,omitempty"`
	QueueSize         int   `json:"queue_size,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingDiscord mirrors log lines at or above MinLevel into a guild channel.
type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// DebugConfig controls the HTTP server exposing /healthz, /metrics and pprof.
// Non-loopback addresses need a token unless AllowInsecure is set.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// StatusConfig schedules the periodic status log line. Schedule is a
// standard five-field cron expression or a descriptor such as "@hourly";
// empty disables the report.
type StatusConfig struct {
	Schedule string `json:"schedule,omitempty"`
}

// StorageConfig enables the reply audit trail.
//
//	"storage": { "driver": "sqlite", "path": "./audit.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	c := &Config{Logging: LoggingConfig{Level: "info", Console: true}}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.Discord.IntentsMembers == nil {
		c.Discord.IntentsMembers = boolPtr(true)
	}
	if c.Responder.SpamLimit <= 0 {
		c.Responder.SpamLimit = ratelimit.DefaultLimit
	}
	if c.Responder.QueueSize <= 0 {
		c.Responder.QueueSize = DefaultQueueSize
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		c.Logging.File.Path = DefaultLogPath
	}
	if c.Logging.Discord.RatePerSec <= 0 {
		c.Logging.Discord.RatePerSec = DefaultDiscordRate
	}
	if strings.TrimSpace(c.Debug.Addr) == "" {
		c.Debug.Addr = DefaultDebugAddr
	}
	if c.Storage != nil && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
}

// Validate checks a config after defaults and the environment were applied.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return ErrMissingToken
	}
	if c.Responder.Workers < 0 {
		return fmt.Errorf("responder.workers must be >= 0")
	}
	if c.Logging.Discord.Enabled && strings.TrimSpace(c.Logging.Discord.ChannelID) == "" {
		return fmt.Errorf("logging.discord.channel_id is required when logging.discord.enabled")
	}
	if c.Debug.Enabled {
		host, _, err := net.SplitHostPort(c.Debug.Addr)
		if err != nil {
			return fmt.Errorf("debug.addr: %w", err)
		}
		if !isLoopbackHost(host) && strings.TrimSpace(c.Debug.Token) == "" && !c.Debug.AllowInsecure {
			return fmt.Errorf("debug.addr %q is not loopback; set debug.token or debug.allow_insecure", c.Debug.Addr)
		}
		for _, f := range []struct{ path, raw string }{
			{"debug.read_timeout", c.Debug.ReadTimeout},
			{"debug.write_timeout", c.Debug.WriteTimeout},
			{"debug.idle_timeout", c.Debug.IdleTimeout},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				return err
			}
		}
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver %q: want file or sqlite", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// Mode is the reply mode the responder runs with.
func (c *Config) Mode() reply.Mode {
	if c.Responder.AccountsAvailable == nil {
		return reply.ModeAccountsAvailable
	}
	return reply.ModeFromAvailable(*c.Responder.AccountsAvailable)
}

// MembersIntent reports whether the guild members intent is requested.
func (c *Config) MembersIntent() bool {
	return c.Discord.IntentsMembers == nil || *c.Discord.IntentsMembers
}

// Logx converts the logging section for pkg/logx.
func (l LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Discord: logx.DiscordConfig{
			Enabled:    l.Discord.Enabled,
			ChannelID:  l.Discord.ChannelID,
			MinLevel:   l.Discord.MinLevel,
			RatePerSec: l.Discord.RatePerSec,
		},
	}
}

// Timeouts returns the debug server timeouts with defaults applied. A zero
// write timeout keeps long pprof captures working.
func (d DebugConfig) Timeouts() (read, write, idle time.Duration) {
	read, _ = ParseDurationOrDefault("debug.read_timeout", d.ReadTimeout, defaultReadTimeout)
	write, _ = ParseDurationField("debug.write_timeout", d.WriteTimeout)
	idle, _ = ParseDurationOrDefault("debug.idle_timeout", d.IdleTimeout, defaultIdleTimeout)
	return read, write, idle
}

// BusyTimeoutOrDefault parses busy_timeout, falling back to 5s.
func (s StorageConfig) BusyTimeoutOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("storage.busy_timeout", s.BusyTimeout, defaultBusyTimeout)
	if err != nil {
		return defaultBusyTimeout
	}
	return d
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func boolPtr(v bool) *bool { return &v }
