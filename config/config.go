// Package config loads runtime configuration for the rtcsession binaries.
//
// Values are resolved in the usual viper order: command line flags, then
// RTC_ prefixed environment variables, then an optional YAML file, then
// defaults. Nested keys map to environment variables with underscores, so
// server.listen is read from RTC_SERVER_LISTEN.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/opd-ai/rtcsession"
	"github.com/opd-ai/rtcsession/engine"
	"github.com/opd-ai/rtcsession/token"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RTC"

// Config is the merged configuration of a binary.
type Config struct {
	AppID          string        `mapstructure:"app_id"`
	AppCertificate string        `mapstructure:"app_certificate"`
	Channel        string        `mapstructure:"channel"`
	UID            uint32        `mapstructure:"uid"`
	Token          string        `mapstructure:"token"`
	Role           string        `mapstructure:"role"`
	Engine         string        `mapstructure:"engine"`
	SignalURL      string        `mapstructure:"signal_url"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	TokenServerURL string        `mapstructure:"token_server_url"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`

	StatsInterval     time.Duration `mapstructure:"stats_interval"`
	StaleStatsTimeout time.Duration `mapstructure:"stale_stats_timeout"`
	LeaveTimeout      time.Duration `mapstructure:"leave_timeout"`
	CallDuration      time.Duration `mapstructure:"call_duration"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Server ServerConfig `mapstructure:"server"`
}

// ServerConfig configures the token server.
type ServerConfig struct {
	Listen            string  `mapstructure:"listen"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	Release           bool    `mapstructure:"release"`
	// TrustedProxies lists proxies whose X-Forwarded-For is honored when
	// identifying clients. Empty trusts none.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"app-id":          "app_id",
	"app-certificate": "app_certificate",
	"channel":         "channel",
	"uid":             "uid",
	"token":           "token",
	"role":            "role",
	"engine":          "engine",
	"signal-url":      "signal_url",
	"ice-server":      "ice_servers",
	"token-server":    "token_server_url",
	"token-ttl":       "token_ttl",
	"stats-interval":  "stats_interval",
	"call-duration":   "call_duration",
	"log-level":       "log_level",
	"log-format":      "log_format",
	"listen":          "server.listen",
	"rate":            "server.requests_per_second",
	"burst":           "server.burst",
	"release":         "server.release",
	"trusted-proxy":   "server.trusted_proxies",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_id", "")
	v.SetDefault("app_certificate", "")
	v.SetDefault("channel", "")
	v.SetDefault("uid", 0)
	v.SetDefault("token", "")
	v.SetDefault("role", engine.RoleBroadcaster.String())
	v.SetDefault("engine", rtcsession.EngineLoopback.String())
	v.SetDefault("signal_url", "")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("token_server_url", "")
	v.SetDefault("token_ttl", token.DefaultTTL)
	v.SetDefault("stats_interval", "2s")
	v.SetDefault("stale_stats_timeout", "10s")
	v.SetDefault("leave_timeout", "5s")
	v.SetDefault("call_duration", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.requests_per_second", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.release", false)
	v.SetDefault("server.trusted_proxies", []string{})
}

// NewFlagSet returns a flag set with every configuration flag plus
// --config. Flags that are not set on the command line do not override
// other sources.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.String("config", "", "Path to a YAML configuration file")

	fs.String("app-id", "", "Application id")
	fs.String("app-certificate", "", "Application certificate for development tokens")
	fs.String("channel", "", "Channel to join")
	fs.Uint32("uid", 0, "Local user id (0 lets the server assign one)")
	fs.String("token", "", "Join token (empty requests one from the token provider)")
	fs.String("role", "", "Client role: broadcaster or audience")

	fs.String("engine", "", "Media engine: loopback or webrtc")
	fs.String("signal-url", "", "Signaling websocket URL for the webrtc engine")
	fs.StringSlice("ice-server", nil, "ICE server URL, repeatable")
	fs.Duration("stats-interval", 0, "Statistics period")
	fs.Duration("call-duration", 0, "How long the example call stays up")

	fs.String("token-server", "", "Token server base URL")
	fs.Duration("token-ttl", 0, "Token lifetime")

	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.String("log-format", "", "Log format: text or json")

	fs.String("listen", "", "Token server listen address")
	fs.Float64("rate", 0, "Token requests per second per client")
	fs.Int("burst", 0, "Token request burst per client")
	fs.Bool("release", false, "Run the token server in release mode")
	fs.StringSlice("trusted-proxy", nil, "Proxy address or CIDR allowed to set X-Forwarded-For, repeatable")
	return fs
}

// Load parses args with fs and merges flags, environment, the optional
// configuration file and defaults.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	path, _ := fs.GetString("config")
	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values shared by all binaries.
func (c *Config) Validate() error {
	if _, err := rtcsession.ParseEngineKind(c.Engine); err != nil {
		return err
	}
	if _, err := ParseRole(c.Role); err != nil {
		return err
	}
	if c.StatsInterval < 0 {
		return errors.New("stats interval cannot be negative")
	}
	if c.Server.RequestsPerSecond < 0 || c.Server.Burst < 0 {
		return errors.New("rate limit cannot be negative")
	}
	return nil
}

// ParseRole parses a client role name.
func ParseRole(s string) (engine.ClientRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "broadcaster", "publisher", "host":
		return engine.RoleBroadcaster, nil
	case "audience", "subscriber":
		return engine.RoleAudience, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// CallOptions converts the configuration into VideoCall options.
func (c *Config) CallOptions() (*rtcsession.Options, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	kind, _ := rtcsession.ParseEngineKind(c.Engine)
	role, _ := ParseRole(c.Role)

	opts := rtcsession.NewOptions()
	opts.AppID = c.AppID
	opts.Role = role
	opts.Engine = kind
	opts.Certificate = c.AppCertificate
	opts.TokenServerURL = c.TokenServerURL
	if c.TokenTTL > 0 {
		opts.TokenTTL = c.TokenTTL
	}
	opts.StaleStatsTimeout = c.StaleStatsTimeout
	opts.LeaveTimeout = c.LeaveTimeout

	opts.Loopback.StatsInterval = c.StatsInterval
	opts.Peer.SignalURL = c.SignalURL
	opts.Peer.StatsInterval = c.StatsInterval
	opts.Peer.ICEServers = nil
	if len(c.ICEServers) > 0 {
		opts.Peer.ICEServers = []webrtc.ICEServer{{URLs: c.ICEServers}}
	}
	return opts, nil
}

// TokenServerConfig converts the configuration into token server settings.
func (c *Config) TokenServerConfig() token.ServerConfig {
	cfg := token.DefaultServerConfig()
	cfg.AppID = c.AppID
	cfg.Certificate = c.AppCertificate
	if c.TokenTTL > 0 {
		cfg.TTL = c.TokenTTL
	}
	if c.Server.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = c.Server.RequestsPerSecond
	}
	if c.Server.Burst > 0 {
		cfg.Burst = c.Server.Burst
	}
	cfg.TrustedProxies = c.Server.TrustedProxies
	return cfg
}
