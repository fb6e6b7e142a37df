// Package config loads the client configuration from CHAT_* environment
// variables.
package config

import (
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"

	"github.com/omochice/hybrid-chat/internal/connection"
	"github.com/omochice/hybrid-chat/internal/session"
)

// Prefix is prepended to every variable name.
const Prefix = "CHAT_"

// Config is the client configuration.
type Config struct {
	PushURL string `env:"PUSH_URL" envDefault:"ws://localhost:8080/ws"`
	RPCAddr string `env:"RPC_ADDR" envDefault:"localhost:9090"`

	BackoffBase   time.Duration `env:"BACKOFF_BASE"   envDefault:"1s"`
	BackoffCap    time.Duration `env:"BACKOFF_CAP"    envDefault:"30s"`
	BackoffJitter float64       `env:"BACKOFF_JITTER" envDefault:"0.2"`
	MaxAttempts   int           `env:"MAX_ATTEMPTS"   envDefault:"0"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	HeartbeatDeadline time.Duration `env:"HEARTBEAT_DEADLINE" envDefault:"10s"`

	JoinTimeout  time.Duration `env:"JOIN_TIMEOUT"  envDefault:"10s"`
	LeaveTimeout time.Duration `env:"LEAVE_TIMEOUT" envDefault:"10s"`

	DefaultRoom  string        `env:"DEFAULT_ROOM"  envDefault:"general"`
	HistoryLimit int           `env:"HISTORY_LIMIT" envDefault:"50"`
	MatchWindow  time.Duration `env:"MATCH_WINDOW"  envDefault:"10s"`
	SendGrace    time.Duration `env:"SEND_GRACE"    envDefault:"2s"`
	RPCTimeout   time.Duration `env:"RPC_TIMEOUT"   envDefault:"10s"`

	Token     string `env:"TOKEN"`
	TokenFile string `env:"TOKEN_FILE"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load parses the environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	return cfg, nil
}

// Validate rejects unusable or inconsistent values.
func (c Config) Validate() error {
	u, err := url.Parse(c.PushURL)
	if err != nil {
		return errors.Wrap(err, "push url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Errorf("push url: unsupported scheme %q", u.Scheme)
	}
	if c.RPCAddr == "" {
		return errors.New("rpc address is required")
	}

	positive := map[string]time.Duration{
		"backoff base":       c.BackoffBase,
		"backoff cap":        c.BackoffCap,
		"heartbeat interval": c.HeartbeatInterval,
		"heartbeat deadline": c.HeartbeatDeadline,
		"join timeout":       c.JoinTimeout,
		"leave timeout":      c.LeaveTimeout,
		"match window":       c.MatchWindow,
		"send grace":         c.SendGrace,
		"rpc timeout":        c.RPCTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return errors.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.BackoffCap < c.BackoffBase {
		return errors.Errorf("backoff cap %s is below backoff base %s", c.BackoffCap, c.BackoffBase)
	}
	if c.HeartbeatDeadline >= c.HeartbeatInterval {
		return errors.Errorf("heartbeat deadline %s must be shorter than the interval %s", c.HeartbeatDeadline, c.HeartbeatInterval)
	}
	if c.BackoffJitter < 0 || c.BackoffJitter > 1 {
		return errors.Errorf("backoff jitter must be within [0, 1], got %v", c.BackoffJitter)
	}
	if c.MaxAttempts < 0 {
		return errors.Errorf("max attempts must not be negative, got %d", c.MaxAttempts)
	}
	if c.HistoryLimit <= 0 {
		return errors.Errorf("history limit must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

// Session builds the session configuration for the given user.
func (c Config) Session(userID, userName string) session.Config {
	return session.Config{
		UserID:       userID,
		UserName:     userName,
		DefaultRoom:  c.DefaultRoom,
		HistoryLimit: c.HistoryLimit,
		RPCTimeout:   c.RPCTimeout,
		Connection: connection.Config{
			URL:               c.PushURL,
			BackoffBase:       c.BackoffBase,
			BackoffCap:        c.BackoffCap,
			BackoffJitter:     c.BackoffJitter,
			MaxAttempts:       c.MaxAttempts,
			HeartbeatInterval: c.HeartbeatInterval,
			HeartbeatDeadline: c.HeartbeatDeadline,
		},
		JoinTimeout:  c.JoinTimeout,
		LeaveTimeout: c.LeaveTimeout,
		MatchWindow:  c.MatchWindow,
		SendGrace:    c.SendGrace,
	}
}
