package sandbox

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/espace-membre/internal/config"
	"github.com/kingrea/espace-membre/internal/portal"
)

const (
	// DefaultHost is the loopback interface used when no host override is provided.
	DefaultHost = "127.0.0.1"
	// DefaultPort matches the default portal URL of the console.
	DefaultPort = 8100
	// DefaultMaxBodyBytes limits request payloads to 64 KB.
	DefaultMaxBodyBytes int64 = 64 << 10
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the sandbox portal.
type Settings struct {
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Portal       portal.MemoryOptions
}

// SettingsFromConfig builds Settings from the project's .espace config, which
// already carries the environment overrides.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{Host: DefaultHost, Port: DefaultPort}
	if cfg != nil {
		sb := cfg.Project.Sandbox
		settings.Host = sb.Host
		settings.Port = sb.Port
		settings.Portal = portal.MemoryOptions{
			MergeDelay:   sb.MergeDelay,
			MailboxDelay: sb.MailboxDelay,
			LoginDelay:   sb.LoginDelay,
		}
	}
	settings.normalize()
	return settings
}

func (s *Settings) normalize() {
	if s == nil {
		return
	}
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port < 0 || s.Port > 65535 {
		s.Port = DefaultPort
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form. Port 0 binds an
// ephemeral port.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}
