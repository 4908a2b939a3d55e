package config

import "time"

type Config struct {
	Server      ServerConfig
	Transport   TransportConfig
	Presence    PresenceConfig
	Persistence PersistenceConfig
	Roles       map[string][]string `mapstructure:"roles"`
	LogLevel    string              `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	PollWait    time.Duration `mapstructure:"pollWait"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

// PresenceConfig controls the periodic sweep that treats idle connections as
// implicit disconnects.
type PresenceConfig struct {
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	StaleAfter    time.Duration `mapstructure:"staleAfter"`
}

// PersistenceConfig selects the external message/notification store the relay
// calls before fanning out. "memory" is for local development and tests.
type PersistenceConfig struct {
	Backend string        `mapstructure:"backend"` // "http" or "memory"
	BaseURL string        `mapstructure:"baseUrl"`
	Timeout time.Duration `mapstructure:"timeout"`
}
