package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, RoleSet, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("server.address", ":8090")
	v.SetDefault("server.auth.jwtSecret", "default-secret-key-change-me")
	v.SetDefault("server.connectionLimit.maxPerUser", 1)
	v.SetDefault("server.connectionLimit.mode", "cycle")
	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("transport.pollWait", "25s")
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("presence.sweepInterval", "30s")
	v.SetDefault("presence.staleAfter", "120s")
	v.SetDefault("persistence.backend", "memory")
	v.SetDefault("persistence.timeout", "5s")
	v.SetDefault("logLevel", "info")

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("REALTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, nil, err
		}
		logger.Warn("config file not found, relying on defaults and env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}

	roles, err := CompileRoles(cfg.Roles)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("role registry loaded", slog.Int("roles", len(roles)))

	return &cfg, roles, nil
}
