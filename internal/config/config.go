// Package config loads the layered application configuration: a file in
// the working directory, then the system file, then environment variables.
// Every key has a registered default so an env-only deployment works.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Tarick/servare/internal/application/server"
	"github.com/Tarick/servare/internal/fetcher"
	"github.com/Tarick/servare/internal/job"
	"github.com/Tarick/servare/internal/logger/zaplogger"
	"github.com/Tarick/servare/internal/repository/postgresql"
	"github.com/Tarick/servare/internal/sessions"
	"github.com/Tarick/servare/internal/tem"
	"github.com/Tarick/servare/internal/tracing"
)

const (
	systemConfigPath = "/etc/servare"
	configName       = "servare"
	envPrefix        = "SERVARE"
)

// Config aggregates per component sections, each section unmarshals into
// the owning package's config struct.
type Config struct {
	Application server.Config     `mapstructure:"application"`
	Session     sessions.Config   `mapstructure:"session"`
	Database    postgresql.Config `mapstructure:"database"`
	Jobs        job.Config        `mapstructure:"jobs"`
	Fetcher     fetcher.Config    `mapstructure:"fetcher"`
	Email       tem.Config        `mapstructure:"email"`
	Logging     zaplogger.Config  `mapstructure:"logging"`
	Tracing     tracing.Config    `mapstructure:"tracing"`
}

// setDefaults registers every known key. Viper only binds environment
// variables for keys it knows about, so the defaults double as the key
// registry for SERVARE_* overrides.
func setDefaults(v *viper.Viper) {
	v.SetDefault("application.host", "0.0.0.0")
	v.SetDefault("application.port", 8000)
	v.SetDefault("application.base_url", "http://localhost:8000")
	v.SetDefault("application.cookie_signing_key", "")
	v.SetDefault("application.request_timeout_seconds", 30)
	v.SetDefault("application.drain_timeout_seconds", 15)

	v.SetDefault("session.ttl_seconds", 86400)
	v.SetDefault("session.cleanup_enabled", true)
	v.SetDefault("session.cleanup_interval_seconds", 3600)

	v.SetDefault("database.name", "servare")
	v.SetDefault("database.hostname", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.username", "servare")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("jobs.run_interval_seconds", 10)

	v.SetDefault("fetcher.timeout_seconds", 10)

	v.SetDefault("email.base_url", "")
	v.SetDefault("email.project_id", "")
	v.SetDefault("email.auth_key", "")
	v.SetDefault("email.sender_email", "")
	v.SetDefault("email.timeout_milliseconds", 10000)

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")
	v.SetDefault("logging.disable_caller", false)
	v.SetDefault("logging.disable_stacktrace", false)
	v.SetDefault("logging.disable_color", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("tracing.service_name", "servare")
	v.SetDefault("tracing.sampler_type", "const")
	v.SetDefault("tracing.sampler_rate", 1.0)
	v.SetDefault("tracing.agent_address", "")
	v.SetDefault("tracing.collector_endpoint", "")
	v.SetDefault("tracing.log_spans", false)
}

// Load reads configuration, cfgFile overrides the layered file lookup.
// Precedence low to high: defaults, system file, working directory file,
// environment (SERVARE_ prefix, underscore as the nesting separator).
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("couldn't read config file %s: %w", cfgFile, err)
		}
	} else {
		// Both layer files are optional, the working directory file wins
		// over the system one key by key.
		for _, layer := range []string{
			filepath.Join(systemConfigPath, configName+".yaml"),
			configName + ".yaml",
		} {
			v.SetConfigFile(layer)
			if err := v.MergeInConfig(); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("couldn't read config file %s: %w", layer, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, fmt.Errorf("couldn't unmarshal configuration: %w", err)
	}
	return cfg, nil
}
