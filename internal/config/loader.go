package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "SESSIONPROBE"

// Keys lists every setting that can come from the environment,
// e.g. SESSIONPROBE_PROBE_MATCH for probe.match.
var Keys = []string{
	"probe.match", "probe.min", "probe.max", "probe.interval",
	"request.file", "request.target", "request.plain",
	"http.timeout", "http.verify_tls", "http.proxy", "http.rate_limit", "http.max_body_bytes",
	"log.level", "log.file",
	"storage.driver", "storage.path",
	"metrics.addr",
}

// InitViper points v at configFile, or at the first sessionprobe.yaml found
// in the working directory or ~/.sessionprobe.yaml, and enables env
// overrides.
func InitViper(v *viper.Viper, configFile string) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
	} else {
		v.SetConfigName("sessionprobe")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range Keys {
		_ = v.BindEnv(k)
	}
}

func findConfigFile() string {
	candidates := []string{"sessionprobe.yaml", "sessionprobe.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".sessionprobe.yaml"),
			filepath.Join(home, ".sessionprobe.yml"),
		)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads the config file (a missing file is fine), applies defaults and
// validates.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
