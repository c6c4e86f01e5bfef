package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/vigil/internal/logger"
	"github.com/loykin/vigil/internal/logscan"
	"github.com/loykin/vigil/internal/target"
)

// FileConfig represents the top-level TOML structure:
//
//	store       = "vigil.db"                  # sqlite path or postgres:// DSN
//	history     = "clickhouse://host:9000/db" # optional event sink DSN
//	http_listen = "127.0.0.1:9321"            # optional status endpoint
//	run_dir     = "/run/vigil"                # lock + token default directory
//
//	[log]
//	dir = "/var/log/vigil"
//
//	[[targets]]
//	name           = "relay"
//	token_file     = "/run/relay/relay.token"
//	token          = "relay-worker"
//	log_path       = "/var/log/relay/relay.log"
//	restart_action = "systemctl restart relay"
//
//	[[targets.signatures]]
//	name      = "conn-reset"
//	pattern   = "connection reset by peer"
//	freshness = "2m"
type FileConfig struct {
	StoreDSN   string         `toml:"store" mapstructure:"store"`
	HistoryDSN string         `toml:"history" mapstructure:"history"`
	HTTPListen string         `toml:"http_listen" mapstructure:"http_listen"`
	RunDir     string         `toml:"run_dir" mapstructure:"run_dir"`
	Log        *logger.Config `toml:"log" mapstructure:"log"`
	Targets    []TargetConfig `toml:"targets" mapstructure:"targets"`
}

type TargetConfig struct {
	Name                 string            `toml:"name" mapstructure:"name"`
	Token                string            `toml:"token" mapstructure:"token"`
	TokenFile            string            `toml:"token_file" mapstructure:"token_file"`
	ProbeCommand         string            `toml:"probe_command" mapstructure:"probe_command"`
	LogPath              string            `toml:"log_path" mapstructure:"log_path"`
	RestartAction        string            `toml:"restart_action" mapstructure:"restart_action"`
	CheckInterval        time.Duration     `toml:"check_interval" mapstructure:"check_interval"`
	MaxRestartsPerWindow uint32            `toml:"max_restarts_per_window" mapstructure:"max_restarts_per_window"`
	Window               time.Duration     `toml:"window" mapstructure:"window"`
	Cooldown             time.Duration     `toml:"cooldown" mapstructure:"cooldown"`
	VerifyTimeout        time.Duration     `toml:"verify_timeout" mapstructure:"verify_timeout"`
	SleepThreshold       time.Duration     `toml:"sleep_threshold" mapstructure:"sleep_threshold"`
	Signatures           []SignatureConfig `toml:"signatures" mapstructure:"signatures"`
}

type SignatureConfig struct {
	Name      string        `toml:"name" mapstructure:"name"`
	Pattern   string        `toml:"pattern" mapstructure:"pattern"`
	Freshness time.Duration `toml:"freshness" mapstructure:"freshness"`
}

// Config is the loaded, validated runtime configuration.
type Config struct {
	StoreDSN   string
	HistoryDSN string
	HTTPListen string
	RunDir     string
	Log        logger.Config
	Targets    []target.Descriptor
}

// Load parses and validates a TOML config file. Any validation failure here
// is a configuration error; callers surface it with exit code 2.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}

	cfg := &Config{
		StoreDSN:   fc.StoreDSN,
		HistoryDSN: fc.HistoryDSN,
		HTTPListen: fc.HTTPListen,
		RunDir:     fc.RunDir,
	}
	if cfg.RunDir == "" {
		cfg.RunDir = filepath.Join(os.TempDir(), "vigil")
	}
	if cfg.StoreDSN == "" {
		cfg.StoreDSN = filepath.Join(cfg.RunDir, "vigil.db")
	}
	if fc.Log != nil {
		cfg.Log = *fc.Log
	}

	if len(fc.Targets) == 0 {
		return nil, fmt.Errorf("config %s: at least one [[targets]] entry required", path)
	}
	seen := make(map[string]bool, len(fc.Targets))
	for _, tc := range fc.Targets {
		d, err := tc.descriptor()
		if err != nil {
			return nil, err
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate target name %q", d.Name)
		}
		seen[d.Name] = true
		cfg.Targets = append(cfg.Targets, d)
	}
	return cfg, nil
}

// Target returns the descriptor with the given name, or the sole target when
// name is empty and exactly one is configured.
func (c *Config) Target(name string) (target.Descriptor, error) {
	if name == "" {
		if len(c.Targets) == 1 {
			return c.Targets[0], nil
		}
		return target.Descriptor{}, fmt.Errorf("config defines %d targets, --name required", len(c.Targets))
	}
	for _, d := range c.Targets {
		if d.Name == name {
			return d, nil
		}
	}
	return target.Descriptor{}, fmt.Errorf("unknown target %q", name)
}

func (tc TargetConfig) descriptor() (target.Descriptor, error) {
	d := target.Descriptor{
		Name:                 tc.Name,
		Token:                tc.Token,
		TokenFile:            tc.TokenFile,
		ProbeCommand:         tc.ProbeCommand,
		LogPath:              tc.LogPath,
		RestartAction:        tc.RestartAction,
		CheckInterval:        tc.CheckInterval,
		MaxRestartsPerWindow: tc.MaxRestartsPerWindow,
		Window:               tc.Window,
		Cooldown:             tc.Cooldown,
		VerifyTimeout:        tc.VerifyTimeout,
		SleepThreshold:       tc.SleepThreshold,
	}
	for _, sc := range tc.Signatures {
		fresh := sc.Freshness
		if fresh <= 0 {
			fresh = logscan.DefaultFreshness
		}
		sig, err := logscan.NewSignature(sc.Name, sc.Pattern, fresh)
		if err != nil {
			return target.Descriptor{}, fmt.Errorf("target %s: signature %s: %w", tc.Name, sc.Name, err)
		}
		d.Signatures = append(d.Signatures, sig)
	}
	d.ApplyDefaults()
	if err := d.Validate(); err != nil {
		return target.Descriptor{}, err
	}
	return d, nil
}
