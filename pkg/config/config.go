// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads seriamp settings from a YAML file, SERIAMP_* environment
// variables and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/seriamp/pkg/transport"
)

// EnvPrefix prefixes every environment override, e.g. SERIAMP_YAMAHA_DEVICE
const EnvPrefix = "SERIAMP"

// DeviceConfig describes how to reach one device
type DeviceConfig struct {
	Device             string        `mapstructure:"device"`
	Patterns           []string      `mapstructure:"patterns"`
	BaudRate           int           `mapstructure:"baudRate"`
	DataBits           int           `mapstructure:"dataBits"`
	Parity             string        `mapstructure:"parity"`
	StopBits           int           `mapstructure:"stopBits"`
	Timeout            time.Duration `mapstructure:"timeout"`
	ProbeTimeout       time.Duration `mapstructure:"probeTimeout"`
	Retries            int           `mapstructure:"retries"`
	Persistent         bool          `mapstructure:"persistent"`
	ThreadSafe         bool          `mapstructure:"threadSafe"`
	Username           string        `mapstructure:"username"`
	InsecureSkipVerify bool          `mapstructure:"insecureSkipVerify"`
}

// Transport returns the transport parameters for this device.
// The bridge password is never read from configuration.
func (d DeviceConfig) Transport() transport.Config {
	cfg := transport.DefaultConfig()
	if d.BaudRate > 0 {
		cfg.BaudRate = d.BaudRate
	}
	if d.DataBits > 0 {
		cfg.DataBits = d.DataBits
	}
	if d.Parity != "" {
		cfg.Parity = d.Parity
	}
	if d.StopBits > 0 {
		cfg.StopBits = d.StopBits
	}
	cfg.Username = d.Username
	cfg.InsecureSkipVerify = d.InsecureSkipVerify
	return cfg
}

// HTTPConfig configures the REST front-end
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	RateLimit    float64       `mapstructure:"rateLimit"` // requests per second
	Burst        int           `mapstructure:"burst"`
	Advertise    bool          `mapstructure:"advertise"` // announce over mDNS
	InstanceName string        `mapstructure:"instanceName"`
}

// LumberjackConfig configures the rolling log file
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures zap. An empty level means silent.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Config is the top level configuration
type Config struct {
	Yamaha    DeviceConfig  `mapstructure:"yamaha"`
	Monoprice DeviceConfig  `mapstructure:"monoprice"`
	HTTP      HTTPConfig    `mapstructure:"http"`
	Logging   LoggingConfig `mapstructure:"logging"`
	Metrics   MetricsConfig `mapstructure:"metrics"`

	v *viper.Viper
}

// Load reads configuration from path, or from SERIAMP_CONFIG, ./seriamp.yaml or
// the user config directory when path is empty. A missing file is not an error.
// bindings maps configuration keys to flags in flags; flags only override
// when set on the command line.
func Load(path string, flags *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "seriamp"))
		}
		v.SetConfigName("seriamp")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range bindings {
		if flags == nil {
			break
		}
		flag := flags.Lookup(name)
		if flag == nil {
			return nil, fmt.Errorf("bind %s: unknown flag --%s", key, name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in defaults without reading files or environment
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{v: v}
	_ = v.Unmarshal(cfg)
	return cfg
}

// File returns the configuration file in use, if any
func (c *Config) File() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Dump renders the effective settings as YAML
func (c *Config) Dump() ([]byte, error) {
	if c.v == nil {
		return yaml.Marshal(map[string]any{})
	}
	return yaml.Marshal(c.v.AllSettings())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("yamaha.device", "")
	v.SetDefault("yamaha.patterns", []string{})
	v.SetDefault("yamaha.baudRate", 9600)
	v.SetDefault("yamaha.dataBits", 8)
	v.SetDefault("yamaha.parity", "none")
	v.SetDefault("yamaha.stopBits", 1)
	v.SetDefault("yamaha.timeout", "2s")
	v.SetDefault("yamaha.probeTimeout", "1s")
	v.SetDefault("yamaha.retries", 1)
	v.SetDefault("yamaha.persistent", false)
	v.SetDefault("yamaha.threadSafe", true)

	v.SetDefault("monoprice.device", "")
	v.SetDefault("monoprice.patterns", []string{})
	v.SetDefault("monoprice.baudRate", 9600)
	v.SetDefault("monoprice.dataBits", 8)
	v.SetDefault("monoprice.parity", "none")
	v.SetDefault("monoprice.stopBits", 1)
	v.SetDefault("monoprice.timeout", "1s")
	v.SetDefault("monoprice.probeTimeout", "1s")
	v.SetDefault("monoprice.retries", 1)
	v.SetDefault("monoprice.persistent", false)
	v.SetDefault("monoprice.threadSafe", true)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "30s")
	v.SetDefault("http.rateLimit", 10.0)
	v.SetDefault("http.burst", 20)
	v.SetDefault("http.advertise", false)
	v.SetDefault("http.instanceName", "seriamp")

	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 28)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}
