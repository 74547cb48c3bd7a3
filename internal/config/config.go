// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/warden/database/plugin"
	"github.com/blinklabs-io/warden/database/plugin/store"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "warden.config"

const (
	DefaultShutdownTimeout   = "30s"
	DefaultReconcileInterval = "10s"
	DefaultReconcileWorkers  = 8
	DefaultStorePlugin       = store.DefaultPlugin
)

var ErrInvalidConfig = errors.New("invalid config")

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config *Config        `yaml:"config,omitempty"`
	Store  map[string]any `yaml:"store,omitempty"`
}

type Config struct {
	BindAddr          string   `yaml:"bindAddr"          split_words:"true"`
	StorePlugin       string   `yaml:"storePlugin"       split_words:"true"`
	ReconcileInterval string   `yaml:"reconcileInterval" split_words:"true"`
	ShutdownTimeout   string   `yaml:"shutdownTimeout"   split_words:"true"`
	DiscordToken      string   `yaml:"discordToken"      envconfig:"DISCORD_TOKEN"`
	DiscordTokenFile  string   `yaml:"discordTokenFile"  envconfig:"DISCORD_TOKEN_FILE"`
	CorsOrigins       []string `yaml:"corsOrigins"       split_words:"true"`
	ReconcileWorkers  int      `yaml:"reconcileWorkers"  split_words:"true"`
	ApiPort           uint     `yaml:"apiPort"           split_words:"true"`
	MetricsPort       uint     `yaml:"metricsPort"       split_words:"true"`
	RepairRoles       bool     `yaml:"repairRoles"       split_words:"true"`
	Dev               bool     `yaml:"dev"`
	Tracing           bool     `yaml:"tracing"`
	TracingStdout     bool     `yaml:"tracingStdout"     split_words:"true"`
}

// ReconcileIntervalDuration returns the parsed reconcile interval
func (c *Config) ReconcileIntervalDuration() (time.Duration, error) {
	return parsePositiveDuration("reconcileInterval", c.ReconcileInterval)
}

// ShutdownTimeoutDuration returns the parsed shutdown timeout
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	return parsePositiveDuration("shutdownTimeout", c.ShutdownTimeout)
}

func (c *Config) validate() error {
	if _, err := c.ReconcileIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	if c.ReconcileWorkers < 1 {
		return fmt.Errorf(
			"%w: reconcileWorkers must be at least 1, got %d",
			ErrInvalidConfig,
			c.ReconcileWorkers,
		)
	}
	if c.StorePlugin == "" {
		return fmt.Errorf("%w: storePlugin must not be empty", ErrInvalidConfig)
	}
	return nil
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf(
			"%w: %s must be positive, got %s",
			ErrInvalidConfig,
			name,
			value,
		)
	}
	return d, nil
}

func defaultConfig() *Config {
	return &Config{
		BindAddr:          "0.0.0.0",
		ApiPort:           8080,
		MetricsPort:       12799,
		StorePlugin:       DefaultStorePlugin,
		ReconcileInterval: DefaultReconcileInterval,
		ReconcileWorkers:  DefaultReconcileWorkers,
		RepairRoles:       true,
		ShutdownTimeout:   DefaultShutdownTimeout,
	}
}

var globalConfig = defaultConfig()

func LoadConfig(configFile string) (*Config, error) {
	cfg := defaultConfig()
	if configFile == "" {
		// Check for config file in this path: ~/.warden/warden.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".warden", "warden.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/warden/warden.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		var tempCfg tempConfig
		if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		if tempCfg.Config != nil {
			// Overlay the config section onto the defaults
			configBytes, err := yaml.Marshal(tempCfg.Config)
			if err != nil {
				return nil, fmt.Errorf("error re-marshalling config: %w", err)
			}
			if err := yaml.Unmarshal(configBytes, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(buf, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
		if tempCfg.Store != nil {
			storeConfig, pluginName, err := storePluginConfig(tempCfg.Store)
			if err != nil {
				return nil, err
			}
			if pluginName != "" {
				cfg.StorePlugin = pluginName
			}
			if len(storeConfig) > 0 {
				err := plugin.ProcessConfig(
					map[string]map[string]map[string]any{
						plugin.PluginTypeName(plugin.PluginTypeStore): storeConfig,
					},
				)
				if err != nil {
					return nil, fmt.Errorf(
						"error processing plugin config: %w",
						err,
					)
				}
			}
		}
	}

	if err := envconfig.Process("warden", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := plugin.ProcessEnvVars(); err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

// storePluginConfig splits the store section into the selected plugin name
// and the per-plugin option maps
func storePluginConfig(
	section map[string]any,
) (map[string]map[string]any, string, error) {
	ret := make(map[string]map[string]any)
	var pluginName string
	for k, v := range section {
		if k == "plugin" {
			name, ok := v.(string)
			if !ok {
				return nil, "", fmt.Errorf(
					"%w: store.plugin must be a string, got %T",
					ErrInvalidConfig,
					v,
				)
			}
			pluginName = name
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			ret[k] = val
		case map[any]any:
			m := make(map[string]any, len(val))
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					m[keyStr] = vv
				}
			}
			ret[k] = m
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping store config entry %q: expected map, got %T\n",
				k,
				v,
			)
		}
	}
	return ret, pluginName, nil
}

func GetConfig() *Config {
	return globalConfig
}
