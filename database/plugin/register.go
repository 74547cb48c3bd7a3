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

package plugin

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeStore PluginType = 1
)

const envVarPrefix = "WARDEN"

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeStore:
		return "store"
	default:
		return ""
	}
}

type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

var (
	pluginEntries      []PluginEntry
	pluginEntriesMutex sync.RWMutex
)

// Register adds a plugin to the registry. It is meant to be called from a
// plugin package's init()
func Register(pluginEntry PluginEntry) {
	pluginEntriesMutex.Lock()
	defer pluginEntriesMutex.Unlock()
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registry entries for the given plugin type
func GetPlugins(pluginType PluginType) []PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	ret := []PluginEntry{}
	for _, p := range pluginEntries {
		if p.Type == pluginType {
			ret = append(ret, p)
		}
	}
	return ret
}

// GetPlugin returns a new instance of the named plugin built from its
// current options, or nil if it is not registered
func GetPlugin(pluginType PluginType, pluginName string) Plugin {
	entry := getPluginEntry(pluginType, pluginName)
	if entry == nil || entry.NewFromOptionsFunc == nil {
		return nil
	}
	return entry.NewFromOptionsFunc()
}

func getPluginEntry(pluginType PluginType, pluginName string) *PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for i := range pluginEntries {
		p := &pluginEntries[i]
		if p.Type == pluginType && p.Name == pluginName {
			return p
		}
	}
	return nil
}

// PopulateCmdlineOptions adds a flag for every registered plugin option.
// Flags are named <type>-<plugin>-<option>
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			flagName := strings.Join(
				[]string{PluginTypeName(p.Type), p.Name, opt.Name},
				"-",
			)
			if err := opt.addToFlagSet(fs, flagName); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin options from a config file. The map is keyed
// by plugin type name, then plugin name, then option name
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, p := range pluginEntries {
		typeConfig, ok := pluginConfig[PluginTypeName(p.Type)]
		if !ok {
			continue
		}
		optionConfig, ok := typeConfig[p.Name]
		if !ok {
			continue
		}
		for _, opt := range p.Options {
			value, ok := optionConfig[opt.Name]
			if !ok {
				continue
			}
			if err := opt.setValue(value); err != nil {
				return fmt.Errorf(
					"%s plugin '%s': %w",
					PluginTypeName(p.Type),
					p.Name,
					err,
				)
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin options from the environment. The variable
// name is WARDEN_<TYPE>_<PLUGIN>_<OPTION> unless the option declares a
// custom one
func ProcessEnvVars() error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			envVar := opt.CustomEnvVar
			if envVar == "" {
				envVar = strings.ToUpper(
					strings.ReplaceAll(
						strings.Join(
							[]string{envVarPrefix, PluginTypeName(p.Type), p.Name, opt.Name},
							"_",
						),
						"-",
						"_",
					),
				)
			}
			value, ok := os.LookupEnv(envVar)
			if !ok {
				continue
			}
			parsed, err := opt.parseString(value)
			if err != nil {
				return fmt.Errorf("env var %s: %w", envVar, err)
			}
			if err := opt.setValue(parsed); err != nil {
				return fmt.Errorf("env var %s: %w", envVar, err)
			}
		}
	}
	return nil
}

func uint64FromAny(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case float64:
		if v < 0 || v > math.MaxUint64 || v != math.Trunc(v) {
			return 0, false
		}
		return uint64(v), true
	case string:
		ret, err := strconv.ParseUint(v, 10, 64)
		return ret, err == nil
	}
	return 0, false
}
