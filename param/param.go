/***************************************************************
 *
 * Copyright (C) 2024, Pelican Project, Morgridge Institute for Research
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

// Package param exposes typed accessors over the global viper configuration.
// Accessors read from an atomic snapshot Config struct; call Refresh after
// mutating viper directly so the getters stay consistent.
package param

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	// Config is the snapshot of every recognized configuration key.
	Config struct {
		Cache struct {
			Enabled bool          `mapstructure:"enabled"`
			MaxSize int           `mapstructure:"maxsize"`
			TTL     time.Duration `mapstructure:"ttl"`
		} `mapstructure:"cache"`
		Alerts struct {
			Enabled bool `mapstructure:"enabled"`
		} `mapstructure:"alerts"`
		Thresholds struct {
			PathResolution       time.Duration `mapstructure:"pathresolution"`
			DuplicationDetection time.Duration `mapstructure:"duplicationdetection"`
			PathAnalysis         time.Duration `mapstructure:"pathanalysis"`
			StringOperations     time.Duration `mapstructure:"stringoperations"`
		} `mapstructure:"thresholds"`
		Recovery struct {
			MaxRetries        int           `mapstructure:"maxretries"`
			RetryDelay        time.Duration `mapstructure:"retrydelay"`
			FallbackDirectory string        `mapstructure:"fallbackdirectory"`
		} `mapstructure:"recovery"`
		Logging struct {
			Level          string `mapstructure:"level"`
			EnableDetailed bool   `mapstructure:"enabledetailed"`
		} `mapstructure:"logging"`
	}

	StringParam   struct{ name string }
	IntParam      struct{ name string }
	BoolParam     struct{ name string }
	DurationParam struct{ name string }
)

var (
	Cache_Enabled = BoolParam{"Cache.Enabled"}
	Cache_MaxSize = IntParam{"Cache.MaxSize"}
	Cache_TTL     = DurationParam{"Cache.TTL"}

	Alerts_Enabled = BoolParam{"Alerts.Enabled"}

	Thresholds_PathResolution       = DurationParam{"Thresholds.PathResolution"}
	Thresholds_DuplicationDetection = DurationParam{"Thresholds.DuplicationDetection"}
	Thresholds_PathAnalysis         = DurationParam{"Thresholds.PathAnalysis"}
	Thresholds_StringOperations     = DurationParam{"Thresholds.StringOperations"}

	Recovery_MaxRetries        = IntParam{"Recovery.MaxRetries"}
	Recovery_RetryDelay        = DurationParam{"Recovery.RetryDelay"}
	Recovery_FallbackDirectory = StringParam{"Recovery.FallbackDirectory"}

	Logging_Level          = StringParam{"Logging.Level"}
	Logging_EnableDetailed = BoolParam{"Logging.EnableDetailed"}
)

var (
	configSnapshot atomic.Pointer[Config]
	configMutex    sync.Mutex
)

// UnmarshalConfig rebuilds the snapshot Config from viper's global instance.
func UnmarshalConfig() (*Config, error) {
	configMutex.Lock()
	defer configMutex.Unlock()

	config := new(Config)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		// Environment overrides arrive as strings regardless of the
		// target type
		WeaklyTypedInput: true,
		Result:           config,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create the configuration decoder")
	}
	if err := decoder.Decode(viper.AllSettings()); err != nil {
		return nil, errors.Wrap(err, "failed to decode the configuration snapshot")
	}
	configSnapshot.Store(config)
	return config, nil
}

// Refresh reloads the snapshot after direct viper mutations (Set, ReadConfig,
// etc.). Getters read stale values until it is called.
func Refresh() (*Config, error) {
	return UnmarshalConfig()
}

// Reset drops the snapshot; intended for tests alongside viper.Reset().
func Reset() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configSnapshot.Store(nil)
}

func getOrCreateConfig() *Config {
	if config := configSnapshot.Load(); config != nil {
		return config
	}
	config, err := UnmarshalConfig()
	if err != nil {
		// An undecodable config yields the zero snapshot; getters then
		// return zero values and config.InitConfig reports the failure.
		return new(Config)
	}
	return config
}

func (p StringParam) GetName() string { return p.name }
func (p StringParam) IsSet() bool     { return viper.IsSet(p.name) }
func (p StringParam) GetString() string {
	config := getOrCreateConfig()
	switch p.name {
	case "Recovery.FallbackDirectory":
		return config.Recovery.FallbackDirectory
	case "Logging.Level":
		return config.Logging.Level
	}
	return ""
}

func (p IntParam) GetName() string { return p.name }
func (p IntParam) IsSet() bool     { return viper.IsSet(p.name) }
func (p IntParam) GetInt() int {
	config := getOrCreateConfig()
	switch p.name {
	case "Cache.MaxSize":
		return config.Cache.MaxSize
	case "Recovery.MaxRetries":
		return config.Recovery.MaxRetries
	}
	return 0
}

func (p BoolParam) GetName() string { return p.name }
func (p BoolParam) IsSet() bool     { return viper.IsSet(p.name) }
func (p BoolParam) GetBool() bool {
	config := getOrCreateConfig()
	switch p.name {
	case "Cache.Enabled":
		return config.Cache.Enabled
	case "Alerts.Enabled":
		return config.Alerts.Enabled
	case "Logging.EnableDetailed":
		return config.Logging.EnableDetailed
	}
	return false
}

func (p DurationParam) GetName() string { return p.name }
func (p DurationParam) IsSet() bool     { return viper.IsSet(p.name) }
func (p DurationParam) GetDuration() time.Duration {
	config := getOrCreateConfig()
	switch p.name {
	case "Cache.TTL":
		return config.Cache.TTL
	case "Thresholds.PathResolution":
		return config.Thresholds.PathResolution
	case "Thresholds.DuplicationDetection":
		return config.Thresholds.DuplicationDetection
	case "Thresholds.PathAnalysis":
		return config.Thresholds.PathAnalysis
	case "Thresholds.StringOperations":
		return config.Thresholds.StringOperations
	case "Recovery.RetryDelay":
		return config.Recovery.RetryDelay
	}
	return 0
}
