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

// Package config wires viper defaults, the optional configuration file, and
// environment overrides, and builds fully-configured component instances
// from the resulting parameters.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pelicanplatform/uploadpath/logging"
	"github.com/pelicanplatform/uploadpath/monitor"
	"github.com/pelicanplatform/uploadpath/param"
	"github.com/pelicanplatform/uploadpath/recovery"
	"github.com/pelicanplatform/uploadpath/resolver"
)

func setDefaults() {
	viper.SetDefault("Cache.Enabled", true)
	viper.SetDefault("Cache.MaxSize", 1000)
	viper.SetDefault("Cache.TTL", 5*time.Minute)

	viper.SetDefault("Alerts.Enabled", true)

	viper.SetDefault("Thresholds.PathResolution", 50*time.Millisecond)
	viper.SetDefault("Thresholds.DuplicationDetection", 10*time.Millisecond)
	viper.SetDefault("Thresholds.PathAnalysis", 25*time.Millisecond)
	viper.SetDefault("Thresholds.StringOperations", 5*time.Millisecond)

	viper.SetDefault("Recovery.MaxRetries", 3)
	viper.SetDefault("Recovery.RetryDelay", 100*time.Millisecond)
	viper.SetDefault("Recovery.FallbackDirectory", "recovered")

	viper.SetDefault("Logging.Level", "error")
	viper.SetDefault("Logging.EnableDetailed", false)
}

// InitConfig loads defaults, the optional config file (uploadpath.yaml in
// the working directory, $HOME/.uploadpath, or /etc/uploadpath), and
// UPLOADPATH_* environment overrides, then configures logging.
func InitConfig(cfgFile string) error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("uploadpath")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.uploadpath")
		viper.AddConfigPath("/etc/uploadpath")
	}
	viper.SetEnvPrefix("UPLOADPATH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return errors.Wrap(err, "failed to read the configuration file")
		}
	} else {
		log.Debugln("Configuration loaded from", viper.ConfigFileUsed())
	}

	if _, err := param.Refresh(); err != nil {
		return err
	}

	level := param.Logging_Level.GetString()
	if param.Logging_EnableDetailed.GetBool() {
		level = "debug"
	}
	return logging.Setup(level)
}

// NewHandlerFromConfig builds a recovery handler from the active parameters.
func NewHandlerFromConfig() *recovery.Handler {
	return recovery.NewHandler(
		recovery.WithMaxRetries(param.Recovery_MaxRetries.GetInt()),
		recovery.WithRetryDelay(param.Recovery_RetryDelay.GetDuration()),
		recovery.WithFallbackDirectory(param.Recovery_FallbackDirectory.GetString()),
	)
}

// NewMonitorFromConfig builds a performance monitor from the active
// parameters.
func NewMonitorFromConfig() *monitor.PerformanceMonitor {
	return monitor.NewPerformanceMonitor(
		monitor.WithCaching(param.Cache_Enabled.GetBool()),
		monitor.WithCacheMaxSize(uint64(param.Cache_MaxSize.GetInt())),
		monitor.WithCacheTTL(param.Cache_TTL.GetDuration()),
		monitor.WithAlerts(param.Alerts_Enabled.GetBool()),
		monitor.WithThreshold(monitor.OpPathResolution, param.Thresholds_PathResolution.GetDuration()),
		monitor.WithThreshold(monitor.OpDuplicationDetection, param.Thresholds_DuplicationDetection.GetDuration()),
		monitor.WithThreshold(monitor.OpPathAnalysis, param.Thresholds_PathAnalysis.GetDuration()),
		monitor.WithThreshold(monitor.OpStringOperations, param.Thresholds_StringOperations.GetDuration()),
	)
}

// NewResolverFromConfig builds a resolver whose collaborators all honor the
// active parameters.
func NewResolverFromConfig() *resolver.Resolver {
	return resolver.NewResolver(
		resolver.WithHandler(NewHandlerFromConfig()),
		resolver.WithMonitor(NewMonitorFromConfig()),
	)
}
