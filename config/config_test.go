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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelicanplatform/uploadpath/param"
)

func setupViper(t *testing.T) {
	viper.Reset()
	param.Reset()
	t.Cleanup(func() {
		viper.Reset()
		param.Reset()
	})
}

func TestInitConfigDefaults(t *testing.T) {
	setupViper(t)

	require.NoError(t, InitConfig(""))

	assert.True(t, param.Cache_Enabled.GetBool())
	assert.Equal(t, 1000, param.Cache_MaxSize.GetInt())
	assert.Equal(t, 5*time.Minute, param.Cache_TTL.GetDuration())
	assert.True(t, param.Alerts_Enabled.GetBool())
	assert.Equal(t, 50*time.Millisecond, param.Thresholds_PathResolution.GetDuration())
	assert.Equal(t, 10*time.Millisecond, param.Thresholds_DuplicationDetection.GetDuration())
	assert.Equal(t, 25*time.Millisecond, param.Thresholds_PathAnalysis.GetDuration())
	assert.Equal(t, 5*time.Millisecond, param.Thresholds_StringOperations.GetDuration())
	assert.Equal(t, 3, param.Recovery_MaxRetries.GetInt())
	assert.Equal(t, 100*time.Millisecond, param.Recovery_RetryDelay.GetDuration())
	assert.Equal(t, "recovered", param.Recovery_FallbackDirectory.GetString())
	assert.Equal(t, "error", param.Logging_Level.GetString())
	assert.False(t, param.Logging_EnableDetailed.GetBool())
}

func TestInitConfigFromFile(t *testing.T) {
	setupViper(t)

	cfgFile := filepath.Join(t.TempDir(), "uploadpath.yaml")
	contents := []byte(`
cache:
  maxsize: 250
  ttl: 90s
recovery:
  fallbackdirectory: salvage
logging:
  level: warning
`)
	require.NoError(t, os.WriteFile(cfgFile, contents, 0644))

	require.NoError(t, InitConfig(cfgFile))

	assert.Equal(t, 250, param.Cache_MaxSize.GetInt())
	assert.Equal(t, 90*time.Second, param.Cache_TTL.GetDuration())
	assert.Equal(t, "salvage", param.Recovery_FallbackDirectory.GetString())
	assert.Equal(t, "warning", param.Logging_Level.GetString())

	// Keys the file does not mention keep their defaults
	assert.Equal(t, 3, param.Recovery_MaxRetries.GetInt())
}

func TestInitConfigEnvOverride(t *testing.T) {
	setupViper(t)

	t.Setenv("UPLOADPATH_CACHE_MAXSIZE", "77")
	t.Setenv("UPLOADPATH_LOGGING_LEVEL", "debug")

	require.NoError(t, InitConfig(""))

	assert.Equal(t, 77, param.Cache_MaxSize.GetInt())
	assert.Equal(t, "debug", param.Logging_Level.GetString())
}

func TestInitConfigBadFile(t *testing.T) {
	setupViper(t)

	cfgFile := filepath.Join(t.TempDir(), "uploadpath.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("cache: [not: valid"), 0644))

	assert.Error(t, InitConfig(cfgFile))
}

func TestNewResolverFromConfig(t *testing.T) {
	setupViper(t)

	require.NoError(t, InitConfig(""))
	r := NewResolverFromConfig()
	require.NotNil(t, r)
	assert.NotNil(t, r.Monitor())
	assert.NotNil(t, r.Handler())
}
