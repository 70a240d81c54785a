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

package param

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupViper(t *testing.T) {
	viper.Reset()
	Reset()
	t.Cleanup(func() {
		viper.Reset()
		Reset()
	})
}

func TestTypedAccessors(t *testing.T) {
	setupViper(t)

	viper.Set("Cache.Enabled", true)
	viper.Set("Cache.MaxSize", 42)
	viper.Set("Cache.TTL", 2*time.Minute)
	viper.Set("Alerts.Enabled", false)
	viper.Set("Thresholds.PathResolution", 75*time.Millisecond)
	viper.Set("Recovery.MaxRetries", 5)
	viper.Set("Recovery.RetryDelay", "250ms")
	viper.Set("Recovery.FallbackDirectory", "salvage")
	viper.Set("Logging.Level", "debug")

	_, err := Refresh()
	require.NoError(t, err)

	assert.True(t, Cache_Enabled.GetBool())
	assert.Equal(t, 42, Cache_MaxSize.GetInt())
	assert.Equal(t, 2*time.Minute, Cache_TTL.GetDuration())
	assert.False(t, Alerts_Enabled.GetBool())
	assert.Equal(t, 75*time.Millisecond, Thresholds_PathResolution.GetDuration())
	assert.Equal(t, 5, Recovery_MaxRetries.GetInt())
	assert.Equal(t, 250*time.Millisecond, Recovery_RetryDelay.GetDuration())
	assert.Equal(t, "salvage", Recovery_FallbackDirectory.GetString())
	assert.Equal(t, "debug", Logging_Level.GetString())
}

func TestStringTypedValues(t *testing.T) {
	// Values that arrive as strings (config files, environment) must still
	// decode into their typed targets
	setupViper(t)

	viper.Set("Cache.MaxSize", "17")
	viper.Set("Cache.Enabled", "false")
	viper.Set("Cache.TTL", "90s")

	_, err := Refresh()
	require.NoError(t, err)

	assert.Equal(t, 17, Cache_MaxSize.GetInt())
	assert.False(t, Cache_Enabled.GetBool())
	assert.Equal(t, 90*time.Second, Cache_TTL.GetDuration())
}

func TestSnapshotIsStaleUntilRefresh(t *testing.T) {
	setupViper(t)

	viper.Set("Cache.MaxSize", 10)
	_, err := Refresh()
	require.NoError(t, err)
	require.Equal(t, 10, Cache_MaxSize.GetInt())

	viper.Set("Cache.MaxSize", 20)
	assert.Equal(t, 10, Cache_MaxSize.GetInt())

	_, err = Refresh()
	require.NoError(t, err)
	assert.Equal(t, 20, Cache_MaxSize.GetInt())
}

func TestGetNameAndIsSet(t *testing.T) {
	setupViper(t)

	assert.Equal(t, "Cache.MaxSize", Cache_MaxSize.GetName())
	assert.False(t, Cache_MaxSize.IsSet())
	viper.Set("Cache.MaxSize", 3)
	assert.True(t, Cache_MaxSize.IsSet())
}

func TestZeroValuesWithoutConfiguration(t *testing.T) {
	setupViper(t)

	assert.Zero(t, Cache_MaxSize.GetInt())
	assert.False(t, Cache_Enabled.GetBool())
	assert.Zero(t, Cache_TTL.GetDuration())
	assert.Empty(t, Logging_Level.GetString())
}
