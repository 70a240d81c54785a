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

// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"

	"github.com/go-kit/log/term"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Setup applies the named log level and a timestamped text formatter with
// colors when stderr is a terminal.
func Setup(level string) error {
	if level == "" {
		level = "error"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "unknown log level %q", level)
	}
	log.SetLevel(parsed)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:          true,
		ForceColors:            term.IsTerminal(log.StandardLogger().Out),
		DisableLevelTruncation: true,
	})
	return nil
}
