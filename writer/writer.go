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

// Package writer persists resolved uploads to disk. It is the one package
// in this module that touches the filesystem: the resolver computes a
// relative path, and Commit joins it onto the destination root, creates the
// directory chain, and moves the staged upload into place. Transient
// failures go through the recovery handler's retry contract.
package writer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pelicanplatform/uploadpath/pathutil"
	"github.com/pelicanplatform/uploadpath/recovery"
)

// Writer moves staged upload files into their resolved destinations.
type Writer struct {
	root    string
	handler *recovery.Handler
}

// NewWriter creates a writer rooted at the given directory. All resolved
// paths are joined under this root; nothing is ever written outside it.
func NewWriter(root string, handler *recovery.Handler) (*Writer, error) {
	if root == "" {
		return nil, errors.New("writer root directory must not be empty")
	}
	if handler == nil {
		handler = recovery.NewHandler()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to absolutize the writer root")
	}
	return &Writer{root: absRoot, handler: handler}, nil
}

// Root returns the absolute destination root.
func (w *Writer) Root() string {
	return w.root
}

// Commit moves the staged file at srcPath to the resolved relative path
// under the writer root, creating parent directories as needed. mkdir and
// rename are retried with backoff per the recovery handler's filesystem
// contract; the final path on disk is returned.
func (w *Writer) Commit(ctx context.Context, finalPath, srcPath string) (string, error) {
	joined, err := pathutil.SafeJoin(w.root, finalPath)
	if err != nil {
		return "", errors.Wrapf(err, "refusing to write %q outside the destination root", finalPath)
	}
	target := filepath.FromSlash(joined)

	result := w.handler.HandleFilesystemOperation(ctx, func(context.Context) (interface{}, error) {
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, err
		}
		return nil, os.Rename(srcPath, target)
	}, -1)
	if !result.Success {
		return "", errors.Wrapf(result.Err, "failed to commit upload after %d attempts", result.Attempts)
	}
	if result.Recovered {
		log.Debugf("Upload committed to %s after %d attempts", target, result.Attempts)
	}
	return target, nil
}
