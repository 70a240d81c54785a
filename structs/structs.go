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

// Package structs holds the data types shared between the path-resolution
// packages and their callers.
package structs

type (
	// UploadFile is one file in an upload batch. RelativePathHint mirrors a
	// browser's webkitdirectory-style relative path; it may be empty for an
	// individual file upload.
	UploadFile struct {
		OriginalName     string `json:"originalName"`
		RelativePathHint string `json:"relativePathHint,omitempty"`
	}

	// ResolutionContext carries the destination folder plus the full batch,
	// which is read-only context used for cross-file pattern inference.
	ResolutionContext struct {
		DestinationFolder string       `json:"destinationFolder"`
		Batch             []UploadFile `json:"batch"`
	}
)

// HasHint reports whether the file carries a usable relative path hint.
func (f UploadFile) HasHint() bool {
	return f.RelativePathHint != ""
}
