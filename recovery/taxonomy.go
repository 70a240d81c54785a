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

package recovery

import (
	"strings"
	"time"
)

type (
	// Category buckets an error by the subsystem that produced it
	Category string

	// Severity grades how bad an error is for the upload as a whole
	Severity string

	// Record is one categorized error occurrence. Records themselves are
	// transient (logged, then dropped); only the aggregated counts persist.
	Record struct {
		Category  Category          `json:"category"`
		Severity  Severity          `json:"severity"`
		Message   string            `json:"message"`
		Timestamp time.Time         `json:"timestamp"`
		Context   map[string]string `json:"context,omitempty"`
	}
)

const (
	CategoryPathConstruction Category = "path_construction"
	CategoryFilesystem       Category = "filesystem"
	CategoryValidation       Category = "validation"
	CategorySecurity         Category = "security"
	CategoryDuplication      Category = "duplication"
	CategoryUnknown          Category = "unknown"
)

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Categorize assigns a category and severity by substring-matching the error
// message. The ordering matters: errno-style filesystem markers win over the
// looser keyword checks, and security always beats the generic "path" match.
func Categorize(err error) (Category, Severity) {
	if err == nil {
		return CategoryUnknown, SeverityMedium
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "emfile"), strings.Contains(msg, "enfile"):
		return CategoryFilesystem, SeverityCritical
	case strings.Contains(msg, "eacces"), strings.Contains(msg, "eperm"),
		strings.Contains(msg, "permission denied"):
		return CategoryFilesystem, SeverityHigh
	case strings.Contains(msg, "enoent"), strings.Contains(msg, "enotdir"),
		strings.Contains(msg, "no such file"):
		return CategoryFilesystem, SeverityMedium
	case strings.Contains(msg, "security"), strings.Contains(msg, "traversal"):
		return CategorySecurity, SeverityHigh
	case strings.Contains(msg, "duplicat"):
		return CategoryDuplication, SeverityLow
	case strings.Contains(msg, "path"):
		return CategoryPathConstruction, SeverityMedium
	case strings.Contains(msg, "validation"), strings.Contains(msg, "invalid"):
		return CategoryValidation, SeverityMedium
	default:
		return CategoryUnknown, SeverityMedium
	}
}

// NewRecord categorizes err and stamps it.
func NewRecord(err error, context map[string]string) Record {
	category, severity := Categorize(err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Record{
		Category:  category,
		Severity:  severity,
		Message:   msg,
		Timestamp: time.Now(),
		Context:   context,
	}
}
