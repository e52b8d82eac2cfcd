// Copyright 2025 Catadex Authors
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


package jobs

import "regexp"

// maxErrorSummaryLen caps the persisted error summary. Provider errors
// can echo whole request bodies; the job row only needs enough to
// diagnose.
const maxErrorSummaryLen = 500

// Provider errors may echo credentials from request headers or URLs, so
// everything that looks like a secret is scrubbed before persisting.
var redactPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|authorization)(["']?\s*[:=]\s*["']?)[^\s"'&]+`), "${1}${2}[REDACTED]"},
	{regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`), "[REDACTED]"},
	{regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`), "://[REDACTED]@"},
}

// Redact scrubs secret-looking substrings from a message and caps its
// length. Safe to call on empty strings.
func Redact(msg string) string {
	for _, p := range redactPatterns {
		msg = p.re.ReplaceAllString(msg, p.replacement)
	}
	if len(msg) > maxErrorSummaryLen {
		msg = msg[:maxErrorSummaryLen] + "..."
	}
	return msg
}
