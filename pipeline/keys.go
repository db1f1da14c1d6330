// Copyright 2025 Hollowbrook Systems
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

package pipeline

import (
	"path"
	"strings"
)

// tagLength is the number of fingerprint characters embedded in a
// processed key.
const tagLength = 8

// ProcessedKey builds the destination key for a promoted document. The
// key carries a short fingerprint tag ("report.pdf" becomes
// "report_a1b2c3d4.pdf"), so the lister can tell a re-uploaded,
// changed document from an already-indexed one by comparing keys alone,
// without a metadata round trip per object.
func ProcessedKey(sourcePrefix, processedPrefix, sourceKey, fingerprint string) string {
	rel := strings.TrimPrefix(sourceKey, sourcePrefix)
	ext := path.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)
	return processedPrefix + stem + "_" + fingerprintTag(fingerprint) + ext
}

// ParseProcessedKey recovers the source-relative name and the
// fingerprint tag from a processed key. ok is false for keys that do
// not follow the tagged naming scheme; the lister ignores those.
func ParseProcessedKey(processedPrefix, key string) (rel, tag string, ok bool) {
	trimmed := strings.TrimPrefix(key, processedPrefix)
	ext := path.Ext(trimmed)
	stem := strings.TrimSuffix(trimmed, ext)

	i := strings.LastIndex(stem, "_")
	if i < 0 {
		return "", "", false
	}
	tag = stem[i+1:]
	if !isTag(tag) {
		return "", "", false
	}
	return stem[:i] + ext, tag, true
}

// fingerprintTag shortens a fingerprint to its key-embedded form.
func fingerprintTag(fingerprint string) string {
	if len(fingerprint) > tagLength {
		return fingerprint[:tagLength]
	}
	return fingerprint
}

func isTag(s string) bool {
	if len(s) != tagLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
