/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// APILevel partitions storage and cache namespaces
type APILevel int

const (
	LevelV1 APILevel = 1
	LevelV2 APILevel = 2
)

var schoolIDPattern = regexp.MustCompile(`^[a-zA-Z_0-9]+$`)

// ParseAPILevel accepts the URL segment form ("V1", "v2") or the bare digit
func ParseAPILevel(segment string) (APILevel, error) {
	s := segment
	if len(s) == 2 && (s[0] == 'V' || s[0] == 'v') {
		s = s[1:]
	}
	switch s {
	case "1":
		return LevelV1, nil
	case "2":
		return LevelV2, nil
	default:
		return 0, fmt.Errorf("unsupported API level: %q", segment)
	}
}

// String returns the bare level digit
func (l APILevel) String() string {
	return fmt.Sprintf("%d", int(l))
}

// Segment returns the directory and URL segment for the level, e.g. "V1"
func (l APILevel) Segment() string {
	return "V" + l.String()
}

// Valid reports whether l is a supported level
func (l APILevel) Valid() bool {
	return l == LevelV1 || l == LevelV2
}

// ValidateSchoolID checks that id is a non-empty alphanumeric/underscore token
func ValidateSchoolID(id string) error {
	if !schoolIDPattern.MatchString(id) {
		return fmt.Errorf("invalid school id: %q", id)
	}
	return nil
}

// ScheduleKey identifies one school's snapshot at one API level
type ScheduleKey struct {
	SchoolID string
	Level    APILevel
}

// NewScheduleKey parses and validates the two URL path components
func NewScheduleKey(levelSegment, schoolID string) (ScheduleKey, error) {
	level, err := ParseAPILevel(levelSegment)
	if err != nil {
		return ScheduleKey{}, err
	}
	if err := ValidateSchoolID(schoolID); err != nil {
		return ScheduleKey{}, err
	}
	return ScheduleKey{SchoolID: schoolID, Level: level}, nil
}

// CacheKey concatenates school id and level with no separator.
// ("a1", 2) and ("a", 12) would collide; only levels 1 and 2 exist.
func (k ScheduleKey) CacheKey() string {
	return k.SchoolID + k.Level.String()
}

// RelativePath returns V{level}/{school_id}.json
func (k ScheduleKey) RelativePath() string {
	return path.Join(k.Level.Segment(), k.SchoolID+".json")
}

func (k ScheduleKey) String() string {
	return k.Level.Segment() + "/" + k.SchoolID
}

// Document is an opaque JSON schedule snapshot, kept in compact form
type Document = json.RawMessage

// IsContainer reports whether doc is a JSON object or array
func IsContainer(doc Document) bool {
	trimmed := strings.TrimLeft(string(doc), " \t\r\n")
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// MessageResponse is the legacy success envelope
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the legacy error envelope
type ErrorResponse struct {
	Error string `json:"error"`
}

// DetailResponse is returned for framework-level rejections (auth, parsing, negotiation)
type DetailResponse struct {
	Detail string `json:"detail"`
}

// SchoolListResponse lists the schools stored under one level
type SchoolListResponse struct {
	Level   string   `json:"level"`
	Schools []string `json:"schools"`
	Count   int      `json:"count"`
}

// UpdatedMessage is the confirmation returned after a successful write
func UpdatedMessage(schoolID string) MessageResponse {
	return MessageResponse{Message: fmt.Sprintf("Data successfully updated for %q", schoolID)}
}

// RefreshedMessage is the confirmation returned after a successful refresh
func RefreshedMessage(schoolID string) MessageResponse {
	return MessageResponse{Message: fmt.Sprintf("Cache successfully refreshed for %q", schoolID)}
}

// NoSuchSchool is the error returned when no snapshot exists for a key
func NoSuchSchool(key ScheduleKey) ErrorResponse {
	return ErrorResponse{Error: fmt.Sprintf("No such school under API V%s: %q", key.Level, key.SchoolID)}
}
