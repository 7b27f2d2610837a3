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

package storage

import (
	"context"

	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

// BlobStore defines the interface for schedule snapshot persistence
type BlobStore interface {
	// Load never fails; any problem reading the document is reported as not found.
	Load(ctx context.Context, key types.ScheduleKey) LoadResult
	// Save fully replaces the stored document for key.
	Save(ctx context.Context, key types.ScheduleKey, doc types.Document) error

	List(ctx context.Context, level types.APILevel) ([]string, error)

	// Maintenance operations
	HealthCheck(ctx context.Context) error
	GetStats(ctx context.Context) (StoreStats, error)
}

// LoadReason explains why a load did not produce a document
type LoadReason string

const (
	ReasonNone       LoadReason = ""
	ReasonMissing    LoadReason = "missing"
	ReasonUnreadable LoadReason = "unreadable"
	ReasonMalformed  LoadReason = "malformed"
)

// LoadResult is the outcome of a load: either a document or not found
type LoadResult struct {
	Found    bool
	Document types.Document
	Reason   LoadReason
}

// Found wraps a loaded document
func Found(doc types.Document) LoadResult {
	return LoadResult{Found: true, Document: doc}
}

// NotFound reports an absent document with the reason it was absent
func NotFound(reason LoadReason) LoadResult {
	return LoadResult{Reason: reason}
}

// StoreStats provides storage statistics
type StoreStats struct {
	Documents map[string]int `json:"documents"` // keyed by level segment, e.g. "V1"
	Total     int            `json:"total"`
}
