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
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/timetablegenerator/ttg-legacy/internal/errors"
	"github.com/timetablegenerator/ttg-legacy/internal/logging"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FileStore implements BlobStore over {root}/V{level}/{school_id}.json
type FileStore struct {
	root   string
	logger *logging.Logger
}

// NewFileStore creates a file store rooted at dir. The directory itself is
// not created until the first write.
func NewFileStore(dir string, logger *logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FileStore{
		root:   dir,
		logger: logger.WithComponent("blob_store"),
	}
}

// Root returns the store's base directory
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the absolute location of the document for key
func (s *FileStore) Path(key types.ScheduleKey) string {
	return filepath.Join(s.root, filepath.FromSlash(key.RelativePath()))
}

// Load reads and parses the document for key. Missing, unreadable and
// malformed files all produce a not-found result; the cause is logged.
func (s *FileStore) Load(ctx context.Context, key types.ScheduleKey) LoadResult {
	start := time.Now()
	logger := s.logger.WithContext(ctx)

	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			logger.LogStore("load", key, false, time.Since(start), nil)
			return NotFound(ReasonMissing)
		}
		logger.WithKey(key).WithField("reason", string(ReasonUnreadable)).
			Warnf("Stored document unreadable: %v", err)
		return NotFound(ReasonUnreadable)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil || !types.IsContainer(compact.Bytes()) {
		if err == nil {
			err = fmt.Errorf("top-level value is not an object or array")
		}
		logger.WithKey(key).WithField("reason", string(ReasonMalformed)).
			Warnf("Stored document malformed: %v", err)
		return NotFound(ReasonMalformed)
	}

	return Found(types.Document(compact.Bytes()))
}

// Save writes doc for key, replacing any previous document. The write goes
// to a temp file in the target directory which is then renamed into place,
// so readers see either the old or the new document in full.
func (s *FileStore) Save(ctx context.Context, key types.ScheduleKey, doc types.Document) error {
	start := time.Now()
	logger := s.logger.WithContext(ctx)

	err := s.writeAtomic(s.Path(key), doc)
	logger.LogStore("save", key, err == nil, time.Since(start), err)
	if err != nil {
		return errors.NewIOFailure(err)
	}
	return nil
}

func (s *FileStore) writeAtomic(target string, doc types.Document) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, target)
}

// List returns the sorted school ids stored under level. A level directory
// that does not exist yet holds no schools.
func (s *FileStore) List(ctx context.Context, level types.APILevel) ([]string, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("unsupported API level: %d", int(level))
	}

	entries, err := os.ReadDir(filepath.Join(s.root, level.Segment()))
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", level.Segment(), err)
	}

	schools := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !isDocumentEntry(entry) {
			continue
		}
		schools = append(schools, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(schools)
	return schools, nil
}

func isDocumentEntry(entry fs.DirEntry) bool {
	if !entry.Type().IsRegular() {
		return false
	}
	name := entry.Name()
	if !strings.HasSuffix(name, ".json") {
		return false
	}
	return types.ValidateSchoolID(strings.TrimSuffix(name, ".json")) == nil
}

// HealthCheck verifies the base directory exists and is a directory
func (s *FileStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("legacy directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("legacy directory %s is not a directory", s.root)
	}
	return nil
}

// GetStats counts stored documents per level
func (s *FileStore) GetStats(ctx context.Context) (StoreStats, error) {
	stats := StoreStats{Documents: make(map[string]int)}
	for _, level := range []types.APILevel{types.LevelV1, types.LevelV2} {
		schools, err := s.List(ctx, level)
		if err != nil {
			return StoreStats{}, err
		}
		stats.Documents[level.Segment()] = len(schools)
		stats.Total += len(schools)
	}
	return stats, nil
}
