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

// Package catalogue holds the relational course catalogue schema. The
// snapshot service does not read from it; it is opened only when a
// database is configured.
package catalogue

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/timetablegenerator/ttg-legacy/internal/config"
	"github.com/timetablegenerator/ttg-legacy/internal/errors"
)

// Store is the gorm-backed catalogue
type Store struct {
	config config.DatabaseConfig
	db     *gorm.DB
}

// Open connects to the catalogue database. If dbOverride is non-nil, it is used (for testing).
func Open(cfg config.DatabaseConfig, dbOverride ...*gorm.DB) (*Store, error) {
	var db *gorm.DB
	var err error
	if len(dbOverride) > 0 && dbOverride[0] != nil {
		db = dbOverride[0]
	} else {
		pgCfg := postgres.Config{DSN: cfg.DSN}
		// "postgres" names the dialect; the registered database/sql driver is pgx
		if cfg.Driver != "" && cfg.Driver != "postgres" {
			pgCfg.DriverName = cfg.Driver
		}
		db, err = gorm.Open(postgres.New(pgCfg), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open catalogue database: %w", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if cfg.MaxConnections > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxConnections)
		}
		if cfg.MaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(time.Duration(cfg.MaxIdleTime) * time.Second)
		}
	}
	return &Store{config: cfg, db: db}, nil
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database instance is nil")
	}
	db, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	if s.db == nil {
		return fmt.Errorf("database instance is nil")
	}
	db, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return db.Close()
}

// SaveSchool inserts school, or updates the row with the same key
func (s *Store) SaveSchool(ctx context.Context, school *School) error {
	if school == nil {
		return fmt.Errorf("school cannot be nil")
	}
	if school.Key == "" {
		return fmt.Errorf("school key cannot be empty")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "displays_department_prefix"}),
	}).Create(school).Error
	if err != nil {
		return fmt.Errorf("failed to save school %q: %w", school.Key, err)
	}
	return nil
}

// GetSchool returns the school with the given key
func (s *Store) GetSchool(ctx context.Context, key string) (*School, error) {
	if key == "" {
		return nil, fmt.Errorf("school key cannot be empty")
	}

	var school School
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&school).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewNotFoundError("school " + key)
		}
		return nil, fmt.Errorf("failed to get school: %w", err)
	}
	return &school, nil
}
