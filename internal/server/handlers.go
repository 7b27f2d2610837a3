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

package server

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timetablegenerator/ttg-legacy/internal/auth"
	"github.com/timetablegenerator/ttg-legacy/internal/codec"
	"github.com/timetablegenerator/ttg-legacy/internal/errors"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

const (
	ctxKeySchedule = "schedule_key"
	ctxKeyLevel    = "api_level"
)

// parseLevelSegment accepts only the V-prefixed route form, e.g. "V1" or "v2"
func parseLevelSegment(segment string) (types.APILevel, error) {
	if len(segment) != 2 || (segment[0] != 'V' && segment[0] != 'v') {
		return 0, fmt.Errorf("invalid level segment: %q", segment)
	}
	return types.ParseAPILevel(segment)
}

// resolveLevel validates the :level segment
func (s *Server) resolveLevel() gin.HandlerFunc {
	return func(c *gin.Context) {
		level, err := parseLevelSegment(c.Param("level"))
		if err != nil {
			s.handleNotFound(c)
			c.Abort()
			return
		}
		c.Set(ctxKeyLevel, level)
		c.Next()
	}
}

// resolveKey validates :level and :school before authorization runs, so an
// unroutable path is a 404 whatever the token
func (s *Server) resolveKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		level, err := parseLevelSegment(c.Param("level"))
		if err == nil {
			err = types.ValidateSchoolID(c.Param("school"))
		}
		if err != nil {
			s.handleNotFound(c)
			c.Abort()
			return
		}
		c.Set(ctxKeySchedule, types.ScheduleKey{SchoolID: c.Param("school"), Level: level})
		c.Next()
	}
}

func scheduleKey(c *gin.Context) types.ScheduleKey {
	key, _ := c.MustGet(ctxKeySchedule).(types.ScheduleKey)
	return key
}

// handleGetSchedule handles GET /:level/:school, reading or refreshing
func (s *Server) handleGetSchedule(c *gin.Context) {
	key := scheduleKey(c)
	ctx := c.Request.Context()

	if auth.IsRefresh(c.Request.URL.Query()) {
		res := s.schedules.Refresh(ctx, key)
		if !res.Found {
			s.respondNoSuchSchool(c, key, string(res.Reason))
			return
		}
		s.respondWithSuccess(c, http.StatusOK, types.RefreshedMessage(key.SchoolID))
		return
	}

	res := s.schedules.Get(ctx, key)
	if !res.Found {
		s.respondNoSuchSchool(c, key, string(res.Reason))
		return
	}
	s.respondWithSuccess(c, http.StatusOK, res.Document)
}

// handlePostSchedule handles POST /:level/:school
func (s *Server) handlePostSchedule(c *gin.Context) {
	key := scheduleKey(c)
	ctx := c.Request.Context()

	doc, err := codec.Decode(c.Request.Body, c.GetHeader("Content-Encoding"), s.config.Server.MaxBodySize)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			err = errors.Newf(errors.ErrPayloadTooLarge,
				"Request body too large. Maximum size is %d bytes", tooLarge.Limit)
		}
		s.respondWithLegacyError(c, err)
		return
	}

	if err := s.schedules.Update(ctx, key, doc); err != nil {
		s.respondWithLegacyError(c, err)
		return
	}

	s.logger.WithContext(ctx).WithKey(key).WithFields(map[string]interface{}{
		"operation":  "update",
		"size_bytes": len(doc),
		"gzip":       codec.IsGzip(c.GetHeader("Content-Encoding")),
	}).Info("Schedule updated")

	s.respondWithSuccess(c, http.StatusOK, types.UpdatedMessage(key.SchoolID))
}

// handleListSchools handles GET /:level/
func (s *Server) handleListSchools(c *gin.Context) {
	level, _ := c.MustGet(ctxKeyLevel).(types.APILevel)

	ids, err := s.schedules.List(c.Request.Context(), level)
	if err != nil {
		s.respondWithLegacyError(c, errors.Wrap(errors.ErrIOFailure, "failed to list schools", err))
		return
	}

	s.respondWithSuccess(c, http.StatusOK, types.SchoolListResponse{
		Level:   level.String(),
		Schools: ids,
		Count:   len(ids),
	})
}

// handleNotFound answers unroutable paths
func (s *Server) handleNotFound(c *gin.Context) {
	method := strings.ToUpper(c.Request.Method)
	s.respondWithLegacyError(c, errors.Newf(errors.ErrInvalidRoute, "no route for %s %s", method, c.Request.URL.Path))
}
