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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timetablegenerator/ttg-legacy/internal/errors"
	"github.com/timetablegenerator/ttg-legacy/internal/render"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

// RouteNotFoundDetail is the body detail for unroutable paths
const RouteNotFoundDetail = "Not found."

// errorBody picks the legacy envelope for an error. Framework-level
// rejections use {"detail"}; handler outcomes use {"error"}.
func errorBody(err *errors.LegacyError) interface{} {
	switch err.Code {
	case errors.ErrInvalidRoute:
		return types.DetailResponse{Detail: RouteNotFoundDetail}
	case errors.ErrParseFailure, errors.ErrPayloadTooLarge, errors.ErrAuthDenied, errors.ErrNotAcceptable:
		return types.DetailResponse{Detail: err.Message}
	default:
		return types.ErrorResponse{Error: err.Message}
	}
}

// respondWithLegacyError sends the negotiated error response for err
func (s *Server) respondWithLegacyError(c *gin.Context, err error) {
	le, ok := errors.AsLegacyError(err)
	if !ok {
		le = errors.NewInternalError("internal server error", err)
	}
	le.WithRequestID(c.GetString("request_id"))

	statusCode := le.GetHTTPStatus()
	c.Set("error_code", string(le.Code))

	// Log the error
	logger := s.logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
		"status_code": statusCode,
		"error_code":  le.Code,
		"method":      c.Request.Method,
		"path":        c.Request.URL.Path,
		"remote_addr": c.ClientIP(),
	})

	if statusCode >= 500 {
		logger.Error(le.Message, le.Cause)
	} else {
		logger.Warn(le.Message)
	}

	s.metrics.RecordError("server", string(le.Code), getErrorType(statusCode))

	render.Negotiate(c, statusCode, errorBody(le))
}

// respondNoSuchSchool sends the legacy 404 for a key with no snapshot.
// The load reason is logged but never returned to the client.
func (s *Server) respondNoSuchSchool(c *gin.Context, key types.ScheduleKey, reason string) {
	c.Set("error_code", string(errors.ErrNotFound))

	s.logger.WithContext(c.Request.Context()).WithKey(key).WithField("reason", reason).Warn("No such school")
	s.metrics.RecordError("server", string(errors.ErrNotFound), getErrorType(http.StatusNotFound))

	render.Negotiate(c, http.StatusNotFound, types.NoSuchSchool(key))
}

// getErrorType categorizes errors by HTTP status code
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "unknown"
	}
}

// respondWithSuccess sends a negotiated success response
func (s *Server) respondWithSuccess(c *gin.Context, statusCode int, data interface{}) {
	render.Negotiate(c, statusCode, data)
}

// withRequestMetrics records request metrics and the structured request log
func (s *Server) withRequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set("start_time", start)

		s.metrics.IncHTTPRequestsInFlight()
		defer s.metrics.DecHTTPRequestsInFlight()

		// Process request
		c.Next()

		duration := time.Since(start)
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), duration)

		s.logger.WithContext(c.Request.Context()).LogRequest(
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			c.Request.UserAgent(),
			c.Writer.Status(),
			duration,
		)
	}
}
