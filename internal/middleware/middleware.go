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

package middleware

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/timetablegenerator/ttg-legacy/internal/auth"
	"github.com/timetablegenerator/ttg-legacy/internal/config"
	"github.com/timetablegenerator/ttg-legacy/internal/errors"
	"github.com/timetablegenerator/ttg-legacy/internal/logging"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// accessRecord is one JSON access log line
type accessRecord struct {
	Time      string `json:"time"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Latency   string `json:"latency"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id"`
}

// Logger creates a structured access log middleware writing to
// gin.DefaultWriter
func Logger(cfg config.LoggingConfig) gin.HandlerFunc {
	return LoggerWithWriter(cfg, gin.DefaultWriter)
}

// LoggerWithWriter is Logger with an explicit output. The shared secret is
// masked in the logged path.
func LoggerWithWriter(cfg config.LoggingConfig, out io.Writer) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{Output: out, Formatter: accessFormatter(cfg)})
}

func accessFormatter(cfg config.LoggingConfig) gin.LogFormatter {
	return func(param gin.LogFormatterParams) string {
		requestID, _ := param.Keys["request_id"].(string)
		path := auth.RedactToken(param.Path)
		if cfg.Format == "json" {
			line, err := json.Marshal(accessRecord{
				Time:      param.TimeStamp.Format(time.RFC3339),
				Method:    param.Method,
				Path:      path,
				Status:    param.StatusCode,
				Latency:   param.Latency.String(),
				IP:        param.ClientIP,
				UserAgent: param.Request.UserAgent(),
				RequestID: requestID,
			})
			if err != nil {
				return fmt.Sprintf("{\"error\":%q}\n", err.Error())
			}
			return string(line) + "\n"
		}

		// Default format
		return fmt.Sprintf("[%s] %s %s %d %s %s\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Method,
			path,
			param.StatusCode,
			param.Latency,
			param.ClientIP,
		)
	}
}

// Recovery turns a panic into a 500 and logs it
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithContext(c.Request.Context()).
			WithField("path", c.Request.URL.Path).
			Error("Panic recovered", fmt.Errorf("%v", recovered))
		c.Set("error_code", string(errors.ErrInternalError))
		c.AbortWithStatusJSON(http.StatusInternalServerError, types.ErrorResponse{Error: "internal server error"})
	})
}

// RequestID adds a time-ordered request ID to each request unless the
// caller supplied one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = newRequestID()
		}

		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// CORS adds CORS headers
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Encoding, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security-related headers
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// HSTS header for HTTPS
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// RequestSizeLimit rejects bodies whose declared length exceeds maxSize and
// caps the bytes a handler can read from the rest
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.Set("error_code", string(errors.ErrPayloadTooLarge))
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, types.DetailResponse{
				Detail: fmt.Sprintf("Request body too large. Maximum size is %d bytes", maxSize),
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
