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

package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timetablegenerator/ttg-legacy/internal/config"
	"github.com/timetablegenerator/ttg-legacy/internal/logging"
	"github.com/timetablegenerator/ttg-legacy/internal/render"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

// DeniedDetail is the body detail returned on a rejected request
const DeniedDetail = "You do not have permission to perform this action."

// Decision reasons
const (
	ReasonSafeMethod   = "safe_method"
	ReasonValidToken   = "valid_token"
	ReasonInvalidToken = "invalid_token"
	ReasonRefreshToken = "refresh_requires_token"
)

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool
	Reason  string
}

// Authorizer decides whether a request may proceed
type Authorizer interface {
	Authorize(method string, query url.Values) Decision
}

// IsRefresh reports whether the query declares a forced refresh
func IsRefresh(query url.Values) bool {
	v := strings.TrimSpace(query.Get("refresh"))
	return v == "1" || strings.EqualFold(v, "true")
}

// IsSafeMethod reports whether method never mutates state
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// TokenParam is the query parameter carrying the shared secret
const TokenParam = "token"

// RedactToken masks the token query value in a path or URL so it can be
// logged. Targets that do not parse are returned unchanged.
func RedactToken(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	if !q.Has(TokenParam) {
		return target
	}
	q.Set(TokenParam, "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}

// tokenMatches compares in constant time. An empty secret matches nothing.
func tokenMatches(token, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// RefreshAwarePermission requires the shared secret for writes and for
// forced refreshes, even though a refresh arrives as a GET.
type RefreshAwarePermission struct {
	secret string
}

// NewRefreshAwarePermission creates the default authorizer
func NewRefreshAwarePermission(secret string) *RefreshAwarePermission {
	return &RefreshAwarePermission{secret: secret}
}

// Authorize implements Authorizer
func (p *RefreshAwarePermission) Authorize(method string, query url.Values) Decision {
	valid := tokenMatches(query.Get(TokenParam), p.secret)

	if IsRefresh(query) {
		if valid {
			return Decision{Allowed: true, Reason: ReasonValidToken}
		}
		return Decision{Allowed: false, Reason: ReasonRefreshToken}
	}

	return safeOrToken(method, valid)
}

// PermissivePermission allows every safe method, refresh included, and
// requires the secret only for other methods.
type PermissivePermission struct {
	secret string
}

// NewPermissivePermission creates the compatibility authorizer
func NewPermissivePermission(secret string) *PermissivePermission {
	return &PermissivePermission{secret: secret}
}

// Authorize implements Authorizer
func (p *PermissivePermission) Authorize(method string, query url.Values) Decision {
	return safeOrToken(method, tokenMatches(query.Get(TokenParam), p.secret))
}

func safeOrToken(method string, valid bool) Decision {
	if IsSafeMethod(method) {
		return Decision{Allowed: true, Reason: ReasonSafeMethod}
	}
	if valid {
		return Decision{Allowed: true, Reason: ReasonValidToken}
	}
	return Decision{Allowed: false, Reason: ReasonInvalidToken}
}

// New builds the authorizer selected by cfg
func New(cfg config.AuthConfig, secret string) (Authorizer, error) {
	switch cfg.Mode {
	case config.AuthModeStrict, "":
		return NewRefreshAwarePermission(secret), nil
	case config.AuthModePermissive:
		return NewPermissivePermission(secret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

// Middleware rejects unauthorized requests with 403 before the handler runs
func Middleware(authorizer Authorizer, logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("auth")

	return func(c *gin.Context) {
		decision := authorizer.Authorize(c.Request.Method, c.Request.URL.Query())
		c.Set("auth_reason", decision.Reason)
		if decision.Allowed {
			c.Next()
			return
		}

		// The token itself is never logged
		logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"reason":     decision.Reason,
			"remote_ip":  c.ClientIP(),
		}).Warn("Request denied")

		c.Set("error_code", "AUTH_DENIED")
		render.Negotiate(c, http.StatusForbidden, types.DetailResponse{Detail: DeniedDetail})
		c.Abort()
	}
}
