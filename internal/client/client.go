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

// Package client talks to a running legacy snapshot service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/timetablegenerator/ttg-legacy/internal/auth"
	"github.com/timetablegenerator/ttg-legacy/internal/codec"
	"github.com/timetablegenerator/ttg-legacy/internal/render"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the service
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// Client is a typed HTTP client for the snapshot endpoints
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// Trace, when set, receives one line per request and response
	Trace func(format string, args ...interface{})
}

// New creates a client for the service at baseURL. The token is only
// sent on writes and refreshes.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Push stores a document for school at level, optionally gzip-compressed
func (c *Client) Push(ctx context.Context, level types.APILevel, school string, doc types.Document, compress bool) (string, error) {
	body, err := codec.Encode(doc, compress)
	if err != nil {
		return "", err
	}

	headers := map[string]string{"Content-Type": render.MIMEJSON}
	if compress {
		headers["Content-Encoding"] = codec.EncodingGzip
	}

	resp, err := c.do(ctx, http.MethodPost, c.schoolURL(level, school, c.authQuery()), bytes.NewReader(body), headers)
	if err != nil {
		return "", err
	}

	var msg types.MessageResponse
	if err := json.Unmarshal(resp, &msg); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return msg.Message, nil
}

// Fetch returns the stored document. With asYAML the body is the YAML
// rendering and is returned as is.
func (c *Client) Fetch(ctx context.Context, level types.APILevel, school string, asYAML bool) ([]byte, error) {
	accept := render.MIMEJSON
	if asYAML {
		accept = render.MIMEYAML
	}
	return c.do(ctx, http.MethodGet, c.schoolURL(level, school, nil), nil, map[string]string{"Accept": accept})
}

// Refresh asks the service to reload school from disk
func (c *Client) Refresh(ctx context.Context, level types.APILevel, school string) (string, error) {
	q := c.authQuery()
	q.Set("refresh", "true")

	resp, err := c.do(ctx, http.MethodGet, c.schoolURL(level, school, q), nil, nil)
	if err != nil {
		return "", err
	}

	var msg types.MessageResponse
	if err := json.Unmarshal(resp, &msg); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return msg.Message, nil
}

// List returns the school ids stored under level
func (c *Client) List(ctx context.Context, level types.APILevel) (*types.SchoolListResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/"+level.Segment()+"/", nil, nil)
	if err != nil {
		return nil, err
	}

	var list types.SchoolListResponse
	if err := json.Unmarshal(resp, &list); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &list, nil
}

func (c *Client) authQuery() url.Values {
	q := url.Values{}
	if c.token != "" {
		q.Set(auth.TokenParam, c.token)
	}
	return q
}

func (c *Client) schoolURL(level types.APILevel, school string, q url.Values) string {
	u := c.baseURL + "/" + level.Segment() + "/" + url.PathEscape(school)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) trace(format string, args ...interface{}) {
	if c.Trace != nil {
		c.Trace(format, args...)
	}
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, headers map[string]string) ([]byte, error) {
	c.trace("Making %s request to: %s", method, auth.RedactToken(target))

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.trace("Response status: %d", resp.StatusCode)

	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// newAPIError pulls the message out of either legacy envelope
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: body}

	var envelope struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Message = envelope.Error
		if apiErr.Message == "" {
			apiErr.Message = envelope.Detail
		}
	}
	return apiErr
}
