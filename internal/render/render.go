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

// Package render writes response payloads as JSON or YAML according to
// the request's Accept header or ?format= override.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

// Media types
const (
	MIMEJSON     = gin.MIMEJSON
	MIMEYAML     = "application/yaml"
	MIMEXYAML    = "application/x-yaml"
	MIMETextYAML = "text/yaml"
)

// NotAcceptableDetail is returned when no offered format satisfies Accept
const NotAcceptableDetail = "Could not satisfy the request Accept header."

// Format is a response serialization
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// offered is ordered by preference; JSON wins for */* and absent Accept
var offered = []string{MIMEJSON, MIMEYAML, MIMEXYAML, MIMETextYAML}

// Choice is the negotiated format plus the media type to answer with
type Choice struct {
	Format      Format
	ContentType string
}

// Choose picks a response format for the request. ok is false when
// neither the format override nor the Accept header can be satisfied.
func Choose(c *gin.Context) (choice Choice, ok bool) {
	if override := strings.ToLower(strings.TrimSpace(c.Query("format"))); override != "" {
		switch Format(override) {
		case FormatJSON:
			return Choice{Format: FormatJSON, ContentType: MIMEJSON}, true
		case FormatYAML:
			return Choice{Format: FormatYAML, ContentType: MIMEYAML}, true
		default:
			return Choice{}, false
		}
	}

	if strings.TrimSpace(c.GetHeader("Accept")) == "" {
		return Choice{Format: FormatJSON, ContentType: MIMEJSON}, true
	}

	switch mime := c.NegotiateFormat(offered...); mime {
	case MIMEJSON:
		return Choice{Format: FormatJSON, ContentType: MIMEJSON}, true
	case MIMEYAML, MIMEXYAML, MIMETextYAML:
		return Choice{Format: FormatYAML, ContentType: mime}, true
	default:
		return Choice{}, false
	}
}

// Negotiate writes payload with status in the negotiated format.
// A types.Document payload is written as-is rather than re-encoded.
// On a failed negotiation it writes 406 as JSON and returns false.
func Negotiate(c *gin.Context, status int, payload interface{}) bool {
	choice, ok := Choose(c)
	if !ok {
		NotAcceptable(c)
		return false
	}

	body, err := marshalJSON(payload)
	if err != nil {
		writeInternal(c, err)
		return false
	}

	if choice.Format == FormatYAML {
		out, err := JSONToYAML(body)
		if err != nil {
			writeInternal(c, err)
			return false
		}
		c.Data(status, choice.ContentType+"; charset=utf-8", out)
		return true
	}

	c.Data(status, MIMEJSON+"; charset=utf-8", body)
	return true
}

// NotAcceptable writes the 406 response
func NotAcceptable(c *gin.Context) {
	c.Set("error_code", "NOT_ACCEPTABLE")
	c.JSON(http.StatusNotAcceptable, types.DetailResponse{Detail: NotAcceptableDetail})
}

func writeInternal(c *gin.Context, err error) {
	c.Set("error_code", "INTERNAL_ERROR")
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to render response"})
}

func marshalJSON(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case types.Document:
		if !json.Valid(v) {
			return nil, fmt.Errorf("document is not valid JSON")
		}
		return v, nil
	case []byte:
		return nil, fmt.Errorf("raw bytes must be passed as types.Document")
	default:
		return json.Marshal(v)
	}
}

// JSONToYAML re-encodes a JSON value as block-style YAML. The value is
// read with encoding/json so every JSON escape is honored; key order and
// number tokens are preserved, and strings that would read back as another
// type stay quoted.
func JSONToYAML(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	value, err := jsonNode(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON for YAML rendering: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("failed to parse JSON for YAML rendering: trailing data")
	}
	root := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{value}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// jsonNode reads one JSON value from dec as a yaml node tree
func jsonNode(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				child, err := jsonNode(dec)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, scalar("!!str", key), child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				child, err := jsonNode(dec)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", v)
		}
	case string:
		return scalar("!!str", v), nil
	case json.Number:
		if strings.ContainsAny(v.String(), ".eE") {
			return scalar("!!float", v.String()), nil
		}
		return scalar("!!int", v.String()), nil
	case bool:
		if v {
			return scalar("!!bool", "true"), nil
		}
		return scalar("!!bool", "false"), nil
	case nil:
		return scalar("!!null", "null"), nil
	default:
		return nil, fmt.Errorf("unexpected JSON token %v", tok)
	}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
