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

// Package codec decodes schedule upload bodies, optionally gzip-compressed.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"

	"github.com/timetablegenerator/ttg-legacy/internal/errors"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

// EncodingGzip is the only content encoding that is decompressed
const EncodingGzip = "gzip"

const parseErrorPrefix = "JSON parse error - "

// IsGzip reports whether a Content-Encoding header value declares gzip
func IsGzip(contentEncoding string) bool {
	return strings.EqualFold(strings.TrimSpace(contentEncoding), EncodingGzip)
}

func parseFailure(cause error) *errors.LegacyError {
	return errors.NewParseFailure(parseErrorPrefix+cause.Error(), cause)
}

// Decode reads a request body into a compact JSON document. At most
// maxBytes of (decompressed) input are accepted. The top-level value must
// be an object or an array. Every failure is a PARSE_FAILURE.
func Decode(r io.Reader, contentEncoding string, maxBytes int64) (types.Document, error) {
	src := r
	if IsGzip(contentEncoding) {
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, parseFailure(fmt.Errorf("invalid gzip stream: %w", err))
		}
		defer gr.Close()
		src = gr
	}

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return nil, parseFailure(fmt.Errorf("failed to read body: %w", err))
	}
	if int64(len(data)) > maxBytes {
		return nil, parseFailure(fmt.Errorf("body exceeds %d bytes", maxBytes))
	}

	return Parse(data)
}

// Parse validates and compacts raw JSON bytes
func Parse(data []byte) (types.Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, parseFailure(fmt.Errorf("empty body"))
	}
	if !utf8.Valid(data) {
		return nil, parseFailure(fmt.Errorf("body is not valid UTF-8"))
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return nil, parseFailure(err)
	}

	doc := types.Document(compact.Bytes())
	if !types.IsContainer(doc) {
		return nil, parseFailure(fmt.Errorf("top-level value must be an object or array"))
	}
	return doc, nil
}

// Encode prepares a document for upload, gzip-compressing it when asked
func Encode(doc types.Document, compress bool) ([]byte, error) {
	if !compress {
		return doc, nil
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(doc); err != nil {
		return nil, fmt.Errorf("failed to compress document: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress document: %w", err)
	}
	return buf.Bytes(), nil
}
