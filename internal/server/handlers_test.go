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
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/timetablegenerator/ttg-legacy/internal/auth"
	"github.com/timetablegenerator/ttg-legacy/internal/config"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

func decodeBody(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", body, err)
	}
	return out
}

func TestPostThenGet(t *testing.T) {
	server := newTestServer(t)

	rr := doRequest(server, "POST", "/V1/testschool?token="+testSecret, strings.NewReader(`{"courses": []}`), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody(t, rr.Body.Bytes())["message"]; got != `Data successfully updated for "testschool"` {
		t.Errorf("Unexpected confirmation %q", got)
	}

	rr = doRequest(server, "GET", "/V1/testschool", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != `{"courses":[]}` {
		t.Errorf("Expected stored document, got %s", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
}

func TestGetNoSuchSchool(t *testing.T) {
	server := newTestServer(t)

	rr := doRequest(server, "GET", "/V1/nosuchschool", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rr.Code)
	}
	msg, _ := decodeBody(t, rr.Body.Bytes())["error"].(string)
	if msg != `No such school under API V1: "nosuchschool"` {
		t.Errorf("Unexpected error message %q", msg)
	}
}

func TestTrailingSlashRoutes(t *testing.T) {
	server := newTestServer(t)

	rr := doRequest(server, "POST", "/V2/uoft/?token="+testSecret, strings.NewReader(`[1,2]`), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 for trailing slash POST, got %d", rr.Code)
	}
	rr = doRequest(server, "GET", "/v2/uoft/", nil, nil)
	if rr.Code != http.StatusOK || rr.Body.String() != `[1,2]` {
		t.Errorf("Expected stored document via lowercase level and trailing slash, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRefreshWithWrongTokenIsDenied(t *testing.T) {
	server := newTestServer(t)

	if rr := doRequest(server, "POST", "/V1/testschool?token="+testSecret, strings.NewReader(`{"v":1}`), nil); rr.Code != http.StatusOK {
		t.Fatalf("POST failed: %d", rr.Code)
	}
	doRequest(server, "GET", "/V1/testschool", nil, nil)
	before := server.Schedules().CacheStats()

	for _, target := range []string{
		"/V1/testschool?refresh=true&token=wrong",
		"/V1/testschool?refresh=1",
	} {
		rr := doRequest(server, "GET", target, nil, nil)
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", target, rr.Code)
		}
		if got := decodeBody(t, rr.Body.Bytes())["detail"]; got != auth.DeniedDetail {
			t.Errorf("%s: unexpected detail %q", target, got)
		}
	}

	after := server.Schedules().CacheStats()
	if after.Invalidations != before.Invalidations || after.Size != before.Size {
		t.Errorf("Expected no cache mutation on denied refresh: before %+v, after %+v", before, after)
	}
}

func TestPostRequiresToken(t *testing.T) {
	server := newTestServer(t)

	for _, target := range []string{"/V1/uoft", "/V1/uoft?token=nope"} {
		rr := doRequest(server, "POST", target, strings.NewReader(`{}`), nil)
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", target, rr.Code)
		}
	}

	if _, err := os.Stat(filepath.Join(server.config.Legacy.Dir, "V1", "uoft.json")); !os.IsNotExist(err) {
		t.Error("Expected denied POST to write nothing")
	}
}

func TestRefreshAfterSave(t *testing.T) {
	server := newTestServer(t)
	post := func(body string) {
		t.Helper()
		if rr := doRequest(server, "POST", "/V1/uoft?token="+testSecret, strings.NewReader(body), nil); rr.Code != http.StatusOK {
			t.Fatalf("POST failed: %d", rr.Code)
		}
	}

	post(`{"v":1}`)
	doRequest(server, "GET", "/V1/uoft", nil, nil)
	post(`{"v":2}`)

	// Stale until refreshed
	if rr := doRequest(server, "GET", "/V1/uoft", nil, nil); rr.Body.String() != `{"v":1}` {
		t.Errorf("Expected cached copy, got %s", rr.Body.String())
	}

	rr := doRequest(server, "GET", "/V1/uoft?refresh=true&token="+testSecret, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected refresh 200, got %d", rr.Code)
	}
	if got := decodeBody(t, rr.Body.Bytes())["message"]; got != `Cache successfully refreshed for "uoft"` {
		t.Errorf("Unexpected refresh message %q", got)
	}

	if rr := doRequest(server, "GET", "/V1/uoft", nil, nil); rr.Body.String() != `{"v":2}` {
		t.Errorf("Expected new document after refresh, got %s", rr.Body.String())
	}
}

func TestRefreshMissingSchool(t *testing.T) {
	server := newTestServer(t)

	rr := doRequest(server, "GET", "/V2/ghost?refresh=1&token="+testSecret, nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rr.Code)
	}
	if msg, _ := decodeBody(t, rr.Body.Bytes())["error"].(string); !strings.Contains(msg, `"ghost"`) {
		t.Errorf("Expected error naming the school, got %q", msg)
	}
}

func TestPermissiveModeAllowsRefreshWithoutToken(t *testing.T) {
	server := newTestServer(t, func(c *config.Config) { c.Auth.Mode = config.AuthModePermissive })

	doRequest(server, "POST", "/V1/uoft?token="+testSecret, strings.NewReader(`{}`), nil)
	if rr := doRequest(server, "GET", "/V1/uoft?refresh=1", nil, nil); rr.Code != http.StatusOK {
		t.Errorf("Expected permissive refresh to pass, got %d", rr.Code)
	}
	if rr := doRequest(server, "POST", "/V1/uoft", strings.NewReader(`{}`), nil); rr.Code != http.StatusForbidden {
		t.Errorf("Expected POST without token to be denied, got %d", rr.Code)
	}
}

func TestInvalidateOnWrite(t *testing.T) {
	server := newTestServer(t, func(c *config.Config) { c.Cache.InvalidateOnWrite = true })

	doRequest(server, "POST", "/V1/uoft?token="+testSecret, strings.NewReader(`{"v":1}`), nil)
	doRequest(server, "GET", "/V1/uoft", nil, nil)
	doRequest(server, "POST", "/V1/uoft?token="+testSecret, strings.NewReader(`{"v":2}`), nil)

	if rr := doRequest(server, "GET", "/V1/uoft", nil, nil); rr.Body.String() != `{"v":2}` {
		t.Errorf("Expected write to invalidate the cache, got %s", rr.Body.String())
	}
}

func TestGzipPost(t *testing.T) {
	server := newTestServer(t)
	doc := `{"courses":[{"code":"CSC108"}]}`

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(server, "POST", "/V2/waterloo?token="+testSecret, &buf, map[string]string{
		"Content-Encoding": "gzip",
		"Content-Type":     "application/json",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, "GET", "/V2/waterloo", nil, nil)
	if rr.Body.String() != doc {
		t.Errorf("Expected decompressed document, got %s", rr.Body.String())
	}
}

func TestPostParseFailures(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		encoding string
	}{
		{"invalid json", `{"courses": [`, ""},
		{"empty body", ``, ""},
		{"scalar", `42`, ""},
		{"bad gzip", `{"a":1}`, "gzip"},
		{"invalid utf-8", "{\"a\":\"\xff\"}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.encoding != "" {
				headers["Content-Encoding"] = tt.encoding
			}
			rr := doRequest(server, "POST", "/V1/uoft?token="+testSecret, strings.NewReader(tt.body), headers)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rr.Code)
			}
			detail, _ := decodeBody(t, rr.Body.Bytes())["detail"].(string)
			if !strings.HasPrefix(detail, "JSON parse error - ") {
				t.Errorf("Unexpected detail %q", detail)
			}
		})
	}
}

func TestPostTooLarge(t *testing.T) {
	server := newTestServer(t, func(c *config.Config) { c.Server.MaxBodySize = 16 })

	rr := doRequest(server, "POST", "/V1/uoft?token="+testSecret, strings.NewReader(`{"pad":"`+strings.Repeat("x", 64)+`"}`), nil)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", rr.Code)
	}
}

func TestPostIOFailure(t *testing.T) {
	server := newTestServer(t)
	// A regular file where the level directory belongs
	if err := os.WriteFile(filepath.Join(server.config.Legacy.Dir, "V1"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(server, "POST", "/V1/uoft?token="+testSecret, strings.NewReader(`{}`), nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rr.Code)
	}
	if msg, _ := decodeBody(t, rr.Body.Bytes())["error"].(string); msg == "" {
		t.Error("Expected raw IO error message in body")
	}
}

func TestMalformedDiskJSONIsNotFound(t *testing.T) {
	server := newTestServer(t)
	dir := filepath.Join(server.config.Legacy.Dir, "V1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"courses": [`), 0644); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(server, "GET", "/V1/broken", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for malformed file, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), dir) {
		t.Error("Expected filesystem path to stay out of the response")
	}
}

func TestInvalidRoutes(t *testing.T) {
	server := newTestServer(t)

	for _, target := range []string{
		"/V3/uoft",
		"/1/uoft",
		"/VV/uoft",
		"/V1/bad-school",
		"/V1/uoft/extra/segments",
	} {
		rr := doRequest(server, "GET", target, nil, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, rr.Code)
			continue
		}
		if got := decodeBody(t, rr.Body.Bytes())["detail"]; got != RouteNotFoundDetail {
			t.Errorf("%s: unexpected detail %q", target, got)
		}
	}

	// Routing is checked before authorization
	if rr := doRequest(server, "POST", "/V9/uoft", strings.NewReader(`{}`), nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before auth for invalid level, got %d", rr.Code)
	}
}

func TestYAMLNegotiation(t *testing.T) {
	server := newTestServer(t)
	doRequest(server, "POST", "/V1/uoft?token="+testSecret, strings.NewReader(`{"school":"uoft","courses":[{"code":"CSC108","credits":0.5}]}`), nil)

	for _, accept := range []string{"application/yaml", "application/x-yaml", "text/yaml"} {
		rr := doRequest(server, "GET", "/V1/uoft", nil, map[string]string{"Accept": accept})
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", accept, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, accept) {
			t.Errorf("Expected content type %s, got %s", accept, ct)
		}
		body := rr.Body.String()
		if !strings.Contains(body, "school: uoft") || !strings.Contains(body, "- code: CSC108") {
			t.Errorf("Unexpected YAML body:\n%s", body)
		}
	}

	rr := doRequest(server, "GET", "/V1/uoft?format=yaml", nil, nil)
	if !strings.Contains(rr.Body.String(), "credits: 0.5") {
		t.Errorf("Expected format override to give YAML, got %s", rr.Body.String())
	}

	rr = doRequest(server, "GET", "/V1/nosuchschool", nil, map[string]string{"Accept": "application/yaml"})
	if rr.Code != http.StatusNotFound || !strings.HasPrefix(rr.Body.String(), "error: ") {
		t.Errorf("Expected YAML 404 body, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestNotAcceptable(t *testing.T) {
	server := newTestServer(t)
	doRequest(server, "POST", "/V1/uoft?token="+testSecret, strings.NewReader(`{}`), nil)

	rr := doRequest(server, "GET", "/V1/uoft", nil, map[string]string{"Accept": "text/html"})
	if rr.Code != http.StatusNotAcceptable {
		t.Errorf("Expected 406, got %d", rr.Code)
	}

	rr = doRequest(server, "GET", "/V1/uoft", nil, map[string]string{"Accept": "*/*"})
	if rr.Code != http.StatusOK || rr.Body.String() != `{}` {
		t.Errorf("Expected JSON for */*, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestHeadRequest(t *testing.T) {
	server := newTestServer(t)
	doRequest(server, "POST", "/V1/uoft?token="+testSecret, strings.NewReader(`{}`), nil)

	if rr := doRequest(server, "HEAD", "/V1/uoft", nil, nil); rr.Code != http.StatusOK {
		t.Errorf("Expected HEAD 200, got %d", rr.Code)
	}
	if rr := doRequest(server, "HEAD", "/V1/ghost", nil, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected HEAD 404 for missing school, got %d", rr.Code)
	}
}

func TestOptionsPreflight(t *testing.T) {
	server := newTestServer(t)

	rr := doRequest(server, "OPTIONS", "/V1/uoft", nil, map[string]string{"Origin": "https://ttg.example"})
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "Content-Encoding") {
		t.Error("Expected Content-Encoding to be an allowed header")
	}
}

func TestListSchools(t *testing.T) {
	server := newTestServer(t)
	for _, school := range []string{"waterloo", "uoft", "mcmaster"} {
		doRequest(server, "POST", "/V1/"+school+"?token="+testSecret, strings.NewReader(`{}`), nil)
	}
	doRequest(server, "POST", "/V2/uottawa?token="+testSecret, strings.NewReader(`{}`), nil)

	rr := doRequest(server, "GET", "/V1/", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var list types.SchoolListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Level != "1" || list.Count != 3 {
		t.Errorf("Unexpected listing %+v", list)
	}
	want := []string{"mcmaster", "uoft", "waterloo"}
	for i, id := range want {
		if list.Schools[i] != id {
			t.Errorf("Expected sorted ids %v, got %v", want, list.Schools)
			break
		}
	}

	if rr := doRequest(server, "GET", "/V5/", nil, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for invalid level listing, got %d", rr.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	server := newTestServer(t)

	rr := doRequest(server, "GET", "/V1/ghost", nil, map[string]string{"X-Request-ID": "req-123"})
	if rr.Header().Get("X-Request-ID") != "req-123" {
		t.Errorf("Expected request id echoed, got %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestEscapedDocumentServedAsYAML(t *testing.T) {
	server := newTestServer(t)
	body := `{"name":"Universit\u00e9 Laval","url":"https:\/\/ulaval.ca\/horaires"}`

	if rr := doRequest(server, "POST", "/V1/ulaval?token="+testSecret, strings.NewReader(body), nil); rr.Code != http.StatusOK {
		t.Fatalf("POST failed: %d", rr.Code)
	}

	rr := doRequest(server, "GET", "/V1/ulaval", nil, map[string]string{"Accept": "application/yaml"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	want := "name: Université Laval\nurl: https://ulaval.ca/horaires\n"
	if rr.Body.String() != want {
		t.Errorf("Expected %q, got %q", want, rr.Body.String())
	}
}
