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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsProvider(t *testing.T) {
	provider := NewMetricsProvider()

	if provider == nil {
		t.Fatal("NewMetricsProvider() returned nil")
	}
	if _, ok := provider.(*Metrics); !ok {
		t.Errorf("NewMetricsProvider() should return *Metrics, got %T", provider)
	}
}

func TestIndependentRegistries(t *testing.T) {
	// Two providers must not collide on registration
	a := NewMetrics()
	b := NewMetrics()

	a.RecordError("server", "IO_FAILURE", "server_error")
	if got := testutil.ToFloat64(b.ErrorsTotal.WithLabelValues("server", "IO_FAILURE", "server_error")); got != 0 {
		t.Errorf("Expected isolated registries, got %v", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("GET", "/:level/:school", 200, 10*time.Millisecond)
	m.RecordHTTPRequest("GET", "/:level/:school", 200, 20*time.Millisecond)
	m.RecordHTTPRequest("POST", "/:level/:school", 403, time.Millisecond)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/:level/:school", "200")); got != 2 {
		t.Errorf("Expected 2 GET requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/:level/:school", "403")); got != 1 {
		t.Errorf("Expected 1 denied POST, got %v", got)
	}
}

func TestInFlight(t *testing.T) {
	m := NewMetrics()
	m.IncHTTPRequestsInFlight()
	m.IncHTTPRequestsInFlight()
	m.DecHTTPRequestsInFlight()

	if got := testutil.ToFloat64(m.HTTPRequestsInFlight); got != 1 {
		t.Errorf("Expected 1 in flight, got %v", got)
	}
}

func TestSnapshotMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordCacheLookup("1", true)
	m.RecordCacheLookup("1", false)
	m.RecordCacheLookup("1", false)
	m.RecordRefresh("2", OutcomeRefreshed)
	m.RecordRefresh("2", OutcomeNotFound)
	m.RecordStoreOperation("load", OutcomeOK, time.Millisecond)
	m.RecordStoreOperation("save", OutcomeError, time.Millisecond)
	m.RecordDocumentSize("1", 2048)
	m.RecordDocumentSize("1", 0)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"cache hit", testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("1", "hit")), 1},
		{"cache miss", testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("1", "miss")), 2},
		{"refreshed", testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("2", OutcomeRefreshed)), 1},
		{"refresh not found", testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("2", OutcomeNotFound)), 1},
		{"load ok", testutil.ToFloat64(m.StoreOperations.WithLabelValues("load", OutcomeOK)), 1},
		{"save error", testutil.ToFloat64(m.StoreOperations.WithLabelValues("save", OutcomeError)), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}

	// Zero-size documents are not observed
	if n := testutil.CollectAndCount(m.DocumentSizeBytes); n != 1 {
		t.Errorf("Expected one document size series, got %d", n)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordCacheLookup("1", true)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"ttg_legacy_cache_lookups_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in exposition output", want)
		}
	}
}

func TestNopProvider(t *testing.T) {
	var p MetricsProvider = Nop{}
	p.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	p.RecordError("x", "y", "z")

	w := httptest.NewRecorder()
	p.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 from nop handler, got %d", w.Code)
	}
}

func TestTimer_Duration(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 10 * time.Millisecond
	time.Sleep(sleepDuration)

	if d := timer.Duration(); d < sleepDuration {
		t.Errorf("Timer duration %v should be at least %v", d, sleepDuration)
	}
}
