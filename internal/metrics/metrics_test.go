package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if documentsTotal == nil || xmlrpcCallsTotal == nil || pingbacksTotal == nil ||
		moduleOperationsTotal == nil || httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservers(t *testing.T) {
	Init()
	ObserveDocument("post", 200)
	if val := testutil.ToFloat64(documentsTotal.WithLabelValues("post", "200")); val != 1 {
		t.Errorf("Expected documentsTotal{post,200} to be 1, got %f", val)
	}
	ObserveXMLRPC("metaWeblog.newPost", "ok")
	ObserveXMLRPC("metaWeblog.newPost", "801")
	if val := testutil.ToFloat64(xmlrpcCallsTotal.WithLabelValues("metaWeblog.newPost", "801")); val != 1 {
		t.Errorf("Expected one faulted newPost, got %f", val)
	}
	ObservePingback(Outbound, "sent")
	if val := testutil.ToFloat64(pingbacksTotal.WithLabelValues(Outbound, "sent")); val != 1 {
		t.Errorf("Expected one sent pingback, got %f", val)
	}
	ObserveModuleOperation("activate", "ok")
	if val := testutil.ToFloat64(moduleOperationsTotal.WithLabelValues("activate", "ok")); val != 1 {
		t.Errorf("Expected one activation, got %f", val)
	}
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if val := testutil.ToFloat64(pingbackActiveWorkers); val != 1 {
		t.Errorf("Expected one active worker, got %f", val)
	}
	ObserveRateLimitDelay("https://Example.com/x", time.Second)
	if val := testutil.CollectAndCount(rateLimitDelaysSeconds); val != 1 {
		t.Errorf("Expected one rate limit series, got %d", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
