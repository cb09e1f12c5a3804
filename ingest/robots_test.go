package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

type robotsServer struct {
	mu       sync.Mutex
	hits     int
	statuses []int
}

func (s *robotsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := http.StatusOK
	if s.hits < len(s.statuses) {
		status = s.statuses[s.hits]
	}
	s.hits++

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Write([]byte("User-agent: *\nDisallow: /private\n"))
}

func (s *robotsServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Failed to parse URL: %v", err)
	}
	return u
}

func TestRobotsPolicyCaching(t *testing.T) {
	tests := []struct {
		name        string
		statuses    []int
		wantAllowed []bool
		wantHits    int
	}{
		{
			name:        "success is cached",
			statuses:    nil,
			wantAllowed: []bool{false, false, false},
			wantHits:    1,
		},
		{
			name:        "not found is cached and allows all",
			statuses:    []int{http.StatusNotFound},
			wantAllowed: []bool{true, true, true},
			wantHits:    1,
		},
		{
			name:        "server error is retried",
			statuses:    []int{http.StatusServiceUnavailable},
			wantAllowed: []bool{false, false, false},
			wantHits:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			robots := &robotsServer{statuses: tt.statuses}
			server := httptest.NewServer(robots)
			defer server.Close()

			policy := NewRobotsPolicy(server.Client(), "enhancer-test", nil)
			target := mustParseURL(t, server.URL+"/private/post")

			for i, want := range tt.wantAllowed {
				if got := policy.Allowed(context.Background(), target); got != want {
					t.Errorf("call %d: Allowed() = %v, want %v", i, got, want)
				}
			}
			if got := robots.count(); got != tt.wantHits {
				t.Errorf("robots.txt fetched %d times, want %d", got, tt.wantHits)
			}
		})
	}
}

func TestRobotsPolicyTransportErrorNotCached(t *testing.T) {
	robots := &robotsServer{}
	server := httptest.NewServer(robots)
	target := mustParseURL(t, server.URL+"/private/post")
	client := server.Client()
	server.Close()

	policy := NewRobotsPolicy(client, "enhancer-test", nil)
	if !policy.Allowed(context.Background(), target) {
		t.Error("unreachable robots.txt should allow the request")
	}

	policy.mu.Lock()
	cached := len(policy.hosts)
	policy.mu.Unlock()
	if cached != 0 {
		t.Errorf("transport failure was cached for %d hosts", cached)
	}
}
