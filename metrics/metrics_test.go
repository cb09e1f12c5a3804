package metrics

import (
	"database/sql"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	_ "modernc.org/sqlite"
)

func TestJobCounters(t *testing.T) {
	m := New("enhancer")

	m.JobEnqueued()
	m.JobEnqueued()
	m.JobRetried()
	m.JobFinished("completed", 2*time.Second)
	m.JobFinished("failed", time.Second)
	m.JobFinished("completed", time.Second)

	if got := testutil.ToFloat64(m.jobsEnqueued); got != 2 {
		t.Errorf("jobs enqueued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.jobsRetried); got != 1 {
		t.Errorf("jobs retried = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.jobsFinished.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.jobsFinished.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}

func TestArticlesScrapedIgnoresZero(t *testing.T) {
	m := New("enhancer")
	m.ArticlesScraped("beyondchats", 0)
	m.ArticlesScraped("beyondchats", 3)

	if got := testutil.ToFloat64(m.articlesSaved.WithLabelValues("beyondchats")); got != 3 {
		t.Errorf("articles scraped = %v, want 3", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("enhancer")
	m.ObserveHTTP("GET", "/api/v1/articles", 200, 10*time.Millisecond)

	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer conn.Close()
	m.RegisterDB(conn, "enhancer")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`enhancer_http_requests_total{method="GET",route="/api/v1/articles",status="200"} 1`,
		"go_goroutines",
		`go_sql_open_connections{db_name="enhancer"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.JobEnqueued()
	m.JobRetried()
	m.JobFinished("completed", time.Second)
	m.ArticlesScraped("generic", 1)
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.RegisterDB(nil, "x")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}
