package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetrics_RegisteredAndScrapable(t *testing.T) {
	JobsPending.Set(3)
	JobsCompletedTotal.Inc()
	CapturesBlockedTotal.WithLabelValues("cloudflare").Inc()

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("failed to scrape metrics endpoint: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read metrics body: %v", err)
	}

	text := string(body)
	for _, want := range []string{"netwatch_jobs_pending", "netwatch_jobs_completed_total", "netwatch_captures_blocked_total"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}
