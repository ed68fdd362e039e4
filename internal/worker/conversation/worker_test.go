package conversationworker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/wolfman30/storefront-ai/internal/config"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, logging.New("error")); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestRunRefusesInProcessQueue(t *testing.T) {
	cases := []*appconfig.Config{
		{UseMemoryQueue: true, ConversationQueueURL: "https://sqs.local/queue"},
		{UseMemoryQueue: false},
	}
	for _, cfg := range cases {
		if err := Run(context.Background(), cfg, logging.New("error")); !errors.Is(err, ErrQueueRequired) {
			t.Fatalf("expected ErrQueueRequired, got %v", err)
		}
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	jobs := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_conversation_jobs_total", Help: "jobs"})
	reg.MustRegister(jobs)
	jobs.Inc()

	srv := httptest.NewServer(metricsHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "storefront_conversation_jobs_total 1") {
		t.Fatalf("unexpected metrics response %d: %s", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}
}
