package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorsRegistered(t *testing.T) {
	MessagesTotal.WithLabelValues("market", "book").Inc()
	ReconnectsTotal.WithLabelValues("market").Inc()
	FeedState.WithLabelValues("market").Set(3)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	want := map[string]bool{
		"predex_messages_total":   false,
		"predex_reconnects_total": false,
		"predex_feed_state":       false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s metric not found", name)
		}
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordsFlushed.Add(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "predex_records_flushed_total") {
		t.Fatal("predex_records_flushed_total not exposed")
	}
}
