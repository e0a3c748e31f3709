package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/sitepower/core/metrics"
	"github.com/kilianp07/sitepower/core/model"
)

type lineServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []string
}

func newLineServer(t *testing.T) *lineServer {
	t.Helper()
	ls := &lineServer{}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		ls.mu.Lock()
		ls.bodies = append(ls.bodies, strings.TrimSpace(string(data)))
		ls.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *lineServer) last() string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.bodies) == 0 {
		return ""
	}
	return ls.bodies[len(ls.bodies)-1]
}

func (ls *lineServer) count() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.bodies)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordReallocation(t *testing.T) {
	srv := newLineServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	ev := coremetrics.ReallocationEvent{
		TaskID: "t1", SiteNo: "S1", Demand: 100, TotalBefore: 130, TotalAfter: 100.0004,
		Connectors: 3, Adjusted: 2, Published: 3, Duration: 1500 * time.Microsecond, Time: now,
	}
	if err := sink.RecordReallocation(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("reallocation").
		AddTag("site_no", "S1").
		AddTag("task_id", "t1").
		AddTag("dry_run", "false").
		AddTag("capacity_insufficient", "false").
		AddField("demand_kw", 100.0).
		AddField("total_before_kw", 130.0).
		AddField("total_after_kw", 100.0).
		AddField("shortfall_kw", 0.0).
		AddField("connectors", 3).
		AddField("adjusted", 2).
		AddField("published", 3).
		AddField("duration_ms", 1.5).
		SetTime(now)
	if got := srv.last(); got != line(p) {
		t.Errorf("unexpected body: %s", got)
	}
}

func TestInfluxSink_RecordPredictionWritesEveryCheckpoint(t *testing.T) {
	srv := newLineServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	ev := coremetrics.PredictionEvent{
		SessionID: "s", SiteNo: "S1", ChargerSN: "C1", SOC: 60, Power: 30, Time: now,
		Results: []model.PredictionResult{{TargetSOC: 80, TimeToTarget: 0.4, PredictedPower: 24}, {TargetSOC: 90, TimeToTarget: 0.6, PredictedPower: 19.2}},
	}
	if err := sink.RecordPrediction(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	got := srv.last()
	if n := strings.Count(got, "power_prediction,"); n != 2 {
		t.Fatalf("expected 2 points got %d: %s", n, got)
	}
	if !strings.Contains(got, "target_soc=80") || !strings.Contains(got, "target_soc=90") {
		t.Errorf("missing checkpoint tags: %s", got)
	}

	before := srv.count()
	if err := sink.RecordPrediction(coremetrics.PredictionEvent{SiteNo: "S1"}); err != nil {
		t.Fatalf("empty record: %v", err)
	}
	if srv.count() != before {
		t.Errorf("empty prediction must not write")
	}
}

func TestInfluxSink_RecordAlert(t *testing.T) {
	srv := newLineServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	ev := coremetrics.AlertEvent{SiteNo: "S1", Subject: "C1", Type: model.AlertChargerError, Severity: model.SeverityCritical, Transition: "raised", Time: now}
	if err := sink.RecordAlert(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("alert_transition").
		AddTag("site_no", "S1").
		AddTag("subject", "C1").
		AddTag("alert_type", "CHARGER_ERROR").
		AddTag("severity", "CRITICAL").
		AddField("transition", "raised").
		SetTime(now)
	if got := srv.last(); got != line(p) {
		t.Errorf("unexpected body: %s", got)
	}
}

func TestInfluxSink_WriteErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"invalid","message":"bad"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	if err := sink.RecordDemandChange(coremetrics.DemandChangeEvent{SiteNo: "S1", Demand: 10, Time: time.Now()}); err == nil {
		t.Fatal("expected write error")
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
