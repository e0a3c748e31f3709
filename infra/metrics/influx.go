package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/sitepower/core/metrics"
	"github.com/kilianp07/sitepower/infra/logger"
)

const writeTimeout = 5 * time.Second

// InfluxSink writes reallocation, alert, message and prediction events to an
// InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(points ...*write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordReallocation writes one point per reallocation run.
func (s *InfluxSink) RecordReallocation(ev coremetrics.ReallocationEvent) error {
	p := write.NewPointWithMeasurement("reallocation").
		AddTag("site_no", ev.SiteNo).
		AddTag("task_id", ev.TaskID).
		AddTag("dry_run", strconv.FormatBool(ev.DryRun)).
		AddTag("capacity_insufficient", strconv.FormatBool(ev.CapacityInsufficient)).
		AddField("demand_kw", round3(ev.Demand)).
		AddField("total_before_kw", round3(ev.TotalBefore)).
		AddField("total_after_kw", round3(ev.TotalAfter)).
		AddField("shortfall_kw", round3(ev.Shortfall)).
		AddField("connectors", ev.Connectors).
		AddField("adjusted", ev.Adjusted).
		AddField("published", ev.Published).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDemandChange writes a demand change.
func (s *InfluxSink) RecordDemandChange(ev coremetrics.DemandChangeEvent) error {
	p := write.NewPointWithMeasurement("demand_change").
		AddTag("site_no", ev.SiteNo).
		AddField("previous_kw", round3(ev.Previous)).
		AddField("demand_kw", round3(ev.Demand)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAlert writes an alert transition.
func (s *InfluxSink) RecordAlert(ev coremetrics.AlertEvent) error {
	p := write.NewPointWithMeasurement("alert_transition").
		AddTag("site_no", ev.SiteNo).
		AddTag("subject", ev.Subject).
		AddTag("alert_type", string(ev.Type)).
		AddTag("severity", string(ev.Severity)).
		AddField("transition", ev.Transition).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAudit writes the summary of one monitor pass.
func (s *InfluxSink) RecordAudit(ev coremetrics.AuditEvent) error {
	p := write.NewPointWithMeasurement("alert_audit").
		AddTag("component", "alert_monitor").
		AddField("sites", ev.Sites).
		AddField("failed", ev.Failed).
		AddField("raised", ev.Raised).
		AddField("resolved", ev.Resolved).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordMessage writes the outcome of one inbound message.
func (s *InfluxSink) RecordMessage(ev coremetrics.MessageEvent) error {
	p := write.NewPointWithMeasurement("ingest_message").
		AddTag("partition", ev.Partition).
		AddTag("message_type", ev.Type.String()).
		AddTag("outcome", ev.Outcome).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordPrediction writes one point per checkpoint.
func (s *InfluxSink) RecordPrediction(ev coremetrics.PredictionEvent) error {
	if len(ev.Results) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(ev.Results))
	for _, r := range ev.Results {
		points = append(points, write.NewPointWithMeasurement("power_prediction").
			AddTag("site_no", ev.SiteNo).
			AddTag("charger_sn", ev.ChargerSN).
			AddTag("session_id", ev.SessionID).
			AddTag("target_soc", strconv.FormatFloat(r.TargetSOC, 'f', -1, 64)).
			AddField("soc", round3(ev.SOC)).
			AddField("power_kw", round3(ev.Power)).
			AddField("time_to_target_h", round3(r.TimeToTarget)).
			AddField("predicted_power_kw", round3(r.PredictedPower)).
			SetTime(ev.Time))
	}
	return s.write(points...)
}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
