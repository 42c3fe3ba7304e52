package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はレジストリから指定名のメトリクスファミリーを取得する。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はメトリクスから指定ラベルの値を返す。
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordUpstreamRequest_CountsByProviderAndOutcome は外部API呼び出しがラベル別に集計されることを検証する。
func TestRecordUpstreamRequest_CountsByProviderAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamRequest("reddit", OutcomeSuccess, 120*time.Millisecond)
	c.RecordUpstreamRequest("reddit", OutcomeSuccess, 80*time.Millisecond)
	c.RecordUpstreamRequest("giphy", OutcomeTransient, time.Second)

	mf := findMetricFamily(t, reg, "memeify_upstream_requests_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "provider")+"/"+labelValue(m, "outcome")] = m.GetCounter().GetValue()
	}
	if got["reddit/success"] != 2 {
		t.Errorf("reddit/success = %v, want 2", got["reddit/success"])
	}
	if got["giphy/transient"] != 1 {
		t.Errorf("giphy/transient = %v, want 1", got["giphy/transient"])
	}

	latency := findMetricFamily(t, reg, "memeify_upstream_latency_seconds")
	for _, m := range latency.GetMetric() {
		if labelValue(m, "provider") == "reddit" && m.GetHistogram().GetSampleCount() != 2 {
			t.Errorf("reddit latency samples = %d, want 2", m.GetHistogram().GetSampleCount())
		}
	}
}

func TestRecordItemsAppended_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordItemsAppended(3)
	c.RecordItemsAppended(2)

	mf := findMetricFamily(t, reg, "memeify_feed_items_appended_total")
	if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 5 {
		t.Errorf("items_appended_total = %v, want 5", v)
	}
}

// TestRecordItemsDropped_IgnoresZero は0件の破棄ではラベルが生成されないことを検証する。
func TestRecordItemsDropped_IgnoresZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordItemsDropped(DropReasonDuplicate, 0)
	c.RecordItemsDropped(DropReasonFiltered, 4)

	mf := findMetricFamily(t, reg, "memeify_feed_items_dropped_total")
	if len(mf.GetMetric()) != 1 {
		t.Fatalf("expected 1 labeled series, got %d", len(mf.GetMetric()))
	}
	if labelValue(mf.GetMetric()[0], "reason") != DropReasonFiltered {
		t.Errorf("reason = %q, want %q", labelValue(mf.GetMetric()[0], "reason"), DropReasonFiltered)
	}
}

func TestSetActiveFeedSessions_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetActiveFeedSessions(7)
	c.SetActiveFeedSessions(4)

	mf := findMetricFamily(t, reg, "memeify_feed_sessions_active")
	if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 4 {
		t.Errorf("feed_sessions_active = %v, want 4", v)
	}
}

func TestRecordCaptionResult_CountsBySuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCaptionResult(true)
	c.RecordCaptionResult(false)
	c.RecordCaptionResult(true)

	mf := findMetricFamily(t, reg, "memeify_caption_results_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "success")] = m.GetCounter().GetValue()
	}
	if got["true"] != 2 || got["false"] != 1 {
		t.Errorf("caption results = %v, want true=2 false=1", got)
	}
}
