package datadog

import (
	"context"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"qc/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

// newTestBackend builds a backend with a fake submitter, a fixed clock, and
// a ticker that never fires, so tests control Flush() explicitly.
func newTestBackend(t *testing.T, fake *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		ServiceName: "qc_test",
		now:         func() time.Time { return time.Unix(1700000000, 0) },
		newTicker:   func(time.Duration) *time.Ticker { return time.NewTicker(time.Hour) },
		submitter:   fake,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func TestResolveEnvTag(t *testing.T) {
	oldENV := os.Getenv("ENV")
	oldDDENV := os.Getenv("DD_ENV")
	t.Cleanup(func() {
		_ = os.Setenv("ENV", oldENV)
		_ = os.Setenv("DD_ENV", oldDDENV)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Setenv("ENV", tc.env)
			_ = os.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestRuleStatusKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		rule   string
		status string
	}{
		{name: "normal", rule: "null_check", status: "pass"},
		{name: "empty_rule", rule: "", status: "fail"},
		{name: "empty_status", rule: "range_check", status: ""},
		{name: "both_empty", rule: "", status: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rule, status := splitRuleStatusKey(ruleStatusKey(tc.rule, tc.status))
			if rule != tc.rule || status != tc.status {
				t.Fatalf("round trip got (%q,%q), want (%q,%q)", rule, status, tc.rule, tc.status)
			}
		})
	}

	// A key without the separator decodes with status "unknown".
	rule, status := splitRuleStatusKey("plain")
	if rule != "plain" || status != "unknown" {
		t.Fatalf("splitRuleStatusKey(plain)=(%q,%q)", rule, status)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{p: 0, want: 1},
		{p: 0.5, want: 6},
		{p: 0.9, want: 9},
		{p: 1, want: 10},
	}
	for _, tc := range tests {
		if got := percentileNearestRank(s, tc.p); got != tc.want {
			t.Fatalf("percentile(%v)=%v, want %v", tc.p, got, tc.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("percentile(empty)=%v, want 0", got)
	}
}

func TestFlushSubmitsAndResets(t *testing.T) {
	fake := &fakeSubmitter{}
	b := newTestBackend(t, fake)
	defer func() { _ = b.Close() }()

	b.IncCounter("qc_checks_total", 1, metrics.Labels{"rule": "null_check", "status": "pass"})
	b.IncCounter("qc_rows_total", 42, metrics.Labels{"kind": "checked"})
	b.IncCounter("qc_runs_total", 1, metrics.Labels{"kind": "reconcile"})
	b.IncCounter("qc_http_requests_total", 2, metrics.Labels{"status": "200"})
	b.ObserveHistogram("qc_check_duration_seconds", 0.25, metrics.Labels{"rule": "null_check", "status": "pass"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	payload, ok := fake.last()
	if !ok {
		t.Fatal("no payload submitted")
	}

	byName := map[string]int{}
	for _, s := range payload.Series {
		byName[s.Metric]++
	}
	for _, want := range []string{
		"qc.checks.total",
		"qc.rows.total",
		"qc.runs.total",
		"qc.http.requests.total",
		"qc.check.duration_seconds.p50",
		"qc.check.duration_seconds.max",
		"qc.check.duration_seconds.samples",
	} {
		if byName[want] == 0 {
			t.Errorf("missing series %q in payload", want)
		}
	}

	// Buffers were reset: a second flush has nothing to submit.
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if fake.count() != 1 {
		t.Fatalf("submissions=%d, want 1 (empty snapshot must not submit)", fake.count())
	}
}

func TestIncCounterEdgeCases(t *testing.T) {
	fake := &fakeSubmitter{}
	b := newTestBackend(t, fake)
	defer func() { _ = b.Close() }()

	b.IncCounter("qc_checks_total", 0, metrics.Labels{"rule": "r", "status": "pass"})
	b.IncCounter("qc_checks_total", -1, metrics.Labels{"rule": "r", "status": "pass"})
	b.IncCounter("qc_rows_total", 5, metrics.Labels{})        // missing kind: dropped
	b.IncCounter("unknown_metric", 5, metrics.Labels{})       // unknown: dropped
	b.ObserveHistogram("qc_check_duration_seconds", -0.1, nil) // negative: dropped

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fake.count() != 0 {
		t.Fatalf("submissions=%d, want 0 (all observations were dropped)", fake.count())
	}
}

func TestConcurrentAccess(t *testing.T) {
	fake := &fakeSubmitter{}
	b := newTestBackend(t, fake)
	defer func() { _ = b.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.IncCounter("qc_checks_total", 1, metrics.Labels{"rule": "r", "status": "pass"})
				b.ObserveHistogram("qc_check_duration_seconds", 0.01, metrics.Labels{"rule": "r", "status": "pass"})
				_ = b.Flush()
			}
		}()
	}
	wg.Wait()
}

func TestParseTagsCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "env:prod", want: []string{"env:prod"}},
		{in: " env:prod , team:data ", want: []string{"env:prod", "team:data"}},
		{in: ",,", want: []string{}},
	}
	for _, tc := range tests {
		got := ParseTagsCSV(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("ParseTagsCSV(%q)[%d]=%q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}
