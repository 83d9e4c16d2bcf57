package exposition

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/scraper/pkg/types"
)

func measurement(name, resource string, value float64) types.Measurement {
	return types.Measurement{
		Name:        name,
		Description: "Azure Monitor metric " + name,
		Value:       value,
		Labels:      map[string]string{"resource_uri": resource, "subscription_id": "S"},
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func gather(t *testing.T, st *Store) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(st))
	mfs, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func TestPutAndGet(t *testing.T) {
	st := New(5*time.Minute, Options{})
	m := measurement("requests_total", "app", 1)
	st.Put(m)

	e, ok := st.Get(m.Key())
	require.True(t, ok)
	assert.Equal(t, m, e.Measurement)

	_, ok = st.Get("unknown")
	assert.False(t, ok)
}

func TestPut_OverwritesSeries(t *testing.T) {
	st := New(5*time.Minute, Options{})
	st.Put(measurement("requests_total", "app", 1))
	st.Put(measurement("requests_total", "app", 2))

	assert.Equal(t, 1, st.Count())
	assert.Equal(t, 2.0, st.List()[0].Measurement.Value)
}

func TestList_ExcludesStaleAndSorts(t *testing.T) {
	base := time.Now()
	st := New(5*time.Minute, Options{})

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put(measurement("old_total", "app", 1))

	st.now = fixedClock(base)
	st.Put(measurement("requests_total", "b", 1))
	st.Put(measurement("requests_total", "a", 1))

	entries := st.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Measurement.Labels["resource_uri"])
	assert.Equal(t, "b", entries[1].Measurement.Labels["resource_uri"])
	assert.Equal(t, 3, st.Count())
}

func TestEvict_RemovesStale(t *testing.T) {
	base := time.Now()
	st := New(5*time.Minute, Options{})

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put(measurement("old_total", "a", 1))
	st.Put(measurement("old_total", "b", 1))

	st.now = fixedClock(base)
	st.Put(measurement("live_total", "a", 1))

	assert.Equal(t, 2, st.Evict(base))
	assert.Equal(t, 1, st.Count())
	assert.Equal(t, 0, st.Evict(base))
}

func TestRun_EvictsUntilCancelled(t *testing.T) {
	st := New(time.Millisecond, Options{})
	st.now = fixedClock(time.Now().Add(-time.Hour))
	st.Put(measurement("old_total", "a", 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return st.Count() == 0 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	<-done
}

func TestWrite_IsPut(t *testing.T) {
	st := New(5*time.Minute, Options{})
	require.NoError(t, st.Write(context.Background(), measurement("requests_total", "app", 5)))
	assert.Equal(t, 1, st.Count())
	assert.Equal(t, "prometheus", st.Name())
}

func TestCollect_GaugePerSeries(t *testing.T) {
	st := New(5*time.Minute, Options{})
	st.Put(measurement("requests_total", "a", 10))
	st.Put(measurement("requests_total", "b", 20))

	mfs := gather(t, st)
	mf, ok := mfs["requests_total"]
	require.True(t, ok)
	assert.Equal(t, dto.MetricType_GAUGE, mf.GetType())
	assert.Equal(t, "Azure Monitor metric requests_total", mf.GetHelp())
	require.Len(t, mf.GetMetric(), 2)

	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "resource_uri" {
				got[lp.GetValue()] = m.GetGauge().GetValue()
			}
		}
		assert.Zero(t, m.GetTimestampMs(), "timestamps disabled")
	}
	assert.Equal(t, map[string]float64{"a": 10, "b": 20}, got)
}

func TestCollect_Timestamps(t *testing.T) {
	st := New(5*time.Minute, Options{EnableTimestamps: true})
	m := measurement("requests_total", "a", 10)
	st.Put(m)

	mf := gather(t, st)["requests_total"]
	require.Len(t, mf.GetMetric(), 1)
	assert.Equal(t, m.Timestamp.UnixMilli(), mf.GetMetric()[0].GetTimestampMs())
}

func TestCollect_SkipsStale(t *testing.T) {
	base := time.Now()
	st := New(5*time.Minute, Options{})
	st.now = fixedClock(base.Add(-time.Hour))
	st.Put(measurement("old_total", "a", 1))
	st.now = fixedClock(base)

	assert.Empty(t, gather(t, st))
}

func TestHandler_ServesExpositionFormat(t *testing.T) {
	st := New(5*time.Minute, Options{})
	st.Put(measurement("errors_total", "app", 3))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(st))
	srv := httptest.NewServer(Handler(reg, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(strings.NewReader(string(body)))
	require.NoError(t, err)
	mf, ok := mfs["errors_total"]
	require.True(t, ok, string(body))
	assert.Equal(t, 3.0, mf.GetMetric()[0].GetGauge().GetValue())
}

func TestHandler_LogsDroppedSeries(t *testing.T) {
	st := New(5*time.Minute, Options{})
	st.Put(measurement("errors_total", "app", 3))
	st.Put(measurement("queue_length", "bus", 7))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(st))
	// Same name as a stored series with different help text.
	clash := prometheus.NewGauge(prometheus.GaugeOpts{Name: "errors_total", Help: "self metric"})
	require.NoError(t, reg.Register(clash))

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	srv := httptest.NewServer(Handler(reg, logger))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "queue_length")
	assert.Contains(t, buf.String(), "exposition: series dropped")
	assert.Contains(t, buf.String(), "errors_total")
}

func TestConcurrentPutAndCollect(t *testing.T) {
	st := New(5*time.Minute, Options{})
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(st))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			st.Put(measurement("requests_total", fmt.Sprintf("app-%d", n%5), float64(n)))
		}(i)
		go func() {
			defer wg.Done()
			reg.Gather() //nolint:errcheck
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, st.Count())
}
