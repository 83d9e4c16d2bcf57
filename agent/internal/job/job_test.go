package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/scraper/agent/internal/catalog"
	"github.com/obsidianstack/scraper/agent/internal/monitor"
	"github.com/obsidianstack/scraper/agent/internal/scrape"
	"github.com/obsidianstack/scraper/pkg/types"
)

type stubClient struct {
	values []monitor.Value
	err    error
	got    []monitor.Query
}

func (c *stubClient) QueryMetric(_ context.Context, q monitor.Query) ([]monitor.Value, error) {
	c.got = append(c.got, q)
	return c.values, c.err
}

type recorder struct {
	mu  sync.Mutex
	got []types.Measurement
}

func (r *recorder) Publish(_ context.Context, m types.Measurement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, m)
}

func definition() scrape.Definition {
	return scrape.Definition{
		JobName: "S-requests_total",
		Metric: catalog.MetricDefinition{
			Name:        "requests_total",
			Description: "Requests per app",
			Labels:      map[string]string{"env": "prod"},
			AzureMetricConfiguration: catalog.AzureMetricConfiguration{
				MetricName:  "Requests",
				Dimensions:  []string{"StatusCode"},
				Aggregation: catalog.Aggregation{Type: "Total", Interval: 5 * time.Minute},
			},
		},
		Resource:          catalog.Resource{ResourceURI: "Microsoft.Web/sites/app"},
		SubscriptionID:    "S",
		ResourceGroupName: "rg",
		Cloud:             "Global",
		TenantID:          "tenant",
	}
}

func TestExecute_PublishesEveryValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client := &stubClient{values: []monitor.Value{
		{Timestamp: ts, Value: 12, Dimensions: map[string]string{"StatusCode": "200"}},
		{Timestamp: ts, Value: 3, Dimensions: map[string]string{"StatusCode": "500"}},
	}}
	rec := &recorder{}

	err := Execute(context.Background(), ExecContext{Definition: definition(), Client: client, Fanout: rec})
	require.NoError(t, err)

	require.Len(t, client.got, 1)
	assert.Equal(t, "/subscriptions/S/resourceGroups/rg/providers/Microsoft.Web/sites/app", client.got[0].ResourceID)
	assert.Equal(t, "Requests", client.got[0].MetricName)

	require.Len(t, rec.got, 2)
	assert.Equal(t, types.Measurement{
		Name:        "requests_total",
		Description: "Requests per app",
		Value:       12,
		Timestamp:   ts,
		Labels: map[string]string{
			"env":             "prod",
			"statuscode":      "200",
			"resource_uri":    "Microsoft.Web/sites/app",
			"subscription_id": "S",
			"resource_group":  "rg",
		},
	}, rec.got[0])
	assert.Equal(t, "500", rec.got[1].Labels["statuscode"])
}

func TestExecute_ClientErrorSurfaces(t *testing.T) {
	client := &stubClient{err: errors.New("throttled")}
	rec := &recorder{}

	err := Execute(context.Background(), ExecContext{Definition: definition(), Client: client, Fanout: rec})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S-requests_total")
	assert.Contains(t, err.Error(), "throttled")
	assert.Empty(t, rec.got)
}

func TestExecute_NoDataSurfaces(t *testing.T) {
	client := &stubClient{err: errors.Wrap(monitor.ErrNoData, "metric Requests")}
	err := Execute(context.Background(), ExecContext{Definition: definition(), Client: client, Fanout: &recorder{}})
	assert.True(t, errors.Is(err, monitor.ErrNoData))
}

func TestExecute_EmptyResultIsNoData(t *testing.T) {
	rec := &recorder{}
	err := Execute(context.Background(), ExecContext{Definition: definition(), Client: &stubClient{}, Fanout: rec})
	require.Error(t, err)
	assert.True(t, errors.Is(err, monitor.ErrNoData))
	assert.Contains(t, err.Error(), "S-requests_total")
	assert.Empty(t, rec.got)
}

func TestExecute_MissingCollaborators(t *testing.T) {
	assert.Error(t, Execute(context.Background(), ExecContext{Definition: definition(), Fanout: &recorder{}}))
	assert.Error(t, Execute(context.Background(), ExecContext{Definition: definition(), Client: &stubClient{}}))
}

func TestMeasurement_FixedLabelsWin(t *testing.T) {
	m := Measurement(definition(), monitor.Value{
		Value:      1,
		Dimensions: map[string]string{"Resource_URI": "spoofed", "Api-Name": "GetUser", "1xx": "x"},
	})
	assert.Equal(t, "Microsoft.Web/sites/app", m.Labels["resource_uri"])
	assert.Equal(t, "GetUser", m.Labels["api_name"])
	assert.Equal(t, "x", m.Labels["_xx"])
}
