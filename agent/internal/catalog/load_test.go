package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDeclaration = `
version: v1
azureMetadata:
  tenantId: tenant-1
  subscriptionId: sub-default
  resourceGroupName: rg-default
metricDefaults:
  aggregation:
    interval: 5m
  scraping:
    schedule: "*/2 * * * *"
metrics:
  - name: azure_app_requests_total
    labels:
      app: shop
    azureMetricConfiguration:
      metricName: Requests
      dimensions: [StatusCode]
      aggregation:
        type: Total
    resources:
      - resourceUri: Microsoft.Web/sites/shop-1
      - resourceUri: Microsoft.Web/sites/shop-2
        subscriptionId: sub-override
        resourceGroupName: rg-override
  - name: azure_queue_length
    description: Messages waiting in the queue
    azureMetricConfiguration:
      metricName: ActiveMessages
      aggregation:
        type: Average
        interval: 1m
    scraping:
      schedule: "@every 30s"
    resources:
      - resourceUri: Microsoft.ServiceBus/namespaces/bus
`

func TestParse_AppliesDefaults(t *testing.T) {
	decl, err := Parse([]byte(validDeclaration))
	require.NoError(t, err)

	assert.Equal(t, CloudGlobal, decl.AzureMetadata.Cloud)
	require.Len(t, decl.Metrics, 2)

	requests := decl.Metrics[0]
	assert.Equal(t, "*/2 * * * *", requests.Scraping.Schedule)
	assert.Equal(t, 5*time.Minute, requests.AzureMetricConfiguration.Aggregation.Interval)
	assert.Equal(t, "Azure Monitor metric Requests", requests.Description)
	assert.Equal(t, []string{"StatusCode"}, requests.AzureMetricConfiguration.Dimensions)
	require.Len(t, requests.Resources, 2)

	queue := decl.Metrics[1]
	assert.Equal(t, "@every 30s", queue.Scraping.Schedule)
	assert.Equal(t, time.Minute, queue.AzureMetricConfiguration.Aggregation.Interval)
	assert.Equal(t, "Messages waiting in the queue", queue.Description)
}

func TestParse_BuiltinDefaults(t *testing.T) {
	decl, err := Parse([]byte(`
version: v1
azureMetadata: {tenantId: t, subscriptionId: s, resourceGroupName: rg}
metrics:
  - name: errors
    azureMetricConfiguration:
      metricName: Http5xx
      aggregation: {type: Total}
    resources:
      - resourceUri: Microsoft.Web/sites/a
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, decl.Metrics[0].Scraping.Schedule)
	assert.Equal(t, DefaultAggregationInterval, decl.Metrics[0].AzureMetricConfiguration.Aggregation.Interval)
}

func TestParse_ReportsAllProblems(t *testing.T) {
	_, err := Parse([]byte(`
version: v2
azureMetadata:
  cloud: Germany
metrics:
  - name: "bad-name"
    labels: {"0bad": x}
    azureMetricConfiguration:
      aggregation: {type: Median, interval: 10s}
    scraping:
      schedule: "not a cron"
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDeclaration))

	msg := err.Error()
	for _, want := range []string{
		`version "v2"`,
		"tenantId is required",
		"subscriptionId is required",
		`cloud "Germany"`,
		"not a valid metric name",
		`label "0bad"`,
		"metricName is required",
		`aggregation type "Median"`,
		"below one minute",
		`invalid schedule "not a cron"`,
		"at least one resource",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestParse_ResourceWithoutGroup(t *testing.T) {
	_, err := Parse([]byte(`
version: v1
azureMetadata: {tenantId: t, subscriptionId: s}
metrics:
  - name: errors
    azureMetricConfiguration:
      metricName: Http5xx
      aggregation: {type: Total}
    resources:
      - resourceUri: Microsoft.Web/sites/a
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no resource group configured")
}

func TestParse_RejectsDuplicateNames(t *testing.T) {
	_, err := Parse([]byte(`
version: v1
azureMetadata: {tenantId: t, subscriptionId: s, resourceGroupName: rg}
metrics:
  - name: app_errors
    azureMetricConfiguration:
      metricName: Http5xx
      aggregation: {type: Total}
    resources:
      - resourceUri: Microsoft.Web/sites/a
  - name: app_errors
    labels: {tier: web}
    azureMetricConfiguration:
      metricName: Http4xx
      aggregation: {type: Total}
    resources:
      - resourceUri: Microsoft.Web/sites/a
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDeclaration))
	assert.Contains(t, err.Error(), `metrics[1] "app_errors": name already declared by metrics[0]`)
}

func TestParse_RejectsReservedPrefixes(t *testing.T) {
	for _, name := range []string{"scraper_job_executions_total", "go_goroutines", "process_cpu_seconds_total", "promhttp_requests"} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(`
version: v1
azureMetadata: {tenantId: t, subscriptionId: s, resourceGroupName: rg}
metrics:
  - name: ` + name + `
    azureMetricConfiguration:
      metricName: Http5xx
      aggregation: {type: Total}
    resources:
      - resourceUri: Microsoft.Web/sites/a
`))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDeclaration))
			assert.Contains(t, err.Error(), "is reserved for agent metrics")
		})
	}
}

func TestResource_EffectiveSubscriptionID(t *testing.T) {
	meta := AzureMetadata{SubscriptionID: "default", ResourceGroupName: "rg"}

	assert.Equal(t, "default", Resource{}.EffectiveSubscriptionID(meta))
	assert.Equal(t, "default", Resource{SubscriptionID: "   "}.EffectiveSubscriptionID(meta))
	assert.Equal(t, "override", Resource{SubscriptionID: "override"}.EffectiveSubscriptionID(meta))
}

func TestResource_ID(t *testing.T) {
	meta := AzureMetadata{SubscriptionID: "sub", ResourceGroupName: "rg"}
	r := Resource{ResourceURI: "/Microsoft.Web/sites/app"}
	assert.Equal(t, "/subscriptions/sub/resourceGroups/rg/providers/Microsoft.Web/sites/app", r.ID(meta))

	r.ResourceGroupName = "other"
	assert.Equal(t, "/subscriptions/sub/resourceGroups/other/providers/Microsoft.Web/sites/app", r.ID(meta))
}

func TestParseSchedule(t *testing.T) {
	for _, expr := range []string{"*/5 * * * *", "0 */1 * * * *", "@hourly", "@every 1m"} {
		_, err := ParseSchedule(expr)
		assert.NoError(t, err, expr)
	}
	_, err := ParseSchedule("61 * * * *")
	assert.Error(t, err)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics-declaration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDeclaration), 0o600))

	decl, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, decl.Metrics, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
