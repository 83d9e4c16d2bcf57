package scrape

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/scraper/agent/internal/catalog"
	"github.com/obsidianstack/scraper/agent/internal/monitor"
)

func metric(name string, resources ...catalog.Resource) catalog.MetricDefinition {
	return catalog.MetricDefinition{
		Name: name,
		AzureMetricConfiguration: catalog.AzureMetricConfiguration{
			MetricName:  name,
			Aggregation: catalog.Aggregation{Type: catalog.AggregationTotal},
		},
		Scraping:  catalog.Scraping{Schedule: "*/5 * * * *"},
		Resources: resources,
	}
}

func declaration(metrics ...catalog.MetricDefinition) *catalog.Declaration {
	return &catalog.Declaration{
		Version: "v1",
		AzureMetadata: catalog.AzureMetadata{
			TenantID:          "tenant",
			SubscriptionID:    "S",
			ResourceGroupName: "rg",
			Cloud:             catalog.CloudGlobal,
		},
		Metrics: metrics,
	}
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestBuild_OneDefinitionPerResource(t *testing.T) {
	decl := declaration(
		metric("m1", catalog.Resource{ResourceURI: "r1"}, catalog.Resource{ResourceURI: "r2"}),
		metric("m2", catalog.Resource{ResourceURI: "r3"}),
		metric("m3", catalog.Resource{ResourceURI: "r4", SubscriptionID: "T"},
			catalog.Resource{ResourceURI: "r5", SubscriptionID: "U"},
			catalog.Resource{ResourceURI: "r6", SubscriptionID: "V"}),
	)

	defs := Build(decl, nil)
	require.Len(t, defs, 6)

	var uris []string
	for _, d := range defs {
		uris = append(uris, d.Resource.ResourceURI)
	}
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5", "r6"}, uris)
}

func TestBuild_SubscriptionOverride(t *testing.T) {
	decl := declaration(metric("m",
		catalog.Resource{ResourceURI: "a"},
		catalog.Resource{ResourceURI: "b", SubscriptionID: "T"},
		catalog.Resource{ResourceURI: "c", SubscriptionID: "   "},
	))

	defs := Build(decl, nil)
	require.Len(t, defs, 3)

	assert.Equal(t, "S", defs[0].SubscriptionID)
	assert.Equal(t, "T", defs[1].SubscriptionID)
	assert.Equal(t, "S", defs[2].SubscriptionID, "blank override falls back to default")

	assert.Equal(t, monitor.Identity{Cloud: "Global", TenantID: "tenant", SubscriptionID: "T"}, defs[1].Identity())
	assert.Equal(t, "T-m", defs[1].JobName)
}

func TestBuild_ResourceGroupOverride(t *testing.T) {
	decl := declaration(metric("m",
		catalog.Resource{ResourceURI: "Microsoft.Web/sites/app", ResourceGroupName: "other"},
	))

	defs := Build(decl, nil)
	require.Len(t, defs, 1)
	assert.Equal(t, "other", defs[0].ResourceGroupName)
	assert.Equal(t, "/subscriptions/S/resourceGroups/other/providers/Microsoft.Web/sites/app", defs[0].ResourceID())
}

func TestBuild_ScheduleAndQuery(t *testing.T) {
	m := metric("requests_total", catalog.Resource{ResourceURI: "Microsoft.Web/sites/app"})
	m.AzureMetricConfiguration.MetricName = "Requests"
	m.AzureMetricConfiguration.Dimensions = []string{"StatusCode"}
	m.Scraping.Schedule = "0 * * * *"

	defs := Build(declaration(m), nil)
	require.Len(t, defs, 1)

	d := defs[0]
	assert.Equal(t, Schedule{Cron: "0 * * * *", RunImmediately: true}, d.Schedule)

	q := d.Query()
	assert.Equal(t, "Requests", q.MetricName)
	assert.Equal(t, "Total", q.Aggregation)
	assert.Equal(t, []string{"StatusCode"}, q.Dimensions)
	assert.Equal(t, d.ResourceID(), q.ResourceID)
}

func TestBuild_Deterministic(t *testing.T) {
	decl := declaration(
		metric("m1", catalog.Resource{ResourceURI: "r1"}, catalog.Resource{ResourceURI: "r2"}),
		metric("m2", catalog.Resource{ResourceURI: "r3", SubscriptionID: "T"}),
	)
	assert.Equal(t, Build(decl, nil), Build(decl, nil))
}

func TestBuild_CollisionsAreSuffixed(t *testing.T) {
	var buf bytes.Buffer
	decl := declaration(metric("RequestsTotal",
		catalog.Resource{ResourceURI: "app-1"},
		catalog.Resource{ResourceURI: "app-2"},
		catalog.Resource{ResourceURI: "app-3"},
	))

	defs := Build(decl, quietLogger(&buf))
	require.Len(t, defs, 3)

	assert.Equal(t, "S-RequestsTotal", defs[0].JobName)
	assert.Equal(t, "S-RequestsTotal-2", defs[1].JobName)
	assert.Equal(t, "S-RequestsTotal-3", defs[2].JobName)
	assert.NotContains(t, buf.String(), "collision")

	buf.Reset()
	debug := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	Build(decl, debug)
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "collision")
}

func TestBuild_CrossMetricCollisionWarns(t *testing.T) {
	var buf bytes.Buffer
	decl := declaration(
		metric("m", catalog.Resource{ResourceURI: "a"}, catalog.Resource{ResourceURI: "b"}),
		metric("m-2", catalog.Resource{ResourceURI: "c"}),
	)

	defs := Build(decl, quietLogger(&buf))
	require.Len(t, defs, 3)
	assert.Equal(t, "S-m", defs[0].JobName)
	assert.Equal(t, "S-m-2", defs[1].JobName)
	assert.Equal(t, "S-m-2-2", defs[2].JobName)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "renamed=S-m-2-2")
}

func TestBuild_SuffixNeverReusesDeclaredName(t *testing.T) {
	decl := declaration(
		metric("m-2", catalog.Resource{ResourceURI: "x"}),
		metric("m", catalog.Resource{ResourceURI: "a"}, catalog.Resource{ResourceURI: "b"}),
	)

	defs := Build(decl, quietLogger(&bytes.Buffer{}))
	require.Len(t, defs, 3)

	names := map[string]bool{}
	for _, d := range defs {
		assert.False(t, names[d.JobName], "duplicate %s", d.JobName)
		names[d.JobName] = true
	}
	assert.Equal(t, "S-m-2", defs[0].JobName)
	assert.Equal(t, "S-m", defs[1].JobName)
	assert.Equal(t, "S-m-3", defs[2].JobName)
}

func TestBuild_DistinctSubscriptionsDoNotCollide(t *testing.T) {
	decl := declaration(metric("m",
		catalog.Resource{ResourceURI: "a"},
		catalog.Resource{ResourceURI: "b", SubscriptionID: "T"},
	))

	defs := Build(decl, nil)
	require.Len(t, defs, 2)
	assert.Equal(t, "S-m", defs[0].JobName)
	assert.Equal(t, "T-m", defs[1].JobName)
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, Build(nil, nil))
	assert.Empty(t, Build(declaration(), nil))
	assert.Empty(t, Build(declaration(metric("m")), nil))
}

func TestJobName(t *testing.T) {
	assert.Equal(t, "sub-1-RequestsTotal", JobName("sub-1", "RequestsTotal"))
}
