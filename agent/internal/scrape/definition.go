package scrape

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/obsidianstack/scraper/agent/internal/catalog"
	"github.com/obsidianstack/scraper/agent/internal/monitor"
)

// Schedule is when a definition fires.
type Schedule struct {
	Cron           string
	RunImmediately bool
}

// Definition is one metric collected for one resource.
type Definition struct {
	JobName string

	Metric   catalog.MetricDefinition
	Resource catalog.Resource

	// Effective values after resource overrides.
	SubscriptionID    string
	ResourceGroupName string
	Cloud             string
	TenantID          string

	Schedule Schedule
}

// Identity returns the client identity this definition is collected with.
func (d Definition) Identity() monitor.Identity {
	return monitor.Identity{
		Cloud:          d.Cloud,
		TenantID:       d.TenantID,
		SubscriptionID: d.SubscriptionID,
	}
}

// ResourceID returns the fully-qualified Azure resource id.
func (d Definition) ResourceID() string {
	return d.Resource.ID(catalog.AzureMetadata{
		SubscriptionID:    d.SubscriptionID,
		ResourceGroupName: d.ResourceGroupName,
	})
}

// Query returns the monitor query for this definition.
func (d Definition) Query() monitor.Query {
	cfg := d.Metric.AzureMetricConfiguration
	return monitor.Query{
		ResourceID:  d.ResourceID(),
		MetricName:  cfg.MetricName,
		Aggregation: cfg.Aggregation.Type,
		Interval:    cfg.Aggregation.Interval,
		Dimensions:  cfg.Dimensions,
		Filter:      cfg.Filter,
	}
}

// JobName is the scheduler name for a metric collected in a subscription.
func JobName(subscriptionID, metricName string) string {
	return subscriptionID + "-" + metricName
}

// Build returns one Definition per (metric, resource) pair of decl, in
// declaration order. A nil logger uses slog.Default.
func Build(decl *catalog.Declaration, logger *slog.Logger) []Definition {
	if decl == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	meta := decl.AzureMetadata
	seen := make(map[string]int)
	owner := make(map[string]int) // job name -> index of the metric that claimed it
	var defs []Definition

	for i, m := range decl.Metrics {
		for _, r := range m.Resources {
			sub := r.EffectiveSubscriptionID(meta)
			name := JobName(sub, m.Name)

			seen[name]++
			if n := seen[name]; n > 1 {
				unique := fmt.Sprintf("%s-%d", name, n)
				// A suffixed name may itself be taken by a declared metric.
				for seen[unique] > 0 {
					n++
					unique = fmt.Sprintf("%s-%d", name, n)
				}
				seen[name] = n
				seen[unique]++
				owner[unique] = i

				// Several resources of one metric in one subscription always
				// share a base name.
				level := slog.LevelDebug
				if owner[name] != i {
					level = slog.LevelWarn
				}
				logger.Log(context.Background(), level, "scrape: job name collision, suffixing",
					"job", name, "renamed", unique, "resource", r.ResourceURI)
				name = unique
			} else {
				owner[name] = i
			}

			defs = append(defs, Definition{
				JobName:           name,
				Metric:            m,
				Resource:          r,
				SubscriptionID:    sub,
				ResourceGroupName: r.EffectiveResourceGroupName(meta),
				Cloud:             meta.Cloud,
				TenantID:          meta.TenantID,
				Schedule: Schedule{
					Cron:           m.Scraping.Schedule,
					RunImmediately: true,
				},
			})
		}
	}
	return defs
}
