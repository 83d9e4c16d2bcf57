// Package catalog loads the metrics declaration: which Azure Monitor metrics
// to collect, for which resources, and on what schedule.
//
// A Declaration carries catalog-wide AzureMetadata (cloud, tenant, default
// subscription and resource group), MetricDefaults applied to every metric
// that does not set its own value, and the list of MetricDefinitions. Each
// definition lists one or more Resources; a resource may override the
// subscription it lives in.
//
// Load(path) and Parse(data) return an already-defaulted, validated model.
// All validation problems are reported together so a broken declaration
// can be fixed in one pass.
//
// ParseSchedule exposes the cron dialect used for scraping schedules:
// five-field standard expressions, an optional leading seconds field, and
// descriptors such as @hourly or @every 30s.
package catalog
