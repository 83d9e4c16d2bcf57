package catalog

import (
	"strings"
	"time"
)

// Supported clouds.
const (
	CloudGlobal = "Global"
	CloudChina  = "China"
	CloudUSGov  = "UsGov"
)

// Supported aggregation types.
const (
	AggregationAverage = "Average"
	AggregationTotal   = "Total"
	AggregationMaximum = "Maximum"
	AggregationMinimum = "Minimum"
	AggregationCount   = "Count"
)

// Declaration is the parsed metrics declaration.
type Declaration struct {
	Version        string             `yaml:"version"`
	AzureMetadata  AzureMetadata      `yaml:"azureMetadata"`
	MetricDefaults MetricDefaults     `yaml:"metricDefaults"`
	Metrics        []MetricDefinition `yaml:"metrics"`
}

// AzureMetadata is shared by every metric in the declaration.
type AzureMetadata struct {
	TenantID          string `yaml:"tenantId"`
	SubscriptionID    string `yaml:"subscriptionId"`
	ResourceGroupName string `yaml:"resourceGroupName"`
	Cloud             string `yaml:"cloud"`
}

// MetricDefaults are applied to metrics that leave the field empty.
type MetricDefaults struct {
	Aggregation Aggregation `yaml:"aggregation"`
	Scraping    Scraping    `yaml:"scraping"`
}

// MetricDefinition describes one exported metric and the resources it is
// collected for.
type MetricDefinition struct {
	Name                     string                   `yaml:"name"`
	Description              string                   `yaml:"description"`
	Labels                   map[string]string        `yaml:"labels"`
	AzureMetricConfiguration AzureMetricConfiguration `yaml:"azureMetricConfiguration"`
	Scraping                 Scraping                 `yaml:"scraping"`
	Resources                []Resource               `yaml:"resources"`
}

// AzureMetricConfiguration selects the Azure Monitor metric to query.
type AzureMetricConfiguration struct {
	MetricName  string      `yaml:"metricName"`
	Dimensions  []string    `yaml:"dimensions"`
	Filter      string      `yaml:"filter"`
	Aggregation Aggregation `yaml:"aggregation"`
}

// Aggregation is how Azure Monitor reduces samples within one interval.
type Aggregation struct {
	Type     string        `yaml:"type"`
	Interval time.Duration `yaml:"interval"`
}

// Scraping holds the cron schedule of a metric.
type Scraping struct {
	Schedule string `yaml:"schedule"`
}

// Resource identifies one monitored Azure resource.
type Resource struct {
	// SubscriptionID overrides AzureMetadata.SubscriptionID when non-blank.
	SubscriptionID string `yaml:"subscriptionId"`

	// ResourceGroupName overrides AzureMetadata.ResourceGroupName when non-blank.
	ResourceGroupName string `yaml:"resourceGroupName"`

	// ResourceURI is the provider path, e.g. Microsoft.Web/sites/my-app.
	ResourceURI string `yaml:"resourceUri"`
}

// EffectiveSubscriptionID returns the resource override, or the catalog
// default when the override is blank.
func (r Resource) EffectiveSubscriptionID(meta AzureMetadata) string {
	if strings.TrimSpace(r.SubscriptionID) != "" {
		return r.SubscriptionID
	}
	return meta.SubscriptionID
}

// EffectiveResourceGroupName applies the same override rule to the group.
func (r Resource) EffectiveResourceGroupName(meta AzureMetadata) string {
	if strings.TrimSpace(r.ResourceGroupName) != "" {
		return r.ResourceGroupName
	}
	return meta.ResourceGroupName
}

// ID returns the fully-qualified Azure resource id.
func (r Resource) ID(meta AzureMetadata) string {
	return "/subscriptions/" + r.EffectiveSubscriptionID(meta) +
		"/resourceGroups/" + r.EffectiveResourceGroupName(meta) +
		"/providers/" + strings.TrimPrefix(r.ResourceURI, "/")
}
