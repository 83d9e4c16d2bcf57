package catalog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the metric nor metricDefaults set a value.
const (
	DefaultSchedule            = "*/5 * * * *"
	DefaultAggregationInterval = 5 * time.Minute
	SupportedVersion           = "v1"
)

// ReservedPrefixes are metric name prefixes owned by the agent's own
// metrics, which share the scrape endpoint with declared metrics.
var ReservedPrefixes = []string{"scraper_", "go_", "process_", "promhttp_"}

// ErrInvalidDeclaration marks every validation failure returned by Parse.
var ErrInvalidDeclaration = errors.New("invalid metrics declaration")

// Load reads and parses the metrics declaration at path.
func Load(path string) (*Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: read file")
	}
	return Parse(data)
}

// Parse decodes a metrics declaration, applies defaults and validates it.
func Parse(data []byte) (*Declaration, error) {
	var decl Declaration
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, errors.Wrap(err, "catalog: parse yaml")
	}
	applyDefaults(&decl)

	if problems := validate(&decl); len(problems) > 0 {
		err := errors.Newf("catalog: %d problem(s): %s", len(problems), strings.Join(problems, "; "))
		return nil, errors.Mark(err, ErrInvalidDeclaration)
	}
	return &decl, nil
}

func applyDefaults(decl *Declaration) {
	if decl.AzureMetadata.Cloud == "" {
		decl.AzureMetadata.Cloud = CloudGlobal
	}
	if decl.MetricDefaults.Scraping.Schedule == "" {
		decl.MetricDefaults.Scraping.Schedule = DefaultSchedule
	}
	if decl.MetricDefaults.Aggregation.Interval == 0 {
		decl.MetricDefaults.Aggregation.Interval = DefaultAggregationInterval
	}

	for i := range decl.Metrics {
		m := &decl.Metrics[i]
		if m.Scraping.Schedule == "" {
			m.Scraping.Schedule = decl.MetricDefaults.Scraping.Schedule
		}
		agg := &m.AzureMetricConfiguration.Aggregation
		if agg.Interval == 0 {
			agg.Interval = decl.MetricDefaults.Aggregation.Interval
		}
		if agg.Type == "" {
			agg.Type = decl.MetricDefaults.Aggregation.Type
		}
		if m.Description == "" {
			m.Description = fmt.Sprintf("Azure Monitor metric %s", m.AzureMetricConfiguration.MetricName)
		}
	}
}

// validate returns every problem found, in declaration order.
func validate(decl *Declaration) []string {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if decl.Version != SupportedVersion {
		add("version %q is not supported, want %q", decl.Version, SupportedVersion)
	}
	meta := decl.AzureMetadata
	if strings.TrimSpace(meta.TenantID) == "" {
		add("azureMetadata.tenantId is required")
	}
	if strings.TrimSpace(meta.SubscriptionID) == "" {
		add("azureMetadata.subscriptionId is required")
	}
	switch meta.Cloud {
	case CloudGlobal, CloudChina, CloudUSGov:
	default:
		add("azureMetadata.cloud %q is not supported", meta.Cloud)
	}
	if len(decl.Metrics) == 0 {
		add("no metrics declared")
	}

	seen := make(map[string]int, len(decl.Metrics))
	for i, m := range decl.Metrics {
		where := fmt.Sprintf("metrics[%d] %q", i, m.Name)
		if !model.MetricNameRE.MatchString(m.Name) {
			add("%s: name is not a valid metric name", where)
		}
		if first, dup := seen[m.Name]; dup {
			add("%s: name already declared by metrics[%d]", where, first)
		} else {
			seen[m.Name] = i
		}
		for _, prefix := range ReservedPrefixes {
			if strings.HasPrefix(m.Name, prefix) {
				add("%s: prefix %q is reserved for agent metrics", where, prefix)
			}
		}
		for k := range m.Labels {
			if !model.LabelNameRE.MatchString(k) {
				add("%s: label %q is not a valid label name", where, k)
			}
		}
		cfg := m.AzureMetricConfiguration
		if cfg.MetricName == "" {
			add("%s: azureMetricConfiguration.metricName is required", where)
		}
		switch cfg.Aggregation.Type {
		case AggregationAverage, AggregationTotal, AggregationMaximum, AggregationMinimum, AggregationCount:
		default:
			add("%s: aggregation type %q is not supported", where, cfg.Aggregation.Type)
		}
		if cfg.Aggregation.Interval < time.Minute {
			add("%s: aggregation interval %s is below one minute", where, cfg.Aggregation.Interval)
		}
		if _, err := ParseSchedule(m.Scraping.Schedule); err != nil {
			add("%s: %v", where, err)
		}
		if len(m.Resources) == 0 {
			add("%s: at least one resource is required", where)
		}
		for j, r := range m.Resources {
			if strings.TrimSpace(r.ResourceURI) == "" {
				add("%s: resources[%d]: resourceUri is required", where, j)
			}
			if r.EffectiveResourceGroupName(meta) == "" {
				add("%s: resources[%d]: no resource group configured", where, j)
			}
		}
	}
	return problems
}
