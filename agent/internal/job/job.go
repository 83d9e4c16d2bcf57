package job

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/obsidianstack/scraper/agent/internal/monitor"
	"github.com/obsidianstack/scraper/agent/internal/scrape"
	"github.com/obsidianstack/scraper/pkg/types"
)

// Labels attached to every measurement.
const (
	LabelResourceURI    = "resource_uri"
	LabelSubscriptionID = "subscription_id"
	LabelResourceGroup  = "resource_group"
)

// Publisher receives the measurements of a cycle. *sink.Fanout implements it.
type Publisher interface {
	Publish(ctx context.Context, m types.Measurement)
}

// ExecContext is everything one cycle needs.
type ExecContext struct {
	Definition scrape.Definition
	Client     monitor.Client
	Fanout     Publisher
	Logger     *slog.Logger
}

// Execute performs one collection cycle for ec.Definition.
func Execute(ctx context.Context, ec ExecContext) error {
	if ec.Client == nil {
		return errors.Newf("job %s: no client", ec.Definition.JobName)
	}
	if ec.Fanout == nil {
		return errors.Newf("job %s: no fanout", ec.Definition.JobName)
	}
	logger := ec.Logger
	if logger == nil {
		logger = slog.Default()
	}

	def := ec.Definition
	values, err := ec.Client.QueryMetric(ctx, def.Query())
	if err != nil {
		return errors.Wrapf(err, "job %s", def.JobName)
	}
	if len(values) == 0 {
		return errors.Wrapf(monitor.ErrNoData, "job %s: metric %s on %s",
			def.JobName, def.Query().MetricName, def.ResourceID())
	}

	for _, v := range values {
		ec.Fanout.Publish(ctx, Measurement(def, v))
	}
	logger.Debug("job: published",
		"job", def.JobName, "metric", def.Metric.Name, "series", len(values))
	return nil
}

// Measurement converts one monitor value of def into a measurement.
// Dimension names are lower-cased and reduced to valid label names; a
// dimension never overrides a fixed label.
func Measurement(def scrape.Definition, v monitor.Value) types.Measurement {
	labels := make(map[string]string, 3+len(def.Metric.Labels)+len(v.Dimensions))
	for k, val := range def.Metric.Labels {
		labels[k] = val
	}
	for k, val := range v.Dimensions {
		name := labelName(k)
		if _, taken := labels[name]; !taken {
			labels[name] = val
		}
	}
	labels[LabelResourceURI] = def.Resource.ResourceURI
	labels[LabelSubscriptionID] = def.SubscriptionID
	labels[LabelResourceGroup] = def.ResourceGroupName

	return types.Measurement{
		Name:        def.Metric.Name,
		Description: def.Metric.Description,
		Value:       v.Value,
		Labels:      labels,
		Timestamp:   v.Timestamp,
	}
}

// labelName maps an Azure dimension name to a Prometheus label name.
func labelName(dimension string) string {
	b := []byte(strings.ToLower(dimension))
	for i, c := range b {
		if c == '_' || ('a' <= c && c <= 'z') || (i > 0 && '0' <= c && c <= '9') {
			continue
		}
		b[i] = '_'
	}
	return string(b)
}
