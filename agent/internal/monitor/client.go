package monitor

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNoData is returned when the monitoring API answered but held no value
// for the requested metric and interval.
var ErrNoData = errors.New("monitor: no metric values available")

// Identity is the cache key for client handles.
type Identity struct {
	Cloud          string
	TenantID       string
	SubscriptionID string
}

func (id Identity) String() string {
	return id.Cloud + "/" + id.TenantID + "/" + id.SubscriptionID
}

// Query selects one metric of one resource.
type Query struct {
	// ResourceID is the fully-qualified Azure resource id.
	ResourceID string

	MetricName  string
	Aggregation string
	Interval    time.Duration

	// Dimensions split the result into one timeseries per dimension value.
	Dimensions []string

	// Filter is an OData filter passed through unchanged.
	Filter string
}

// Value is the most recent aggregated value of one timeseries.
type Value struct {
	Timestamp time.Time
	Value     float64

	// Dimensions holds the dimension values of the timeseries, keyed by
	// dimension name.
	Dimensions map[string]string
}

// Client queries metric values. Implementations must be safe for concurrent use.
type Client interface {
	QueryMetric(ctx context.Context, q Query) ([]Value, error)
}

// Factory constructs the Client for an identity. It may be expensive.
type Factory func(ctx context.Context, id Identity) (Client, error)
