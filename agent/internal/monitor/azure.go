package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/cockroachdb/errors"
)

const (
	metricsAPIVersion = "2018-01-01"
	pipelineModule    = "azmonitor"
	pipelineVersion   = "v1.0.0"
)

// resourceManager holds the Resource Manager endpoint and token audience of
// every supported cloud, keyed by the declaration's cloud name.
var resourceManager = map[string]struct {
	authority cloud.Configuration
	endpoint  string
	audience  string
}{
	"Global": {cloud.AzurePublic, "https://management.azure.com", "https://management.core.windows.net/"},
	"China":  {cloud.AzureChina, "https://management.chinacloudapi.cn", "https://management.core.chinacloudapi.cn"},
	"UsGov":  {cloud.AzureGovernment, "https://management.usgovcloudapi.net", "https://management.core.usgovcloudapi.net"},
}

// CloudConfiguration returns the azcore cloud configuration for a cloud name,
// with the Resource Manager service filled in.
func CloudConfiguration(name string) (cloud.Configuration, error) {
	rm, ok := resourceManager[name]
	if !ok {
		return cloud.Configuration{}, errors.Newf("monitor: unsupported cloud %q", name)
	}
	return cloud.Configuration{
		ActiveDirectoryAuthorityHost: rm.authority.ActiveDirectoryAuthorityHost,
		Services: map[cloud.ServiceName]cloud.ServiceConfiguration{
			cloud.ResourceManager: {Endpoint: rm.endpoint, Audience: rm.audience},
		},
	}, nil
}

// CredentialFunc builds the token credential for one identity.
type CredentialFunc func(id Identity, cfg cloud.Configuration) (azcore.TokenCredential, error)

// AzureOptions configures NewAzureFactory.
type AzureOptions struct {
	// ClientID and ClientSecret select a service principal. When either is
	// empty the azidentity default credential chain is used.
	ClientID     string
	ClientSecret string

	// LogRequests logs every metrics query and its outcome.
	LogRequests bool
	Logger      *slog.Logger

	// Credential replaces the azidentity credential construction.
	Credential CredentialFunc

	// Cloud replaces the per-identity cloud configuration.
	Cloud *cloud.Configuration

	// ClientOptions tunes the azcore pipeline (transport, retries).
	ClientOptions azcore.ClientOptions

	// Now is the clock used to compute query timespans.
	Now func() time.Time
}

// NewAzureFactory returns a Factory creating Azure Monitor clients.
func NewAzureFactory(opts AzureOptions) Factory {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Credential == nil {
		opts.Credential = opts.identityCredential
	}
	return func(_ context.Context, id Identity) (Client, error) {
		cfg, err := opts.cloudFor(id)
		if err != nil {
			return nil, err
		}
		cred, err := opts.Credential(id, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "monitor: build credential")
		}
		return newAzureClient(id, cred, cfg, opts)
	}
}

func (o AzureOptions) cloudFor(id Identity) (cloud.Configuration, error) {
	if o.Cloud != nil {
		return *o.Cloud, nil
	}
	return CloudConfiguration(id.Cloud)
}

func (o AzureOptions) identityCredential(id Identity, cfg cloud.Configuration) (azcore.TokenCredential, error) {
	co := azcore.ClientOptions{Cloud: cfg}
	if o.ClientID != "" && o.ClientSecret != "" {
		return azidentity.NewClientSecretCredential(id.TenantID, o.ClientID, o.ClientSecret,
			&azidentity.ClientSecretCredentialOptions{ClientOptions: co})
	}
	return azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		ClientOptions: co,
		TenantID:      id.TenantID,
	})
}

// azureClient queries the Azure Monitor metrics REST API through an azcore
// pipeline that handles token acquisition and retries.
type azureClient struct {
	id       Identity
	endpoint string
	pipeline runtime.Pipeline
	logger   *slog.Logger
	logReq   bool
	now      func() time.Time
}

func newAzureClient(id Identity, cred azcore.TokenCredential, cfg cloud.Configuration, opts AzureOptions) (*azureClient, error) {
	rm, ok := cfg.Services[cloud.ResourceManager]
	if !ok || rm.Endpoint == "" {
		return nil, errors.Newf("monitor: cloud %q has no resource manager endpoint", id.Cloud)
	}
	scope := strings.TrimSuffix(rm.Audience, "/") + "/.default"

	co := opts.ClientOptions
	co.Cloud = cfg
	pl := runtime.NewPipeline(pipelineModule, pipelineVersion, runtime.PipelineOptions{
		PerRetry: []policy.Policy{runtime.NewBearerTokenPolicy(cred, []string{scope}, nil)},
	}, &co)

	return &azureClient{
		id:       id,
		endpoint: strings.TrimSuffix(rm.Endpoint, "/"),
		pipeline: pl,
		logger:   opts.Logger.With("subscription", id.SubscriptionID, "tenant", id.TenantID),
		logReq:   opts.LogRequests,
		now:      opts.Now,
	}, nil
}

// QueryMetric returns the latest aggregated value of every timeseries of the
// requested metric.
func (c *azureClient) QueryMetric(ctx context.Context, q Query) ([]Value, error) {
	req, err := runtime.NewRequest(ctx, http.MethodGet, c.endpoint+q.ResourceID+"/providers/Microsoft.Insights/metrics")
	if err != nil {
		return nil, errors.Wrap(err, "monitor: build request")
	}
	req.Raw().URL.RawQuery = c.queryParams(q).Encode()
	req.Raw().Header.Set("Accept", "application/json")

	started := c.now()
	resp, err := c.pipeline.Do(req)
	if err != nil {
		c.logFailure(q, err)
		return nil, errors.Wrapf(err, "monitor: query %s", q.MetricName)
	}
	defer resp.Body.Close()

	if !runtime.HasStatusCode(resp, http.StatusOK) {
		err := runtime.NewResponseError(resp)
		c.logFailure(q, err)
		return nil, errors.Wrapf(err, "monitor: query %s", q.MetricName)
	}

	var body metricsResponse
	if err := runtime.UnmarshalAsJSON(resp, &body); err != nil {
		return nil, errors.Wrapf(err, "monitor: malformed response for %s", q.MetricName)
	}

	values := body.latest(q.Aggregation)
	if c.logReq {
		c.logger.Info("monitor: metric queried",
			"resource", q.ResourceID,
			"metric", q.MetricName,
			"series", len(values),
			"duration", c.now().Sub(started))
	}
	if len(values) == 0 {
		return nil, errors.Wrapf(ErrNoData, "metric %s on %s", q.MetricName, q.ResourceID)
	}
	return values, nil
}

func (c *azureClient) queryParams(q Query) url.Values {
	end := c.now().UTC()
	// Two intervals so the latest complete bucket is always inside the window.
	start := end.Add(-2 * q.Interval)

	params := url.Values{}
	params.Set("api-version", metricsAPIVersion)
	params.Set("metricnames", q.MetricName)
	params.Set("aggregation", q.Aggregation)
	params.Set("interval", isoDuration(q.Interval))
	params.Set("timespan", start.Format(time.RFC3339)+"/"+end.Format(time.RFC3339))

	var filters []string
	for _, d := range q.Dimensions {
		filters = append(filters, fmt.Sprintf("%s eq '*'", d))
	}
	if q.Filter != "" {
		filters = append(filters, q.Filter)
	}
	if len(filters) > 0 {
		params.Set("$filter", strings.Join(filters, " and "))
	}
	return params
}

func (c *azureClient) logFailure(q Query, err error) {
	if !c.logReq {
		return
	}
	c.logger.Warn("monitor: metric query failed",
		"resource", q.ResourceID, "metric", q.MetricName, "err", err)
}

// isoDuration renders d as an ISO-8601 duration (PT5M, PT1H, PT30S).
func isoDuration(d time.Duration) string {
	if d <= 0 {
		return "PT1M"
	}
	var b strings.Builder
	b.WriteString("PT")
	if h := d / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dH", h)
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dM", m)
		d -= m * time.Minute
	}
	if s := d / time.Second; s > 0 {
		fmt.Fprintf(&b, "%dS", s)
	}
	return b.String()
}

// metricsResponse is the subset of the Azure Monitor metrics payload we read.
type metricsResponse struct {
	Value []struct {
		Name       localizable `json:"name"`
		Unit       string      `json:"unit"`
		Timeseries []struct {
			MetadataValues []struct {
				Name  localizable `json:"name"`
				Value string      `json:"value"`
			} `json:"metadatavalues"`
			Data []dataPoint `json:"data"`
		} `json:"timeseries"`
	} `json:"value"`
}

type localizable struct {
	Value string `json:"value"`
}

type dataPoint struct {
	TimeStamp time.Time `json:"timeStamp"`
	Average   *float64  `json:"average"`
	Total     *float64  `json:"total"`
	Maximum   *float64  `json:"maximum"`
	Minimum   *float64  `json:"minimum"`
	Count     *float64  `json:"count"`
}

func (p dataPoint) pick(aggregation string) *float64 {
	switch aggregation {
	case "Average":
		return p.Average
	case "Total":
		return p.Total
	case "Maximum":
		return p.Maximum
	case "Minimum":
		return p.Minimum
	case "Count":
		return p.Count
	}
	return nil
}

// latest returns, per timeseries, the newest data point holding a value for
// the aggregation. Series without any value are skipped.
func (r metricsResponse) latest(aggregation string) []Value {
	var out []Value
	for _, metric := range r.Value {
		for _, ts := range metric.Timeseries {
			for i := len(ts.Data) - 1; i >= 0; i-- {
				v := ts.Data[i].pick(aggregation)
				if v == nil {
					continue
				}
				dims := make(map[string]string, len(ts.MetadataValues))
				for _, md := range ts.MetadataValues {
					dims[md.Name.Value] = md.Value
				}
				out = append(out, Value{Timestamp: ts.Data[i].TimeStamp, Value: *v, Dimensions: dims})
				break
			}
		}
	}
	return out
}
