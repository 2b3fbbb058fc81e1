package prometheus

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"eeg-decoder-service/internal/config"
	ports "eeg-decoder-service/internal/core/ports/output"
)

type prometheusClient struct {
	baseURL string
	client  *http.Client
	enabled bool
}

// NewPrometheusClient creates a query client for the Prometheus HTTP API.
func NewPrometheusClient(cfg *config.PrometheusConfig) ports.PrometheusClient {
	if !cfg.Enabled {
		return &prometheusClient{enabled: false}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &prometheusClient{
		baseURL: cfg.URL,
		enabled: true,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *prometheusClient) IsAvailable() bool {
	if !c.enabled {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/-/healthy", nil)
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type promResponse struct {
	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
	Data   promData `json:"data"`
}

type promData struct {
	ResultType string       `json:"resultType"`
	Result     []promResult `json:"result"`
}

type promResult struct {
	Metric map[string]string `json:"metric"`
	Values [][]interface{}   `json:"values"` // [timestamp, value]
	Value  []interface{}     `json:"value"`  // instant queries
}

func (c *prometheusClient) get(ctx context.Context, path string, params url.Values) (*promResponse, error) {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var promResp promResponse
	if err := json.NewDecoder(resp.Body).Decode(&promResp); err != nil {
		return nil, fmt.Errorf("decode prometheus response (HTTP %d): %w", resp.StatusCode, err)
	}
	if promResp.Status != "success" {
		return nil, fmt.Errorf("prometheus query failed: %s %s", promResp.Status, promResp.Error)
	}
	return &promResp, nil
}

func (c *prometheusClient) query(ctx context.Context, promQL string, tr ports.TimeRange) ([]ports.DataPoint, error) {
	if !c.enabled {
		return nil, nil
	}

	params := url.Values{}
	params.Set("query", promQL)
	params.Set("start", strconv.FormatInt(tr.Start.Unix(), 10))
	params.Set("end", strconv.FormatInt(tr.End.Unix(), 10))
	params.Set("step", strconv.FormatFloat(tr.Step.Seconds(), 'f', -1, 64))

	resp, err := c.get(ctx, "/api/v1/query_range", params)
	if err != nil {
		return nil, err
	}

	var points []ports.DataPoint
	for _, r := range resp.Data.Result {
		for _, v := range r.Values {
			if p, ok := parseSample(v); ok {
				points = append(points, p)
			}
		}
	}
	return points, nil
}

// instantQuery returns the first sample of an instant vector, or 0 when
// the vector is empty.
func (c *prometheusClient) instantQuery(ctx context.Context, promQL string, at time.Time) (float64, error) {
	if !c.enabled {
		return 0, nil
	}

	params := url.Values{}
	params.Set("query", promQL)
	params.Set("time", strconv.FormatInt(at.Unix(), 10))

	resp, err := c.get(ctx, "/api/v1/query", params)
	if err != nil {
		return 0, err
	}
	for _, r := range resp.Data.Result {
		if p, ok := parseSample(r.Value); ok {
			return p.Value, nil
		}
	}
	return 0, nil
}

func parseSample(v []interface{}) (ports.DataPoint, bool) {
	if len(v) < 2 {
		return ports.DataPoint{}, false
	}
	ts, _ := v[0].(float64)
	valStr, _ := v[1].(string)
	val, err := strconv.ParseFloat(valStr, 64)
	// empty histograms yield NaN, which JSON cannot carry
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return ports.DataPoint{}, false
	}
	return ports.DataPoint{
		Timestamp: time.Unix(int64(ts), 0),
		Value:     val,
	}, true
}

// --- Latency ---

func latencyQuantileQL(q float64, kind string) string {
	return fmt.Sprintf(
		`histogram_quantile(%g, sum(rate(eeg_window_latency_seconds_bucket{kind="%s"}[5m])) by (le)) * 1000`,
		q, kind,
	)
}

func (c *prometheusClient) QueryLatencyP50(ctx context.Context, kind string, tr ports.TimeRange) ([]ports.DataPoint, error) {
	return c.query(ctx, latencyQuantileQL(0.50, kind), tr)
}

func (c *prometheusClient) QueryLatencyP99(ctx context.Context, kind string, tr ports.TimeRange) ([]ports.DataPoint, error) {
	return c.query(ctx, latencyQuantileQL(0.99, kind), tr)
}

// --- Throughput ---

func (c *prometheusClient) QueryWindowRate(ctx context.Context, kind string, tr ports.TimeRange) ([]ports.DataPoint, error) {
	promQL := fmt.Sprintf(`sum(rate(eeg_windows_processed_total{kind="%s"}[5m]))`, kind)
	return c.query(ctx, promQL, tr)
}

// --- Summary ---

// QueryKindMetrics aggregates the whole range. Rejections carry no kind
// label, so the reject rate is service-wide.
func (c *prometheusClient) QueryKindMetrics(ctx context.Context, kind string, tr ports.TimeRange) (*ports.KindMetrics, error) {
	window := promDuration(tr.End.Sub(tr.Start))
	seconds := tr.End.Sub(tr.Start).Seconds()

	windowsQL := fmt.Sprintf(`sum(increase(eeg_windows_processed_total{kind="%s"}[%s]))`, kind, window)
	p50QL := fmt.Sprintf(
		`histogram_quantile(0.50, sum(increase(eeg_window_latency_seconds_bucket{kind="%s"}[%s])) by (le)) * 1000`, kind, window)
	p99QL := fmt.Sprintf(
		`histogram_quantile(0.99, sum(increase(eeg_window_latency_seconds_bucket{kind="%s"}[%s])) by (le)) * 1000`, kind, window)
	rejectQL := fmt.Sprintf(
		`sum(increase(eeg_windows_rejected_total[%s])) / (sum(increase(eeg_windows_processed_total[%s])) + sum(increase(eeg_windows_rejected_total[%s]))) * 100`,
		window, window, window)
	droppedQL := fmt.Sprintf(`sum(increase(eeg_blocks_ingested_total{result="dropped"}[%s]))`, window)

	windows, err := c.instantQuery(ctx, windowsQL, tr.End)
	if err != nil {
		return nil, fmt.Errorf("query windows processed: %w", err)
	}
	p50 := c.optionalQuery(ctx, "latency_p50", p50QL, tr.End)
	p99 := c.optionalQuery(ctx, "latency_p99", p99QL, tr.End)
	rejectRate := c.optionalQuery(ctx, "reject_rate", rejectQL, tr.End)
	dropped := c.optionalQuery(ctx, "blocks_dropped", droppedQL, tr.End)

	m := &ports.KindMetrics{
		Kind:          kind,
		Windows:       int64(windows),
		LatencyP50:    p50,
		LatencyP99:    p99,
		RejectRate:    rejectRate,
		BlocksDropped: int64(dropped),
	}
	if seconds > 0 {
		m.WindowRate = windows / seconds
	}
	return m, nil
}

// optionalQuery runs a summary query whose failure leaves the field at 0.
func (c *prometheusClient) optionalQuery(ctx context.Context, field, promQL string, at time.Time) float64 {
	v, err := c.instantQuery(ctx, promQL, at)
	if err != nil {
		log.WithError(err).WithField("field", field).Debug("Prometheus summary query failed")
		return 0
	}
	return v
}

// promDuration renders d in whole seconds, the form PromQL range selectors accept.
func promDuration(d time.Duration) string {
	s := int64(d.Seconds())
	if s < 1 {
		s = 1
	}
	return strconv.FormatInt(s, 10) + "s"
}
