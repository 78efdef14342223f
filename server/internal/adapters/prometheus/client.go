package prometheus

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/visioncontrol/visioncontrol/server/internal/config"
)

// authRoundTripper adds the credentials of a source to a clone of each
// request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.auth.Mode == "" || t.auth.Mode == "none" {
		return t.base.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	switch t.auth.Mode {
	case "apikey":
		out.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		out.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		out.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(out)
}

// newHTTPClient returns the client of one source, with a transport of its own
// carrying the source's TLS settings, credentials and scrape timeout.
func newHTTPClient(src config.PrometheusSource) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{base: transport, auth: src.Auth},
		Timeout:   src.Timeout,
	}
}

// textFormat is sent as Accept on every scrape.
var textFormat = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// fetchFamilies scrapes endpoint once. Any status other than 200 fails the
// scrape.
func fetchFamilies(ctx context.Context, client *http.Client, endpoint string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape request: %w", err)
	}
	req.Header.Set("Accept", textFormat)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape %s: status %s", endpoint, resp.Status)
	}
	return parseFamilies(resp.Body)
}

// parseFamilies reads a text exposition into families keyed by name. Families
// parsed before a malformed line are kept; only an exposition yielding none
// is an error.
func parseFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("exposition: %w", err)
	}
	return mfs, nil
}

// sampleValue returns the value of one sample: the counter, gauge or untyped
// value, or the observation count of a histogram or summary.
func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	case m.Histogram != nil:
		return float64(m.Histogram.GetSampleCount())
	case m.Summary != nil:
		return float64(m.Summary.GetSampleCount())
	}
	return 0
}

// sumFamily adds up the samples of mf whose labels include every pair in
// match. A nil family sums to 0.
func sumFamily(mf *dto.MetricFamily, match map[string]string) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		if matches(m, match) {
			total += sampleValue(m)
		}
	}
	return total
}

func matches(m *dto.Metric, match map[string]string) bool {
	if len(match) == 0 {
		return true
	}
	found := 0
	for _, lp := range m.GetLabel() {
		if want, ok := match[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			found++
		}
	}
	return found == len(match)
}
