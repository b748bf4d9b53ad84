package datasource

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scaleout/eseries-collector/internal/telemetry"
)

// TLSValidation selects how strictly the live source verifies the array's
// certificate (spec.md §6 "TLS validation modes {strict, normal, none}").
type TLSValidation string

const (
	TLSStrict TLSValidation = "strict"
	TLSNormal TLSValidation = "normal"
	TLSNone   TLSValidation = "none"
)

// FetchPolicy configures the HTTP transport used against the array,
// mirroring (in spirit, not in field-set) the teacher's
// engine/crawler.FetchPolicy: a small struct of dials a Fetcher is
// Configure()'d with.
type FetchPolicy struct {
	Timeout       time.Duration
	TLSValidation TLSValidation
	CABundlePath  string
}

// Fetcher abstracts "do one authenticated HTTP round trip", generalized
// from the teacher's engine/crawler.Fetcher interface (Fetch/Configure).
type Fetcher interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (*http.Response, error)
	Configure(policy FetchPolicy) error
}

type httpFetcher struct {
	client *http.Client
	policy FetchPolicy
}

var fetcherTracer = telemetry.Tracer("datasource")

// NewFetcher returns a Fetcher configured per policy. TLSStrict requires a
// CA bundle and trusts only the certificates in that bundle (the system
// root pool is not consulted); TLSNone skips
// verification entirely (only ever valid for the array endpoint -- the TSDB
// writer in internal/writer always forces strict regardless of this
// setting, per spec.md §4.5.1).
func NewFetcher(policy FetchPolicy) (Fetcher, error) {
	f := &httpFetcher{}
	if err := f.Configure(policy); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *httpFetcher) Configure(policy FetchPolicy) error {
	if policy.Timeout <= 0 {
		policy.Timeout = 30 * time.Second
	}
	tlsCfg := &tls.Config{}
	switch policy.TLSValidation {
	case TLSNone:
		tlsCfg.InsecureSkipVerify = true
	case TLSStrict:
		if policy.CABundlePath == "" {
			return fmt.Errorf("tls strict validation requires a CA bundle path")
		}
		pool, err := loadCABundle(policy.CABundlePath)
		if err != nil {
			return fmt.Errorf("load CA bundle: %w", err)
		}
		tlsCfg.RootCAs = pool
	case TLSNormal, "":
		// system root pool, default Go behavior
	default:
		return fmt.Errorf("unknown tls validation mode %q", policy.TLSValidation)
	}
	f.client = &http.Client{
		Timeout:   policy.Timeout,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}
	f.policy = policy
	return nil
}

func loadCABundle(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

func (f *httpFetcher) Do(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	ctx, span := telemetry.StartHTTPSpan(ctx, fetcherTracer, method, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}
