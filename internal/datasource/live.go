package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/scaleout/eseries-collector/internal/catalog"
	"github.com/scaleout/eseries-collector/internal/model"
	"github.com/scaleout/eseries-collector/internal/ratelimit"
	"github.com/scaleout/eseries-collector/internal/telemetry"
)

// LiveCredentials holds the username/password used to establish a session.
type LiveCredentials struct {
	Username string
	Password string
}

// LiveConfig configures the live data source.
type LiveConfig struct {
	Hosts         []string // tried in order, first TCP-reachable wins (spec.md §4.2)
	Credentials   LiveCredentials
	Fetch         FetchPolicy
	SessionTimeout time.Duration // ~10s per spec.md §5
	RequestTimeout time.Duration // ~30s per spec.md §5
}

// LiveSource implements DataSource against a live array management API.
type LiveSource struct {
	cfg     LiveConfig
	fetcher Fetcher
	limiter ratelimit.Limiter
	log     telemetry.Logger

	baseURL     string
	bearerToken string
	cookies     []*http.Cookie
	systemID    string
	systemName  string
}

// NewLiveSource constructs a LiveSource. limiter may be nil, in which case
// requests are never throttled (used by tests).
func NewLiveSource(cfg LiveConfig, limiter ratelimit.Limiter, log telemetry.Logger) (*LiveSource, error) {
	fetch := cfg.Fetch
	if fetch.Timeout <= 0 {
		fetch.Timeout = cfg.RequestTimeout
	}
	fetcher, err := NewFetcher(fetch)
	if err != nil {
		return nil, err
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultConfig())
	}
	return &LiveSource{
		cfg:        cfg,
		fetcher:    fetcher,
		limiter:    limiter,
		log:        log,
		systemID:   unknownSystemID,
		systemName: unknownSystemName,
	}, nil
}

func (s *LiveSource) SystemID() string   { return s.systemID }
func (s *LiveSource) SystemName() string { return s.systemName }

// Init tries each configured host in order, establishing a session on the
// first reachable one, then discovers system identity (spec.md §4.2).
func (s *LiveSource) Init(ctx context.Context) error {
	var lastErr error
	for _, host := range s.cfg.Hosts {
		sessionCtx, cancel := context.WithTimeout(ctx, sessionTimeout(s.cfg))
		err := s.establishSession(sessionCtx, host)
		cancel()
		if err == nil {
			s.baseURL = host
			break
		}
		lastErr = err
		s.log.WarnCtx(ctx, "session setup failed, trying next host", "host", host, "error", err)
	}
	if s.baseURL == "" {
		return fmt.Errorf("session/discovery error: no reachable array host: %w", lastErr)
	}
	return s.discoverSystem(ctx)
}

func sessionTimeout(cfg LiveConfig) time.Duration {
	if cfg.SessionTimeout > 0 {
		return cfg.SessionTimeout
	}
	return 10 * time.Second
}

type loginRequest struct {
	UserID        string `json:"userId"`
	Password      string `json:"password"`
	XSRFProtected bool   `json:"xsrfProtected"`
}

// establishSession performs login against host, then attempts bearer-token
// acquisition, falling back to the session cookie (spec.md §4.2, §6).
func (s *LiveSource) establishSession(ctx context.Context, host string) error {
	op := func() error {
		body, _ := json.Marshal(loginRequest{UserID: s.cfg.Credentials.Username, Password: s.cfg.Credentials.Password, XSRFProtected: false})
		resp, err := s.fetcher.Do(ctx, http.MethodPost, host+"/devmgr/utils/login", map[string]string{"Content-Type": "application/json"}, bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("login transient failure: %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("login rejected: %d", resp.StatusCode))
		}
		s.cookies = resp.Cookies()
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return err
	}

	tokenBody, _ := json.Marshal(map[string]int{"duration": 600})
	resp, err := s.fetcher.Do(ctx, http.MethodPost, host+"/devmgr/v2/access-token", s.authHeaders(map[string]string{"Content-Type": "application/json"}), bytes.NewReader(tokenBody))
	if err == nil && resp.StatusCode == http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		token := gjson.GetBytes(data, "accessToken").String()
		if token != "" {
			s.bearerToken = token
		}
	} else if resp != nil {
		resp.Body.Close()
	}
	return nil
}

func (s *LiveSource) authHeaders(extra map[string]string) map[string]string {
	h := map[string]string{}
	for k, v := range extra {
		h[k] = v
	}
	if s.bearerToken != "" {
		h["Authorization"] = "Bearer " + s.bearerToken
	} else if len(s.cookies) > 0 {
		var parts []string
		for _, c := range s.cookies {
			parts = append(parts, c.Name+"="+c.Value)
		}
		h["Cookie"] = strings.Join(parts, "; ")
	}
	return h
}

func (s *LiveSource) discoverSystem(ctx context.Context) error {
	data, status, err := s.get(ctx, s.baseURL+"/devmgr/v2/storage-systems")
	if err != nil {
		return fmt.Errorf("session/discovery error: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("session/discovery error: storage-systems returned %d", status)
	}
	systems := normalizeToList(data)
	if len(systems) == 0 {
		return fmt.Errorf("session/discovery error: no systems returned")
	}
	first := systems[0]
	s.systemID = first.GetString("wwn")
	if s.systemID == "" {
		s.systemID = first.GetString("id")
	}
	s.systemName = first.GetString("name")
	if s.systemID == "" {
		return fmt.Errorf("session/discovery error: system missing WWN")
	}
	return nil
}

// BaseURL returns the array management base URL chosen during Init, e.g.
// "https://10.0.0.1:8443". Exported for cmd/rawcapture, which builds its
// own endpoint URLs from the catalog the same way collect does.
func (s *LiveSource) BaseURL() string { return s.baseURL }

// RawGet performs one authenticated GET and returns the unmodified response
// body, bypassing the normalize/envelope-unwrap steps collect applies.
// Exported for cmd/rawcapture (spec.md §6 "Raw-capture companion"), which
// persists exactly what the array returned rather than a normalized record.
func (s *LiveSource) RawGet(ctx context.Context, rawURL string) ([]byte, int, error) {
	return s.get(ctx, rawURL)
}

// ExtractIDs pulls the idField value out of every element of raw (array or
// singleton object), mirroring model.ParentIDs but operating on raw bytes
// instead of already-normalized records. Exported for cmd/rawcapture's
// dependent-endpoint ID substitution.
func ExtractIDs(raw []byte, idField string) []string {
	parsed := gjson.ParseBytes(raw)
	var ids []string
	if parsed.IsArray() {
		parsed.ForEach(func(_, v gjson.Result) bool {
			if id := v.Get(idField).String(); id != "" {
				ids = append(ids, id)
			}
			return true
		})
		return ids
	}
	if id := parsed.Get(idField).String(); id != "" {
		ids = append(ids, id)
	}
	return ids
}

// get issues a GET against rawURL, throttled/circuit-broken per array host.
func (s *LiveSource) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	host := model.HostFromURL(rawURL)
	permit, err := s.limiter.Acquire(ctx, host)
	if err != nil {
		return nil, 0, err
	}
	defer permit.Release()

	start := time.Now()
	resp, err := s.fetcher.Do(ctx, http.MethodGet, rawURL, s.authHeaders(nil), nil)
	latency := time.Since(start)
	if err != nil {
		s.limiter.Feedback(host, ratelimit.Feedback{Err: err, Latency: latency})
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, readErr := io.ReadAll(resp.Body)
	s.limiter.Feedback(host, ratelimit.Feedback{StatusCode: resp.StatusCode, Latency: latency})
	if readErr != nil {
		return nil, resp.StatusCode, readErr
	}
	return data, resp.StatusCode, nil
}

// normalizeToList wraps a scalar JSON object response in a singleton list,
// per spec.md §4.2 "normalizes the result to a list of records (wrapping
// scalar responses in singletons)".
func normalizeToList(data []byte) []model.Record {
	parsed := gjson.ParseBytes(data)
	if parsed.IsArray() {
		var out []model.Record
		parsed.ForEach(func(_, v gjson.Result) bool {
			out = append(out, jsonResultToRecord(v))
			return true
		})
		return out
	}
	if parsed.IsObject() {
		return []model.Record{jsonResultToRecord(parsed)}
	}
	return nil
}

func jsonResultToRecord(v gjson.Result) model.Record {
	var m map[string]any
	_ = json.Unmarshal([]byte(v.Raw), &m)
	if m == nil {
		m = map[string]any{}
	}
	return model.Record(m)
}

func (s *LiveSource) collect(ctx context.Context, cat model.Category) (*model.CollectionResult, error) {
	result := model.NewCollectionResult()
	names := orderedByDependency(catalog.Names(cat))

	collected := make(map[string][]model.Record, len(names))
	var failures int

	for _, name := range names {
		if name == "ethernet_interface_config_alias" {
			continue // alias only resolved via catalog.EndpointForMeasurement, never fetched twice
		}
		recs, status, err := s.collectEndpoint(ctx, name, collected)
		if err != nil {
			if parent, _, ok := catalog.DependsOn(name); ok && collected[parent] == nil {
				// Parent never resolved any IDs (e.g. zero consistency
				// groups this cycle); this is not an error, just nothing
				// to fetch.
				continue
			}
			failures++
			if status == http.StatusNotFound && model.IsOptionalEndpoint(name) {
				s.log.InfoCtx(ctx, "optional feature not configured", "endpoint", name)
			} else {
				s.log.ErrorCtx(ctx, "endpoint collection failed", "endpoint", name, "error", err)
			}
			continue
		}
		collected[name] = recs
		m, _ := catalog.MeasurementName(name)
		for i := range recs {
			recs[i]["system_id"] = s.systemID
			recs[i]["storage_system_name"] = s.systemName
		}
		result.Add(m, recs...)
	}
	result.Success = failures < len(names)
	result.Metadata["failures"] = failures
	return result, nil
}

// orderedByDependency sorts names alphabetically for stable logging, then
// stabilizes any endpoint with a catalog.DependsOn parent to come after that
// parent, so a dependent (e.g. consistency_group_vol, which alphabetically
// precedes its own parent consistency_groups) is never fetched before the
// IDs it needs have been collected.
func orderedByDependency(names []string) []string {
	sort.Strings(names)
	var independents, dependents []string
	for _, n := range names {
		if _, _, ok := catalog.DependsOn(n); ok {
			dependents = append(dependents, n)
		} else {
			independents = append(independents, n)
		}
	}
	return append(independents, dependents...)
}

func (s *LiveSource) collectEndpoint(ctx context.Context, name string, collected map[string][]model.Record) ([]model.Record, int, error) {
	tmpl, _ := catalog.URLTemplate(name)
	url := strings.ReplaceAll(s.baseURL+tmpl, "{system_id}", s.systemID)

	if parent, idField, ok := catalog.DependsOn(name); ok {
		ids := model.ParentIDs(collected[parent], idField)
		var all []model.Record
		for _, id := range ids {
			u := strings.ReplaceAll(url, "{id}", id)
			recs, status, err := s.fetchOne(ctx, name, u)
			if err != nil {
				return nil, status, err
			}
			all = append(all, recs...)
		}
		return all, http.StatusOK, nil
	}
	return s.fetchOne(ctx, name, url)
}

func (s *LiveSource) fetchOne(ctx context.Context, name, url string) ([]model.Record, int, error) {
	data, status, err := s.get(ctx, url)
	if err != nil {
		return nil, status, err
	}
	if status != http.StatusOK {
		return nil, status, fmt.Errorf("endpoint %s: HTTP %d", name, status)
	}
	if name == "env_power" || name == "env_temp" {
		return unwrapEnvironmentalEnvelope(name, data), status, nil
	}
	if name == "analyzed_controller_statistics" {
		return []model.Record{wrapControllerStatistics(data)}, status, nil
	}
	return normalizeToList(data), status, nil
}

// unwrapEnvironmentalEnvelope implements spec.md §4.2 "Environmental shape":
// {returnCode: "ok", energyStarData|thermalSensorData: ...} becomes one
// record carrying measurement:"power"|"temp" and the raw payload under
// "data" so the environmental enricher can detect the variant.
func unwrapEnvironmentalEnvelope(name string, data []byte) []model.Record {
	parsed := gjson.ParseBytes(data)
	returnCode := parsed.Get("returnCode").String()

	if name == "env_temp" {
		var sensors []model.Record
		parsed.Get("thermalSensorData").ForEach(func(_, v gjson.Result) bool {
			sensors = append(sensors, jsonResultToRecord(v))
			return true
		})
		return []model.Record{{
			"measurement": "temp",
			"returnCode":  returnCode,
			"data":        sensors,
		}}
	}
	return []model.Record{{
		"measurement": "power",
		"returnCode":  returnCode,
		"data":        jsonResultToRecord(parsed.Get("energyStarData")),
	}}
}

// wrapControllerStatistics preserves the {statistics:[...], tokenId:...}
// envelope as a single record so the performance enricher can apply the
// "sort by observedTimeInMS, keep two most recent" rule (spec.md §4.3.2).
func wrapControllerStatistics(data []byte) model.Record {
	parsed := gjson.ParseBytes(data)
	var stats []model.Record
	parsed.Get("statistics").ForEach(func(_, v gjson.Result) bool {
		stats = append(stats, jsonResultToRecord(v))
		return true
	})
	return model.Record{
		"statistics": stats,
		"tokenId":    parsed.Get("tokenId").String(),
	}
}

func (s *LiveSource) CollectPerformance(ctx context.Context) (*model.CollectionResult, error) {
	return s.collect(ctx, model.CategoryPerformance)
}
func (s *LiveSource) CollectConfiguration(ctx context.Context) (*model.CollectionResult, error) {
	return s.collect(ctx, model.CategoryConfiguration)
}
func (s *LiveSource) CollectEvents(ctx context.Context) (*model.CollectionResult, error) {
	return s.collect(ctx, model.CategoryEvents)
}
func (s *LiveSource) CollectEnvironmental(ctx context.Context) (*model.CollectionResult, error) {
	return s.collect(ctx, model.CategoryEnvironmental)
}

// Close logs out of the session then drops the transport (spec.md §4.2
// "Cleanup").
func (s *LiveSource) Close(ctx context.Context) error {
	if s.baseURL == "" {
		return nil
	}
	resp, err := s.fetcher.Do(ctx, http.MethodDelete, s.baseURL+"/devmgr/utils/login", s.authHeaders(nil), nil)
	if resp != nil {
		resp.Body.Close()
	}
	if hf, ok := s.fetcher.(*httpFetcher); ok {
		hf.client.CloseIdleConnections()
	}
	return err
}
