// Command rawcapture is the thin companion capture tool spec.md §6
// describes: it logs into a live array exactly like the main collector's
// live data source does, then dumps each endpoint's raw JSON response to
// "<endpoint>_<system_id>_<batch>.json" files matching the replay
// source's on-disk naming convention (internal/datasource.batchFilePattern;
// keyed by catalog endpoint name, not measurement name -- see DESIGN.md).
// It deliberately contains no enrichment logic -- only session setup,
// endpoint iteration, and a file write per response.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scaleout/eseries-collector/internal/catalog"
	"github.com/scaleout/eseries-collector/internal/datasource"
	"github.com/scaleout/eseries-collector/internal/ratelimit"
	"github.com/scaleout/eseries-collector/internal/telemetry"
)

func main() {
	var (
		api           string
		username      string
		password      string
		tlsCa         string
		tlsValidation string
		outDir        string
		batch         int
	)
	flag.StringVar(&api, "api", "", "Comma-separated list of array management hostnames")
	flag.StringVar(&username, "username", "", "Array management username")
	flag.StringVar(&password, "password", "", "Array management password")
	flag.StringVar(&tlsCa, "tlsCa", "", "Path to a PEM CA bundle for strict TLS validation")
	flag.StringVar(&tlsValidation, "tlsValidation", "normal", "TLS validation mode: strict|normal|none")
	flag.StringVar(&outDir, "out", ".", "Directory to write capture files into")
	flag.IntVar(&batch, "batch", 1, "Batch number suffix for this capture's file names")
	flag.Parse()

	log := telemetry.New(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	ctx := context.Background()

	hosts := splitNonEmpty(api)
	if len(hosts) == 0 || username == "" || password == "" {
		fmt.Fprintln(os.Stderr, "rawcapture: --api, --username and --password are required")
		os.Exit(1)
	}

	src, err := datasource.NewLiveSource(datasource.LiveConfig{
		Hosts:       hosts,
		Credentials: datasource.LiveCredentials{Username: username, Password: password},
		Fetch: datasource.FetchPolicy{
			Timeout:       30 * time.Second,
			TLSValidation: datasource.TLSValidation(tlsValidation),
			CABundlePath:  tlsCa,
		},
		SessionTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
	}, ratelimit.New(ratelimit.DefaultConfig()), log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rawcapture: session setup failed:", err)
		os.Exit(1)
	}

	if err := src.Init(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "rawcapture: login/discovery failed:", err)
		os.Exit(1)
	}
	defer src.Close(ctx)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "rawcapture: create output directory:", err)
		os.Exit(1)
	}

	captured := make(map[string][]byte, len(catalog.AllNames()))
	failed := 0
	for _, name := range orderedNames(catalog.AllNames()) {
		if name == "ethernet_interface_config_alias" {
			continue
		}
		raw, err := captureEndpoint(ctx, src, name, captured)
		if err != nil {
			log.WarnCtx(ctx, "capture failed", "endpoint", name, "error", err)
			failed++
			continue
		}
		if raw == nil {
			continue
		}
		captured[name] = raw
		path := filepath.Join(outDir, fmt.Sprintf("%s_%s_%d.json", name, src.SystemID(), batch))
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			log.WarnCtx(ctx, "write capture file failed", "endpoint", name, "error", err)
			failed++
		}
	}

	log.InfoCtx(ctx, "capture complete", "system_id", src.SystemID(), "batch", batch, "endpoints_failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// captureEndpoint resolves name's URL (substituting {system_id} and, for
// dependent endpoints, {id} per parent IDs already captured this run) and
// returns the raw response body(ies). Dependent endpoints combine each
// per-id response into a single JSON array, matching what
// datasource.decodeBatchFile expects to read back.
func captureEndpoint(ctx context.Context, src *datasource.LiveSource, name string, captured map[string][]byte) ([]byte, error) {
	tmpl, ok := catalog.URLTemplate(name)
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", name)
	}
	url := strings.ReplaceAll(src.BaseURL()+tmpl, "{system_id}", src.SystemID())

	parent, idField, isDependent := catalog.DependsOn(name)
	if !isDependent {
		raw, status, err := src.RawGet(ctx, url)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("HTTP %d", status)
		}
		return raw, nil
	}

	parentRaw, ok := captured[parent]
	if !ok {
		return nil, nil // parent produced nothing this run; nothing to substitute
	}
	ids := datasource.ExtractIDs(parentRaw, idField)
	var combined []json.RawMessage
	for _, id := range ids {
		u := strings.ReplaceAll(url, "{id}", id)
		raw, status, err := src.RawGet(ctx, u)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("HTTP %d", status)
		}
		combined = append(combined, flattenToElements(raw)...)
	}
	if len(combined) == 0 {
		return nil, nil
	}
	return json.Marshal(combined)
}

// flattenToElements parses raw as either a JSON array or a single object
// and returns its elements as raw messages, so multiple per-id responses
// (each array or object shaped) combine into one flat array.
func flattenToElements(raw []byte) []json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil
		}
		return elems
	}
	return []json.RawMessage{json.RawMessage(raw)}
}

// orderedNames sorts alphabetically, then moves any endpoint with a
// catalog.DependsOn parent after every independent endpoint, so a
// dependent endpoint is never captured before its parent's IDs exist --
// the same ordering rule datasource.LiveSource applies internally.
func orderedNames(names []string) []string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	var independents, dependents []string
	for _, n := range sorted {
		if _, _, ok := catalog.DependsOn(n); ok {
			dependents = append(dependents, n)
		} else {
			independents = append(independents, n)
		}
	}
	return append(independents, dependents...)
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
