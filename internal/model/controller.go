package model

import (
	"net/url"
	"strings"
)

// ControllerUnit is the redundant-controller discriminator (spec.md GLOSSARY).
type ControllerUnit string

const (
	ControllerA       ControllerUnit = "A"
	ControllerB       ControllerUnit = "B"
	ControllerUnknown ControllerUnit = "unknown"
)

// ControllerUnitFromRef derives the controller unit from a controller
// reference, preferring an explicit physicalLocation.label when present and
// falling back to the "...00000001"/"...00000002" suffix convention
// (spec.md §9, "Controller unit heuristic").
func ControllerUnitFromRef(ref string, label string) ControllerUnit {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "A":
		return ControllerA
	case "B":
		return ControllerB
	}
	switch {
	case strings.HasSuffix(ref, "00000001"):
		return ControllerA
	case strings.HasSuffix(ref, "00000002"):
		return ControllerB
	default:
		return ControllerUnknown
	}
}

// SanitizeTagValue applies the TSDB tag sanitation rules from spec.md
// §4.5.1: collapse whitespace, replace line-protocol-significant characters,
// default to "unknown" when empty. Both writers use it so that a tag value
// that reaches a sink is safe regardless of destination.
func SanitizeTagValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	fields := strings.Fields(s)
	s = strings.Join(fields, " ")
	replacer := strings.NewReplacer(",", "_", "=", "_", "\n", "_", "\r", "_")
	s = replacer.Replace(s)
	return s
}

// optionalEndpoints is the set of optional-feature endpoints whose 404 is
// demoted to an info log (spec.md §4.2 "Optional-feature tolerance");
// IsOptionalEndpoint reports whether endpoint name is in it.
var optionalEndpoints = map[string]bool{
	"snapshot_groups":       true,
	"snapshot_images":       true,
	"snapshot_schedules":    true,
	"flash_cache":           true,
	"ssd_cache":             true,
	"async_mirrors":         true,
	"sync_mirrors":          true,
	"consistency_groups":    true,
	"consistency_group_vol": true,
}

func IsOptionalEndpoint(name string) bool { return optionalEndpoints[name] }

// ParentIDs extracts a list of "{id}" substitution values from a parent
// endpoint's already-collected records, using idField as the key to read
// from each record (internal/catalog "ID dependencies" table, spec.md §4.1).
func ParentIDs(records []Record, idField string) []string {
	ids := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		id := r.GetString(idField)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// HostFromURL is a small helper used by the rate limiter to shard by array
// host rather than full URL.
func HostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return strings.ToLower(u.Hostname())
}
