// Package writer is the L4 serialization/routing layer (spec.md §4.5): it
// converts enriched records into a canonical point model and fans them out
// to the TSDB and/or scrape sinks. Structurally grounded on the teacher's
// engine/output package (OutputSink-style interface, CompositeSink,
// buffered EnhancedSink), retargeted from web-page results to
// measurement-keyed telemetry batches.
package writer

import (
	"regexp"
	"strings"

	"github.com/scaleout/eseries-collector/internal/model"
)

// acronymNormalize retitles known multi-cap acronyms to a single
// title-cased word before the generic camel->snake pass, so they collapse
// to one token instead of being split letter-by-letter (spec.md §4.5.2:
// "IOps, StdDev, ID, URL, HTTP are smashed to lowercase single tokens").
var acronymNormalize = strings.NewReplacer(
	"IOps", "Iops",
	"StdDev", "Stddev",
	"ID", "Id",
	"URL", "Url",
	"HTTP", "Http",
)

var (
	matchFirstCap = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	matchAllCap   = regexp.MustCompile(`([a-z0-9])([A-Z]+)`)
)

// ToSnakeCase converts a camelCase (or already snake_case) field name to
// snake_case, smashing the acronyms spec.md §4.5.2 names. Idempotent on
// input that is already snake_case.
func ToSnakeCase(s string) string {
	s = acronymNormalize.Replace(s)
	s = matchFirstCap.ReplaceAllString(s, "${1}_${2}")
	s = matchAllCap.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}

// knownTagKeys are the snake_case field names every writer treats as tags
// regardless of measurement, covering the canonical system identity plus
// the object tags the enrichers attach (spec.md §4.5 "a per-measurement
// conversion table determines... which fields are tags"). Rather than
// hand-maintaining ~40 duplicate tables, one per endpoint, the writer
// classifies by field name against this registry — the same set of names
// the enrichers in internal/enrichment actually produce.
var knownTagKeys = map[string]bool{
	"system_id": true, "storage_system_name": true,
	"volume_id": true, "volume_name": true,
	"controller_id": true, "controller_unit": true, "source_controller": true,
	"host": true, "host_group": true, "storage_pool": true,
	"drive_id": true, "drive_slot": true, "tray_id": true,
	"vol_group_id": true, "vol_group_name": true, "pool_name": true,
	"return_code": true, "sensor_type": true, "thermal_sensor_ref": true,
	"alert_type": true, "alert_severity": true, "event_category": true,
	"measurement_type": true, "interface_type": true,
	"model_name": true, "host_type_name": true, "host_os": true, "host_category": true,
	"name": true, "id": true,
}

// IsTagKey reports whether the snake_case field name key should be emitted
// as a tag (low-cardinality, indexable, string-valued) rather than a field.
// "_status" is excluded even though it matches a tag-like suffix: sensor and
// job status fields carry a numeric 0/1 (spec.md §4.3.5), not a label.
func IsTagKey(key string) bool {
	if knownTagKeys[key] {
		return true
	}
	if strings.HasSuffix(key, "_status") {
		return false
	}
	switch {
	case strings.HasSuffix(key, "_ref"), strings.HasSuffix(key, "_id"),
		strings.HasSuffix(key, "_name"), strings.HasSuffix(key, "_type"),
		strings.HasSuffix(key, "_unit"):
		return true
	}
	return false
}

// measurementNameRegex is the contract every emitted measurement name must
// satisfy (spec.md §8 "for every writer emission...").
var measurementNameRegex = regexp.MustCompile(`^(config|performance|events|env)_[a-z_]+$`)

// ValidMeasurementName reports whether m is a legal canonical measurement
// name for emission.
func ValidMeasurementName(m model.Measurement) bool {
	return measurementNameRegex.MatchString(string(m))
}

// SplitTagsAndFields partitions one record into its tag set and field set
// per the naming rules above, snake-casing every key on the way out
// (spec.md §4.5.1 "field names are converted to snake_case on emission").
func SplitTagsAndFields(r model.Record) (tags map[string]string, fields map[string]any) {
	tags = make(map[string]string)
	fields = make(map[string]any)
	for k, v := range r {
		if v == nil {
			continue
		}
		snake := ToSnakeCase(k)
		if IsTagKey(snake) {
			tags[snake] = model.SanitizeTagValue(stringifyTag(v))
			continue
		}
		fields[snake] = v
	}
	return tags, fields
}

func stringifyTag(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return ""
	}
}

// ScrapeMetricName synthesizes a Prometheus metric name from a measurement
// and field, per spec.md §4.5.2 ("performance_<object>_<snake_field>" etc).
func ScrapeMetricName(measurement model.Measurement, field string) string {
	return string(measurement) + "_" + ToSnakeCase(field)
}
