// Package model defines the record and point types that flow through the
// collection pipeline: raw records coming out of a data source, and the
// canonical tagged points handed to writers after enrichment.
package model

import (
	"strconv"
	"time"
)

// Category is one of the four fixed endpoint categories (spec.md §3).
type Category string

const (
	CategoryPerformance   Category = "performance"
	CategoryConfiguration Category = "configuration"
	CategoryEvents        Category = "events"
	CategoryEnvironmental Category = "environmental"
)

// Record is a single key->value map describing one sample, config row, event
// or sensor reading. Keys are either tags (low-cardinality, string-valued,
// indexable) or fields (possibly numeric); the split happens at the writer
// boundary via the per-measurement conversion table (internal/writer), not
// here. Record is intentionally loosely typed because the array's JSON
// responses mix strings, numbers and nested objects for the same logical
// field across firmware versions.
type Record map[string]any

// Clone returns a shallow copy of r; enrichers must never mutate the record
// they were handed in place, since the same raw record batch can be joined
// against multiple indices in S2-style fan-out (one performance row -> one
// emitted record per resolved mapping is NOT done; see
// enrichment.enrichVolumePerformance,
// which instead aggregates into a single host/host_group tag set).
func (r Record) Clone() Record {
	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// GetString returns the string form of key k, or "" if absent. It accepts
// string, fmt.Stringer-free scalars via a best-effort conversion because the
// array API is inconsistent about whether numeric-looking IDs are quoted.
func (r Record) GetString(k string) string {
	v, ok := r[k]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Measurement is the canonical "<category>_<object>" name a batch of records
// is keyed under once it has left the data source (spec.md §3).
type Measurement string

// CollectionResult is what every DataSource method returns: records grouped
// by canonical measurement name, plus a success flag, error message and free
// form metadata (e.g. HTTP status per endpoint) for the driver's per-cycle
// summary line.
type CollectionResult struct {
	Records  map[Measurement][]Record
	Success  bool
	Error    string
	Metadata map[string]any
}

// NewCollectionResult returns an empty, successful result ready to accumulate
// records into.
func NewCollectionResult() *CollectionResult {
	return &CollectionResult{
		Records:  make(map[Measurement][]Record),
		Success:  true,
		Metadata: make(map[string]any),
	}
}

// Add appends records under measurement m, creating the slice on first use.
func (c *CollectionResult) Add(m Measurement, recs ...Record) {
	if len(recs) == 0 {
		return
	}
	c.Records[m] = append(c.Records[m], recs...)
}

// Count returns the total number of records across all measurements.
func (c *CollectionResult) Count() int {
	n := 0
	for _, recs := range c.Records {
		n += len(recs)
	}
	return n
}

// Point is the canonical, typed, tagged unit handed to writers: a
// measurement name, a tag set, a field set and a timestamp. Point is the
// single currency writers convert into their own wire format (line protocol
// or a Prometheus gauge update).
type Point struct {
	Measurement Measurement
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// TimeFromRecord resolves the point in time a record was observed, per
// spec.md §3: observedTimeInMS/1000 (truncated), else a parsed observedTime
// (ISO-8601), else wall clock at collection.
func TimeFromRecord(r Record, fallback time.Time) time.Time {
	if v, ok := r["observedTimeInMS"]; ok {
		if ms, ok := toInt64(v); ok {
			return time.UnixMilli(ms).Truncate(time.Second)
		}
	}
	if v, ok := r["observedTime"]; ok {
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
		}
	}
	return fallback
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		var n int64
		var neg bool
		s := t
		if s == "" {
			return 0, false
		}
		if s[0] == '-' {
			neg = true
			s = s[1:]
		}
		for _, c := range s {
			if c < '0' || c > '9' {
				return 0, false
			}
			n = n*10 + int64(c-'0')
		}
		if neg {
			n = -n
		}
		return n, true
	default:
		return 0, false
	}
}
