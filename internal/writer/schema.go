package writer

import "github.com/mitchellh/mapstructure"

// FieldType is the declared type a schema.go conversion table entry expects
// for one field (spec.md §4.6).
type FieldType int

const (
	FieldAny FieldType = iota
	FieldFloat
	FieldInt
	FieldBool
	FieldString
)

// Schema is a minimal per-measurement field-type table: only fields worth
// constraining (numeric counters the array sometimes stringifies) need an
// entry; everything else passes through untouched, consistent with spec.md
// §4.6 "leaves unknown (non-schema) fields in place".
type Schema map[string]FieldType

// CoerceFields applies decl's declared types to fields in place using
// mapstructure's WeaklyTypedInput decode path (grounded on the ops-agent
// example's use of mapstructure to decode loosely-typed JSON/config into
// typed fields): a numeric field arriving as a JSON string is parsed; a
// field that cannot be coerced to its declared type is dropped rather than
// passed through malformed (spec.md §4.6).
func CoerceFields(fields map[string]any, decl Schema) {
	for name, want := range decl {
		v, ok := fields[name]
		if !ok {
			continue
		}
		coerced, ok := coerceOne(v, want)
		if !ok {
			delete(fields, name)
			continue
		}
		fields[name] = coerced
	}
}

func decodeWeak(v, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(v)
}

func coerceOne(v any, want FieldType) (any, bool) {
	switch want {
	case FieldFloat:
		var f float64
		if err := decodeWeak(v, &f); err != nil {
			return nil, false
		}
		return f, true
	case FieldInt:
		var n int64
		if err := decodeWeak(v, &n); err != nil {
			return nil, false
		}
		return n, true
	case FieldBool:
		var b bool
		if err := decodeWeak(v, &b); err != nil {
			return nil, false
		}
		return b, true
	case FieldString:
		var s string
		if err := decodeWeak(v, &s); err != nil {
			return nil, false
		}
		return s, true
	default:
		return v, true
	}
}

// isNumericField reports whether a snake_case field name matches one of the
// performance-counter patterns the array may stringify (spec.md §4.5
// "Fields include all *IOps, *Throughput, *ResponseTime...").
func isNumericField(name string) bool {
	suffixes := []string{"_iops", "_throughput", "_response_time", "_response_time_stddev", "_queue_depth", "_avg_size", "_utilization", "_power", "_temperature_celsius"}
	for _, s := range suffixes {
		if len(name) >= len(s) && name[len(name)-len(s):] == s {
			return true
		}
	}
	return false
}

// SchemaForRecord derives a Schema covering every field SplitTagsAndFields
// would classify as numeric-by-convention, so the validator in §4.6 can run
// without a hand-maintained table for all ~40 measurements.
func SchemaForRecord(fields map[string]any) Schema {
	s := make(Schema, len(fields))
	for name := range fields {
		if isNumericField(name) {
			s[name] = FieldFloat
		}
	}
	return s
}
