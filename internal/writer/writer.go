package writer

import (
	"context"
	"time"

	"github.com/scaleout/eseries-collector/internal/model"
)

// Batch is what a Writer consumes: measurement-keyed records that have
// already left the enrichment engine with canonical names (spec.md §4.5
// "measurement keys entering a writer have already been normalized").
type Batch map[model.Measurement][]model.Record

// Writer is anything that accepts write(measurement->[]record, iteration)
// and reports overall success (spec.md §4.5). Writers reject or ignore
// unknown measurement shapes rather than erroring the cycle.
type Writer interface {
	Write(ctx context.Context, iteration int, batch Batch) bool

	// Close releases any background resources (flush worker, HTTP server)
	// within timeout; on timeout it logs and returns rather than blocking
	// indefinitely (spec.md §5 "Cancellation and timeouts").
	Close(ctx context.Context, timeout time.Duration) error
}

// categoryOf derives the category from a canonical measurement's prefix
// (spec.md §3's category behavior table), used by writers that need to gate
// on category (the scrape writer skips Configuration).
func categoryOf(m model.Measurement) model.Category {
	switch {
	case hasPrefix(string(m), "config_"):
		return model.CategoryConfiguration
	case hasPrefix(string(m), "performance_"):
		return model.CategoryPerformance
	case hasPrefix(string(m), "events_"):
		return model.CategoryEvents
	case hasPrefix(string(m), "env_"):
		return model.CategoryEnvironmental
	default:
		return ""
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
