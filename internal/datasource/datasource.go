// Package datasource is the L2 data-source abstraction (spec.md §4.2): a
// uniform record stream whether records originate from a live HTTP session
// or on-disk JSON snapshots. The interface shape is grounded on the
// teacher's engine/crawler.Fetcher (a small capability interface a
// polymorphic implementation satisfies), generalized from "fetch a page"
// to "collect a category of endpoints".
package datasource

import (
	"context"

	"github.com/scaleout/eseries-collector/internal/model"
)

// DataSource is polymorphic over {Live, Replay}; both implementations
// guarantee that collectConfiguration completes before collectPerformance
// is called within one cycle (enforced by the caller, internal/collector).
type DataSource interface {
	// Init establishes session/system identity (live: login + discovery;
	// replay: read the first batch's file names). Must be called once
	// before any Collect* method.
	Init(ctx context.Context) error

	CollectPerformance(ctx context.Context) (*model.CollectionResult, error)
	CollectConfiguration(ctx context.Context) (*model.CollectionResult, error)
	CollectEvents(ctx context.Context) (*model.CollectionResult, error)
	CollectEnvironmental(ctx context.Context) (*model.CollectionResult, error)

	// SystemID and SystemName return the discovered array identity
	// (spec.md §3 "Identifiers"); both are "unknown" until Init succeeds.
	SystemID() string
	SystemName() string

	// Close releases session/transport resources (live: logout; replay:
	// stop any directory watch).
	Close(ctx context.Context) error
}

// Replayer is implemented only by the replay data source; the driver type
// -asserts for it to drive the batch loop described in spec.md §4.4.
type Replayer interface {
	AdvanceBatch() error
	HasMoreBatches() bool
}

const (
	unknownSystemID   = "unknown"
	unknownSystemName = "unknown"
)
