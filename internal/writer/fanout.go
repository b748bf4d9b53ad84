package writer

import (
	"context"
	"time"

	"github.com/scaleout/eseries-collector/internal/telemetry"
)

// FanOut composes an ordered list of writers (spec.md §4.5.3), grounded
// directly on the teacher's engine/output.CompositeSink: write calls each
// child in turn, overall success is the conjunction; close is best-effort
// per child, errors logged rather than propagated.
type FanOut struct {
	children []Writer
	log      telemetry.Logger
}

// NewFanOut returns a FanOut writer over children, in the given order.
func NewFanOut(log telemetry.Logger, children ...Writer) *FanOut {
	return &FanOut{children: children, log: log}
}

func (f *FanOut) Write(ctx context.Context, iteration int, batch Batch) bool {
	success := true
	for _, child := range f.children {
		if !child.Write(ctx, iteration, batch) {
			success = false
		}
	}
	return success
}

func (f *FanOut) Close(ctx context.Context, timeout time.Duration) error {
	for _, child := range f.children {
		if err := child.Close(ctx, timeout); err != nil {
			f.log.WarnCtx(ctx, "writer close failed", "error", err)
		}
	}
	return nil
}

var _ Writer = (*FanOut)(nil)
