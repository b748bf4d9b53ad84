package enrichment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleout/eseries-collector/internal/model"
	"github.com/scaleout/eseries-collector/internal/telemetry"
)

func TestEventDeduplicationWithinWindow(t *testing.T) {
	ee := NewEventEnricher(5*time.Minute, nil, telemetry.New(nil))
	ctx := context.Background()

	batch := model.NewCollectionResult()
	batch.Add("events_system_failures", model.Record{"failureType": "driveFailure"})

	first := ee.Enrich(ctx, batch, "sys", "lab")
	require.Len(t, first.Records["events_system_failures"], 1)
	assert.Equal(t, "critical", first.Records["events_system_failures"][0]["alert_severity"])

	second := ee.Enrich(ctx, batch, "sys", "lab")
	assert.Empty(t, second.Records["events_system_failures"])
}

func TestEventEnricherSkipsEmptyMeasurements(t *testing.T) {
	ee := NewEventEnricher(5*time.Minute, nil, telemetry.New(nil))
	batch := model.NewCollectionResult()
	out := ee.Enrich(context.Background(), batch, "sys", "lab")
	assert.Empty(t, out.Records)
}
