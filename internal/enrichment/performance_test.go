package enrichment

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleout/eseries-collector/internal/model"
	"github.com/scaleout/eseries-collector/internal/writer"
)

func TestVolumePerformanceS1HappyPath(t *testing.T) {
	config := model.NewCollectionResult()
	config.Add("config_storage_pools", model.Record{"volumeGroupRef": "p1-ref", "name": "p1"})
	config.Add("config_volumes", model.Record{"volumeRef": "v1-ref", "volumeGroupRef": "p1-ref", "name": "v1"})
	config.Add("config_hosts", model.Record{"hostRef": "h1-ref", "name": "h1", "clusterRef": "c1"})
	config.Add("config_host_groups", model.Record{"clusterRef": "c1", "name": "hg1"})
	config.Add("config_volume_mappings", model.Record{"volumeRef": "v1-ref", "mapRef": "h1-ref", "type": "host"})
	idx := BuildIndices(config)

	perf := model.NewCollectionResult()
	perf.Add("performance_volume_statistics", model.Record{
		"volumeId":         "v1-ref",
		"controllerId":     "ref...00000001",
		"combinedIOps":     1500.5,
		"observedTimeInMS": "1700000000000",
	})

	out := EnrichPerformance(perf, idx, "6D039EA0004D00AA000000006652A086", "lab-01")
	recs := out.Records["performance_volume_statistics"]
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "h1", r["host"])
	assert.Equal(t, "hg1", r["host_group"])
	assert.Equal(t, "p1", r["storage_pool"])
	assert.Equal(t, "A", r["controller_unit"])
	assert.Equal(t, "6D039EA0004D00AA000000006652A086", r["system_id"])
}

func TestVolumePerformanceClusterMappingExpansion(t *testing.T) {
	config := model.NewCollectionResult()
	config.Add("config_storage_pools", model.Record{"volumeGroupRef": "p1-ref", "name": "p1"})
	config.Add("config_volumes", model.Record{"volumeRef": "v1-ref", "volumeGroupRef": "p1-ref", "name": "v1"})
	config.Add("config_hosts", model.Record{"hostRef": "h1-ref", "name": "h1", "clusterRef": "c1"})
	config.Add("config_host_groups", model.Record{"clusterRef": "c1", "name": "hg1"})
	config.Add("config_volume_mappings", model.Record{"volumeRef": "v1-ref", "mapRef": "c1", "type": "cluster"})
	idx := BuildIndices(config)

	perf := model.NewCollectionResult()
	perf.Add("performance_volume_statistics", model.Record{"volumeId": "v1-ref", "controllerId": "ref...00000001"})

	out := EnrichPerformance(perf, idx, "sys", "lab")
	r := out.Records["performance_volume_statistics"][0]
	assert.Equal(t, "h1", r["host"])
	assert.Equal(t, "hg1", r["host_group"])
}

func TestVolumeNotFoundFallsBackToUnknownJoins(t *testing.T) {
	idx := BuildIndices(model.NewCollectionResult())
	perf := model.NewCollectionResult()
	perf.Add("performance_volume_statistics", model.Record{"volumeId": "missing", "controllerId": "x"})

	out := EnrichPerformance(perf, idx, "sys", "lab")
	r := out.Records["performance_volume_statistics"][0]
	assert.Equal(t, "", r["host"])
	assert.Equal(t, "", r["host_group"])
	assert.Equal(t, "", r["storage_pool"])
}

func TestDrivePerformanceHasNoControllerUnitTag(t *testing.T) {
	config := model.NewCollectionResult()
	config.Add("config_drives", model.Record{"driveRef": "d1", "currentVolumeGroupRef": "p1-ref", "driveMediaType": "ssd"})
	config.Add("config_storage_pools", model.Record{"volumeGroupRef": "p1-ref", "name": "p1"})
	idx := BuildIndices(config)

	perf := model.NewCollectionResult()
	perf.Add("performance_drive_statistics", model.Record{"diskId": "d1", "combinedIOps": 10.0})

	out := EnrichPerformance(perf, idx, "sys", "lab")
	r := out.Records["performance_drive_statistics"][0]
	_, hasUnit := r["controller_unit"]
	assert.False(t, hasUnit)
	assert.Equal(t, "p1", r["pool_name"])
}

func TestControllerStatisticsTrimsToTwoMostRecent(t *testing.T) {
	wrapped := model.Record{
		"statistics": []model.Record{
			{"controllerId": "...00000001", "observedTimeInMS": int64(1000)},
			{"controllerId": "...00000002", "observedTimeInMS": int64(1000)},
			{"controllerId": "...00000001", "observedTimeInMS": int64(2000)},
			{"controllerId": "...00000002", "observedTimeInMS": int64(2000)},
			{"controllerId": "...00000001", "observedTimeInMS": int64(500)},
		},
	}
	perf := model.NewCollectionResult()
	perf.Add("performance_controller_statistics", wrapped)

	idx := BuildIndices(model.NewCollectionResult())
	out := EnrichPerformance(perf, idx, "sys", "lab")
	recs := out.Records["performance_controller_statistics"]
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.EqualValues(t, 2000, r["observedTimeInMS"])
	}
}

// TestVolumePerformanceTagKeysStableAcrossJoinResolution guards against the
// scrape writer panic a varying per-record tag-key set would cause
// (prometheus rejects a GaugeVec registered twice under one metric name with
// different label dimensions): a resolved and an unresolved volume record in
// the same cycle must produce identical tag-key sets.
func TestVolumePerformanceTagKeysStableAcrossJoinResolution(t *testing.T) {
	config := model.NewCollectionResult()
	config.Add("config_storage_pools", model.Record{"volumeGroupRef": "p1-ref", "name": "p1"})
	config.Add("config_volumes", model.Record{"volumeRef": "v1-ref", "volumeGroupRef": "p1-ref", "name": "v1"})
	idx := BuildIndices(config)

	perf := model.NewCollectionResult()
	perf.Add("performance_volume_statistics",
		model.Record{"volumeId": "v1-ref", "controllerId": "ref...00000001", "combinedIOps": 1.0},
		model.Record{"volumeId": "missing", "controllerId": "ref...00000002", "combinedIOps": 2.0},
	)

	out := EnrichPerformance(perf, idx, "sys", "lab")
	recs := out.Records["performance_volume_statistics"]
	require.Len(t, recs, 2)

	var tagKeySets [][]string
	for _, r := range recs {
		tags, _ := writer.SplitTagsAndFields(r)
		keys := make([]string, 0, len(tags))
		for k := range tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tagKeySets = append(tagKeySets, keys)
	}
	assert.Equal(t, tagKeySets[0], tagKeySets[1])
}

func TestEmptyControllerStatisticsYieldsZeroPoints(t *testing.T) {
	wrapped := model.Record{"statistics": []model.Record{}}
	perf := model.NewCollectionResult()
	perf.Add("performance_controller_statistics", wrapped)
	idx := BuildIndices(model.NewCollectionResult())
	out := EnrichPerformance(perf, idx, "sys", "lab")
	assert.Empty(t, out.Records["performance_controller_statistics"])
}
