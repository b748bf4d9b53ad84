package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleout/eseries-collector/internal/model"
)

func TestTemperatureStatusVsSensorClassification(t *testing.T) {
	env := model.NewCollectionResult()
	env.Add("env_temp", model.Record{
		"measurement": "temp",
		"returnCode":  "ok",
		"data": []model.Record{
			{"thermalSensorRef": "ref...000001", "currentTemp": 128.0},
			{"thermalSensorRef": "ref...000002", "currentTemp": 37.0},
		},
	})

	out := EnrichEnvironmental(env, "sys", "lab")
	recs := out.Records["env_temp"]
	require.Len(t, recs, 2)

	assert.Equal(t, "status", recs[0]["sensor_type"])
	assert.Equal(t, 0, recs[0]["sensor_status"])
	_, hasTemp := recs[0]["temperature_celsius"]
	assert.False(t, hasTemp)

	assert.Equal(t, "temperature", recs[1]["sensor_type"])
	assert.Equal(t, 37.0, recs[1]["temperature_celsius"])
	_, hasStatus := recs[1]["sensor_status"]
	assert.False(t, hasStatus)
}

func TestPowerEnrichmentPreservesReturnCode(t *testing.T) {
	env := model.NewCollectionResult()
	env.Add("env_power", model.Record{
		"measurement": "power",
		"returnCode":  "ok",
		"data":        model.Record{"totalPower": 500.0},
	})
	out := EnrichEnvironmental(env, "sys", "lab")
	r := out.Records["env_power"][0]
	assert.Equal(t, "ok", r["return_code"])
	assert.Equal(t, "sys", r["system_id"])
}
