package enrichment

import "github.com/scaleout/eseries-collector/internal/model"

// temperatureSensorOK is the "currentTemp == 128" vendor convention (spec.md
// §4.3.5, §9 "Environmental sensor heuristic"), treated as authoritative.
// Neither this package nor its caller logs when a sensor is classified by
// it.
const temperatureSensorOK = 128.0

const (
	temperatureMin = -40.0
	temperatureMax = 100.0
)

// EnrichEnvironmental dispatches env_power/env_temp records to their
// variant-specific enricher based on the "measurement" key the data source
// attached when it unwrapped the envelope (spec.md §4.2 "Environmental
// shape").
func EnrichEnvironmental(result *model.CollectionResult, systemID, systemName string) *model.CollectionResult {
	out := model.NewCollectionResult()
	for measurement, recs := range result.Records {
		enriched := make([]model.Record, 0, len(recs))
		for _, r := range recs {
			e := r.Clone()
			switch e.GetString("measurement") {
			case "power":
				enrichPowerRecord(e)
				e["system_id"] = systemID
				e["storage_system_name"] = systemName
				enriched = append(enriched, e)
			case "temp":
				sensorRecs := enrichTemperatureRecords(e)
				for _, sr := range sensorRecs {
					sr["system_id"] = systemID
					sr["storage_system_name"] = systemName
					enriched = append(enriched, sr)
				}
			default:
				e["system_id"] = systemID
				e["storage_system_name"] = systemName
				enriched = append(enriched, e)
			}
		}
		out.Add(measurement, enriched...)
	}
	return out
}

// enrichPowerRecord copies the envelope's returnCode into return_code
// (system identity is set by EnrichEnvironmental). The tray/PSU readings
// stay nested under "data": neither this enricher nor the writers flatten
// them into per-tray or per-PSU fields.
func enrichPowerRecord(e model.Record) {
	e["return_code"] = e.GetString("returnCode")
}

// enrichTemperatureRecords expands the "data" list of sensors into one
// output record per sensor, each classified per spec.md §4.3.5.
func enrichTemperatureRecords(e model.Record) []model.Record {
	var out []model.Record
	sensors, ok := e["data"].([]model.Record)
	if !ok {
		return []model.Record{e}
	}
	for _, sensor := range sensors {
		rec := model.Record{
			"return_code": e.GetString("returnCode"),
		}
		ref := sensor.GetString("thermalSensorRef")
		rec["thermal_sensor_ref"] = ref
		current := toFloatBest(sensor["currentTemp"])

		isStatus := current == temperatureSensorOK ||
			len(ref) >= 6 && ref[len(ref)-6:] == "000001" ||
			current < temperatureMin || current > temperatureMax

		if isStatus {
			rec["sensor_type"] = "status"
			if current == temperatureSensorOK {
				rec["sensor_status"] = 0
			} else {
				rec["sensor_status"] = 1
			}
		} else {
			rec["sensor_type"] = "temperature"
			rec["temperature_celsius"] = current
		}
		out = append(out, rec)
	}
	return out
}

func toFloatBest(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}
