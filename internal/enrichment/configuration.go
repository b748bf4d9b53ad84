package enrichment

import "github.com/scaleout/eseries-collector/internal/model"

// hostTypeEntry is one row of the hostTypeIndex -> (name, OS, category)
// lookup table (spec.md §4.3.3 "a fixed lookup table derived from vendor
// documentation").
type hostTypeEntry struct {
	Name     string
	OS       string
	Category string
}

// hostTypeIndex mirrors the array's documented hostTypeIndex values. Indices
// not present here fall back to "unknown"/"unknown"/"unknown" rather than
// being dropped, consistent with the "never drop input fields, only add"
// rule.
var hostTypeIndex = map[int]hostTypeEntry{
	0:  {"Windows (Non-Clustered)", "windows", "block"},
	1:  {"Solaris (Veritas DMP)", "solaris", "block"},
	2:  {"Oracle VM", "linux", "block"},
	6:  {"Linux", "linux", "block"},
	7:  {"Windows Clustered", "windows", "block"},
	8:  {"NetWare Failover", "netware", "block"},
	9:  {"Windows (Non-Clustered)", "windows", "block"},
	10: {"Linux (Veritas DMP)", "linux", "block"},
	17: {"VMware", "esx", "block"},
	22: {"Linux (Pathmanager)", "linux", "block"},
	26: {"LNXALUA", "linux", "block"},
	27: {"Windows Server (ALUA)", "windows", "block"},
	28: {"AIX (MPIO)", "aix", "block"},
}

// EnrichConfiguration applies per-config-type enrichers over every
// configuration measurement in the batch (spec.md §4.3.3). Enrichers only
// ever add fields; they never drop input. Measurements not specifically
// handled still receive the default name/label normalization.
func EnrichConfiguration(result *model.CollectionResult, systemID, systemName string) *model.CollectionResult {
	out := model.NewCollectionResult()
	for measurement, recs := range result.Records {
		enriched := make([]model.Record, 0, len(recs))
		for _, r := range recs {
			e := r.Clone()
			switch measurement {
			case "config_hosts":
				enrichHostConfig(e)
			case "config_drives":
				enrichDriveConfig(e)
			case "config_storage_pools":
				enrichPoolConfig(e)
			case "config_host_groups":
				enrichHostGroupConfig(e, result)
			default:
				defaultConfigEnrich(e)
			}
			e["system_id"] = systemID
			e["storage_system_name"] = systemName
			enriched = append(enriched, e)
		}
		out.Add(measurement, enriched...)
	}
	return out
}

func defaultConfigEnrich(e model.Record) {
	if e.GetString("name") == "" {
		if label := e.GetString("label"); label != "" {
			e["name"] = label
		}
	}
	if e.GetString("id") == "" {
		for _, refField := range []string{"ref", "volumeRef", "hostRef", "driveRef", "controllerRef", "interfaceRef", "clusterRef"} {
			if ref := e.GetString(refField); ref != "" {
				e["id"] = ref
				break
			}
		}
	}
}

// enrichHostConfig resolves hostTypeIndex -> (host_type_name, host_os,
// host_category); without this downstream dashboards would show only an
// opaque integer (spec.md §4.3.3).
func enrichHostConfig(e model.Record) {
	defaultConfigEnrich(e)
	idx := 0
	switch v := e["hostTypeIndex"].(type) {
	case int:
		idx = v
	case float64:
		idx = int(v)
	}
	entry, ok := hostTypeIndex[idx]
	if !ok {
		entry = hostTypeEntry{"unknown", "unknown", "unknown"}
	}
	e["host_type_name"] = entry.Name
	e["host_os"] = entry.OS
	e["host_category"] = entry.Category
}

// capacityTierFor buckets a usable-capacity figure (bytes, as the array
// reports it) into a coarse tier for dashboard grouping.
func capacityTierFor(bytesCapacity float64) string {
	const gib = 1024 * 1024 * 1024
	switch {
	case bytesCapacity <= 0:
		return "unknown"
	case bytesCapacity < 500*gib:
		return "small"
	case bytesCapacity < 5000*gib:
		return "medium"
	default:
		return "large"
	}
}

func enrichDriveConfig(e model.Record) {
	defaultConfigEnrich(e)
	switch v := e["usableCapacity"].(type) {
	case float64:
		e["capacity_tier"] = capacityTierFor(v)
	case string:
		e["capacity_tier"] = "unknown"
		_ = v
	}
	mediaType := e.GetString("driveMediaType")
	switch mediaType {
	case "ssd":
		e["performance_tier"] = "high"
	case "hdd":
		e["performance_tier"] = "standard"
	default:
		e["performance_tier"] = "unknown"
	}
}

func enrichPoolConfig(e model.Record) {
	defaultConfigEnrich(e)
	raidLevel := e.GetString("raidLevel")
	if raidLevel != "" {
		e["raid_characteristics"] = raidLevel
	}
	total, totalOK := e["totalRaidedSpace"].(float64)
	free, freeOK := e["freeSpace"].(float64)
	if totalOK && freeOK && total > 0 {
		used := (total - free) / total
		switch {
		case used >= 0.9:
			e["utilization_status"] = "critical"
		case used >= 0.75:
			e["utilization_status"] = "warning"
		default:
			e["utilization_status"] = "ok"
		}
	}
}

// enrichHostGroupConfig counts member hosts by scanning the cycle's
// config_hosts batch for matching clusterRef (spec.md §4.3.3 "host-group
// membership counts").
func enrichHostGroupConfig(e model.Record, result *model.CollectionResult) {
	defaultConfigEnrich(e)
	clusterRef := e.GetString("clusterRef")
	count := 0
	for _, h := range result.Records["config_hosts"] {
		if h.GetString("clusterRef") == clusterRef {
			count++
		}
	}
	e["member_host_count"] = count
}
