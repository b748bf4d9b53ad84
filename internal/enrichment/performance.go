package enrichment

import (
	"sort"
	"strconv"
	"strings"

	"github.com/scaleout/eseries-collector/internal/model"
)

// EnrichPerformance dispatches each performance measurement to its
// object-specific enricher (spec.md §4.3.2), tagging every output record
// with the canonical system identity first.
func EnrichPerformance(result *model.CollectionResult, idx *Indices, systemID, systemName string) *model.CollectionResult {
	out := model.NewCollectionResult()
	for measurement, recs := range result.Records {
		var enriched []model.Record
		switch measurement {
		case "performance_volume_statistics":
			enriched = enrichVolumePerformance(recs, idx)
		case "performance_drive_statistics":
			enriched = enrichDrivePerformance(recs, idx)
		case "performance_controller_statistics":
			enriched = enrichControllerPerformance(recs, idx)
		case "performance_interface_statistics":
			enriched = enrichInterfacePerformance(recs, idx)
		case "performance_system_statistics":
			enriched = enrichSystemPerformance(recs, idx)
		default:
			enriched = recs
		}
		for i := range enriched {
			enriched[i]["system_id"] = systemID
			enriched[i]["storage_system_name"] = systemName
		}
		out.Add(measurement, enriched...)
	}
	return out
}

func sortedJoinedNames(names []string) string {
	if len(names) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(names))
	unique := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		unique = append(unique, n)
	}
	sort.Strings(unique)
	return strings.Join(unique, ",")
}

// resolveMappingTargets implements spec.md §4.3.2's host/host-group
// resolution for one volume's mappings: host-type mappings resolve directly;
// cluster-type mappings resolve the host-group plus every host whose
// clusterRef transitively matches.
func resolveMappingTargets(mappings []Mapping, idx *Indices) (hosts []string, hostGroups []string) {
	for _, m := range mappings {
		switch m.Type {
		case "host":
			host, ok := idx.HostByRef[m.MapRef]
			if !ok {
				continue
			}
			if name := host.GetString("name"); name != "" {
				hosts = append(hosts, name)
			}
			if clusterRef := host.GetString("clusterRef"); clusterRef != "" {
				if hg, ok := idx.HostGroupByRef[clusterRef]; ok {
					if name := hg.GetString("name"); name != "" {
						hostGroups = append(hostGroups, name)
					}
				}
			}
		case "cluster":
			hg, ok := idx.HostGroupByRef[m.MapRef]
			if ok {
				if name := hg.GetString("name"); name != "" {
					hostGroups = append(hostGroups, name)
				}
			}
			for _, h := range idx.HostByRef {
				if h.GetString("clusterRef") == m.MapRef {
					if name := h.GetString("name"); name != "" {
						hosts = append(hosts, name)
					}
				}
			}
		}
	}
	return hosts, hostGroups
}

func controllerUnitFromPerformanceRecord(r model.Record) model.ControllerUnit {
	ref := r.GetString("controllerId")
	return model.ControllerUnitFromRef(ref, "")
}

func enrichVolumePerformance(recs []model.Record, idx *Indices) []model.Record {
	out := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		e := r.Clone()
		volID := r.GetString("volumeId")
		e["controller_unit"] = string(controllerUnitFromPerformanceRecord(r))

		vol, found := idx.VolumeByRef[volID]
		if !found {
			// spec.md §7 "Enrichment error": performance records fall back
			// to unknown joins rather than being dropped. Every tag key this
			// measurement can carry must still be present so the scrape
			// writer's per-metric label set stays consistent across records
			// (spec.md §8 "no panics on valid input").
			e["host"] = ""
			e["host_group"] = ""
			e["storage_pool"] = ""
			out = append(out, e)
			continue
		}
		e["storage_pool"] = ""
		if poolRef := vol.GetString("volumeGroupRef"); poolRef != "" {
			if pool, ok := idx.PoolByRef[poolRef]; ok {
				e["storage_pool"] = pool.GetString("name")
			}
		}
		hosts, hostGroups := resolveMappingTargets(idx.MappingsByVolumeRef[volID], idx)
		e["host"] = sortedJoinedNames(hosts)
		e["host_group"] = sortedJoinedNames(hostGroups)
		out = append(out, e)
	}
	return out
}

func enrichDrivePerformance(recs []model.Record, idx *Indices) []model.Record {
	out := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		e := r.Clone()
		driveID := r.GetString("diskId")
		// Drives deliberately carry no controller_unit tag (spec.md §4.3.2):
		// the reporting controller can shuffle and would mislead. interfaceType,
		// pool_name and vol_group_name are tags (internal/writer.knownTagKeys),
		// and driveMediaType is one by its "_type" suffix (writer.IsTagKey),
		// so every record must carry them even when unresolved, or the scrape
		// writer's gauge label arity would vary across records. Defaulted under
		// the same raw key the resolved-case assignments below use, so exactly
		// one of the two ever lands in the record.
		e["driveMediaType"] = ""
		e["interfaceType"] = ""
		e["pool_name"] = ""
		e["vol_group_name"] = ""
		drive, ok := idx.DriveByRef[driveID]
		if !ok {
			out = append(out, e)
			continue
		}
		for _, field := range []string{"driveMediaType", "usableCapacity", "interfaceType", "manufacturer", "model", "serialNumber", "firmwareVersion", "ssdWearLife"} {
			if v, ok := drive[field]; ok {
				e[field] = v
			}
		}
		if vgRef := drive.GetString("currentVolumeGroupRef"); vgRef != "" {
			if pool, ok := idx.PoolByRef[vgRef]; ok {
				e["pool_name"] = pool.GetString("name")
				e["vol_group_name"] = pool.GetString("name")
			}
		}
		out = append(out, e)
	}
	return out
}

// enrichControllerPerformance implements the §4.3.2 trim-to-two-most-recent
// rule: the raw record is the {statistics, tokenId} envelope wrapped by the
// live/replay data source (see datasource.wrapControllerStatistics).
func enrichControllerPerformance(recs []model.Record, idx *Indices) []model.Record {
	var entries []model.Record
	for _, r := range recs {
		raw, ok := r["statistics"].([]model.Record)
		if !ok {
			continue
		}
		entries = append(entries, raw...)
	}
	if len(entries) > 2 {
		sort.SliceStable(entries, func(i, j int) bool {
			return toInt64Best(entries[i]["observedTimeInMS"]) > toInt64Best(entries[j]["observedTimeInMS"])
		})
		entries = entries[:2]
	}

	out := make([]model.Record, 0, len(entries))
	for _, e := range entries {
		rec := e.Clone()
		controllerID := e.GetString("controllerId")
		rec["controller_id"] = controllerID
		rec["controller_unit"] = string(model.ControllerUnitFromRef(controllerID, ""))
		rec["source_controller"] = controllerID
		// modelName is a tag (writer.knownTagKeys' "model_name"); default it so
		// every record in this measurement carries the same tag-key set even
		// when the controller ref does not resolve.
		rec["modelName"] = ""
		if ctrl, ok := idx.ControllerByRef[controllerID]; ok {
			for _, field := range []string{"modelName", "status"} {
				if v, ok := ctrl[field]; ok {
					rec[field] = v
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

// toInt64Best tolerates the array's inconsistent observedTimeInMS encoding
// (plain number in some firmware, quoted string in others — see spec.md §8
// scenario S1).
func toInt64Best(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func enrichInterfacePerformance(recs []model.Record, idx *Indices) []model.Record {
	out := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		e := r.Clone()
		ifaceID := r.GetString("interfaceId")
		// controller_unit and interface_type are tags; default them before
		// either return path so every performance_interface_statistics record
		// carries them.
		e["controller_unit"] = ""
		e["interface_type"] = ""
		iface, ok := idx.InterfaceByRef[ifaceID]
		if !ok {
			out = append(out, e)
			continue
		}
		if ctrlRef := iface.GetString("controllerRef"); ctrlRef != "" {
			e["controller_unit"] = string(model.ControllerUnitFromRef(ctrlRef, ""))
		}
		ifaceType := ""
		if nested, ok := iface["ioInterfaceTypeData"].(model.Record); ok {
			ifaceType = nested.GetString("interfaceType")
		}
		if ifaceType == "" {
			ifaceType = iface.GetString("interfaceType")
		}
		switch {
		case ifaceType == "":
			if _, hasEthernet := iface["ethernet"]; hasEthernet {
				ifaceType = "ethernet"
			}
		case ifaceType == "pcie":
			ifaceType = "other"
		}
		e["interface_type"] = ifaceType

		for _, field := range []string{"linkStatus", "speed", "channel"} {
			if v, ok := iface[field]; ok {
				e[field] = v
			}
		}
		switch ifaceType {
		case "infiniband":
			for _, field := range []string{"portState", "gid"} {
				if v, ok := iface[field]; ok {
					e[field] = v
				}
			}
		case "iscsi":
			for _, field := range []string{"tcpListenPort", "ipv4Address"} {
				if v, ok := iface[field]; ok {
					e[field] = v
				}
			}
		case "ethernet":
			for _, field := range []string{"macAddress", "fullDuplex"} {
				if v, ok := iface[field]; ok {
					e[field] = v
				}
			}
		}
		out = append(out, e)
	}
	return out
}

func enrichSystemPerformance(recs []model.Record, idx *Indices) []model.Record {
	out := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		e := r.Clone()
		wwn := r.GetString("storageSystemWWN")
		// modelName is a tag (writer.knownTagKeys' "model_name"); default it
		// before either return path keeps its key present on every record.
		e["modelName"] = ""
		sys, ok := idx.SystemByWWN[wwn]
		if !ok {
			out = append(out, e)
			continue
		}
		for _, field := range []string{"modelName", "fwVersion", "appVersion", "bootVersion", "nvsramVersion", "chassisSerialNumber", "driveCount", "trayCount"} {
			if v, ok := sys[field]; ok {
				e[field] = v
			}
		}
		if types, ok := sys["driveTypes"].([]any); ok {
			names := make([]string, 0, len(types))
			for _, t := range types {
				if s, ok := t.(string); ok {
					names = append(names, s)
				}
			}
			e["drive_types"] = sortedJoinedNames(names)
		}
		out = append(out, e)
	}
	return out
}
