// Package enrichment is the L3 cross-referencing engine (spec.md §4.3): it
// builds lookup indices from a cycle's configuration records and joins every
// performance, event and environmental record against them, grounded on the
// teacher's engine/internal/processor dispatch-by-category shape and
// engine/business index-join pattern.
package enrichment

import "github.com/scaleout/eseries-collector/internal/model"

// Mapping is one volume<->host/cluster mapping entry (spec.md §4.3.1).
type Mapping struct {
	MapRef string
	Type   string // "host" | "cluster"
}

// Indices holds the per-cycle lookup tables built from configuration
// records (spec.md §4.3.1). They are rebuilt every cycle and never persist
// across cycles.
type Indices struct {
	SystemByWWN         map[string]model.Record
	ControllerByRef      map[string]model.Record
	PoolByRef            map[string]model.Record
	VolumeByRef          map[string]model.Record
	HostByRef            map[string]model.Record
	HostGroupByRef       map[string]model.Record
	MappingsByVolumeRef  map[string][]Mapping
	DriveByRef           map[string]model.Record
	InterfaceByRef       map[string]model.Record
}

// BuildIndices constructs Indices from a collectConfiguration result. Any
// measurement the config result does not carry simply leaves its index
// empty; callers must not assume every index is populated.
func BuildIndices(config *model.CollectionResult) *Indices {
	idx := &Indices{
		SystemByWWN:        map[string]model.Record{},
		ControllerByRef:     map[string]model.Record{},
		PoolByRef:           map[string]model.Record{},
		VolumeByRef:         map[string]model.Record{},
		HostByRef:           map[string]model.Record{},
		HostGroupByRef:      map[string]model.Record{},
		MappingsByVolumeRef: map[string][]Mapping{},
		DriveByRef:          map[string]model.Record{},
		InterfaceByRef:      map[string]model.Record{},
	}
	if config == nil {
		return idx
	}

	for _, r := range config.Records["config_storage_systems"] {
		wwn := r.GetString("wwn")
		if wwn == "" {
			wwn = r.GetString("id")
		}
		if wwn != "" {
			idx.SystemByWWN[wwn] = r
		}
	}
	for _, r := range config.Records["config_controllers"] {
		if ref := r.GetString("controllerRef"); ref != "" {
			idx.ControllerByRef[ref] = r
		}
	}
	for _, r := range config.Records["config_storage_pools"] {
		if ref := r.GetString("volumeGroupRef"); ref != "" {
			idx.PoolByRef[ref] = r
		}
	}
	for _, r := range config.Records["config_volumes"] {
		if ref := r.GetString("volumeRef"); ref != "" {
			idx.VolumeByRef[ref] = r
		}
	}
	for _, r := range config.Records["config_hosts"] {
		if ref := r.GetString("hostRef"); ref != "" {
			idx.HostByRef[ref] = r
		}
	}
	for _, r := range config.Records["config_host_groups"] {
		if ref := r.GetString("clusterRef"); ref != "" {
			idx.HostGroupByRef[ref] = r
		}
	}
	for _, r := range config.Records["config_volume_mappings"] {
		volRef := r.GetString("volumeRef")
		if volRef == "" {
			continue
		}
		idx.MappingsByVolumeRef[volRef] = append(idx.MappingsByVolumeRef[volRef], Mapping{
			MapRef: r.GetString("mapRef"),
			Type:   r.GetString("type"),
		})
	}
	for _, r := range config.Records["config_drives"] {
		if ref := r.GetString("driveRef"); ref != "" {
			idx.DriveByRef[ref] = r
		}
	}
	for _, r := range config.Records["config_interfaces"] {
		if ref := r.GetString("interfaceRef"); ref != "" {
			idx.InterfaceByRef[ref] = r
		}
	}
	return idx
}
