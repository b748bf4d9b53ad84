// Package catalog is the process-lifetime endpoint registry (spec.md §4.1,
// L1). It is a set of static maps, mirroring the way the teacher codebase
// keeps its fixed lookup tables (rate-limit defaults, host-type tables)
// beside the types they describe rather than behind a loader: there is
// nothing here that changes at runtime.
package catalog

import (
	"fmt"

	"github.com/scaleout/eseries-collector/internal/model"
)

// Endpoint describes one named, templated array management API call.
type Endpoint struct {
	Name        string
	Category    model.Category
	Measurement model.Measurement
	URLTemplate string
	// ParentEndpoint and IDField are set when URLTemplate contains "{id}":
	// IDs to substitute are extracted from ParentEndpoint's already-collected
	// records by reading IDField off each one (spec.md §4.1 "ID dependencies").
	ParentEndpoint string
	IDField        string
}

var endpoints = map[string]Endpoint{
	// --- configuration ---
	"storage_systems":   {Name: "storage_systems", Category: model.CategoryConfiguration, Measurement: "config_storage_systems", URLTemplate: "/devmgr/v2/storage-systems/{system_id}"},
	"controllers":       {Name: "controllers", Category: model.CategoryConfiguration, Measurement: "config_controllers", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/controllers"},
	"storage_pools":     {Name: "storage_pools", Category: model.CategoryConfiguration, Measurement: "config_storage_pools", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/storage-pools"},
	"volumes":           {Name: "volumes", Category: model.CategoryConfiguration, Measurement: "config_volumes", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/volumes"},
	"volume_mappings":   {Name: "volume_mappings", Category: model.CategoryConfiguration, Measurement: "config_volume_mappings", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/volume-mappings"},
	"drives":            {Name: "drives", Category: model.CategoryConfiguration, Measurement: "config_drives", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/drives"},
	"interfaces":        {Name: "interfaces", Category: model.CategoryConfiguration, Measurement: "config_interfaces", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/interfaces"},
	"hosts":             {Name: "hosts", Category: model.CategoryConfiguration, Measurement: "config_hosts", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/hosts"},
	"host_groups":       {Name: "host_groups", Category: model.CategoryConfiguration, Measurement: "config_host_groups", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/host-groups"},
	"trays":             {Name: "trays", Category: model.CategoryConfiguration, Measurement: "config_trays", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/hardware-inventory/trays"},
	"snapshot_groups":   {Name: "snapshot_groups", Category: model.CategoryConfiguration, Measurement: "config_snapshot_groups", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/snapshot-groups"},
	"snapshot_images":   {Name: "snapshot_images", Category: model.CategoryConfiguration, Measurement: "config_snapshot_images", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/snapshot-images"},
	"snapshot_schedules": {Name: "snapshot_schedules", Category: model.CategoryConfiguration, Measurement: "config_snapshot_schedules", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/snapshot-schedules"},
	"flash_cache":       {Name: "flash_cache", Category: model.CategoryConfiguration, Measurement: "config_flash_cache", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/flash-cache"},
	"ssd_cache":         {Name: "ssd_cache", Category: model.CategoryConfiguration, Measurement: "config_ssd_cache", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/ssd-cache"},
	"async_mirrors":     {Name: "async_mirrors", Category: model.CategoryConfiguration, Measurement: "config_async_mirrors", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/async-mirrors"},
	"sync_mirrors":      {Name: "sync_mirrors", Category: model.CategoryConfiguration, Measurement: "config_sync_mirrors", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/sync-mirrors"},
	"consistency_groups": {Name: "consistency_groups", Category: model.CategoryConfiguration, Measurement: "config_consistency_groups", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/consistency-groups"},
	"consistency_group_vol": {Name: "consistency_group_vol", Category: model.CategoryConfiguration, Measurement: "config_consistency_group_volumes", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/consistency-groups/{id}/member-volumes", ParentEndpoint: "consistency_groups", IDField: "id"},
	// Open Question (spec.md §9): the source python table defines
	// ethernet_interface_config twice, silently overwriting a sibling entry.
	// We keep ethernet_interface_config as canonical and expose the alias
	// below resolving to the same template/measurement. The live and replay
	// sources and cmd/rawcapture skip the alias when collecting, without
	// logging it.
	"ethernet_interface_config":       {Name: "ethernet_interface_config", Category: model.CategoryConfiguration, Measurement: "config_ethernet_interfaces", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/host-interfaces/ethernet"},
	"ethernet_interface_config_alias": {Name: "ethernet_interface_config_alias", Category: model.CategoryConfiguration, Measurement: "config_ethernet_interfaces", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/host-interfaces/ethernet"},

	// --- performance ---
	"analyzed_volume_statistics":     {Name: "analyzed_volume_statistics", Category: model.CategoryPerformance, Measurement: "performance_volume_statistics", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/analysed-volume-statistics"},
	"analyzed_drive_statistics":      {Name: "analyzed_drive_statistics", Category: model.CategoryPerformance, Measurement: "performance_drive_statistics", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/analysed-drive-statistics"},
	"analyzed_controller_statistics": {Name: "analyzed_controller_statistics", Category: model.CategoryPerformance, Measurement: "performance_controller_statistics", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/analysed-controller-statistics"},
	"analyzed_interface_statistics":  {Name: "analyzed_interface_statistics", Category: model.CategoryPerformance, Measurement: "performance_interface_statistics", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/analysed-interface-statistics"},
	"analyzed_system_statistics":     {Name: "analyzed_system_statistics", Category: model.CategoryPerformance, Measurement: "performance_system_statistics", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/analysed-system-statistics"},

	// --- events ---
	"system_failures":              {Name: "system_failures", Category: model.CategoryEvents, Measurement: "events_system_failures", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/failures"},
	"lockdown_status":              {Name: "lockdown_status", Category: model.CategoryEvents, Measurement: "events_lockdown_status", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/lockdown-status"},
	"job_progress":                 {Name: "job_progress", Category: model.CategoryEvents, Measurement: "events_job_progress", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/job-progress"},
	"volume_parity_check_status":   {Name: "volume_parity_check_status", Category: model.CategoryEvents, Measurement: "events_volume_parity_check_status", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/parity-check-jobs"},

	// --- environmental ---
	"env_power": {Name: "env_power", Category: model.CategoryEnvironmental, Measurement: "env_power", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/symbol/energyStarData"},
	"env_temp":  {Name: "env_temp", Category: model.CategoryEnvironmental, Measurement: "env_temp", URLTemplate: "/devmgr/v2/storage-systems/{system_id}/symbol/thermalSensorData"},
}

var byMeasurement = func() map[model.Measurement]string {
	m := make(map[model.Measurement]string, len(endpoints))
	for name, ep := range endpoints {
		// The alias intentionally maps to the same measurement as its
		// sibling; the canonical name always wins, whichever of the two the
		// map iteration visits first, so the reverse lookup stays bijective
		// as required by spec.md §4.1.
		if _, exists := m[ep.Measurement]; exists && name == "ethernet_interface_config_alias" {
			continue
		}
		m[ep.Measurement] = name
	}
	return m
}()

// Get returns the endpoint definition for name.
func Get(name string) (Endpoint, bool) {
	ep, ok := endpoints[name]
	return ep, ok
}

// MustGet is Get but panics on an unknown endpoint; used only for catalog
// self-consistency checks and tests, never on a value derived from network
// input.
func MustGet(name string) Endpoint {
	ep, ok := endpoints[name]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown endpoint %q", name))
	}
	return ep
}

// Category returns the category assigned to endpoint name.
func Category(name string) (model.Category, bool) {
	ep, ok := endpoints[name]
	if !ok {
		return "", false
	}
	return ep.Category, true
}

// MeasurementName returns the canonical measurement name for endpoint name.
func MeasurementName(name string) (model.Measurement, bool) {
	ep, ok := endpoints[name]
	if !ok {
		return "", false
	}
	return ep.Measurement, true
}

// URLTemplate returns the URL template for endpoint name.
func URLTemplate(name string) (string, bool) {
	ep, ok := endpoints[name]
	if !ok {
		return "", false
	}
	return ep.URLTemplate, true
}

// DependsOn returns the parent endpoint and id field for endpoints whose URL
// requires a substituted "{id}", per spec.md §4.1 "ID dependencies".
func DependsOn(name string) (parent string, idField string, ok bool) {
	ep, exists := endpoints[name]
	if !exists || ep.ParentEndpoint == "" {
		return "", "", false
	}
	return ep.ParentEndpoint, ep.IDField, true
}

// EndpointForMeasurement is the bijective reverse lookup required by
// spec.md §8's round-trip property: measurementName(endpointForMeasurement(m)) == m.
func EndpointForMeasurement(m model.Measurement) (string, bool) {
	name, ok := byMeasurement[m]
	return name, ok
}

// Names returns every registered endpoint name in category cat, in no
// particular order (map iteration is randomized by Go, so callers that need
// determinism sort the result, as the live source does).
func Names(cat model.Category) []string {
	var out []string
	for name, ep := range endpoints {
		if ep.Category == cat {
			out = append(out, name)
		}
	}
	return out
}

// AllNames returns every registered endpoint name, canonical+alias included.
func AllNames() []string {
	out := make([]string, 0, len(endpoints))
	for name := range endpoints {
		out = append(out, name)
	}
	return out
}
