package catalog

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleout/eseries-collector/internal/model"
)

func TestMeasurementRoundTrip(t *testing.T) {
	for _, name := range AllNames() {
		m, ok := MeasurementName(name)
		require.True(t, ok, name)
		gotName, ok := EndpointForMeasurement(m)
		require.True(t, ok, m)
		gotM, ok := MeasurementName(gotName)
		require.True(t, ok)
		assert.Equal(t, m, gotM, "measurementName(endpointForMeasurement(%s)) must equal %s", m, m)
	}
}

func TestMeasurementNamingConvention(t *testing.T) {
	for _, name := range AllNames() {
		ep := MustGet(name)
		switch ep.Category {
		case model.CategoryPerformance:
			assert.Regexp(t, `^performance_[a-z_]+$`, string(ep.Measurement))
		case model.CategoryConfiguration:
			assert.Regexp(t, `^config_[a-z_]+$`, string(ep.Measurement))
		case model.CategoryEvents:
			assert.Regexp(t, `^events_[a-z_]+$`, string(ep.Measurement))
		case model.CategoryEnvironmental:
			assert.Regexp(t, `^env_[a-z_]+$`, string(ep.Measurement))
		}
	}
}

func TestEthernetAliasResolvesToCanonical(t *testing.T) {
	canonical := MustGet("ethernet_interface_config")
	alias := MustGet("ethernet_interface_config_alias")
	assert.Equal(t, canonical.Measurement, alias.Measurement)
	assert.Equal(t, canonical.URLTemplate, alias.URLTemplate)

	name, ok := EndpointForMeasurement(canonical.Measurement)
	require.True(t, ok)
	assert.Equal(t, "ethernet_interface_config", name, "canonical alias must win the reverse lookup")
}

func TestConsistencyGroupVolumesDependsOnParent(t *testing.T) {
	parent, idField, ok := DependsOn("consistency_group_vol")
	require.True(t, ok)
	assert.Equal(t, "consistency_groups", parent)
	assert.Equal(t, "id", idField)
}

func TestNamesByCategoryAreStable(t *testing.T) {
	names := Names(model.CategoryPerformance)
	sort.Strings(names)
	assert.Equal(t, []string{
		"analyzed_controller_statistics",
		"analyzed_drive_statistics",
		"analyzed_interface_statistics",
		"analyzed_system_statistics",
		"analyzed_volume_statistics",
	}, names)
}
