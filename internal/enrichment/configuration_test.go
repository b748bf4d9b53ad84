package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scaleout/eseries-collector/internal/model"
)

func TestHostTypeIndexResolution(t *testing.T) {
	config := model.NewCollectionResult()
	config.Add("config_hosts", model.Record{"hostRef": "h1", "hostTypeIndex": float64(17)})

	out := EnrichConfiguration(config, "sys", "lab")
	r := out.Records["config_hosts"][0]
	assert.Equal(t, "VMware", r["host_type_name"])
	assert.Equal(t, "esx", r["host_os"])
	assert.Equal(t, "block", r["host_category"])
}

func TestUnknownHostTypeIndexFallsBackToUnknown(t *testing.T) {
	config := model.NewCollectionResult()
	config.Add("config_hosts", model.Record{"hostRef": "h1", "hostTypeIndex": float64(999)})

	out := EnrichConfiguration(config, "sys", "lab")
	r := out.Records["config_hosts"][0]
	assert.Equal(t, "unknown", r["host_type_name"])
}

func TestHostGroupMemberCount(t *testing.T) {
	config := model.NewCollectionResult()
	config.Add("config_hosts",
		model.Record{"hostRef": "h1", "clusterRef": "c1"},
		model.Record{"hostRef": "h2", "clusterRef": "c1"},
		model.Record{"hostRef": "h3", "clusterRef": "c2"},
	)
	config.Add("config_host_groups", model.Record{"clusterRef": "c1", "name": "hg1"})

	out := EnrichConfiguration(config, "sys", "lab")
	r := out.Records["config_host_groups"][0]
	assert.Equal(t, 2, r["member_host_count"])
}
