package topology

import (
	"strings"
	"testing"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/model"
)

func testDevices() []config.Device {
	return []config.Device{
		{SKU: "dn-radio", Sector: config.DefaultSectorParams(), DeviceType: config.DeviceTypeDN, NumberOfNodesPerSite: 1},
		{SKU: "cn-radio", Sector: config.DefaultSectorParams(), DeviceType: config.DeviceTypeCN, NumberOfNodesPerSite: 1},
	}
}

const sampleTopologyJSON = `{
  "sites": [
    {"id": "pop1", "site_type": "POP", "status": "EXISTING", "latitude_deg": 1, "longitude_deg": 1,
     "device_sku": "dn-radio", "sectors": [{"node_id": 0, "position_in_node": 0, "status": "EXISTING"}]},
    {"id": "dn1", "site_type": "DN", "status": "CANDIDATE", "latitude_deg": 1.001, "longitude_deg": 1.001,
     "device_sku": "dn-radio", "sectors": [{"node_id": 0, "position_in_node": 0, "status": "CANDIDATE"}]}
  ],
  "links": [
    {"tx_site_id": "pop1", "rx_site_id": "dn1", "tx_node_id": 0, "tx_position_in_node": 0,
     "rx_node_id": 0, "rx_position_in_node": 0, "link_type": "WIRELESS_BACKHAUL", "status": "CANDIDATE",
     "is_wireless": true, "distance_km": 0.2}
  ],
  "demand_sites": [
    {"id": "d1", "latitude_deg": 1.001, "longitude_deg": 1.001, "demand_gbps": 0.025, "num_sites": 1, "connected_site_ids": ["dn1"]}
  ]
}`

func TestLoadCandidateTopology_BuildsSitesSectorsLinksAndDemand(t *testing.T) {
	topo, err := LoadCandidateTopology(strings.NewReader(sampleTopologyJSON), testDevices())
	if err != nil {
		t.Fatalf("LoadCandidateTopology: %v", err)
	}

	pop := topo.GetSite("pop1")
	if pop == nil || pop.SiteType != model.SiteTypePOP || pop.Status != model.StatusExisting {
		t.Fatalf("pop1 = %+v, want POP/EXISTING", pop)
	}
	if pop.Device.SKU != "dn-radio" {
		t.Errorf("pop1 device sku = %q, want dn-radio", pop.Device.SKU)
	}

	dn := topo.GetSite("dn1")
	if dn == nil || dn.Status != model.StatusCandidate {
		t.Fatalf("dn1 = %+v, want CANDIDATE", dn)
	}

	link := topo.GetLinkBySiteIDs("pop1", "dn1")
	if link == nil || link.LinkType != model.LinkTypeWirelessBackhaul {
		t.Fatalf("pop1->dn1 link = %+v, want WIRELESS_BACKHAUL", link)
	}

	demand := topo.GetDemandSite("d1")
	if demand == nil || demand.DemandGbps != 0.025 {
		t.Fatalf("d1 = %+v, want demand 0.025", demand)
	}
}

func TestLoadCandidateTopology_UnknownDeviceSKUFails(t *testing.T) {
	bad := strings.Replace(sampleTopologyJSON, "dn-radio", "missing-sku", 1)
	if _, err := LoadCandidateTopology(strings.NewReader(bad), testDevices()); err == nil {
		t.Fatal("expected an error for an unknown device_sku")
	}
}

func TestLoadCandidateTopology_UnknownSiteTypeFails(t *testing.T) {
	bad := strings.Replace(sampleTopologyJSON, `"site_type": "POP"`, `"site_type": "BOGUS"`, 1)
	if _, err := LoadCandidateTopology(strings.NewReader(bad), testDevices()); err == nil {
		t.Fatal("expected an error for an unknown site_type")
	}
}
