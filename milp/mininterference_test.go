package milp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/solver"
	"github.com/latticeforge/meshplanner/topology"
)

func TestRunMinInterference_SelectsBothLinksAndRoutesFlow(t *testing.T) {
	topo := buildChainTopology(t)
	opt := testOptimizerParams()
	idx, err := BuildIndex(topo, opt)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	activeSites := map[string]bool{"pop": true, "dn": true, "cn": true}
	result, err := RunMinInterference(topo, opt, idx, activeSites, nil, newRefProblem)
	if err != nil {
		t.Fatalf("RunMinInterference: %v", err)
	}
	if !result.ActiveLinks[model.LinkID("pop", "dn")] {
		t.Errorf("expected pop->dn selected active")
	}
	if !result.ActiveLinks[model.LinkID("dn", "cn")] {
		t.Errorf("expected dn->cn selected active")
	}
	if result.Flow[pairKey("dn", "cn")] <= 0 {
		t.Errorf("expected positive flow on dn->cn, got %v", result.Flow)
	}
}

// crossingPairTopology builds a DN with two co-sited access links whose
// azimuths sit within DiffSectorAngleLimitDeg of each other, so the
// deployment-rule exclusion between them fires. Two channels are
// available, so the exclusion must route through the per-channel
// deployment_link auxiliary rather than a direct active_link exclusion.
func crossingPairTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo := topology.New()

	pop := &model.Site{ID: "pop", SiteType: model.SiteTypePOP, Status: model.StatusExisting, Location: model.Location{LatitudeDeg: 1, LongitudeDeg: 1}}
	dn := &model.Site{ID: "dn", SiteType: model.SiteTypeDN, Status: model.StatusProposed, Location: model.Location{LatitudeDeg: 2, LongitudeDeg: 2}}
	cn1 := &model.Site{ID: "cn1", SiteType: model.SiteTypeCN, Status: model.StatusProposed, Location: model.Location{LatitudeDeg: 3, LongitudeDeg: 3}}
	cn2 := &model.Site{ID: "cn2", SiteType: model.SiteTypeCN, Status: model.StatusProposed, Location: model.Location{LatitudeDeg: 3, LongitudeDeg: 2.9}}
	for _, s := range []*model.Site{pop, dn, cn1, cn2} {
		if err := topo.AddSite(s); err != nil {
			t.Fatalf("AddSite(%s): %v", s.ID, err)
		}
	}

	popSec := &model.Sector{ID: model.SectorID("pop", 0, 0), SiteID: "pop", SectorType: model.SectorTypeForSite(model.SiteTypePOP), Status: model.StatusExisting, Channel: 0}
	dnSec0 := &model.Sector{ID: model.SectorID("dn", 0, 0), SiteID: "dn", SectorType: model.SectorTypeForSite(model.SiteTypeDN), Status: model.StatusProposed, Channel: model.UnassignedChannel}
	// dnSec1 and dnSec2 share node 1 so the node-coupling constraint
	// (both sectors on one physical node activate together) fires.
	dnSec1 := &model.Sector{ID: model.SectorID("dn", 1, 0), SiteID: "dn", NodeID: 1, SectorType: model.SectorTypeForSite(model.SiteTypeDN), Status: model.StatusProposed, Channel: model.UnassignedChannel}
	dnSec2 := &model.Sector{ID: model.SectorID("dn", 1, 1), SiteID: "dn", NodeID: 1, SectorType: model.SectorTypeForSite(model.SiteTypeDN), Status: model.StatusProposed, Channel: model.UnassignedChannel}
	cn1Sec := &model.Sector{ID: model.SectorID("cn1", 0, 0), SiteID: "cn1", SectorType: model.SectorTypeForSite(model.SiteTypeCN), Status: model.StatusProposed, Channel: model.UnassignedChannel}
	cn2Sec := &model.Sector{ID: model.SectorID("cn2", 0, 0), SiteID: "cn2", SectorType: model.SectorTypeForSite(model.SiteTypeCN), Status: model.StatusProposed, Channel: model.UnassignedChannel}
	for _, s := range []*model.Sector{popSec, dnSec0, dnSec1, dnSec2, cn1Sec, cn2Sec} {
		if err := topo.AddSector(s); err != nil {
			t.Fatalf("AddSector(%s): %v", s.ID, err)
		}
	}

	links := []*model.Link{
		{ID: model.LinkID("pop", "dn"), TxSiteID: "pop", RxSiteID: "dn", TxSectorID: popSec.ID, RxSectorID: dnSec0.ID,
			LinkType: model.LinkTypeWirelessBackhaul, Status: model.StatusProposed, IsWireless: true, DistanceKm: 0.2,
			Budget: model.LinkBudget{MCSLevel: 9, CapacityGbps: 1.5}},
		{ID: model.LinkID("dn", "cn1"), TxSiteID: "dn", RxSiteID: "cn1", TxSectorID: dnSec1.ID, RxSectorID: cn1Sec.ID,
			LinkType: model.LinkTypeWirelessAccess, Status: model.StatusProposed, IsWireless: true, DistanceKm: 0.1,
			Budget: model.LinkBudget{MCSLevel: 9, CapacityGbps: 1.5, TxAzimuthDeg: 40}},
		{ID: model.LinkID("dn", "cn2"), TxSiteID: "dn", RxSiteID: "cn2", TxSectorID: dnSec2.ID, RxSectorID: cn2Sec.ID,
			LinkType: model.LinkTypeWirelessAccess, Status: model.StatusProposed, IsWireless: true, DistanceKm: 0.1,
			Budget: model.LinkBudget{MCSLevel: 9, CapacityGbps: 1.5, TxAzimuthDeg: 50}},
	}
	for _, l := range links {
		if err := topo.AddLink(l); err != nil {
			t.Fatalf("AddLink(%s): %v", l.ID, err)
		}
	}

	dem := &model.DemandSite{ID: "d1", DemandGbps: 0.01, NumSites: 1, ConnectedSiteIDs: []string{"cn1"}}
	if err := topo.AddDemandSite(dem); err != nil {
		t.Fatalf("AddDemandSite: %v", err)
	}
	return topo
}

// TestRunMinInterference_WiresChannelEqualityAndMultiChannelDeployment
// inspects the constraints RunMinInterference builds (via the LP dump,
// not the solved values, since the crossing-pair topology's binary-
// variable count exceeds RefProblem's brute-force search budget): both
// endpoints of every active link must be forced onto the same channel
// (constraint 11), every sector activates together with the rest of its
// node and picks at most one channel, and a conflicting co-sited pair
// is excluded per channel through the deployment_link auxiliary rather
// than a single direct exclusion.
func TestRunMinInterference_WiresChannelEqualityAndMultiChannelDeployment(t *testing.T) {
	topo := crossingPairTopology(t)
	opt := testOptimizerParams()
	opt.NumberOfChannels = 2
	idx, err := BuildIndex(topo, opt)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	var captured *solver.RefProblem
	newProb := func() solver.Problem {
		captured = solver.NewRefProblem()
		return captured
	}

	activeSites := map[string]bool{"pop": true, "dn": true, "cn1": true, "cn2": true}
	if _, err := RunMinInterference(topo, opt, idx, activeSites, nil, newProb); err != nil {
		t.Fatalf("RunMinInterference: %v", err)
	}

	path := filepath.Join(t.TempDir(), "min_interference.lp")
	if err := captured.Write(path, "lp"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lp := string(data)

	for _, want := range []string{
		"active_same_channel_fwd[",
		"active_same_channel_rev[",
		"sector_one_channel[",
		"node_coupling[",
		"deployment_link[",
		"deployment_exclude[",
		"sinr_exact[",
		"link_capacity_one[",
		"capacity_from_mcs[",
	} {
		if !strings.Contains(lp, want) {
			t.Errorf("expected LP dump to contain a %q constraint/variable, got:\n%s", want, lp)
		}
	}
}
