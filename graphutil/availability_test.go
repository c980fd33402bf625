package graphutil

import (
	"testing"
	"time"

	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/topology"
)

func TestComputeAvailability_HighAvailabilityLinkKeepsDemandMostlyUp(t *testing.T) {
	topo := topology.New()
	pop := &model.Site{ID: "pop", SiteType: model.SiteTypePOP, Status: model.StatusExisting}
	cn := &model.Site{ID: "cn", SiteType: model.SiteTypeCN, Status: model.StatusProposed}
	topo.AddSite(pop)
	topo.AddSite(cn)
	topo.AddLink(&model.Link{ID: "pop-cn", TxSiteID: "pop", RxSiteID: "cn", LinkType: model.LinkTypeWirelessAccess, Status: model.StatusProposed})
	topo.AddDemandSite(&model.DemandSite{ID: "d1", NumSites: 1, ConnectedSiteIDs: []string{"cn"}})

	d, err := BuildDigraph(topo, ActiveOnly)
	if err != nil {
		t.Fatalf("BuildDigraph: %v", err)
	}

	result := ComputeAvailability(d, map[string]float64{"pop-cn": 99.99}, 500.0, 2*time.Second, 42)
	avail := result.PerDemandAvailability["d1"]
	if avail < 0.9 {
		t.Fatalf("expected demand d1 to stay up most of the time with a 99.99%% link, got %v", avail)
	}
	edgeAvail, ok := result.PerEdgeAvailability["pop-cn"]
	if !ok {
		t.Fatalf("expected per-edge availability entry for pop-cn")
	}
	if edgeAvail < 0.9 {
		t.Fatalf("expected simulated edge availability close to input, got %v", edgeAvail)
	}
}

func TestComputeAvailability_RespectsWallClockTimeLimit(t *testing.T) {
	topo := topology.New()
	pop := &model.Site{ID: "pop", SiteType: model.SiteTypePOP, Status: model.StatusExisting}
	cn := &model.Site{ID: "cn", SiteType: model.SiteTypeCN, Status: model.StatusProposed}
	topo.AddSite(pop)
	topo.AddSite(cn)
	topo.AddLink(&model.Link{ID: "pop-cn", TxSiteID: "pop", RxSiteID: "cn", LinkType: model.LinkTypeWirelessAccess, Status: model.StatusProposed})
	topo.AddDemandSite(&model.DemandSite{ID: "d1", NumSites: 1, ConnectedSiteIDs: []string{"cn"}})

	d, err := BuildDigraph(topo, ActiveOnly)
	if err != nil {
		t.Fatalf("BuildDigraph: %v", err)
	}

	start := time.Now()
	ComputeAvailability(d, map[string]float64{"pop-cn": 50.0}, 1e9, 200*time.Millisecond, 1)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected the simulation to honour its wall-clock time limit, took %v", elapsed)
	}
}
