package graphutil

import (
	"testing"

	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/topology"
)

// buildDiamondTopology builds pop -> dn1 -> cn and pop -> dn2 -> cn, a
// diamond with two node-disjoint paths from the POP to a single CN
// serving a demand point, plus a direct pop->dn1 shortcut edge removed so
// dn1 and dn2 are genuinely alternate routes.
func buildDiamondTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo := topology.New()

	pop := &model.Site{ID: "pop", SiteType: model.SiteTypePOP, Status: model.StatusExisting}
	dn1 := &model.Site{ID: "dn1", SiteType: model.SiteTypeDN, Status: model.StatusProposed}
	dn2 := &model.Site{ID: "dn2", SiteType: model.SiteTypeDN, Status: model.StatusProposed}
	cn := &model.Site{ID: "cn", SiteType: model.SiteTypeCN, Status: model.StatusProposed}
	for _, s := range []*model.Site{pop, dn1, dn2, cn} {
		if err := topo.AddSite(s); err != nil {
			t.Fatalf("AddSite(%s): %v", s.ID, err)
		}
	}

	links := []*model.Link{
		{ID: "pop-dn1", TxSiteID: "pop", RxSiteID: "dn1", LinkType: model.LinkTypeWirelessBackhaul, Status: model.StatusProposed, Budget: model.LinkBudget{MCSLevel: 9}},
		{ID: "pop-dn2", TxSiteID: "pop", RxSiteID: "dn2", LinkType: model.LinkTypeWirelessBackhaul, Status: model.StatusProposed, Budget: model.LinkBudget{MCSLevel: 9}},
		{ID: "dn1-cn", TxSiteID: "dn1", RxSiteID: "cn", LinkType: model.LinkTypeWirelessAccess, Status: model.StatusProposed, Budget: model.LinkBudget{MCSLevel: 9}},
		{ID: "dn2-cn", TxSiteID: "dn2", RxSiteID: "cn", LinkType: model.LinkTypeWirelessAccess, Status: model.StatusProposed, Budget: model.LinkBudget{MCSLevel: 9}},
	}
	for _, l := range links {
		if err := topo.AddLink(l); err != nil {
			t.Fatalf("AddLink(%s): %v", l.ID, err)
		}
	}

	dem := &model.DemandSite{ID: "d1", DemandGbps: 0.025, NumSites: 1, ConnectedSiteIDs: []string{"cn"}}
	if err := topo.AddDemandSite(dem); err != nil {
		t.Fatalf("AddDemandSite: %v", err)
	}
	return topo
}

func TestBuildDigraph_ConnectsSupersourceAndDemandSinks(t *testing.T) {
	topo := buildDiamondTopology(t)
	d, err := BuildDigraph(topo, ActiveOnly)
	if err != nil {
		t.Fatalf("BuildDigraph: %v", err)
	}

	reachable := d.ReachableDemands()
	if !reachable["d1"] {
		t.Fatalf("expected demand d1 to be reachable, got %v", reachable)
	}
	if len(d.POPs()) != 1 || d.POPs()[0] != "pop" {
		t.Fatalf("expected exactly one POP 'pop', got %v", d.POPs())
	}
}

func TestHopsFromPOP_CountsBackhaulHopsOnly(t *testing.T) {
	topo := buildDiamondTopology(t)
	d, err := BuildDigraph(topo, ActiveOnly)
	if err != nil {
		t.Fatalf("BuildDigraph: %v", err)
	}

	hops := d.HopsFromPOP()
	if hops["dn1"] != 1 {
		t.Fatalf("expected dn1 at 1 hop from pop, got %d", hops["dn1"])
	}
	if hops["cn"] != 2 {
		t.Fatalf("expected cn at 2 hops from pop (via dn1 or dn2), got %d", hops["cn"])
	}
}

func TestSingleEdgeFailures_DiamondHasNoSinglePointOfFailure(t *testing.T) {
	topo := buildDiamondTopology(t)
	d, err := BuildDigraph(topo, ActiveOnly)
	if err != nil {
		t.Fatalf("BuildDigraph: %v", err)
	}

	failures := d.SingleEdgeFailures()
	for linkID, lost := range failures {
		if lost != 0 {
			t.Fatalf("expected no single edge failure to disconnect d1 (diamond topology), link %s lost %d", linkID, lost)
		}
	}
}

func TestSingleSiteFailures_RemovingOnlyDNOnPathDisconnectsDemand(t *testing.T) {
	topo := topology.New()
	pop := &model.Site{ID: "pop", SiteType: model.SiteTypePOP, Status: model.StatusExisting}
	dn1 := &model.Site{ID: "dn1", SiteType: model.SiteTypeDN, Status: model.StatusProposed}
	cn := &model.Site{ID: "cn", SiteType: model.SiteTypeCN, Status: model.StatusProposed}
	for _, s := range []*model.Site{pop, dn1, cn} {
		if err := topo.AddSite(s); err != nil {
			t.Fatalf("AddSite: %v", err)
		}
	}
	links := []*model.Link{
		{ID: "pop-dn1", TxSiteID: "pop", RxSiteID: "dn1", LinkType: model.LinkTypeWirelessBackhaul, Status: model.StatusProposed},
		{ID: "dn1-cn", TxSiteID: "dn1", RxSiteID: "cn", LinkType: model.LinkTypeWirelessAccess, Status: model.StatusProposed},
	}
	for _, l := range links {
		if err := topo.AddLink(l); err != nil {
			t.Fatalf("AddLink: %v", err)
		}
	}
	dem := &model.DemandSite{ID: "d1", NumSites: 1, ConnectedSiteIDs: []string{"cn"}}
	if err := topo.AddDemandSite(dem); err != nil {
		t.Fatalf("AddDemandSite: %v", err)
	}

	d, err := BuildDigraph(topo, ActiveOnly)
	if err != nil {
		t.Fatalf("BuildDigraph: %v", err)
	}
	failures := d.SingleSiteFailures()
	if failures["dn1"] != 1 {
		t.Fatalf("expected removing dn1 to disconnect 1 demand point, got %d", failures["dn1"])
	}
	if _, ok := failures["cn"]; ok {
		t.Fatalf("expected CN sites to be excluded from single_site_failures, got entry for cn")
	}
}

func TestFindMostDisruptiveLinks_RejectsLinkWithNoCandidateReroute(t *testing.T) {
	// proposed: only pop-dn1-cn (no redundancy); candidate: same single path,
	// so removing pop-dn1 disconnects d1 in the candidate network too and
	// must be rejected.
	topo := topology.New()
	pop := &model.Site{ID: "pop", SiteType: model.SiteTypePOP, Status: model.StatusExisting}
	dn1 := &model.Site{ID: "dn1", SiteType: model.SiteTypeDN, Status: model.StatusProposed}
	cn := &model.Site{ID: "cn", SiteType: model.SiteTypeCN, Status: model.StatusProposed}
	for _, s := range []*model.Site{pop, dn1, cn} {
		topo.AddSite(s)
	}
	topo.AddLink(&model.Link{ID: "pop-dn1", TxSiteID: "pop", RxSiteID: "dn1", LinkType: model.LinkTypeWirelessBackhaul, Status: model.StatusProposed})
	topo.AddLink(&model.Link{ID: "dn1-cn", TxSiteID: "dn1", RxSiteID: "cn", LinkType: model.LinkTypeWirelessAccess, Status: model.StatusProposed})
	topo.AddDemandSite(&model.DemandSite{ID: "d1", NumSites: 1, ConnectedSiteIDs: []string{"cn"}})

	proposed, err := BuildDigraph(topo, ActiveOnly)
	if err != nil {
		t.Fatalf("BuildDigraph: %v", err)
	}
	candidate, err := BuildDigraph(topo, ActiveOnly)
	if err != nil {
		t.Fatalf("BuildDigraph: %v", err)
	}

	accepted := proposed.FindMostDisruptiveLinks(candidate, 5)
	if len(accepted) != 0 {
		t.Fatalf("expected no accepted disruptive links when candidate has no reroute, got %v", accepted)
	}
}
