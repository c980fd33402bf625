package topology

import (
	"errors"
	"testing"

	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/plannererr"
)

func newSite(id string, siteType model.SiteType, status model.StatusType) *model.Site {
	return &model.Site{ID: id, SiteType: siteType, Status: status}
}

func TestAddSite_DuplicateRejected(t *testing.T) {
	topo := New()
	if err := topo.AddSite(newSite("s1", model.SiteTypeDN, model.StatusCandidate)); err != nil {
		t.Fatalf("first AddSite: %v", err)
	}
	if err := topo.AddSite(newSite("s1", model.SiteTypeDN, model.StatusCandidate)); err == nil {
		t.Fatalf("expected error adding duplicate site id")
	}
}

func TestRemoveSite_CascadesSectorsAndLinks(t *testing.T) {
	topo := New()
	a := newSite("a", model.SiteTypePOP, model.StatusCandidate)
	b := newSite("b", model.SiteTypeDN, model.StatusCandidate)
	if err := topo.AddSite(a); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddSite(b); err != nil {
		t.Fatal(err)
	}

	sec := &model.Sector{ID: "a/n0/p0", SiteID: "a", SectorType: model.SectorTypeDN}
	if err := topo.AddSector(sec); err != nil {
		t.Fatalf("AddSector: %v", err)
	}

	link := &model.Link{ID: model.LinkID("a", "b"), TxSiteID: "a", RxSiteID: "b"}
	if err := topo.AddLink(link); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	if err := topo.RemoveSite("a"); err != nil {
		t.Fatalf("RemoveSite: %v", err)
	}

	if topo.GetSector("a/n0/p0") != nil {
		t.Fatalf("expected sector to be removed by cascade")
	}
	if topo.GetLink(link.ID) != nil {
		t.Fatalf("expected link to be removed by cascade")
	}
	if got := topo.Successors("a"); len(got) != 0 {
		t.Fatalf("expected no successors after removal, got %v", got)
	}
}

func TestSetSiteStatus_RefusesImmutableTransitions(t *testing.T) {
	topo := New()
	s := newSite("e1", model.SiteTypeDN, model.StatusExisting)
	if err := topo.AddSite(s); err != nil {
		t.Fatal(err)
	}

	err := topo.SetSiteStatus("e1", model.StatusCandidate)
	if err == nil {
		t.Fatalf("expected error demoting an EXISTING site")
	}
	var topErr *plannererr.TopologyErr
	if !errors.As(err, &topErr) || topErr.Code != plannererr.CodeStatusImmutable {
		t.Fatalf("expected CodeStatusImmutable, got %+v", err)
	}
}

func TestRemoveSector_ClearsIncidentLinkSectors(t *testing.T) {
	topo := New()
	a := newSite("a", model.SiteTypePOP, model.StatusCandidate)
	b := newSite("b", model.SiteTypeDN, model.StatusCandidate)
	topo.AddSite(a)
	topo.AddSite(b)

	secA := &model.Sector{ID: "secA", SiteID: "a", SectorType: model.SectorTypeDN}
	secB := &model.Sector{ID: "secB", SiteID: "b", SectorType: model.SectorTypeDN}
	topo.AddSector(secA)
	topo.AddSector(secB)

	link := &model.Link{ID: "a-b", TxSiteID: "a", RxSiteID: "b", TxSectorID: "secA", RxSectorID: "secB"}
	if err := topo.AddLink(link); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	if err := topo.RemoveSector("secA"); err != nil {
		t.Fatalf("RemoveSector: %v", err)
	}

	got := topo.GetLink("a-b")
	if got == nil {
		t.Fatalf("expected link to survive sector removal")
	}
	if got.TxSectorID != "" || got.RxSectorID != "" {
		t.Fatalf("expected both sector fields cleared, got tx=%q rx=%q", got.TxSectorID, got.RxSectorID)
	}
}

func TestAddLink_RejectsOneSidedSectors(t *testing.T) {
	topo := New()
	topo.AddSite(newSite("a", model.SiteTypePOP, model.StatusCandidate))
	topo.AddSite(newSite("b", model.SiteTypeDN, model.StatusCandidate))

	link := &model.Link{ID: "a-b", TxSiteID: "a", RxSiteID: "b", TxSectorID: "only-one"}
	if err := topo.AddLink(link); err == nil {
		t.Fatalf("expected error for one-sided sector reference")
	}
}

func TestGetColocatedSites(t *testing.T) {
	topo := New()
	loc := model.Location{LatitudeDeg: 1, LongitudeDeg: 2}
	pop := &model.Site{ID: "pop1", SiteType: model.SiteTypePOP, Location: loc}
	dn := &model.Site{ID: "dn1", SiteType: model.SiteTypeDN, Location: loc}
	other := &model.Site{ID: "dn2", SiteType: model.SiteTypeDN, Location: model.Location{LatitudeDeg: 9, LongitudeDeg: 9}}
	topo.AddSite(pop)
	topo.AddSite(dn)
	topo.AddSite(other)

	colocated := topo.GetColocatedSites("pop1")
	if len(colocated) != 2 {
		t.Fatalf("expected 2 colocated sites, got %d: %v", len(colocated), colocated)
	}
}

func TestPolarityPartition(t *testing.T) {
	topo := New()
	topo.AddSite(&model.Site{ID: "odd1", Polarity: model.PolarityOdd})
	topo.AddSite(&model.Site{ID: "even1", Polarity: model.PolarityEven})
	topo.AddSite(&model.Site{ID: "un1", Polarity: model.PolarityUnassigned})

	part := topo.PolarityPartition()
	if len(part[model.PolarityOdd]) != 1 || len(part[model.PolarityEven]) != 1 || len(part[model.PolarityUnassigned]) != 1 {
		t.Fatalf("unexpected partition sizes: %+v", part)
	}
}

func TestSortedSiteIDs_Deterministic(t *testing.T) {
	topo := New()
	topo.AddSite(newSite("z", model.SiteTypeDN, model.StatusCandidate))
	topo.AddSite(newSite("a", model.SiteTypeDN, model.StatusCandidate))
	topo.AddSite(newSite("m", model.SiteTypeDN, model.StatusCandidate))

	got := topo.SortedSiteIDs()
	want := []string{"a", "m", "z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SortedSiteIDs = %v, want %v", got, want)
		}
	}
}

func TestAddSector_FailsOnMissingSite(t *testing.T) {
	topo := New()
	err := topo.AddSector(&model.Sector{ID: "s1", SiteID: "ghost", SectorType: model.SectorTypeDN})
	if err == nil {
		t.Fatalf("expected error for sector referencing missing site")
	}
}

func TestAddSector_FailsOnTypeMismatch(t *testing.T) {
	topo := New()
	topo.AddSite(newSite("cn1", model.SiteTypeCN, model.StatusCandidate))
	err := topo.AddSector(&model.Sector{ID: "cn1/n0/p0", SiteID: "cn1", SectorType: model.SectorTypeDN})
	if err == nil {
		t.Fatalf("expected error for sector type not matching CN site")
	}
}

func TestPredecessorsSuccessors(t *testing.T) {
	topo := New()
	topo.AddSite(newSite("a", model.SiteTypePOP, model.StatusCandidate))
	topo.AddSite(newSite("b", model.SiteTypeDN, model.StatusCandidate))
	topo.AddSite(newSite("c", model.SiteTypeDN, model.StatusCandidate))
	topo.AddLink(&model.Link{ID: "a-b", TxSiteID: "a", RxSiteID: "b"})
	topo.AddLink(&model.Link{ID: "a-c", TxSiteID: "a", RxSiteID: "c"})

	succ := topo.Successors("a")
	if len(succ) != 2 || succ[0] != "b" || succ[1] != "c" {
		t.Fatalf("Successors(a) = %v, want [b c]", succ)
	}
	pred := topo.Predecessors("b")
	if len(pred) != 1 || pred[0] != "a" {
		t.Fatalf("Predecessors(b) = %v, want [a]", pred)
	}
}

func TestGetLinkBySiteIDs(t *testing.T) {
	topo := New()
	topo.AddSite(newSite("a", model.SiteTypePOP, model.StatusCandidate))
	topo.AddSite(newSite("b", model.SiteTypeDN, model.StatusCandidate))
	link := &model.Link{ID: "a-b", TxSiteID: "a", RxSiteID: "b"}
	topo.AddLink(link)

	if got := topo.GetLinkBySiteIDs("a", "b"); got == nil || got.ID != "a-b" {
		t.Fatalf("GetLinkBySiteIDs(a,b) = %v, want a-b", got)
	}
	if got := topo.GetLinkBySiteIDs("b", "a"); got != nil {
		t.Fatalf("expected no reverse link, got %v", got)
	}
}
