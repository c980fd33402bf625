package interference

import (
	"math"
	"testing"

	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/topology"
)

func sectorParams() model.SectorParams {
	return model.SectorParams{
		AntennaBoresightGainDBi: 30,
		HorizontalScanRangeDeg:  70,
		CarrierFrequencyGHz:     60,
		ThermalNoisePowerDBm:    -81,
		NoiseFigureDB:           7,
	}
}

func TestAntennaGainDBi_DropsOffBoresight(t *testing.T) {
	onBore := AntennaGainDBi(30, 70, 0)
	offBore := AntennaGainDBi(30, 70, 60)
	if offBore >= onBore {
		t.Fatalf("expected off-boresight gain to be lower: onBore=%v offBore=%v", onBore, offBore)
	}
}

func TestAntennaGainDBi_ClampsAtSidelobeFloor(t *testing.T) {
	g := AntennaGainDBi(30, 70, 500)
	if g < 30-sidelobeFloorDB-0.001 {
		t.Fatalf("expected gain to be clamped at sidelobe floor, got %v", g)
	}
}

func TestNetGainDB_DecreasesWithDistance(t *testing.T) {
	sp := sectorParams()
	near := NetGainDB(0.1, sp, sp, 0, 0, 0, 0)
	far := NetGainDB(1.0, sp, sp, 0, 0, 0, 0)
	if far >= near {
		t.Fatalf("expected net gain to decrease with distance: near=%v far=%v", near, far)
	}
}

func buildLinearTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo := topology.New()

	pop := &model.Site{ID: "pop", SiteType: model.SiteTypePOP, Status: model.StatusExisting, Polarity: model.PolarityOdd, Device: model.Device{Sector: sectorParams()}}
	dn1 := &model.Site{ID: "dn1", SiteType: model.SiteTypeDN, Status: model.StatusProposed, Polarity: model.PolarityEven, Device: model.Device{Sector: sectorParams()}}
	dn2 := &model.Site{ID: "dn2", SiteType: model.SiteTypeDN, Status: model.StatusProposed, Polarity: model.PolarityEven, Device: model.Device{Sector: sectorParams()}}
	x := &model.Site{ID: "x", SiteType: model.SiteTypeDN, Status: model.StatusProposed, Polarity: model.PolarityOdd, Device: model.Device{Sector: sectorParams()}}
	for _, s := range []*model.Site{pop, dn1, dn2, x} {
		if err := topo.AddSite(s); err != nil {
			t.Fatalf("AddSite(%s): %v", s.ID, err)
		}
	}

	secPopA := &model.Sector{ID: "pop/a", SiteID: "pop", SectorType: model.SectorTypeDN, Status: model.StatusProposed, Channel: 0}
	secDn1 := &model.Sector{ID: "dn1/a", SiteID: "dn1", SectorType: model.SectorTypeDN, Status: model.StatusProposed, Channel: 0}
	secDn2 := &model.Sector{ID: "dn2/a", SiteID: "dn2", SectorType: model.SectorTypeDN, Status: model.StatusProposed, Channel: 0}
	secXA := &model.Sector{ID: "x/a", SiteID: "x", SectorType: model.SectorTypeDN, Status: model.StatusProposed, Channel: 0}
	for _, s := range []*model.Sector{secPopA, secDn1, secDn2, secXA} {
		if err := topo.AddSector(s); err != nil {
			t.Fatalf("AddSector(%s): %v", s.ID, err)
		}
	}

	link1 := &model.Link{
		ID: "pop-dn1", TxSiteID: "pop", RxSiteID: "dn1", TxSectorID: "pop/a", RxSectorID: "dn1/a",
		LinkType: model.LinkTypeWirelessBackhaul, Status: model.StatusProposed, IsWireless: true, DistanceKm: 0.3,
		Budget: model.LinkBudget{TxPowerDBm: 16, RSLdBm: -50, TxAzimuthDeg: 0, RxAzimuthDeg: 180},
	}
	link2 := &model.Link{
		ID: "pop-dn2", TxSiteID: "pop", RxSiteID: "dn2", TxSectorID: "pop/a", RxSectorID: "dn2/a",
		LinkType: model.LinkTypeWirelessBackhaul, Status: model.StatusProposed, IsWireless: true, DistanceKm: 0.4,
		Budget: model.LinkBudget{TxPowerDBm: 16, RSLdBm: -52, TxAzimuthDeg: 45, RxAzimuthDeg: 225},
	}
	link3 := &model.Link{
		ID: "x-dn1", TxSiteID: "x", RxSiteID: "dn1", TxSectorID: "x/a", RxSectorID: "dn1/a",
		LinkType: model.LinkTypeWirelessBackhaul, Status: model.StatusProposed, IsWireless: true, DistanceKm: 0.2,
		Budget: model.LinkBudget{TxPowerDBm: 16, RSLdBm: -48, TxAzimuthDeg: 90, RxAzimuthDeg: 270},
	}
	for _, l := range []*model.Link{link1, link2, link3} {
		if err := topo.AddLink(l); err != nil {
			t.Fatalf("AddLink(%s): %v", l.ID, err)
		}
	}
	return topo
}

func TestComputeLinkNetGainMap_SharedTxSectorInterferes(t *testing.T) {
	topo := buildLinearTopology(t)
	eng := NewEngine(topo)

	netGainMap := eng.ComputeLinkNetGainMap()
	if len(netGainMap) == 0 {
		t.Fatalf("expected at least one interfering path entry")
	}
}

func TestComputeLinkRSLMap_ProducesFiniteValues(t *testing.T) {
	topo := buildLinearTopology(t)
	eng := NewEngine(topo)

	netGainMap := eng.ComputeLinkNetGainMap()
	rslMap := eng.ComputeLinkRSLMap(netGainMap)

	for linkID, rsl := range rslMap {
		if math.IsNaN(rsl) {
			t.Fatalf("RSL for %s is NaN", linkID)
		}
	}
}

func TestAnalyzeInterference_SetsSINR(t *testing.T) {
	topo := buildLinearTopology(t)
	eng := NewEngine(topo)

	netGainMap := eng.ComputeLinkNetGainMap()
	rslMap := eng.ComputeLinkRSLMap(netGainMap)
	eng.AnalyzeInterference(rslMap)

	link1 := topo.GetLink("pop-dn1")
	if link1.SINRdBm == 0 {
		t.Fatalf("expected SINR to be set on pop-dn1, got 0")
	}
}

func TestCompatiblePolarity_SameActivePolarityIncompatible(t *testing.T) {
	topo := topology.New()
	a := &model.Site{ID: "a", SiteType: model.SiteTypeDN, Status: model.StatusProposed, Polarity: model.PolarityOdd}
	b := &model.Site{ID: "b", SiteType: model.SiteTypeDN, Status: model.StatusProposed, Polarity: model.PolarityOdd}
	topo.AddSite(a)
	topo.AddSite(b)
	link := &model.Link{ID: "a-b", TxSiteID: "a", RxSiteID: "b", Status: model.StatusProposed}
	topo.AddLink(link)

	eng := NewEngine(topo)
	if eng.compatiblePolarity(link, eng.cnPolarities()) {
		t.Fatalf("expected same-polarity active DN-DN link to be incompatible")
	}
}
