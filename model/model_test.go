package model

import "testing"

func TestSiteID_DistinctByType(t *testing.T) {
	a := SiteID(SiteTypeDN, 1.0, 2.0, "sku-a")
	b := SiteID(SiteTypePOP, 1.0, 2.0, "sku-a")
	if a == b {
		t.Fatalf("expected distinct IDs for co-located sites of different type, got %q for both", a)
	}
}

func TestSite_CanTransitionTo(t *testing.T) {
	cases := []struct {
		name string
		from StatusType
		to   StatusType
		want bool
	}{
		{"candidate to proposed", StatusCandidate, StatusProposed, true},
		{"existing immutable", StatusExisting, StatusCandidate, false},
		{"into unavailable forbidden", StatusCandidate, StatusUnavailable, false},
		{"unreachable to candidate", StatusUnreachable, StatusCandidate, true},
		{"same status always ok", StatusExisting, StatusExisting, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := &Site{Status: c.from}
			if got := s.CanTransitionTo(c.to); got != c.want {
				t.Errorf("CanTransitionTo(%v -> %v) = %v, want %v", c.from, c.to, got, c.want)
			}
		})
	}
}

func TestLinkHash_Unordered(t *testing.T) {
	if LinkHash("a", "b") != LinkHash("b", "a") {
		t.Fatalf("LinkHash should be symmetric")
	}
	if LinkID("a", "b") == LinkID("b", "a") {
		t.Fatalf("LinkID should be direction-sensitive")
	}
}

func TestDemandSite_Expand(t *testing.T) {
	d := &DemandSite{ID: "d1", NumSites: 3}
	ids := d.Expand()
	want := []string{"d1", "d1_1", "d1_2"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestDemandSite_ExpandDefaultsToOne(t *testing.T) {
	d := &DemandSite{ID: "d2"}
	ids := d.Expand()
	if len(ids) != 1 || ids[0] != "d2" {
		t.Fatalf("got %v, want [d2]", ids)
	}
}

func TestSectorTypeForSite(t *testing.T) {
	if SectorTypeForSite(SiteTypeCN) != SectorTypeCN {
		t.Fatalf("CN site should require CN sectors")
	}
	if SectorTypeForSite(SiteTypeDN) != SectorTypeDN || SectorTypeForSite(SiteTypePOP) != SectorTypeDN {
		t.Fatalf("DN/POP sites should require DN sectors")
	}
}

func TestParseRedundancyLevel_ByNameAndInt(t *testing.T) {
	lvl, err := ParseRedundancyLevel("high")
	if err != nil || lvl != RedundancyHigh {
		t.Fatalf("ParseRedundancyLevel(high) = %v, %v", lvl, err)
	}
	lvl, err = ParseRedundancyLevel(1)
	if err != nil || lvl != RedundancyLow {
		t.Fatalf("ParseRedundancyLevel(1) = %v, %v", lvl, err)
	}
	if _, err := ParseRedundancyLevel("bogus"); err == nil {
		t.Fatal("expected error for unknown redundancy level name")
	}
}

func TestParseRoutingMode_ByNameAndInt(t *testing.T) {
	mode, err := ParseRoutingMode("dpa_path")
	if err != nil || mode != RoutingDPAPath {
		t.Fatalf("ParseRoutingMode(dpa_path) = %v, %v", mode, err)
	}
	mode, err = ParseRoutingMode(1)
	if err != nil || mode != RoutingMCSCostPath {
		t.Fatalf("ParseRoutingMode(1) = %v, %v", mode, err)
	}
	if _, err := ParseRoutingMode(99); err == nil {
		t.Fatal("expected error for out-of-range routing mode int")
	}
}
