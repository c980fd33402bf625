package model

import "fmt"

// Sector is a single radio sector owned by a Site (spec.md §3, Sector).
// Multiple sectors can share a node_id; activating one activates all
// sectors on that node (spec.md §4.E, "Node coupling").
type Sector struct {
	ID     string
	SiteID string

	NodeID          int
	PositionInNode  int
	AntAzimuthDeg   float64
	SectorType      SectorType
	Status          StatusType
	Channel         int // UnassignedChannel, or [0, numberOfChannels)
}

// SectorID derives a deterministic identifier from owning site and
// position so re-runs produce identical IDs.
func SectorID(siteID string, nodeID, positionInNode int) string {
	return fmt.Sprintf("%s/n%d/p%d", siteID, nodeID, positionInNode)
}

// Validate checks the Sector invariant that sector_type must agree with
// the owning site's type (spec.md §3).
func (sec *Sector) Validate(owner *Site) error {
	want := SectorTypeForSite(owner.SiteType)
	if sec.SectorType != want {
		return fmt.Errorf("sector %s: type %s does not match owning site type %s (want %s)",
			sec.ID, sec.SectorType, owner.SiteType, want)
	}
	return nil
}

// TotalHorizontalCoverageDeg computes scan_range * sectors_per_node *
// nodes_per_site for the invariant check in spec.md §3 ("<= 360deg").
func TotalHorizontalCoverageDeg(scanRangeDeg float64, sectorsPerNode, nodesPerSite int) float64 {
	return scanRangeDeg * float64(sectorsPerNode) * float64(nodesPerSite)
}
