package model

import "fmt"

// DemandSite is a geographic demand point: a scalar bandwidth requirement
// (Gbps) that may replicate to several co-located subscribers, each
// served through a list of candidate serving sites (spec.md §3,
// DemandSite).
type DemandSite struct {
	ID       string
	Location Location

	DemandGbps float64
	NumSites   int // replication factor; must be >= 1

	ConnectedSiteIDs []string
}

// ExpandedID returns the identifier assigned to the k-th replica of this
// demand site during setup (spec.md §3: "d, d_1, d_2, ..."). k == 0
// returns the base ID itself.
func ExpandedID(baseID string, k int) string {
	if k == 0 {
		return baseID
	}
	return fmt.Sprintf("%s_%d", baseID, k)
}

// Expand returns the list of expanded demand identifiers for this
// DemandSite's replication factor, honouring NumSites <= 1 as "no
// replication".
func (d *DemandSite) Expand() []string {
	n := d.NumSites
	if n < 1 {
		n = 1
	}
	ids := make([]string, n)
	for k := 0; k < n; k++ {
		ids[k] = ExpandedID(d.ID, k)
	}
	return ids
}
