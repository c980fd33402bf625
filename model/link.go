package model

import "fmt"

// LinkBudget bundles the pre-computed RF link-budget fields spec.md §3
// attaches to every Link. Fields are meaningless (left zero) for wired
// links.
type LinkBudget struct {
	RSLdBm          float64
	SNRdB           float64
	MCSLevel        int
	CapacityGbps    float64
	TxPowerDBm      float64
	TxAzimuthDeg    float64
	RxAzimuthDeg    float64
	ElevationDevDeg float64
	ConfidenceLevel float64
}

// Link is a directed edge between two sites (spec.md §3, Link).
type Link struct {
	ID       string
	TxSiteID string
	RxSiteID string

	TxSectorID string // empty when "out of sector"
	RxSectorID string // both-or-neither with TxSectorID

	LinkType LinkType
	Status   StatusType
	IsWireless bool
	DistanceKm float64

	Budget LinkBudget

	// SINRdBm is filled in post-interference (§4.C); zero until then.
	SINRdBm float64

	// IsRedundant is set by the post-design max-flow router (§4.F.6):
	// a link removed from the flow DAG carries no flow and contributes
	// zero interference.
	IsRedundant bool
}

// LinkID derives the deterministic identifier spec.md §3 requires.
func LinkID(txSiteID, rxSiteID string) string {
	return txSiteID + "-" + rxSiteID
}

// LinkHash returns the unordered site-pair key used to count physical
// links once regardless of direction (spec.md §3, "link_hash").
func LinkHash(txSiteID, rxSiteID string) string {
	if txSiteID < rxSiteID {
		return txSiteID + "~" + rxSiteID
	}
	return rxSiteID + "~" + txSiteID
}

// OutOfSector reports whether this link has no sector endpoints.
func (l *Link) OutOfSector() bool {
	return l.TxSectorID == "" && l.RxSectorID == ""
}

// ValidateSectors enforces the both-or-neither invariant (spec.md §3,
// Link: "a link is out of sector when both are absent").
func (l *Link) ValidateSectors() error {
	if (l.TxSectorID == "") != (l.RxSectorID == "") {
		return fmt.Errorf("link %s: tx/rx sector must be both set or both empty", l.ID)
	}
	return nil
}
