package model

import (
	"strings"

	"github.com/latticeforge/meshplanner/plannererr"
)

// SiteType classifies a Site's role in the mesh.
type SiteType int

const (
	SiteTypeUnknown SiteType = iota
	SiteTypePOP              // Point of Presence: connected to upstream network
	SiteTypeDN               // Distribution Node: relay site
	SiteTypeCN               // Client Node: terminal site delivering traffic to demand
)

func (t SiteType) String() string {
	switch t {
	case SiteTypePOP:
		return "POP"
	case SiteTypeDN:
		return "DN"
	case SiteTypeCN:
		return "CN"
	default:
		return "UNKNOWN"
	}
}

// StatusType is the lifecycle/decision status shared by sites, sectors and
// links. EXISTING and UNAVAILABLE are immutable: the optimizer may never
// change a site/sector/link away from, or into, either status.
type StatusType int

const (
	StatusUnknown StatusType = iota
	StatusCandidate
	StatusProposed
	StatusExisting
	StatusUnavailable
	StatusUnreachable
)

func (s StatusType) String() string {
	switch s {
	case StatusCandidate:
		return "CANDIDATE"
	case StatusProposed:
		return "PROPOSED"
	case StatusExisting:
		return "EXISTING"
	case StatusUnavailable:
		return "UNAVAILABLE"
	case StatusUnreachable:
		return "UNREACHABLE"
	default:
		return "UNKNOWN"
	}
}

// Immutable reports whether the optimizer is forbidden from changing a
// status away from or into this value (spec.md §3, Site invariant).
func (s StatusType) Immutable() bool {
	return s == StatusExisting || s == StatusUnavailable
}

// Active reports whether a site/sector/link in this status participates
// in the active network (PROPOSED or EXISTING).
func (s StatusType) Active() bool {
	return s == StatusProposed || s == StatusExisting
}

// PolarityType is the ODD/EVEN two-colouring used for TDM time-sharing.
type PolarityType int

const (
	PolarityUnassigned PolarityType = iota
	PolarityOdd
	PolarityEven
)

func (p PolarityType) String() string {
	switch p {
	case PolarityOdd:
		return "ODD"
	case PolarityEven:
		return "EVEN"
	default:
		return "UNASSIGNED"
	}
}

// Opposite returns the other polarity; PolarityUnassigned maps to itself.
func (p PolarityType) Opposite() PolarityType {
	switch p {
	case PolarityOdd:
		return PolarityEven
	case PolarityEven:
		return PolarityOdd
	default:
		return PolarityUnassigned
	}
}

// SectorType mirrors the owning site's type: only DN or CN sectors exist.
type SectorType int

const (
	SectorTypeUnknown SectorType = iota
	SectorTypeDN
	SectorTypeCN
)

func (t SectorType) String() string {
	switch t {
	case SectorTypeDN:
		return "DN"
	case SectorTypeCN:
		return "CN"
	default:
		return "UNKNOWN"
	}
}

// SectorTypeForSite derives the sector type implied by a site type
// (spec.md §3, Sector invariant: "sector_type agrees with the site type").
func SectorTypeForSite(t SiteType) SectorType {
	switch t {
	case SiteTypeCN:
		return SectorTypeCN
	case SiteTypePOP, SiteTypeDN:
		return SectorTypeDN
	default:
		return SectorTypeUnknown
	}
}

// UnassignedChannel marks a sector/link with no channel decision yet.
const UnassignedChannel = -1

// LinkType classifies the physical medium of a Link.
type LinkType int

const (
	LinkTypeUnknown LinkType = iota
	LinkTypeWirelessBackhaul
	LinkTypeWirelessAccess
	LinkTypeEthernet
)

func (t LinkType) String() string {
	switch t {
	case LinkTypeWirelessBackhaul:
		return "WIRELESS_BACKHAUL"
	case LinkTypeWirelessAccess:
		return "WIRELESS_ACCESS"
	case LinkTypeEthernet:
		return "ETHERNET"
	default:
		return "UNKNOWN"
	}
}

// IsWireless reports whether this link type carries a radio hop.
func (t LinkType) IsWireless() bool {
	return t == LinkTypeWirelessBackhaul || t == LinkTypeWirelessAccess
}

// RedundancyLevel controls the (pop,dn,sink) node-disjointness targets
// used by the redundancy stage (spec.md §4.F.4).
type RedundancyLevel int

const (
	RedundancyNone RedundancyLevel = iota
	RedundancyLow
	RedundancyMedium
	RedundancyHigh
)

// ParseRedundancyLevel accepts the level both by name and by integer
// (spec.md §6, "enum values accepted by name or by integer").
func ParseRedundancyLevel(v any) (RedundancyLevel, error) {
	switch val := v.(type) {
	case string:
		switch strings.ToUpper(val) {
		case "NONE":
			return RedundancyNone, nil
		case "LOW":
			return RedundancyLow, nil
		case "MEDIUM":
			return RedundancyMedium, nil
		case "HIGH":
			return RedundancyHigh, nil
		}
	case int:
		if val >= int(RedundancyNone) && val <= int(RedundancyHigh) {
			return RedundancyLevel(val), nil
		}
	}
	return RedundancyNone, plannererr.Config(plannererr.CodeInvalidValue, "redundancy_level must be NONE, LOW, MEDIUM or HIGH", nil)
}

func (r RedundancyLevel) String() string {
	switch r {
	case RedundancyLow:
		return "LOW"
	case RedundancyMedium:
		return "MEDIUM"
	case RedundancyHigh:
		return "HIGH"
	default:
		return "NONE"
	}
}

// RoutingMode selects how topology-level routes are recomputed for
// reporting and disjoint-path classification (spec.md §4.D).
type RoutingMode int

const (
	RoutingShortestPath RoutingMode = iota
	RoutingMCSCostPath
	RoutingDPAPath
)

// ParseRoutingMode accepts the mode both by name and by integer (spec.md
// §6, "enum values accepted by name or by integer").
func ParseRoutingMode(v any) (RoutingMode, error) {
	switch val := v.(type) {
	case string:
		switch strings.ToUpper(val) {
		case "SHORTEST_PATH":
			return RoutingShortestPath, nil
		case "MCS_COST_PATH":
			return RoutingMCSCostPath, nil
		case "DPA_PATH":
			return RoutingDPAPath, nil
		}
	case int:
		if val >= int(RoutingShortestPath) && val <= int(RoutingDPAPath) {
			return RoutingMode(val), nil
		}
	}
	return RoutingShortestPath, plannererr.Config(plannererr.CodeInvalidValue, "topology_routing must be SHORTEST_PATH, MCS_COST_PATH or DPA_PATH", nil)
}

func (m RoutingMode) String() string {
	switch m {
	case RoutingMCSCostPath:
		return "MCS_COST_PATH"
	case RoutingDPAPath:
		return "DPA_PATH"
	default:
		return "SHORTEST_PATH"
	}
}
