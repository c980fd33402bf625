package model

import "fmt"

// Location is a geodetic position: latitude/longitude in degrees,
// altitude in metres above the site's ground level.
type Location struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeM    float64
}

// SectorParams bundles the RF characteristics shared by a device's
// sectors (spec.md §6, sector_params section).
type SectorParams struct {
	AntennaBoresightGainDBi float64
	MaximumTxPowerDBm       float64
	MinimumTxPowerDBm       float64
	NumberSectorsPerNode    int
	HorizontalScanRangeDeg  float64 // must be in [0, 360]
	CarrierFrequencyGHz     float64 // must be > 0
	ThermalNoisePowerDBm    float64
	NoiseFigureDB           float64 // >= 0
	RainRatePct             float64 // >= 0
	LinkAvailabilityPct     float64 // in [0, 100]
	TxDiversityGainDB       float64 // >= 0
	RxDiversityGainDB       float64 // >= 0
	TxMiscLossDB            float64 // >= 0
	RxMiscLossDB            float64 // >= 0
	MinimumMCSLevel         int
}

// Device describes a deployable radio SKU: its RF parameters, how many
// nodes it supports per site, and its capex (spec.md §6, device_list).
type Device struct {
	SKU               string
	Sector            SectorParams
	NodeCapex         float64
	NodesPerSite      int
	DeviceType        SectorType // DN or CN
	AntennaPatternID  string
	ScanPatternID     string
	MCSMapID          string
}

// Site is a geolocated candidate/selected access-point, POP, or client
// terminal (spec.md §3, Site).
type Site struct {
	ID       string
	Location Location

	SiteType SiteType
	Device   Device

	Status   StatusType
	Polarity PolarityType

	BuildingID          string // required iff the site is on a rooftop
	IsRooftop           bool
	NumberOfSubscribers int // optional, 0 = unset

	// SectorIDs lists sectors owned by this site, in insertion order.
	SectorIDs []string
}

// SiteID derives the stable identifier spec.md §3 requires: distinct even
// for co-located sites of different type/SKU sharing a geopoint.
func SiteID(siteType SiteType, lat, lon float64, deviceSKU string) string {
	return fmt.Sprintf("%s@%.7f,%.7f#%s", siteType, lat, lon, deviceSKU)
}

// CanTransitionTo reports whether moving from the current status to next
// is legal under the immutability invariant (spec.md §3, §4.A).
func (s *Site) CanTransitionTo(next StatusType) bool {
	if s.Status == next {
		return true
	}
	if s.Status.Immutable() || next.Immutable() {
		return false
	}
	return true
}

// MaxNodes returns how many distinct node_ids this site's sectors may use.
// CN sites are capped at one node (spec.md §3, Site invariant).
func (s *Site) MaxNodes() int {
	if s.SiteType == SiteTypeCN {
		return 1
	}
	if s.Device.NodesPerSite > 0 {
		return s.Device.NodesPerSite
	}
	return 1
}

// GeoKey returns the string used to group co-located sites (same lat/lon).
func (s *Site) GeoKey() string {
	return fmt.Sprintf("%.7f,%.7f", s.Location.LatitudeDeg, s.Location.LongitudeDeg)
}
