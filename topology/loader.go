package topology

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/plannererr"
)

// candidateTopologyJSON is the on-disk shape a candidate_topology_file_path
// decodes into (spec.md §6, "Solver interface"/"Persisted state layout" treat
// topology I/O as an external collaborator specified only by interface; this
// is this module's concrete choice, grounded on the teacher's
// core.LoadNetworkScenario JSON reader rather than the original's KML/CSV
// readers, since antenna-pattern/KML parsing is out of scope).
type candidateTopologyJSON struct {
	Sites       []siteJSON       `json:"sites"`
	Links       []linkJSON       `json:"links"`
	DemandSites []demandSiteJSON `json:"demand_sites"`
}

type siteJSON struct {
	ID                  string     `json:"id"`
	SiteType            string     `json:"site_type"`
	Status              string     `json:"status"`
	LatitudeDeg         float64    `json:"latitude_deg"`
	LongitudeDeg        float64    `json:"longitude_deg"`
	AltitudeM           float64    `json:"altitude_m"`
	DeviceSKU           string     `json:"device_sku"`
	BuildingID          string     `json:"building_id"`
	IsRooftop           bool       `json:"is_rooftop"`
	NumberOfSubscribers int        `json:"number_of_subscribers"`
	Sectors             []sectorJSON `json:"sectors"`
}

type sectorJSON struct {
	NodeID         int     `json:"node_id"`
	PositionInNode int     `json:"position_in_node"`
	AntAzimuthDeg  float64 `json:"ant_azimuth_deg"`
	Status         string  `json:"status"`
	Channel        int     `json:"channel"`
}

type linkJSON struct {
	TxSiteID   string  `json:"tx_site_id"`
	RxSiteID   string  `json:"rx_site_id"`
	TxNodeID   int     `json:"tx_node_id"`
	TxPosition int     `json:"tx_position_in_node"`
	RxNodeID   int     `json:"rx_node_id"`
	RxPosition int     `json:"rx_position_in_node"`
	LinkType   string  `json:"link_type"`
	Status     string  `json:"status"`
	IsWireless bool    `json:"is_wireless"`
	DistanceKm float64 `json:"distance_km"`
}

type demandSiteJSON struct {
	ID               string   `json:"id"`
	LatitudeDeg      float64  `json:"latitude_deg"`
	LongitudeDeg     float64  `json:"longitude_deg"`
	DemandGbps       float64  `json:"demand_gbps"`
	NumSites         int      `json:"num_sites"`
	ConnectedSiteIDs []string `json:"connected_site_ids"`
}

// LoadCandidateTopology reads a candidate topology from r (the file named
// by optimizer_params.candidate_topology_file_path), resolving each site's
// device_sku against devices, and returns a populated Topology ready for
// pipeline.Driver.Run.
//
// It fails on decode errors, on unknown device SKUs, site types,
// statuses and link types (plannererr.ConfigErr), and on any error the
// AddSite, AddSector, AddLink and AddDemandSite calls return.
func LoadCandidateTopology(r io.Reader, devices []config.Device) (*Topology, error) {
	bySKU := make(map[string]config.Device, len(devices))
	for _, d := range devices {
		bySKU[d.SKU] = d
	}

	var payload candidateTopologyJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, plannererr.IO(plannererr.CodeParseFailure, "candidate_topology_file_path", "decode candidate topology", err)
	}

	topo := New()

	for _, js := range payload.Sites {
		siteType, err := parseSiteType(js.SiteType)
		if err != nil {
			return nil, err
		}
		status, err := parseStatusType(js.Status)
		if err != nil {
			return nil, err
		}

		site := &model.Site{
			ID:       js.ID,
			Location: model.Location{LatitudeDeg: js.LatitudeDeg, LongitudeDeg: js.LongitudeDeg, AltitudeM: js.AltitudeM},
			SiteType: siteType,
			Status:   status,
			BuildingID:          js.BuildingID,
			IsRooftop:           js.IsRooftop,
			NumberOfSubscribers: js.NumberOfSubscribers,
		}
		if js.DeviceSKU != "" {
			dev, ok := bySKU[js.DeviceSKU]
			if !ok {
				return nil, plannererr.Config(plannererr.CodeInvalidValue, "site "+js.ID+" references unknown device_sku "+js.DeviceSKU, nil)
			}
			site.Device = deviceFromConfig(dev)
		}
		if err := topo.AddSite(site); err != nil {
			return nil, err
		}

		wantSectorType := model.SectorTypeForSite(siteType)
		for _, sj := range js.Sectors {
			secStatus, err := parseStatusType(sj.Status)
			if err != nil {
				return nil, err
			}
			sec := &model.Sector{
				ID:             model.SectorID(js.ID, sj.NodeID, sj.PositionInNode),
				SiteID:         js.ID,
				NodeID:         sj.NodeID,
				PositionInNode: sj.PositionInNode,
				AntAzimuthDeg:  sj.AntAzimuthDeg,
				SectorType:     wantSectorType,
				Status:         secStatus,
				Channel:        sj.Channel,
			}
			if err := topo.AddSector(sec); err != nil {
				return nil, err
			}
		}
	}

	for _, lj := range payload.Links {
		status, err := parseStatusType(lj.Status)
		if err != nil {
			return nil, err
		}
		linkType, err := parseLinkType(lj.LinkType)
		if err != nil {
			return nil, err
		}
		link := &model.Link{
			ID:         model.LinkID(lj.TxSiteID, lj.RxSiteID),
			TxSiteID:   lj.TxSiteID,
			RxSiteID:   lj.RxSiteID,
			LinkType:   linkType,
			Status:     status,
			IsWireless: lj.IsWireless,
			DistanceKm: lj.DistanceKm,
		}
		if linkType != model.LinkTypeEthernet {
			link.TxSectorID = model.SectorID(lj.TxSiteID, lj.TxNodeID, lj.TxPosition)
			link.RxSectorID = model.SectorID(lj.RxSiteID, lj.RxNodeID, lj.RxPosition)
		}
		if err := topo.AddLink(link); err != nil {
			return nil, err
		}
	}

	for _, dj := range payload.DemandSites {
		if err := topo.AddDemandSite(&model.DemandSite{
			ID:               dj.ID,
			Location:         model.Location{LatitudeDeg: dj.LatitudeDeg, LongitudeDeg: dj.LongitudeDeg},
			DemandGbps:       dj.DemandGbps,
			NumSites:         dj.NumSites,
			ConnectedSiteIDs: dj.ConnectedSiteIDs,
		}); err != nil {
			return nil, err
		}
	}

	return topo, nil
}

func deviceFromConfig(d config.Device) model.Device {
	return model.Device{
		SKU:              d.SKU,
		Sector:           d.Sector.ToModel(),
		NodeCapex:        d.NodeCapex,
		NodesPerSite:     d.ResolvedNodesPerSite(),
		DeviceType:       sectorTypeFromDeviceType(d.DeviceType),
		AntennaPatternID: d.AntennaPatternID,
		ScanPatternID:    d.ScanPatternID,
		MCSMapID:         d.MCSMapID,
	}
}

func sectorTypeFromDeviceType(dt config.DeviceType) model.SectorType {
	if dt == config.DeviceTypeCN {
		return model.SectorTypeCN
	}
	return model.SectorTypeDN
}

func parseSiteType(s string) (model.SiteType, error) {
	switch s {
	case "POP":
		return model.SiteTypePOP, nil
	case "DN":
		return model.SiteTypeDN, nil
	case "CN":
		return model.SiteTypeCN, nil
	}
	return model.SiteTypeUnknown, plannererr.Config(plannererr.CodeInvalidValue, "unknown site_type "+fmt.Sprintf("%q", s), nil)
}

func parseStatusType(s string) (model.StatusType, error) {
	switch s {
	case "", "CANDIDATE":
		return model.StatusCandidate, nil
	case "PROPOSED":
		return model.StatusProposed, nil
	case "EXISTING":
		return model.StatusExisting, nil
	case "UNAVAILABLE":
		return model.StatusUnavailable, nil
	case "UNREACHABLE":
		return model.StatusUnreachable, nil
	}
	return model.StatusUnknown, plannererr.Config(plannererr.CodeInvalidValue, "unknown status "+fmt.Sprintf("%q", s), nil)
}

func parseLinkType(s string) (model.LinkType, error) {
	switch s {
	case "", "WIRELESS_BACKHAUL":
		return model.LinkTypeWirelessBackhaul, nil
	case "WIRELESS_ACCESS":
		return model.LinkTypeWirelessAccess, nil
	case "ETHERNET":
		return model.LinkTypeEthernet, nil
	}
	return model.LinkTypeUnknown, plannererr.Config(plannererr.CodeInvalidValue, "unknown link_type "+fmt.Sprintf("%q", s), nil)
}
