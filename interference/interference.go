// Package interference implements the RF interference engine spec.md
// §4.C describes: for every directed wireless link acting as an
// "interfering path", it sweeps the other outgoing links of its tx
// sector against the other incoming links of its rx sector, computes a
// net-gain budget per (interfering-path, rx-interfered, tx-interfering)
// triple, and folds those into a worst-case RSL-interference map. The
// pipeline reads that map through AnalyzeInterference to fill each
// link's SINR; the min-interference MILP does not read it and takes each
// candidate interferer's own Budget.RSLdBm instead.
//
// Grounded on the teacher's single-link estimateLinkSNRdB pattern
// (core/connectivity_service.go) generalized to the full pairwise sweep
// original_source/terragraph_planner/optimization/topology_interference.py
// performs, reusing this module's geo.FreeSpacePathLossDB for the FSPL
// term that teacher function computed inline.
package interference

import (
	"math"

	"github.com/latticeforge/meshplanner/geo"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/topology"
)

// sidelobeFloorDB is the attenuation ceiling applied once a deviation
// angle pushes an antenna pattern into its sidelobe region — no real
// antenna is modeled here, only its boresight gain, so this bounds how
// pessimistic a 90-degree-off-boresight contribution can be.
const sidelobeFloorDB = 20.0

// AntennaGainDBi approximates an antenna's gain at a given angular
// deviation from boresight using the standard 12*(theta/theta_3dB)^2
// parabolic rolloff, clamped at the sidelobe floor. This substitutes for
// the antenna_pattern_file data spec.md §6 allows but out-of-scope I/O
// never parses (see DESIGN.md).
func AntennaGainDBi(boresightGainDBi, scanRangeDeg, deviationDeg float64) float64 {
	deviationDeg = math.Abs(deviationDeg)
	halfBeamwidth := scanRangeDeg / 2
	if halfBeamwidth <= 0 {
		halfBeamwidth = 5
	}
	normalized := deviationDeg / halfBeamwidth
	attenuation := 12 * normalized * normalized
	if attenuation > sidelobeFloorDB {
		attenuation = sidelobeFloorDB
	}
	return boresightGainDBi - attenuation
}

// NetGainDB computes the combined link budget "net gain" term spec.md
// §4.C defines: FSPL contribution plus tx/rx antenna gain at their
// respective deviations, minus the tx/rx miscellaneous loss.
func NetGainDB(distanceKm float64, tx, rx model.SectorParams, txDeviationDeg, rxDeviationDeg, txElDeviationDeg, rxElDeviationDeg float64) float64 {
	fspl := geo.FreeSpacePathLossDB(distanceKm, tx.CarrierFrequencyGHz)

	txHorizGain := AntennaGainDBi(tx.AntennaBoresightGainDBi, tx.HorizontalScanRangeDeg, txDeviationDeg)
	txVertGain := AntennaGainDBi(tx.AntennaBoresightGainDBi, tx.HorizontalScanRangeDeg, txElDeviationDeg)
	rxHorizGain := AntennaGainDBi(rx.AntennaBoresightGainDBi, rx.HorizontalScanRangeDeg, rxDeviationDeg)
	rxVertGain := AntennaGainDBi(rx.AntennaBoresightGainDBi, rx.HorizontalScanRangeDeg, rxElDeviationDeg)

	txGain := math.Min(txHorizGain, txVertGain)
	rxGain := math.Min(rxHorizGain, rxVertGain)

	return -fspl + txGain + rxGain - tx.TxMiscLossDB - rx.RxMiscLossDB
}

// RSLFromTxPower converts a transmit power and a net-gain budget into a
// received signal level, both in dBm/dB.
func RSLFromTxPower(txPowerDBm, netGainDB float64) float64 {
	return txPowerDBm + netGainDB
}

func dBmToMilliwatt(dbm float64) float64 { return math.Pow(10, dbm/10) }
func milliwattToDBm(mw float64) float64 {
	if mw <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(mw)
}

// AngleDeltaDeg returns the smallest absolute angular difference between
// two azimuths, reusing geo.AngleBetweenBearingsDeg.
func AngleDeltaDeg(a, b float64) float64 {
	return geo.AngleBetweenBearingsDeg(a, b)
}

// Engine computes the interference maps spec.md §4.C names, caching the
// sector-to-link connectivity indices the pairwise sweep needs.
type Engine struct {
	topo *topology.Topology

	sitesByID   map[string]*model.Site
	sectorsByID map[string]*model.Sector

	// txSectorLinks[sectorID][otherRxSectorID] = linkID, the other
	// outgoing links of a tx sector.
	txSectorLinks map[string]map[string]string
	// rxSectorLinks[sectorID][otherTxSectorID] = linkID, the other
	// incoming links of an rx sector.
	rxSectorLinks map[string]map[string]string
}

// NewEngine builds an Engine from a snapshot of the given topology.
func NewEngine(topo *topology.Topology) *Engine {
	e := &Engine{
		topo:          topo,
		sitesByID:     make(map[string]*model.Site),
		sectorsByID:   make(map[string]*model.Sector),
		txSectorLinks: make(map[string]map[string]string),
		rxSectorLinks: make(map[string]map[string]string),
	}
	for _, s := range topo.Sites() {
		e.sitesByID[s.ID] = s
		for _, sec := range topo.SectorsOf(s.ID) {
			e.sectorsByID[sec.ID] = sec
		}
	}
	for _, l := range topo.Links() {
		if l.LinkType == model.LinkTypeEthernet || l.OutOfSector() || l.IsRedundant {
			continue
		}
		if e.txSectorLinks[l.TxSectorID] == nil {
			e.txSectorLinks[l.TxSectorID] = make(map[string]string)
		}
		e.txSectorLinks[l.TxSectorID][l.RxSectorID] = l.ID

		if e.rxSectorLinks[l.RxSectorID] == nil {
			e.rxSectorLinks[l.RxSectorID] = make(map[string]string)
		}
		e.rxSectorLinks[l.RxSectorID][l.TxSectorID] = l.ID
	}
	return e
}

// cnPolarities derives each CN's effective polarity from its single
// active incoming link (spec.md §3, §4.C: "CNs take the opposite of
// their serving DN").
func (e *Engine) cnPolarities() map[string]model.PolarityType {
	out := make(map[string]model.PolarityType)
	for _, l := range e.topo.Links() {
		if !l.Status.Active() {
			continue
		}
		rxSite := e.sitesByID[l.RxSiteID]
		if rxSite == nil || rxSite.SiteType != model.SiteTypeCN {
			continue
		}
		txSite := e.sitesByID[l.TxSiteID]
		pol := model.PolarityUnassigned
		if txSite != nil {
			pol = txSite.Polarity.Opposite()
		}
		if existing, ok := out[rxSite.ID]; ok && existing != pol {
			out[rxSite.ID] = model.PolarityUnassigned
		} else {
			out[rxSite.ID] = pol
		}
	}
	return out
}

// compatiblePolarity reports whether a link's endpoints have compatible
// assigned polarities (spec.md §4.C polarity filter).
func (e *Engine) compatiblePolarity(l *model.Link, cnPol map[string]model.PolarityType) bool {
	txSite := e.sitesByID[l.TxSiteID]
	rxSite := e.sitesByID[l.RxSiteID]
	if txSite == nil || rxSite == nil || !txSite.Status.Active() || !rxSite.Status.Active() {
		return false
	}

	txPol := txSite.Polarity
	rxPol := rxSite.Polarity
	if rxSite.SiteType == model.SiteTypeCN {
		rxPol = cnPol[rxSite.ID]
	}

	oddOrEven := func(p model.PolarityType) bool {
		return p == model.PolarityOdd || p == model.PolarityEven
	}
	if txPol == model.PolarityUnassigned || rxPol == model.PolarityUnassigned {
		return true
	}
	return txPol != rxPol && oddOrEven(txPol) && oddOrEven(rxPol)
}

// compatibleChannel reports whether a link's sectors share a channel
// (spec.md §4.C references channel compatibility alongside polarity).
func (e *Engine) compatibleChannel(l *model.Link) bool {
	if l.OutOfSector() {
		return false
	}
	txSec := e.sectorsByID[l.TxSectorID]
	rxSec := e.sectorsByID[l.RxSectorID]
	if txSec == nil || rxSec == nil || !txSec.Status.Active() || !rxSec.Status.Active() {
		return false
	}
	return txSec.Channel == rxSec.Channel || txSec.Channel == model.UnassignedChannel || rxSec.Channel == model.UnassignedChannel
}

// LinkNetGainMap is link_net_gain_map[interfering_path][rx_link][tx_link] = net_gain (spec.md §4.C).
type LinkNetGainMap map[string]map[string]map[string]float64

// ComputeLinkNetGainMap sweeps every active wireless link as a candidate
// interfering path and records the net gain its tx sector's other
// outgoing links impose on its rx sector's other incoming links.
func (e *Engine) ComputeLinkNetGainMap() LinkNetGainMap {
	cnPol := e.cnPolarities()
	out := make(LinkNetGainMap)

	for _, path := range e.topo.Links() {
		if path.LinkType == model.LinkTypeEthernet || path.OutOfSector() {
			continue
		}
		if !e.compatiblePolarity(path, cnPol) || !e.compatibleChannel(path) {
			continue
		}

		txLinks := e.txSectorLinks[path.TxSectorID]
		if len(txLinks) == 0 {
			continue
		}
		rxLinks := e.rxSectorLinks[path.RxSectorID]
		if len(rxLinks) <= 1 {
			continue
		}

		e.netGainOnRxLinks(out, txLinks, rxLinks, path)
	}
	return out
}

func (e *Engine) netGainOnRxLinks(out LinkNetGainMap, txLinks, rxLinks map[string]string, path *model.Link) {
	for rxFromSectorID, rxInterferedID := range rxLinks {
		if rxFromSectorID == path.TxSectorID {
			continue
		}
		rxInterfered := e.topo.GetLink(rxInterferedID)
		if rxInterfered == nil || rxInterfered.LinkType == model.LinkTypeEthernet || !rxInterfered.Status.Active() {
			continue
		}

		for txToSectorID, txInterferingID := range txLinks {
			if txToSectorID == path.RxSectorID || txToSectorID == rxFromSectorID {
				continue
			}
			txInterfering := e.topo.GetLink(txInterferingID)
			if txInterfering == nil || txInterfering.LinkType == model.LinkTypeEthernet || !txInterfering.Status.Active() {
				continue
			}

			txDev := AngleDeltaDeg(path.Budget.TxAzimuthDeg, txInterfering.Budget.TxAzimuthDeg)
			rxDev := AngleDeltaDeg(path.Budget.RxAzimuthDeg, rxInterfered.Budget.RxAzimuthDeg)
			txElDev := AngleDeltaDeg(path.Budget.ElevationDevDeg, txInterfering.Budget.ElevationDevDeg)
			rxElDev := -AngleDeltaDeg(path.Budget.ElevationDevDeg, rxInterfered.Budget.ElevationDevDeg)

			txSite := e.sitesByID[path.TxSiteID]
			rxSite := e.sitesByID[path.RxSiteID]
			if txSite == nil || rxSite == nil {
				continue
			}
			netGain := NetGainDB(path.DistanceKm, txSite.Device.Sector, rxSite.Device.Sector, txDev, rxDev, txElDev, rxElDev)

			if out[path.ID] == nil {
				out[path.ID] = make(map[string]map[string]float64)
			}
			if out[path.ID][rxInterferedID] == nil {
				out[path.ID][rxInterferedID] = make(map[string]float64)
			}
			out[path.ID][rxInterferedID][txInterferingID] = netGain
		}
	}
}

// ComputeLinkRSLMap folds a LinkNetGainMap into rsl_interference_map: for
// each rx-interfered link, the sum of the (linear) interference power
// contributed by every distinct interfering path, averaging multiple
// simultaneous tx interferers sharing one tx sector (spec.md §4.C:
// "Multiple time-sharing interferers on the same tx sector are
// averaged").
func (e *Engine) ComputeLinkRSLMap(netGainMap LinkNetGainMap) map[string]float64 {
	rslMW := make(map[string]float64)

	for _, rxInterferenceMap := range netGainMap {
		for rxInterferedID, txInterferenceMap := range rxInterferenceMap {
			if len(txInterferenceMap) == 0 {
				continue
			}
			var sumMW float64
			for txInterferingID, netGain := range txInterferenceMap {
				txLink := e.topo.GetLink(txInterferingID)
				if txLink == nil {
					continue
				}
				rsl := RSLFromTxPower(txLink.Budget.TxPowerDBm, netGain)
				sumMW += dBmToMilliwatt(rsl)
			}
			rslMW[rxInterferedID] += sumMW / float64(len(txInterferenceMap))
		}
	}

	out := make(map[string]float64, len(rslMW))
	for linkID, mw := range rslMW {
		out[linkID] = milliwattToDBm(mw)
	}
	return out
}

// AnalyzeInterference fills in SINR on every active wireless link, given
// a precomputed (or freshly computed) RSL interference map.
func (e *Engine) AnalyzeInterference(rslMap map[string]float64) {
	for _, l := range e.topo.Links() {
		if l.LinkType == model.LinkTypeEthernet || !l.Status.Active() {
			continue
		}
		if math.IsInf(l.Budget.RSLdBm, -1) {
			l.SINRdBm = math.Inf(-1)
			continue
		}

		rxSite := e.sitesByID[l.RxSiteID]
		var noiseDBm float64
		if rxSite != nil {
			noiseDBm = rxSite.Device.Sector.ThermalNoisePowerDBm + rxSite.Device.Sector.NoiseFigureDB
		}
		noiseMW := dBmToMilliwatt(noiseDBm)

		interferenceDBm, hasInterference := rslMap[l.ID]
		interferenceMW := 0.0
		if hasInterference {
			interferenceMW = dBmToMilliwatt(interferenceDBm)
		}

		noiseAndInterferenceDBm := milliwattToDBm(interferenceMW + noiseMW)
		l.SINRdBm = l.Budget.RSLdBm - noiseAndInterferenceDBm
	}
}
