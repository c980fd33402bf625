// Package topology provides the in-memory, mutex-guarded topology store
// (spec.md §4.A): sites, sectors, links, and demand sites plus the
// forward/reverse adjacency indices every downstream stage reads through.
package topology

import (
	"sort"
	"sync"

	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/plannererr"
)

// Topology owns every site, sector, link, and demand site in a scenario.
// Mutation methods keep the adjacency indices and the site-sector index
// consistent; callers never touch those indices directly.
type Topology struct {
	mu sync.RWMutex

	sites      map[string]*model.Site
	sectors    map[string]*model.Sector
	links      map[string]*model.Link
	demands    map[string]*model.DemandSite

	sectorsBySite map[string]map[string]*model.Sector
	fwd           map[string]map[string]string // tx -> rx -> link_id
	rev           map[string]map[string]string // rx -> tx -> link_id
}

// New constructs an empty Topology.
func New() *Topology {
	return &Topology{
		sites:         make(map[string]*model.Site),
		sectors:       make(map[string]*model.Sector),
		links:         make(map[string]*model.Link),
		demands:       make(map[string]*model.DemandSite),
		sectorsBySite: make(map[string]map[string]*model.Sector),
		fwd:           make(map[string]map[string]string),
		rev:           make(map[string]map[string]string),
	}
}

// AddSite inserts a site. Returns a topology error if the id is already present.
func (t *Topology) AddSite(s *model.Site) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.sites[s.ID]; exists {
		return plannererr.Topology(plannererr.CodeInvalidValue, "site "+s.ID+" already exists", nil)
	}
	t.sites[s.ID] = s
	t.sectorsBySite[s.ID] = make(map[string]*model.Sector)
	t.fwd[s.ID] = make(map[string]string)
	t.rev[s.ID] = make(map[string]string)
	return nil
}

// RemoveSite removes a site, cascading to every sector it owns and every
// link incident to it.
func (t *Topology) RemoveSite(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeSiteLocked(id)
}

func (t *Topology) removeSiteLocked(id string) error {
	if _, ok := t.sites[id]; !ok {
		return plannererr.Topology(plannererr.CodeSiteMissing, "site "+id+" not found", nil)
	}

	for sectorID := range t.sectorsBySite[id] {
		delete(t.sectors, sectorID)
	}
	delete(t.sectorsBySite, id)

	for rx, linkID := range t.fwd[id] {
		delete(t.links, linkID)
		delete(t.rev[rx], id)
	}
	delete(t.fwd, id)

	for tx, linkID := range t.rev[id] {
		delete(t.links, linkID)
		delete(t.fwd[tx], id)
	}
	delete(t.rev, id)

	delete(t.sites, id)
	return nil
}

// SetSiteStatus transitions a site's status, refusing transitions into or
// out of an immutable status (spec.md §3 Site invariant).
func (t *Topology) SetSiteStatus(id string, status model.StatusType) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sites[id]
	if !ok {
		return plannererr.Topology(plannererr.CodeSiteMissing, "site "+id+" not found", nil)
	}
	if !s.CanTransitionTo(status) {
		return plannererr.Topology(plannererr.CodeStatusImmutable, "site "+id+" cannot transition from "+s.Status.String()+" to "+status.String(), nil)
	}
	s.Status = status
	return nil
}

// GetSite returns the site with the given id, or nil if absent.
func (t *Topology) GetSite(id string) *model.Site {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sites[id]
}

// AddSector attaches a sector to its owning site. Fails if the site is
// missing or the sector id is already present.
func (t *Topology) AddSector(sec *model.Sector) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	owner, ok := t.sites[sec.SiteID]
	if !ok {
		return plannererr.Topology(plannererr.CodeSiteMissing, "sector "+sec.ID+" references missing site "+sec.SiteID, nil)
	}
	if err := sec.Validate(owner); err != nil {
		return err
	}
	if _, exists := t.sectors[sec.ID]; exists {
		return plannererr.Topology(plannererr.CodeInvalidValue, "sector "+sec.ID+" already exists", nil)
	}
	t.sectors[sec.ID] = sec
	t.sectorsBySite[sec.SiteID][sec.ID] = sec
	return nil
}

// RemoveSector removes a sector and clears both sector fields of any
// incident link — a link can never reference only one sector.
func (t *Topology) RemoveSector(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sec, ok := t.sectors[id]
	if !ok {
		return plannererr.Topology(plannererr.CodeNotFound, "sector "+id+" not found", nil)
	}

	for _, link := range t.links {
		if link.TxSectorID == id || link.RxSectorID == id {
			link.TxSectorID = ""
			link.RxSectorID = ""
		}
	}

	delete(t.sectorsBySite[sec.SiteID], id)
	delete(t.sectors, id)
	return nil
}

// GetSector returns the sector with the given id, or nil if absent.
func (t *Topology) GetSector(id string) *model.Sector {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sectors[id]
}

// SectorsOf returns a sorted-by-id snapshot of a site's sectors.
func (t *Topology) SectorsOf(siteID string) []*model.Sector {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byID := t.sectorsBySite[siteID]
	out := make([]*model.Sector, 0, len(byID))
	for _, sec := range byID {
		out = append(out, sec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddLink inserts a directed link after checking that both endpoint
// sites exist, that its tx and rx sectors are both set or both empty,
// and that its id is new. It does not check that the named sectors
// exist or belong to the tx/rx sites.
func (t *Topology) AddLink(l *model.Link) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sites[l.TxSiteID]; !ok {
		return plannererr.Topology(plannererr.CodeSiteMissing, "link references missing tx site "+l.TxSiteID, nil)
	}
	if _, ok := t.sites[l.RxSiteID]; !ok {
		return plannererr.Topology(plannererr.CodeSiteMissing, "link references missing rx site "+l.RxSiteID, nil)
	}
	if err := l.ValidateSectors(); err != nil {
		return err
	}
	if _, exists := t.links[l.ID]; exists {
		return plannererr.Topology(plannererr.CodeInvalidValue, "link "+l.ID+" already exists", nil)
	}

	t.links[l.ID] = l
	t.fwd[l.TxSiteID][l.RxSiteID] = l.ID
	t.rev[l.RxSiteID][l.TxSiteID] = l.ID
	return nil
}

// RemoveLink removes a link by id.
func (t *Topology) RemoveLink(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.links[id]
	if !ok {
		return plannererr.Topology(plannererr.CodeNotFound, "link "+id+" not found", nil)
	}
	delete(t.links, id)
	delete(t.fwd[l.TxSiteID], l.RxSiteID)
	delete(t.rev[l.RxSiteID], l.TxSiteID)
	return nil
}

// GetLink returns a link by id.
func (t *Topology) GetLink(id string) *model.Link {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.links[id]
}

// GetLinkBySiteIDs returns the link from tx to rx, or nil if there is none.
func (t *Topology) GetLinkBySiteIDs(tx, rx string) *model.Link {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.fwd[tx][rx]
	if !ok {
		return nil
	}
	return t.links[id]
}

// AddDemandSite inserts a demand site.
func (t *Topology) AddDemandSite(d *model.DemandSite) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.demands[d.ID]; exists {
		return plannererr.Topology(plannererr.CodeInvalidValue, "demand site "+d.ID+" already exists", nil)
	}
	t.demands[d.ID] = d
	return nil
}

// GetDemandSite returns a demand site by id.
func (t *Topology) GetDemandSite(id string) *model.DemandSite {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.demands[id]
}

// Successors returns the sorted site ids reachable by one outgoing link
// from id.
func (t *Topology) Successors(id string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.fwd[id])
}

// Predecessors returns the sorted site ids with an outgoing link into id.
func (t *Topology) Predecessors(id string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.rev[id])
}

// GetColocatedSites groups all sites sharing a geographic key (lat, lon)
// with the given site, including itself.
func (t *Topology) GetColocatedSites(id string) []*model.Site {
	t.mu.RLock()
	defer t.mu.RUnlock()

	target, ok := t.sites[id]
	if !ok {
		return nil
	}
	key := target.GeoKey()

	var out []*model.Site
	for _, s := range t.sites {
		if s.GeoKey() == key {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PolarityPartition returns sites partitioned by polarity, sorted by id
// within each partition.
func (t *Topology) PolarityPartition() map[model.PolarityType][]*model.Site {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := map[model.PolarityType][]*model.Site{
		model.PolarityOdd:        nil,
		model.PolarityEven:       nil,
		model.PolarityUnassigned: nil,
	}
	for _, s := range t.sites {
		out[s.Polarity] = append(out[s.Polarity], s)
	}
	for k := range out {
		sort.Slice(out[k], func(i, j int) bool { return out[k][i].ID < out[k][j].ID })
	}
	return out
}

// SortedSiteIDs returns every site id in ascending order. Used before any
// solve to guarantee run-to-run constraint ordering (spec.md §4.A).
func (t *Topology) SortedSiteIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.sites)
}

// SortedLinkIDs returns every link id in ascending order.
func (t *Topology) SortedLinkIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.links)
}

// SortedDemandIDs returns every demand site id in ascending order.
func (t *Topology) SortedDemandIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.demands)
}

// Sites returns a snapshot of every site, sorted by id.
func (t *Topology) Sites() []*model.Site {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*model.Site, 0, len(t.sites))
	for _, s := range t.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Links returns a snapshot of every link, sorted by id.
func (t *Topology) Links() []*model.Link {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*model.Link, 0, len(t.links))
	for _, l := range t.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DemandSites returns a snapshot of every demand site, sorted by id.
func (t *Topology) DemandSites() []*model.DemandSite {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*model.DemandSite, 0, len(t.demands))
	for _, d := range t.demands {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
