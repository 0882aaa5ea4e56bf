package classify

import (
	"strings"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
)

// Label is the grouping of one ticker
type Label struct {
	Ticker        string
	Sector        string
	ExposureGroup string
	Group         string
	HighExposure  bool
	// Mapped is false when no sector source knew the ticker
	Mapped bool
}

// Treated reports whether the label is in the treated group
func (l Label) Treated() bool { return l.Group == config.GroupTreated }

// SectorSource decides which sector lookup is tried first
type SectorSource int

const (
	// StudyMapFirst resolves through the universe sector map and falls back
	// to the provider metadata. CAR and panel grouping use it.
	StudyMapFirst SectorSource = iota
	// MetadataFirst prefers the provider sectors written by the download
	// stage. The volatility paths use it.
	MetadataFirst
)

func (s SectorSource) String() string {
	if s == MetadataFirst {
		return "metadata"
	}
	return "study_map"
}

// Option configures a Classifier
type Option func(*Classifier)

// WithSectorSource sets the lookup order of SectorOf
func WithSectorSource(src SectorSource) Option {
	return func(c *Classifier) { c.source = src }
}

// Classifier buckets tickers by sector into Treated, Defensive or Other
type Classifier struct {
	treated     map[string]bool
	defensive   map[string]bool
	highTickers map[string]bool
	highGroups  map[string]bool
	sectorMap   map[string]string
	meta        *MetaTable
	source      SectorSource
}

// New builds a classifier from a universe. meta may be nil, in which case
// sectors come from the universe's sector map only. The default source is
// StudyMapFirst.
func New(u *config.Universe, meta *MetaTable, opts ...Option) *Classifier {
	c := &Classifier{
		treated:     toSet(u.TreatedSectors),
		defensive:   toSet(u.DefensiveSectors),
		highTickers: toSet(u.HighExposureTickers),
		highGroups:  make(map[string]bool, len(u.HighExposureGroups)),
		sectorMap:   u.SectorMap,
		meta:        meta,
	}
	for _, g := range u.HighExposureGroups {
		c.highGroups[strings.ToLower(g)] = true
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Source returns the sector lookup order
func (c *Classifier) Source() SectorSource { return c.source }

// WithGroups returns a copy using different treated and defensive sector sets
func (c *Classifier) WithGroups(g config.GroupSectors) *Classifier {
	cp := *c
	cp.treated = toSet(g.Treated)
	cp.defensive = toSet(g.Defensive)
	return &cp
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

// Group maps a sector to Treated, Defensive or Other. Treated wins when a
// sector is listed in both sets.
func (c *Classifier) Group(sector string) string {
	switch {
	case sector == "":
		return config.GroupOther
	case c.treated[sector]:
		return config.GroupTreated
	case c.defensive[sector]:
		return config.GroupDefensive
	}
	return config.GroupOther
}

// HighExposure uses the exposure group when one is recorded and the static
// high-exposure ticker list otherwise.
func (c *Classifier) HighExposure(ticker, exposureGroup string) bool {
	if g := strings.ToLower(strings.TrimSpace(exposureGroup)); g != "" {
		return c.highGroups[g]
	}
	return c.highTickers[ticker]
}

// SectorOf resolves a ticker's sector from the universe map and the
// metadata file, in the order of the classifier's source. ok is false when
// neither knows the ticker.
func (c *Classifier) SectorOf(ticker string) (sector string, ok bool) {
	lookups := []func(string) (string, bool){c.mapSector, c.metaSector}
	if c.source == MetadataFirst {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}
	for _, lookup := range lookups {
		if s, found := lookup(ticker); found {
			return s, true
		}
	}
	return config.UnmappedSector, false
}

func (c *Classifier) mapSector(ticker string) (string, bool) {
	s, found := c.sectorMap[ticker]
	return s, found && s != "" && s != config.UnmappedSector
}

func (c *Classifier) metaSector(ticker string) (string, bool) {
	if c.meta == nil {
		return "", false
	}
	m, found := c.meta.Get(ticker)
	return m.Sector, found && m.Sector != "" && m.Sector != config.UnmappedSector
}

// Label classifies one ticker
func (c *Classifier) Label(ticker string) Label {
	sector, ok := c.SectorOf(ticker)
	var exposure string
	if c.meta != nil {
		if m, found := c.meta.Get(ticker); found {
			exposure = m.ExposureGroup
		}
	}
	l := Label{
		Ticker:        ticker,
		Sector:        sector,
		ExposureGroup: exposure,
		HighExposure:  c.HighExposure(ticker, exposure),
		Mapped:        ok,
	}
	if ok {
		l.Group = c.Group(sector)
	} else {
		l.Group = config.GroupOther
	}
	return l
}

// LabelAll classifies tickers, recording each unmapped one in report
func (c *Classifier) LabelAll(tickers []string, report *apperrors.SkipReport) map[string]Label {
	out := make(map[string]Label, len(tickers))
	for _, t := range tickers {
		if _, seen := out[t]; seen {
			continue
		}
		l := c.Label(t)
		if !l.Mapped && report != nil {
			report.Add(apperrors.NewUnmappedError(t))
		}
		out[t] = l
	}
	return out
}

// Counts tallies labels per group
func Counts(labels map[string]Label) map[string]int {
	out := map[string]int{}
	for _, l := range labels {
		out[l.Group]++
	}
	return out
}
