package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

//go:embed universe.yaml
var defaultUniverseYAML []byte

// Universe describes the securities under study and how they are bucketed.
// It is loaded from YAML so a different event or market can be studied
// without code changes.
type Universe struct {
	MarketTicker        string            `yaml:"market_ticker"`
	MacroTickers        []string          `yaml:"macro_tickers"`
	Equities            []string          `yaml:"equities"`
	TreatedSectors      []string          `yaml:"treated_sectors"`
	DefensiveSectors    []string          `yaml:"defensive_sectors"`
	HighExposureTickers []string          `yaml:"high_exposure_tickers"`
	HighExposureGroups  []string          `yaml:"high_exposure_groups"`
	SectorMap           map[string]string `yaml:"sector_map"`
	Macro               MacroSymbols      `yaml:"macro"`
	VolGroupSectors     GroupSectors      `yaml:"vol_group_sectors"`
}

// GroupSectors is an alternative Treated/Defensive bucketing
type GroupSectors struct {
	Treated   []string `yaml:"treated"`
	Defensive []string `yaml:"defensive"`
}

// VolGroups returns the volatility comparison buckets, defaulting to the
// main treated and defensive sets when none are configured
func (u *Universe) VolGroups() GroupSectors {
	if len(u.VolGroupSectors.Treated) == 0 && len(u.VolGroupSectors.Defensive) == 0 {
		return GroupSectors{Treated: u.TreatedSectors, Defensive: u.DefensiveSectors}
	}
	return u.VolGroupSectors
}

// MacroSymbols names the price columns used for macro shocks
type MacroSymbols struct {
	Brent string `yaml:"brent"`
	VIX   string `yaml:"vix"`
	INR   string `yaml:"inr"`
}

// DefaultUniverse returns the embedded NIFTY 50 universe
func DefaultUniverse() (*Universe, error) {
	return parseUniverse(defaultUniverseYAML)
}

// LoadUniverse reads a universe file, or the embedded default when path is empty
func LoadUniverse(path string) (*Universe, error) {
	if path == "" {
		return DefaultUniverse()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe file: %w", err)
	}
	return parseUniverse(data)
}

func parseUniverse(data []byte) (*Universe, error) {
	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse universe: %w", err)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

// Validate checks the universe is usable
func (u *Universe) Validate() error {
	if u.MarketTicker == "" {
		return fmt.Errorf("universe: market_ticker is required")
	}
	if len(u.TreatedSectors) == 0 || len(u.DefensiveSectors) == 0 {
		return fmt.Errorf("universe: treated_sectors and defensive_sectors are required")
	}
	for _, s := range u.TreatedSectors {
		for _, d := range u.DefensiveSectors {
			if s == d {
				return fmt.Errorf("universe: sector %q is both treated and defensive", s)
			}
		}
	}
	return nil
}

// NonEquityColumns returns the market and macro columns of the price panel
func (u *Universe) NonEquityColumns() map[string]bool {
	cols := map[string]bool{u.MarketTicker: true}
	for _, m := range u.MacroTickers {
		cols[m] = true
	}
	return cols
}
