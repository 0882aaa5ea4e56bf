// Package classify assigns tickers to sectors and groups.
//
// A sector comes from ticker_sectors.csv when present and from the
// universe's fallback map otherwise; tickers neither source knows are
// labelled Unmapped and placed in the Other group. Sectors are bucketed
// into Treated, Defensive or Other by the universe's sector sets, and
// MacroExposure derives the energy, risk and FX channel flags used by the
// linkage regression.
package classify
