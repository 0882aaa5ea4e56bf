// Package marketdata downloads daily closes and sector profiles from a
// Yahoo-style chart API and assembles the raw inputs of the pipeline: the
// merged, forward-filled price panel and the ticker to sector table.
package marketdata
