// Package operations runs the study as a sequence of stages.
//
// Each stage reads the artifacts written by the stages before it from the
// results tree and writes its own tables, so any stage can be run on its own
// once its inputs exist. The Runner executes a plan resolved from the
// Registry in dependency order and records every stage in a run Manifest.
//
// Core Components:
//
// Stage: one unit of work (download, eventstudy, sectors, inference, did,
// ddd, volatility, volgroups, linkages, report).
//
// Registry: holds the stages and orders them topologically.
//
// State: the run inputs shared by the stages (configuration, universe,
// paths, event date) plus per-stage output bookkeeping.
//
// Runner: executes a plan with a span, metrics and a manifest entry per
// stage, and stops at the first failing stage.
package operations
