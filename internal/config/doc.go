// Package config provides layered configuration for shockstudy.
//
// Configuration is resolved in order:
//
//  1. Built-in defaults (Default)
//  2. An optional YAML file passed with --config
//  3. An optional .env file in the working directory
//  4. SHOCK_* environment variables, e.g. SHOCK_STUDY_PRE_DAYS=90
//
// The result is validated with struct tags before any stage runs.
//
// Paths is the single source of truth for artifact locations: every stage
// reads and writes through Paths.TablePath and friends so a stage can name
// the upstream stage responsible for a missing file.
//
// Universe holds the securities, sector buckets and macro symbols. The
// default NIFTY 50 universe is embedded; a different one can be supplied
// with --universe.
package config
