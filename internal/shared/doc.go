// Package shared holds code used across packages that belongs to no single
// stage.
//
// The testutil subpackage provides a buffered slog handler for asserting on
// warnings and a synthetic market generator (known alpha, beta and shock)
// used by the end-to-end tests. testutil imports nothing from this module so
// any package's tests can use it without an import cycle.
package shared
