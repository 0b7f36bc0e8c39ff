// Package freshcache keeps per-entity data packages fresh enough for
// readers without making them wait on recomputation.
package freshcache

// Release is the current release of this module.
const Release = "v0.1.0"
