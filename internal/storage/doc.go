// Package storage keeps an optional history of fired periods.
//
// Drivers:
//   - "file": JSON Lines, compacted once it holds twice MaxRecords lines
//   - "sqlite": single database file via modernc.org/sqlite
//
// An empty or "none" driver disables history; Open returns (nil, nil).
package storage
