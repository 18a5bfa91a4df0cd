// Package main hosts the zapvoice CLI entrypoint and command graph.
//
// The `serve` command runs the HTTP server process (pledge flow, goal
// widgets, browser alert overlay). The remaining commands talk to the same
// gateways directly: a local alert player for streaming setups without a
// browser source, one-shot goal and invoice lookups, pledge submission from
// the terminal, and ledger history.
//
// Keep this package lean: behaviour lives in internal packages and commands
// only resolve configuration, wire dependencies, and render output.
package main
