// Package daemon coordinates the long-running zapvoice server process.
//
// It wires configuration, the ledger, the relay gateway and the payment and
// speech gateways into the HTTP surface, and runs them under a single
// lifecycle with flock-based locking to prevent multiple instances sharing a
// data directory. On startup the daemon expires pledges left pending by a
// previous process, since their settlement watchers died with it.
//
// Keep orchestration logic here: pledge flows, alert engines and goal
// tracking live in their own packages while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
