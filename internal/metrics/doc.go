// Package metrics exposes Prometheus collectors for pledges, alerts, relay
// queries, and HTTP traffic.
//
// Collectors live on a private registry so tests and multiple servers in one
// process never collide. Every recording method is safe to call on a nil
// *Metrics, which lets components treat metrics as optional.
package metrics
