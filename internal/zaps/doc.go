// Package zaps implements the Nostr event shapes zapvoice reads and writes:
// anonymous NIP-57 zap requests, zap receipts with their embedded request,
// NIP-75 goal events, and kind-0 profile metadata.
//
// Everything here is pure: no relay I/O happens in this package. Malformed
// receipts never fail parsing; they are flagged and counted as zero sats so
// aggregations keep going.
package zaps
