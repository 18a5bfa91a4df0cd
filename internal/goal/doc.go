// Package goal tracks fundraising progress toward a published goal event by
// summing the zap receipts that reference it.
//
// The goal event itself is immutable, so a Tracker fetches it once and keeps
// it for its lifetime. Receipts are re-queried on every tick; a failed tick
// is logged and the last published total stands.
package goal
