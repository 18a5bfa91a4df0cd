// Package ledger persists pledges and processed alerts in SQLite.
//
// A pledge row is written when an invoice is created and moves exactly once
// from created to settled, cancelled, or expired. An alert row is written when
// the alert engine finishes with a receipt, whatever the outcome. The ledger
// is an audit trail for the operator; nothing reads it back to drive the
// payment flow or the alert queue.
//
// Schema changes bump schemaVersion in schema.go; operators delete the
// database to adopt the new schema.
package ledger
