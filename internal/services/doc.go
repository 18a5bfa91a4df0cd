// Package services defines shared utilities consumed by the payment, goal, and
// alert components and the external gateways they depend on.
//
// Key responsibilities:
//   - Context helpers that stamp pledge IDs, recipients, widget session IDs,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     categories matchable with errors.Is across package boundaries.
//   - HTTPStatus, which translates those categories into response codes for
//     the HTTP surface.
//
// Gateways for relays, LNURL providers, Alby, and the speech backend live in
// subpackages and wrap every failure with one of these markers.
package services
