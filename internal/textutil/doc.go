// Package textutil provides text helpers for pledge messages and display
// labels.
//
// Messages arrive from browsers and relays in arbitrary Unicode forms, so
// length limits are applied to NFC-normalized text counted in runes. The
// same rune-safe truncation is used for the widget's max-text option and for
// LNURL comment limits.
package textutil
