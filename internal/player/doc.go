// Package player presents alerts on the machine running zapvoice: sounds go
// through an external audio player (ffplay by default) and the overlay text
// is written to a terminal.
package player
