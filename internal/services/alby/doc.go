// Package alby looks up invoices on the Alby wallet API by payment hash.
package alby
