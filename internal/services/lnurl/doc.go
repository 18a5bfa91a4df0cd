// Package lnurl is the InvoiceProvider gateway. It resolves lightning
// addresses (LUD-16) to LNURL-pay parameters, requests invoices from the
// pay callback with an embedded zap request (NIP-57), and checks settlement
// through the LUD-21 verify URL.
//
// RequestInvoice is never retried here: a failed callback may still have
// created an invoice upstream, so the caller decides whether to start over.
package lnurl
