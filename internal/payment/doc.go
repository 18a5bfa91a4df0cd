// Package payment turns a pledge into a Lightning invoice and watches it
// until it is paid.
//
// SubmitPledge validates the pledge against the configured limits, resolves
// the recipient's lightning address from their profile, signs an anonymous
// zap request with a throwaway key, and asks the recipient's LNURL provider
// for an invoice. The returned Flow emits invoiceCreated immediately and
// settled at most once, after which its event channel closes. Settlement is
// detected by polling the provider's verify URL; an optional direct payer can
// race the poll loop and the first confirmed settlement wins.
//
// Invoice creation is never retried. Failed settlement checks are logged and
// the loop carries on until the pledge settles, the caller cancels, or the
// settlement timeout expires.
package payment
