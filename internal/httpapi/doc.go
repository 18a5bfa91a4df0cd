// Package httpapi exposes zapvoice over HTTP.
//
// The router serves three audiences. Pledge forms call /api/create_invoice and
// follow the returned event stream until the invoice settles. Streaming
// software loads /profile/{npub}/widget and /goal/{eventId}/widget as browser
// sources; those pages drive their overlays from server-sent event streams
// and acknowledge playback through /widget/sessions. Operators read
// /api/status, /api/pledges and /metrics.
//
// Handlers translate service error markers into status codes with
// services.HTTPStatus and always answer errors as {"error": "..."}.
package httpapi
