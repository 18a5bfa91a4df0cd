// Package notifications pushes streamer-facing events to ntfy.
//
// The default implementation publishes to the topic URL configured under
// [notifications] and degrades to a no-op when no topic is set. Callers
// publish an Event with a Payload; formatting into ntfy titles, tags, and
// priorities lives here so the payment flow and alert engine never build
// HTTP requests themselves.
package notifications
