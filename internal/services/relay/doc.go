// Package relay is the EventStore gateway: a process-wide pool of Nostr
// relay connections shared by the payment, goal, and alert components.
//
// Connections are opened lazily on the first query and reused afterwards.
// A relay that cannot be reached is skipped and re-dialed on a later call
// once the redial interval has passed, so the callers' own polling cadence
// drives recovery. Queries fan out to every connected relay and the results
// are merged and de-duplicated by event id.
package relay
