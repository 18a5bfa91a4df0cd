// Package alerts turns zap receipts addressed to a streamer into a strictly
// ordered sequence of on-screen announcements.
//
// An Engine owns three pieces of state, all confined to its Run goroutine:
// the FIFO queue, the in-flight flag, and the id of the last receipt it
// enqueued. Every QUEUE_CHECK_INTERVAL it asks the relays for recent receipts
// and enqueues the newest one if its id differs from the last enqueued id.
// Receipts that arrive in a burst between two polls are therefore collapsed
// to the newest; only that comparison guards against duplicates.
//
// The head of the queue is announced by a worker goroutine while the loop
// keeps polling. The announce cycle runs against a Presenter, which may be a
// browser overlay (internal/overlay) or a local audio player
// (internal/player):
//
//  1. drop receipts below the configured threshold
//  2. truncate the message
//  3. synthesize speech
//  4. play the notification sound
//  5. show the overlay and hold it for the display delay
//  6. play the speech
//  7. hide the overlay
//  8. wait for the hide delay
//  9. notify the observer
//
// A synthesis or playback failure drops the receipt, reports the error
// through the presenter, and the engine moves on to the next item.
package alerts
