// Package overlay drives a browser-based alert widget.
//
// Each open widget page holds one Session. The alert engine calls the
// Session as its presenter; the Session turns every step into a Command the
// page receives over server-sent events. Steps that play sound wait for the
// page to acknowledge the command's token once playback has ended, which is
// what keeps announcements from overlapping in the browser.
package overlay
