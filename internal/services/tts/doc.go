// Package tts talks to the speech synthesis backend that narrates pledge
// messages.
//
// The backend exposes two endpoints: POST /tts turns text into audio bytes in
// the requested voice, and GET /models lists the voice models a submitter may
// pick. Synthesis is attempted once per alert; the model listing retries on
// transient failures with the same backoff rules used for other outbound
// HTTP services.
package tts
