package alerts

import (
	"context"

	"zapvoice/internal/services/tts"
)

// Alert is what a presenter shows for one receipt.
type Alert struct {
	ReceiptID  string `json:"id"`
	Name       string `json:"name"`
	AmountSats int64  `json:"amount"`
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
}

// Presenter performs the audible and visible steps of an announce cycle.
// Each method blocks until its step has finished (the sound played to the
// end, the overlay visible) or ctx is done.
type Presenter interface {
	PlayNotification(ctx context.Context) error
	Show(ctx context.Context, alert Alert) error
	PlaySpeech(ctx context.Context, audio tts.Audio) error
	Hide(ctx context.Context) error
	ReportError(ctx context.Context, alert Alert, err error)
}

// Synthesizer turns text into speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.SpeechRequest) (tts.Audio, error)
}
