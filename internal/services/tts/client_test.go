package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"zapvoice/internal/services"
)

func TestSynthesizeSendsVoiceSettings(t *testing.T) {
	var got SpeechRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mp4")
		_, _ = w.Write([]byte("AUDIO"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", Format: "mp3"})
	audio, err := client.Synthesize(context.Background(), SpeechRequest{Text: " hello ", Voice: "alice", Rate: 10, Volume: 80, Pitch: -5})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "AUDIO" || audio.ContentType != "audio/mp4" {
		t.Fatalf("unexpected audio %+v", audio)
	}
	if got.Text != "hello" || got.Voice != "alice" || got.Format != "mp3" || got.Rate != 10 || got.Volume != 80 || got.Pitch != -5 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestSynthesizeDefaultsContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x49, 0x44, 0x33})
	}))
	defer server.Close()

	audio, err := NewClient(Config{BaseURL: server.URL}).Synthesize(context.Background(), SpeechRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if audio.ContentType != defaultContentType {
		t.Fatalf("expected %s, got %s", defaultContentType, audio.ContentType)
	}
}

func TestSynthesizeFailuresAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, WithSleeper(func(time.Duration) {}))
	_, err := client.Synthesize(context.Background(), SpeechRequest{Text: "hi"})
	if !errors.Is(err, services.ErrSynthesis) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}

	if _, err := client.Synthesize(context.Background(), SpeechRequest{Text: "   "}); !errors.Is(err, services.ErrSynthesis) {
		t.Fatalf("expected synthesis error for empty text, got %v", err)
	}
}

func TestModelsAcceptsResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "objects", body: `[{"name":"alice"},{"name":"bob"}]`},
		{name: "strings", body: `["alice"," bob ",""]`},
		{name: "wrapped", body: `{"models":["alice","bob"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/models" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			models, err := NewClient(Config{BaseURL: server.URL}).Models(context.Background())
			if err != nil {
				t.Fatalf("Models: %v", err)
			}
			if len(models) != 2 || models[0].Name != "alice" || models[1].Name != "bob" {
				t.Fatalf("unexpected models %+v", models)
			}
		})
	}
}

func TestModelsRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`["alice"]`))
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := NewClient(Config{BaseURL: server.URL},
		WithRetryBackoff(100*time.Millisecond, time.Second),
		WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }),
	)
	models, err := client.Models(context.Background())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("unexpected models %+v", models)
	}
	if len(sleeps) != 2 || sleeps[0] != time.Second {
		t.Fatalf("expected Retry-After capped at max delay, got %v", sleeps)
	}
}

func TestModelsDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}, WithSleeper(func(time.Duration) {})).Models(context.Background())
	if !errors.Is(err, services.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one call, got %d", calls.Load())
	}
}

func TestBackoffDelay(t *testing.T) {
	client := NewClient(Config{}, WithRetryBackoff(time.Second, 3*time.Second))
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 3 * time.Second},
		{attempt: 6, want: 3 * time.Second},
	}
	for _, tt := range tests {
		if got := client.backoffDelay(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: got %s, want %s", tt.attempt, got, tt.want)
		}
	}
}
