package testsupport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// HexID derives a deterministic 64-character hex id from a label so tests
// can refer to events by readable names.
func HexID(label string) string {
	sum := sha256.Sum256([]byte(label))
	return hex.EncodeToString(sum[:])
}

// ReceiptSpec describes a zap receipt fixture.
type ReceiptSpec struct {
	ID          string
	CreatedAt   int64
	Recipient   string
	GoalEventID string
	AmountMsat  int64
	Comment     string
	Name        string
	Voice       string
	// RawDescription replaces the embedded zap request verbatim when set,
	// for malformed payload cases.
	RawDescription string
}

// ReceiptEvent builds a kind-9735 receipt with an embedded zap request.
func ReceiptEvent(t testing.TB, spec ReceiptSpec) *nostr.Event {
	t.Helper()

	description := spec.RawDescription
	if description == "" {
		requestTags := nostr.Tags{
			nostr.Tag{"p", spec.Recipient},
			nostr.Tag{"amount", strconv.FormatInt(spec.AmountMsat, 10)},
			nostr.Tag{"anon", ""},
		}
		if spec.GoalEventID != "" {
			requestTags = append(requestTags, nostr.Tag{"e", spec.GoalEventID})
		}
		if spec.Name != "" {
			requestTags = append(requestTags, nostr.Tag{"name", spec.Name})
		}
		if spec.Voice != "" {
			requestTags = append(requestTags, nostr.Tag{"voice", spec.Voice})
		}
		request := nostr.Event{
			ID:        HexID(spec.ID + "-request"),
			Kind:      9734,
			CreatedAt: nostr.Timestamp(spec.CreatedAt),
			Tags:      requestTags,
			Content:   spec.Comment,
		}
		data, err := json.Marshal(request)
		if err != nil {
			t.Fatalf("marshal zap request: %v", err)
		}
		description = string(data)
	}

	tags := nostr.Tags{
		nostr.Tag{"p", spec.Recipient},
		nostr.Tag{"description", description},
	}
	if spec.GoalEventID != "" {
		tags = append(tags, nostr.Tag{"e", spec.GoalEventID})
	}
	return &nostr.Event{
		ID:        spec.ID,
		Kind:      9735,
		CreatedAt: nostr.Timestamp(spec.CreatedAt),
		Tags:      tags,
	}
}

// GoalEvent builds a kind-9041 goal with a target in sats.
func GoalEvent(id string, targetSats int64, description string) *nostr.Event {
	return &nostr.Event{
		ID:        id,
		Kind:      9041,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Tags:      nostr.Tags{nostr.Tag{"amount", strconv.FormatInt(targetSats*1000, 10)}},
		Content:   description,
	}
}

// ProfileEvent builds kind-0 metadata carrying a lightning address.
func ProfileEvent(pubkey, name, lud16 string) *nostr.Event {
	content, _ := json.Marshal(map[string]string{"name": name, "lud16": lud16})
	return &nostr.Event{
		ID:        HexID("profile-" + pubkey),
		PubKey:    pubkey,
		Kind:      0,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Content:   string(content),
	}
}
