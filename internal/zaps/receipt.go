package zaps

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"zapvoice/internal/services"
)

// Receipt is a parsed kind-9735 zap receipt.
type Receipt struct {
	ID            string
	CreatedAt     time.Time
	Recipient     string
	GoalEventID   string
	AmountSats    int64
	Comment       string
	SubmitterName string
	VoiceModel    string
	Anonymous     bool
	// Problem is set when the embedded zap request or its amount could not
	// be read. It wraps services.ErrMalformedProof and AmountSats is zero.
	Problem error
}

// Malformed reports whether the receipt's payment proof was unreadable.
func (r Receipt) Malformed() bool {
	return r.Problem != nil
}

func malformed(id, reason string, err error) error {
	return services.Wrap(services.ErrMalformedProof, "zaps", "parse receipt", id+": "+reason, err)
}

// ParseReceipt reads a zap receipt. It only fails when the event is not a
// receipt at all; a broken embedded request yields a Malformed receipt.
func ParseReceipt(event *nostr.Event) (Receipt, error) {
	if event == nil {
		return Receipt{}, fmt.Errorf("parse receipt: nil event")
	}
	if event.Kind != KindZapReceipt {
		return Receipt{}, fmt.Errorf("parse receipt %s: unexpected kind %d", event.ID, event.Kind)
	}
	receipt := Receipt{
		ID:        event.ID,
		CreatedAt: event.CreatedAt.Time(),
	}
	receipt.Recipient, _ = tagValue(event.Tags, recipientTag)
	receipt.GoalEventID, _ = tagValue(event.Tags, eventRefTag)

	description, ok := tagValue(event.Tags, descriptionTag)
	if !ok {
		receipt.Problem = malformed(event.ID, "missing description", nil)
		return receipt, nil
	}
	var request nostr.Event
	if err := json.Unmarshal([]byte(description), &request); err != nil {
		receipt.Problem = malformed(event.ID, "zap request is not JSON", err)
		return receipt, nil
	}

	receipt.Comment = request.Content
	receipt.SubmitterName, _ = tagValue(request.Tags, nameTag)
	receipt.VoiceModel, _ = tagValue(request.Tags, voiceTag)
	receipt.Anonymous = hasTag(request.Tags, anonTag)
	if receipt.GoalEventID == "" {
		receipt.GoalEventID, _ = tagValue(request.Tags, eventRefTag)
	}

	amount, ok := tagValue(request.Tags, amountTag)
	if !ok {
		receipt.Problem = malformed(event.ID, "zap request has no amount", nil)
		return receipt, nil
	}
	msat, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
	if err != nil || msat < 0 {
		receipt.Problem = malformed(event.ID, fmt.Sprintf("invalid amount %q", amount), err)
		return receipt, nil
	}
	receipt.AmountSats = msat / msatPerSat
	return receipt, nil
}

// ParseReceipts parses every receipt, skipping events that are not receipts,
// and drops duplicate ids returned by multiple relays.
func ParseReceipts(events []*nostr.Event) []Receipt {
	seen := make(map[string]struct{}, len(events))
	out := make([]Receipt, 0, len(events))
	for _, event := range events {
		receipt, err := ParseReceipt(event)
		if err != nil {
			continue
		}
		if _, dup := seen[receipt.ID]; dup {
			continue
		}
		seen[receipt.ID] = struct{}{}
		out = append(out, receipt)
	}
	return out
}

// SortNewestFirst orders receipts by creation time descending. Equal
// timestamps are ordered by id descending so every caller agrees on "newest".
func SortNewestFirst(receipts []Receipt) {
	slices.SortStableFunc(receipts, func(a, b Receipt) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// Newest returns the newest receipt by the SortNewestFirst ordering.
func Newest(receipts []Receipt) (Receipt, bool) {
	if len(receipts) == 0 {
		return Receipt{}, false
	}
	sorted := slices.Clone(receipts)
	SortNewestFirst(sorted)
	return sorted[0], true
}

// SumSats totals receipt amounts; malformed receipts contribute zero.
func SumSats(receipts []Receipt) int64 {
	var total int64
	for _, receipt := range receipts {
		total += receipt.AmountSats
	}
	return total
}
