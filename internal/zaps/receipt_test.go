package zaps_test

import (
	"errors"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"zapvoice/internal/services"
	"zapvoice/internal/testsupport"
	"zapvoice/internal/zaps"
)

var recipient = testsupport.HexID("streamer")

func TestParseReceiptReadsEmbeddedRequest(t *testing.T) {
	event := testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{
		ID:         testsupport.HexID("r1"),
		CreatedAt:  1700000000,
		Recipient:  recipient,
		AmountMsat: 21000,
		Comment:    "hello stream",
		Name:       "satoshi",
		Voice:      "hal",
	})

	receipt, err := zaps.ParseReceipt(event)
	if err != nil {
		t.Fatalf("ParseReceipt: %v", err)
	}
	if receipt.Malformed() {
		t.Fatal("expected well-formed receipt")
	}
	if receipt.AmountSats != 21 {
		t.Fatalf("expected 21 sats, got %d", receipt.AmountSats)
	}
	if receipt.Comment != "hello stream" || receipt.SubmitterName != "satoshi" || receipt.VoiceModel != "hal" {
		t.Fatalf("unexpected receipt fields: %+v", receipt)
	}
	if receipt.Recipient != recipient {
		t.Fatalf("unexpected recipient %q", receipt.Recipient)
	}
	if !receipt.Anonymous {
		t.Fatal("expected anonymous flag from anon tag")
	}
	if receipt.CreatedAt.Unix() != 1700000000 {
		t.Fatalf("unexpected created at %v", receipt.CreatedAt)
	}
}

func TestParseReceiptMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{"},
		{"missing amount", `{"kind":9734,"tags":[["p","x"]],"content":"hi"}`},
		{"non numeric amount", `{"kind":9734,"tags":[["amount","lots"]],"content":"hi"}`},
		{"negative amount", `{"kind":9734,"tags":[["amount","-5000"]],"content":"hi"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{
				ID:             testsupport.HexID(tt.name),
				CreatedAt:      1,
				Recipient:      recipient,
				RawDescription: tt.raw,
			})
			receipt, err := zaps.ParseReceipt(event)
			if err != nil {
				t.Fatalf("ParseReceipt returned error for malformed payload: %v", err)
			}
			if !receipt.Malformed() || receipt.AmountSats != 0 {
				t.Fatalf("expected malformed zero-amount receipt, got %+v", receipt)
			}
			if !errors.Is(receipt.Problem, services.ErrMalformedProof) {
				t.Fatalf("expected malformed proof error, got %v", receipt.Problem)
			}
		})
	}
}

func TestParseReceiptMissingDescription(t *testing.T) {
	event := &nostr.Event{ID: testsupport.HexID("bare"), Kind: zaps.KindZapReceipt, Tags: nostr.Tags{{"p", recipient}}}
	receipt, err := zaps.ParseReceipt(event)
	if err != nil {
		t.Fatalf("ParseReceipt: %v", err)
	}
	if !receipt.Malformed() {
		t.Fatal("expected malformed receipt without description")
	}
	if !errors.Is(receipt.Problem, services.ErrMalformedProof) {
		t.Fatalf("expected malformed proof error, got %v", receipt.Problem)
	}
}

func TestParseReceiptRejectsOtherKinds(t *testing.T) {
	if _, err := zaps.ParseReceipt(&nostr.Event{Kind: 1}); err == nil {
		t.Fatal("expected error for non-receipt kind")
	}
	if _, err := zaps.ParseReceipt(nil); err == nil {
		t.Fatal("expected error for nil event")
	}
}

func TestParseReceiptsDeduplicates(t *testing.T) {
	first := testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{ID: testsupport.HexID("a"), CreatedAt: 1, Recipient: recipient, AmountMsat: 1000})
	other := testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{ID: testsupport.HexID("b"), CreatedAt: 2, Recipient: recipient, AmountMsat: 2000})
	note := &nostr.Event{ID: testsupport.HexID("note"), Kind: 1}

	receipts := zaps.ParseReceipts([]*nostr.Event{first, other, first, note})
	if len(receipts) != 2 {
		t.Fatalf("expected 2 unique receipts, got %d", len(receipts))
	}
	if total := zaps.SumSats(receipts); total != 3 {
		t.Fatalf("expected 3 sats, got %d", total)
	}
}

func TestSortNewestFirstBreaksTiesByID(t *testing.T) {
	mk := func(id string, ts int64) zaps.Receipt {
		r, err := zaps.ParseReceipt(testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{ID: id, CreatedAt: ts, Recipient: recipient, AmountMsat: 1000}))
		if err != nil {
			t.Fatalf("ParseReceipt: %v", err)
		}
		return r
	}
	receipts := []zaps.Receipt{mk("aaa", 10), mk("ccc", 20), mk("bbb", 20), mk("ddd", 5)}

	zaps.SortNewestFirst(receipts)

	want := []string{"ccc", "bbb", "aaa", "ddd"}
	for i, id := range want {
		if receipts[i].ID != id {
			t.Fatalf("position %d: got %s want %s (order %v)", i, receipts[i].ID, id, receipts)
		}
	}

	newest, ok := zaps.Newest([]zaps.Receipt{mk("bbb", 20), mk("ccc", 20)})
	if !ok || newest.ID != "ccc" {
		t.Fatalf("expected ccc as newest, got %+v", newest)
	}
	if _, ok := zaps.Newest(nil); ok {
		t.Fatal("expected no newest receipt for empty input")
	}
}
