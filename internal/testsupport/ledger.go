package testsupport

import (
	"context"
	"testing"

	"zapvoice/internal/config"
	"zapvoice/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewPledge inserts a created pledge for tests using the provided store.
func NewPledge(t testing.TB, store *ledger.Store, id, recipient string, amountSats int64) *ledger.Pledge {
	t.Helper()

	pledge := &ledger.Pledge{
		ID:             id,
		Recipient:      recipient,
		AmountSats:     amountSats,
		PaymentRequest: "lnbc" + id,
	}
	if err := store.CreatePledge(context.Background(), pledge); err != nil {
		t.Fatalf("store.CreatePledge: %v", err)
	}
	return pledge
}
