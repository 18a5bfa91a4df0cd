package goal_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/nbd-wtf/go-nostr"

	"zapvoice/internal/goal"
	"zapvoice/internal/testsupport"
)

// TestComputeSumsWellFormedAmounts checks that the total equals the sum of
// every readable amount, whatever mix of malformed receipts surrounds them.
func TestComputeSumsWellFormedAmounts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("malformed receipts contribute zero", prop.ForAll(
		func(amounts []int64, broken []bool) bool {
			events := []*nostr.Event{testsupport.GoalEvent(goalID, 1_000_000, "")}
			var want int64
			for i, sats := range amounts {
				label := fmt.Sprintf("receipt-%d", i)
				if i < len(broken) && broken[i] {
					events = append(events, malformed(t, label, int64(i+1)))
					continue
				}
				events = append(events, receipt(t, label, sats, int64(i+1)))
				want += sats
			}

			gateway := testsupport.NewGateway(testsupport.NewMemoryRelay(events...))
			defer gateway.Close()
			progress, err := goal.NewTracker(gateway, goalID).Compute(context.Background())
			if err != nil {
				return false
			}
			return progress.CurrentSats == want && progress.Receipts == len(amounts)
		},
		gen.SliceOf(gen.Int64Range(0, 5_000_000)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
