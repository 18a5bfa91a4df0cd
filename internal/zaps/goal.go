package zaps

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Goal is a parsed NIP-75 fundraising goal.
type Goal struct {
	ID          string
	TargetSats  int64
	Description string
}

// ParseGoal reads a kind-9041 goal event. The amount tag is in millisats.
func ParseGoal(event *nostr.Event) (Goal, error) {
	if event == nil {
		return Goal{}, fmt.Errorf("parse goal: nil event")
	}
	if event.Kind != KindGoal {
		return Goal{}, fmt.Errorf("parse goal %s: unexpected kind %d", event.ID, event.Kind)
	}
	goal := Goal{ID: event.ID, Description: strings.TrimSpace(event.Content)}
	if raw, ok := tagValue(event.Tags, amountTag); ok {
		msat, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || msat < 0 {
			return Goal{}, fmt.Errorf("parse goal %s: invalid amount %q", event.ID, raw)
		}
		goal.TargetSats = msat / msatPerSat
	}
	return goal, nil
}
