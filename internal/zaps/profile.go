package zaps

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Profile holds the kind-0 metadata fields zapvoice uses.
type Profile struct {
	PubKey      string
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Picture     string `json:"picture"`
	LUD16       string `json:"lud16"`
}

// ParseProfile decodes kind-0 metadata.
func ParseProfile(event *nostr.Event) (Profile, error) {
	if event == nil {
		return Profile{}, fmt.Errorf("parse profile: nil event")
	}
	if event.Kind != KindProfile {
		return Profile{}, fmt.Errorf("parse profile %s: unexpected kind %d", event.ID, event.Kind)
	}
	var profile Profile
	if err := json.Unmarshal([]byte(event.Content), &profile); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", event.ID, err)
	}
	profile.PubKey = event.PubKey
	profile.LUD16 = strings.TrimSpace(profile.LUD16)
	return profile, nil
}

// Label is the best human-readable name for the profile.
func (p Profile) Label() string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return EncodeNpub(p.PubKey)
}
