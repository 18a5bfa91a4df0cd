package zaps

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// RequestParams describes an anonymous zap request.
type RequestParams struct {
	Recipient     string
	GoalEventID   string
	AmountMsat    int64
	Relays        []string
	Comment       string
	SubmitterName string
	VoiceModel    string
}

// BuildAnonymousRequest creates a kind-9734 zap request signed by a throwaway
// key. The key never leaves this function.
func BuildAnonymousRequest(params RequestParams) (nostr.Event, error) {
	if !isHex32(params.Recipient) {
		return nostr.Event{}, errors.New("zap request: recipient must be a hex public key")
	}
	if params.AmountMsat <= 0 {
		return nostr.Event{}, errors.New("zap request: amount must be positive")
	}

	tags := nostr.Tags{
		nostr.Tag{recipientTag, params.Recipient},
		nostr.Tag{amountTag, strconv.FormatInt(params.AmountMsat, 10)},
		nostr.Tag{anonTag, ""},
	}
	if len(params.Relays) > 0 {
		tags = append(tags, append(nostr.Tag{relaysTag}, params.Relays...))
	}
	if params.GoalEventID != "" {
		tags = append(tags, nostr.Tag{eventRefTag, params.GoalEventID})
	}
	if name := strings.TrimSpace(params.SubmitterName); name != "" {
		tags = append(tags, nostr.Tag{nameTag, name})
	}
	if voice := strings.TrimSpace(params.VoiceModel); voice != "" {
		tags = append(tags, nostr.Tag{voiceTag, voice})
	}

	event := nostr.Event{
		Kind:      KindZapRequest,
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   params.Comment,
	}
	if err := event.Sign(nostr.GeneratePrivateKey()); err != nil {
		return nostr.Event{}, fmt.Errorf("sign zap request: %w", err)
	}
	return event, nil
}

// EncodeRequest renders a zap request as the JSON the LNURL callback expects.
func EncodeRequest(event nostr.Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode zap request: %w", err)
	}
	return string(data), nil
}

func tagValue(tags nostr.Tags, key string) (string, bool) {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == key {
			return tag[1], true
		}
	}
	return "", false
}

func hasTag(tags nostr.Tags, key string) bool {
	for _, tag := range tags {
		if len(tag) >= 1 && tag[0] == key {
			return true
		}
	}
	return false
}
