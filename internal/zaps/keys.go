package zaps

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// DecodePubkey accepts an npub, nprofile, or 64-character hex key and returns
// the hex public key.
func DecodePubkey(value string) (string, error) {
	value = strings.TrimSpace(value)
	if isHex32(value) {
		return strings.ToLower(value), nil
	}
	prefix, decoded, err := nip19.Decode(value)
	if err != nil {
		return "", fmt.Errorf("decode public key %q: %w", value, err)
	}
	switch prefix {
	case "npub":
		if pk, ok := decoded.(string); ok && isHex32(pk) {
			return pk, nil
		}
	case "nprofile":
		if pointer, ok := decoded.(nostr.ProfilePointer); ok && isHex32(pointer.PublicKey) {
			return pointer.PublicKey, nil
		}
	}
	return "", fmt.Errorf("decode public key %q: unexpected %s entity", value, prefix)
}

// DecodeEventID accepts a note, nevent, or 64-character hex id and returns the
// hex event id.
func DecodeEventID(value string) (string, error) {
	value = strings.TrimSpace(value)
	if isHex32(value) {
		return strings.ToLower(value), nil
	}
	prefix, decoded, err := nip19.Decode(value)
	if err != nil {
		return "", fmt.Errorf("decode event id %q: %w", value, err)
	}
	switch prefix {
	case "note":
		if id, ok := decoded.(string); ok && isHex32(id) {
			return id, nil
		}
	case "nevent":
		if pointer, ok := decoded.(nostr.EventPointer); ok && isHex32(pointer.ID) {
			return pointer.ID, nil
		}
	}
	return "", fmt.Errorf("decode event id %q: unexpected %s entity", value, prefix)
}

// EncodeNpub renders a hex public key for display; invalid keys are returned unchanged.
func EncodeNpub(pubkey string) string {
	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil {
		return pubkey
	}
	return npub
}

func isHex32(value string) bool {
	if len(value) != 64 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}
