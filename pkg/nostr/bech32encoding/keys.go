// Package bech32encoding converts keys between hex and the NIP-19 npub and
// nsec forms.
package bech32encoding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Hubmakerlabs/postr/pkg/nostr/keys"
	"github.com/nbd-wtf/go-nostr/nip19"
)

const (
	PubHRP = "npub"
	SecHRP = "nsec"
)

var (
	ErrWrongPrefix = errors.New("wrong bech32 prefix")
	ErrWrongLength = errors.New("key is not 32 bytes")
)

// EncodePublicKey returns the npub form of a hex x-only public key.
func EncodePublicKey(pkHex string) (npub string, err error) {
	if _, err = keys.ParsePublic(pkHex); err != nil {
		return
	}
	return nip19.EncodePublicKey(pkHex)
}

// EncodeSecretKey returns the nsec form of a hex secret key.
func EncodeSecretKey(skHex string) (nsec string, err error) {
	if _, err = keys.ParseSecret(skHex); err != nil {
		return
	}
	return nip19.EncodePrivateKey(skHex)
}

func decode(s, want string) (h string, err error) {
	s = strings.TrimSpace(s)
	var prefix string
	var value any
	if prefix, value, err = nip19.Decode(s); err != nil {
		return "", fmt.Errorf("decoding %s: %w", want, err)
	}
	if prefix != want {
		return "", fmt.Errorf("%w: got %s, want %s", ErrWrongPrefix, prefix,
			want)
	}
	var ok bool
	if h, ok = value.(string); !ok {
		return "", fmt.Errorf("decoding %s: unexpected value %T", want, value)
	}
	// nip19 keeps the first 32 bytes of longer data, so only an exact
	// re-encoding is the same key.
	var back string
	if want == PubHRP {
		back, err = nip19.EncodePublicKey(h)
	} else {
		back, err = nip19.EncodePrivateKey(h)
	}
	if err != nil || back != strings.ToLower(s) {
		return "", fmt.Errorf("%w: %s", ErrWrongLength, want)
	}
	return
}

// DecodePublicKey returns the hex public key of an npub, checking it is a
// point on the curve.
func DecodePublicKey(npub string) (pkHex string, err error) {
	if pkHex, err = decode(npub, PubHRP); err != nil {
		return
	}
	if _, err = keys.ParsePublic(pkHex); err != nil {
		return "", err
	}
	return
}

// DecodeSecretKey returns the hex secret key of an nsec.
func DecodeSecretKey(nsec string) (skHex string, err error) {
	if skHex, err = decode(nsec, SecHRP); err != nil {
		return
	}
	if _, err = keys.ParseSecret(skHex); err != nil {
		return "", err
	}
	return
}
