// Package signer computes event ids and BIP-340 signatures.
package signer

import (
	"errors"
	"fmt"
	"os"

	"github.com/Hubmakerlabs/postr/pkg/hex"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

var log, chk = slog.New(os.Stderr)

// I signs events and checks signatures.
type I interface {
	// Sign returns a copy of ev with PubKey, ID and Sig filled in for the
	// secret key sec. ev itself is not modified.
	Sign(ev *event.T, sec []byte) (signed *event.T, err error)
	// Verify checks the id and the signature of ev.
	Verify(ev *event.T) (valid bool, err error)
}

var ErrIDMismatch = errors.New("event id does not match its content")

// Schnorr is the default signer.
type Schnorr struct{}

var _ I = Schnorr{}

func (Schnorr) Sign(ev *event.T, sec []byte) (signed *event.T, err error) {
	if err = keys.CheckSecret(sec); err != nil {
		return
	}
	sk, pk := btcec.PrivKeyFromBytes(sec)
	cp := *ev
	cp.Tags = append(cp.Tags[:0:0], ev.Tags...)
	cp.PubKey = hex.Enc(schnorr.SerializePubKey(pk))
	id := cp.GetIDBytes()
	cp.ID = hex.Enc(id)
	var sig *schnorr.Signature
	if sig, err = schnorr.Sign(sk, id); chk.D(err) {
		return nil, fmt.Errorf("signing event: %w", err)
	}
	cp.Sig = hex.Enc(sig.Serialize())
	return &cp, nil
}

func (Schnorr) Verify(ev *event.T) (valid bool, err error) {
	id := ev.GetIDBytes()
	if hex.Enc(id) != ev.ID {
		return false, ErrIDMismatch
	}
	var pkb []byte
	if pkb, err = hex.Dec(ev.PubKey); err != nil {
		return false, fmt.Errorf("event pubkey '%s' is invalid hex: %w",
			ev.PubKey, err)
	}
	var pk *btcec.PublicKey
	if pk, err = schnorr.ParsePubKey(pkb); err != nil {
		return false, fmt.Errorf("event has invalid pubkey '%s': %w",
			ev.PubKey, err)
	}
	var sb []byte
	if sb, err = hex.Dec(ev.Sig); err != nil {
		return false, fmt.Errorf("signature '%s' is invalid hex: %w", ev.Sig,
			err)
	}
	var sig *schnorr.Signature
	if sig, err = schnorr.ParseSignature(sb); err != nil {
		return false, fmt.Errorf("failed to parse signature: %w", err)
	}
	valid = sig.Verify(id, pk)
	if !valid {
		log.T.F("bad signature on event %s", ev.ID)
	}
	return
}
