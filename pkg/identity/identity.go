// Package identity manages the user's key pair: generating it, deriving the
// public key, converting to and from the npub/nsec forms, and keeping the
// secret in a SecretStore.
package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Hubmakerlabs/postr/pkg/hex"
	"github.com/Hubmakerlabs/postr/pkg/nostr/bech32encoding"
	"github.com/Hubmakerlabs/postr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/postr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

var (
	ErrInvalidKeyFormat = errors.New("invalid key format")
	ErrNoIdentity       = errors.New("no identity: generate or import a key")
)

// SecretStore keeps the secret key bytes. Load returns ok false when empty.
type SecretStore interface {
	Save(b []byte) error
	Load() (b []byte, ok bool, err error)
	Clear() error
}

// Manager ties the key operations to a SecretStore.
type Manager struct {
	store SecretStore
}

func New(store SecretStore) *Manager { return &Manager{store: store} }

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
}

// Generate returns a new random secret key. It is not persisted.
func (m *Manager) Generate() (sec []byte, err error) {
	sec = keys.Generate()
	log.T.Ln("generated new secret key")
	return
}

// DerivePublic returns the hex x-only public key of sec.
func (m *Manager) DerivePublic(sec []byte) (pub string, err error) {
	var pk []byte
	if pk, err = keys.PublicFromSecret(sec); err != nil {
		return "", invalid(err)
	}
	return hex.Enc(pk), nil
}

// EncodePublic returns the npub form of a hex public key.
func (m *Manager) EncodePublic(pub string) (npub string, err error) {
	if npub, err = bech32encoding.EncodePublicKey(pub); err != nil {
		return "", invalid(err)
	}
	return
}

// DecodePublic returns the hex public key of an npub. A 64 character hex key
// is accepted as is after checking it.
func (m *Manager) DecodePublic(s string) (pub string, err error) {
	s = strings.TrimSpace(s)
	if keys.IsValid32ByteHex(strings.ToLower(s)) {
		pub = strings.ToLower(s)
		if _, err = keys.ParsePublic(pub); err != nil {
			return "", invalid(err)
		}
		return
	}
	if pub, err = bech32encoding.DecodePublicKey(s); err != nil {
		return "", invalid(err)
	}
	return
}

// EncodeSecret returns the nsec form of sec.
func (m *Manager) EncodeSecret(sec []byte) (nsec string, err error) {
	if err = keys.CheckSecret(sec); err != nil {
		return "", invalid(err)
	}
	if nsec, err = bech32encoding.EncodeSecretKey(hex.Enc(sec)); err != nil {
		return "", invalid(err)
	}
	return
}

// DecodeSecret returns the secret key of an nsec, or of a 64 character hex
// string.
func (m *Manager) DecodeSecret(s string) (sec []byte, err error) {
	s = strings.TrimSpace(s)
	skHex := strings.ToLower(s)
	if !keys.IsValid32ByteHex(skHex) {
		if skHex, err = bech32encoding.DecodeSecretKey(s); err != nil {
			return nil, invalid(err)
		}
	}
	if sec, err = keys.ParseSecret(skHex); err != nil {
		return nil, invalid(err)
	}
	return
}

// Persist validates sec and saves it as the active identity.
func (m *Manager) Persist(sec []byte) (err error) {
	if err = keys.CheckSecret(sec); err != nil {
		return invalid(err)
	}
	if err = m.store.Save(sec); chk.E(err) {
		return
	}
	log.D.Ln("saved identity")
	return
}

// Load returns the saved secret, ok false if there is none.
func (m *Manager) Load() (sec []byte, ok bool, err error) {
	if sec, ok, err = m.store.Load(); err != nil || !ok {
		return nil, false, err
	}
	if err = keys.CheckSecret(sec); err != nil {
		return nil, false, invalid(err)
	}
	return
}

// Clear forgets the saved secret.
func (m *Manager) Clear() error { return m.store.Clear() }

// Secret returns the saved secret or ErrNoIdentity.
func (m *Manager) Secret() (sec []byte, err error) {
	var ok bool
	if sec, ok, err = m.Load(); err != nil {
		return
	}
	if !ok {
		return nil, ErrNoIdentity
	}
	return
}

// Public returns the hex public key of the saved secret.
func (m *Manager) Public() (pub string, err error) {
	var sec []byte
	if sec, err = m.Secret(); err != nil {
		return
	}
	return m.DerivePublic(sec)
}

// Memory is a SecretStore that keeps the key in memory.
type Memory struct {
	mx  sync.Mutex
	sec []byte
}

func (s *Memory) Save(b []byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.sec = append([]byte(nil), b...)
	return nil
}

func (s *Memory) Load() (b []byte, ok bool, err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.sec == nil {
		return nil, false, nil
	}
	return append([]byte(nil), s.sec...), true, nil
}

func (s *Memory) Clear() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.sec = nil
	return nil
}
