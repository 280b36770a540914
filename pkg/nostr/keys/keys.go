// Package keys generates and validates secp256k1 keys in the hex forms used
// on the wire.
package keys

import (
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/postr/pkg/hex"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"lukechampine.com/frand"
)

const (
	SecretLen = 32
	PublicLen = schnorr.PubKeyBytesLen
)

var (
	ErrSecretLength = errors.New("secret key must be 32 bytes")
	ErrSecretRange  = errors.New("secret key is not a valid curve scalar")
	ErrPublicKey    = errors.New("invalid public key")
)

// CheckSecret returns an error if sec is not a usable secp256k1 secret key:
// exactly 32 bytes, non-zero and less than the curve order.
func CheckSecret(sec []byte) (err error) {
	if len(sec) != SecretLen {
		return fmt.Errorf("%w: got %d", ErrSecretLength, len(sec))
	}
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(sec); overflow || s.IsZero() {
		return ErrSecretRange
	}
	return
}

// Generate returns a new random secret key.
func Generate() (sec []byte) {
	for {
		sec = frand.Bytes(SecretLen)
		if CheckSecret(sec) == nil {
			return
		}
	}
}

// GenerateHex returns a new random secret key as hex.
func GenerateHex() string { return hex.Enc(Generate()) }

// PublicFromSecret returns the x-only public key of sec.
func PublicFromSecret(sec []byte) (pub []byte, err error) {
	if err = CheckSecret(sec); err != nil {
		return
	}
	_, pk := btcec.PrivKeyFromBytes(sec)
	return schnorr.SerializePubKey(pk), nil
}

// GetPublicKey returns the hex x-only public key of a hex secret key.
func GetPublicKey(skHex string) (pkHex string, err error) {
	var sec []byte
	if sec, err = ParseSecret(skHex); err != nil {
		return
	}
	var pub []byte
	if pub, err = PublicFromSecret(sec); err != nil {
		return
	}
	return hex.Enc(pub), nil
}

// ParseSecret decodes and validates a hex secret key.
func ParseSecret(skHex string) (sec []byte, err error) {
	if sec, err = hex.DecLen(skHex, SecretLen); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSecretLength, err)
	}
	if err = CheckSecret(sec); err != nil {
		return nil, err
	}
	return
}

// ParsePublic decodes a hex x-only public key and checks that it is a point
// on the curve.
func ParsePublic(pkHex string) (pub []byte, err error) {
	if pub, err = hex.DecLen(pkHex, PublicLen); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublicKey, err)
	}
	if err = CheckPublic(pub); err != nil {
		return nil, err
	}
	return
}

// CheckPublic returns an error if pub is not a valid x-only public key.
func CheckPublic(pub []byte) (err error) {
	if _, err = schnorr.ParsePubKey(pub); err != nil {
		return fmt.Errorf("%w: %w", ErrPublicKey, err)
	}
	return
}

// IsValid32ByteHex returns true if pk is 32 bytes of lower case hex.
func IsValid32ByteHex(pk string) bool { return hex.Is(pk, 32) }

// IsValidPublicKeyHex returns true if pk is a hex encoded x-only public key
// that is a point on the curve.
func IsValidPublicKeyHex(pk string) bool {
	if !IsValid32ByteHex(pk) {
		return false
	}
	_, err := ParsePublic(pk)
	return err == nil
}
