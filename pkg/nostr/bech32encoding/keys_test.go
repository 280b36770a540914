package bech32encoding

import (
	"strings"
	"testing"

	"github.com/Hubmakerlabs/postr/pkg/nostr/keys"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// test vectors from NIP-19
const (
	vecPub  = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
	vecNpub = "npub180cvv07tjdrrgpa0j7j7tmnyl2yr6yr7l8j4s3evf6u64th6gkwsyjh6w6"
	vecSec  = "67dea2ed018072d675f5415ecfaed7d2597555e202d85b3d65ea4e58d2d92ffa"
	vecNsec = "nsec1vl029mgpspedva04g90vltkh6fvh240zqtv9k0t9af8935ke9laqsnlfe5"
)

func TestVectors(t *testing.T) {
	npub, err := EncodePublicKey(vecPub)
	require.NoError(t, err)
	assert.Equal(t, vecNpub, npub)
	pk, err := DecodePublicKey(vecNpub)
	require.NoError(t, err)
	assert.Equal(t, vecPub, pk)

	nsec, err := EncodeSecretKey(vecSec)
	require.NoError(t, err)
	assert.Equal(t, vecNsec, nsec)
	sk, err := DecodeSecretKey(vecNsec)
	require.NoError(t, err)
	assert.Equal(t, vecSec, sk)
}

func TestRoundTripGenerated(t *testing.T) {
	for i := 0; i < 10; i++ {
		sk := keys.GenerateHex()
		pk, err := keys.GetPublicKey(sk)
		require.NoError(t, err)
		nsec, err := EncodeSecretKey(sk)
		require.NoError(t, err)
		back, err := DecodeSecretKey(nsec)
		require.NoError(t, err)
		assert.Equal(t, sk, back)
		npub, err := EncodePublicKey(pk)
		require.NoError(t, err)
		backPk, err := DecodePublicKey(npub)
		require.NoError(t, err)
		assert.Equal(t, pk, backPk)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodePublicKey(vecNsec)
	assert.ErrorIs(t, err, ErrWrongPrefix)
	_, err = DecodeSecretKey(vecNpub)
	assert.ErrorIs(t, err, ErrWrongPrefix)
	// flip the last checksum character
	_, err = DecodePublicKey(vecNpub[:len(vecNpub)-1] + "7")
	assert.Error(t, err)
	_, err = DecodePublicKey("npub1")
	assert.Error(t, err)
	_, err = EncodePublicKey("abcd")
	assert.ErrorIs(t, err, keys.ErrPublicKey)
}

func TestWrongLength(t *testing.T) {
	long, err := nip19.EncodePublicKey(vecPub + "0000")
	require.NoError(t, err)
	_, err = DecodePublicKey(long)
	assert.ErrorIs(t, err, ErrWrongLength)

	long, err = nip19.EncodePrivateKey(vecSec + "00")
	require.NoError(t, err)
	_, err = DecodeSecretKey(long)
	assert.ErrorIs(t, err, ErrWrongLength)

	pk, err := DecodePublicKey(strings.ToUpper(vecNpub))
	require.NoError(t, err)
	assert.Equal(t, vecPub, pk)
}
