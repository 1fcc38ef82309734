// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyDiscordValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	body := []byte(`{"type":1}`)
	timestamp := "1234567890"
	sig := ed25519.Sign(priv, append([]byte(timestamp), body...))

	err = VerifyDiscord(hex.EncodeToString(pub), hex.EncodeToString(sig), timestamp, body)
	require.NoError(t, err)
}

func TestVerifyDiscordWrongSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	body := []byte(`{"type":1}`)
	timestamp := "1234567890"
	sig := ed25519.Sign(otherPriv, append([]byte(timestamp), body...))

	err = VerifyDiscord(hex.EncodeToString(pub), hex.EncodeToString(sig), timestamp, body)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyDiscordMalformedKey(t *testing.T) {
	err := VerifyDiscord("not-hex!!", "00", "1234567890", nil)
	require.Error(t, err)
}

func TestVerifySlackValidSignature(t *testing.T) {
	secret := "shhh"
	timestamp := "1234567890"
	body := []byte(`{"event":"app_mention"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	err := VerifySlack(secret, sig, timestamp, body)
	require.NoError(t, err)
}

func TestVerifySlackWrongSecret(t *testing.T) {
	timestamp := "1234567890"
	body := []byte(`{"event":"app_mention"}`)

	mac := hmac.New(sha256.New, []byte("correct-secret"))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	err := VerifySlack("wrong-secret", sig, timestamp, body)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySlackMissingVersionPrefix(t *testing.T) {
	err := VerifySlack("secret", "deadbeef", "1234567890", []byte("{}"))
	require.ErrorIs(t, err, ErrInvalidSignature)
}
