// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package webhook implements the signature verifiers (C18c) spec.md's
// Non-goals name as the one piece of remote-caller authentication in
// scope: verifying that an inbound webhook (used to trigger a manual
// resume or pause from a chat integration) actually came from the
// configured Discord/Slack endpoint, not an arbitrary caller. Sending
// notifications is out of scope (§external collaborators); this
// package only verifies signatures on the way in.
package webhook

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSignature is returned by both verifiers when the signature
// doesn't match.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifyDiscord checks a Discord interaction webhook's Ed25519
// signature, per Discord's "X-Signature-Ed25519" / "X-Signature-Timestamp"
// headers: the signed message is the timestamp concatenated with the
// raw request body.
func VerifyDiscord(publicKeyHex, signatureHex, timestamp string, body []byte) error {
	pubKey, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("public key has wrong length: got %d, want %d", len(pubKey), ed25519.PublicKeySize)
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("signature has wrong length: got %d, want %d", len(sig), ed25519.SignatureSize)
	}

	msg := append([]byte(timestamp), body...)
	if !ed25519.Verify(ed25519.PublicKey(pubKey), msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifySlack checks a Slack event webhook's HMAC-SHA256 signature,
// per Slack's "X-Slack-Signature" / "X-Slack-Request-Timestamp"
// headers: the signed base string is "v0:<timestamp>:<body>", HMAC'd
// with the app's signing secret.
func VerifySlack(signingSecret, signatureHeader, timestamp string, body []byte) error {
	const version = "v0"

	prefix := version + "="
	if !strings.HasPrefix(signatureHeader, prefix) {
		return fmt.Errorf("%w: missing %q prefix", ErrInvalidSignature, prefix)
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signatureHeader, prefix))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	base := version + ":" + timestamp + ":"
	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte(base))
	mac.Write(body)
	want := mac.Sum(nil)

	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}
	return nil
}
