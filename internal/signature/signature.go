// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package signature computes and validates the HMAC request signatures that
// authenticate deploy traffic between publisher and consumers. The signature
// covers the HTTP method, the route path, a unix timestamp, a random nonce,
// and the raw body, keyed by the per-consumer shared secret.
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Transport header names carried on every signed request. The token header
// carries the shared secret itself; it doubles as the signing key and is
// only acceptable because deploy traffic travels over TLS.
const (
	HeaderToken     = "X-Sync-Token"
	HeaderTimestamp = "X-Sync-Timestamp"
	HeaderNonce     = "X-Sync-Nonce"
	HeaderSignature = "X-Sync-Signature"
)

// DeployRoute is the fixed webhook route both sides sign over. The signed
// path excludes host and prefix so signer and verifier always agree.
const DeployRoute = "/sync/deploy"

// DefaultReplayWindow bounds how far a request timestamp may drift from the
// verifier's clock before the request is rejected as stale.
const DefaultReplayWindow = 5 * time.Minute

// ErrAuthentication marks any transport authentication failure: missing or
// malformed headers, signature mismatch, stale timestamp, or replayed nonce.
var ErrAuthentication = errors.New("authentication failed")

// NonceStore remembers recently seen nonces so an intercepted request cannot
// be replayed within the freshness window. Seen records the nonce and
// reports whether it was already present.
type NonceStore interface {
	Seen(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// Sign computes the hex HMAC-SHA256 signature over method, path, timestamp,
// nonce, and body, keyed by the shared secret.
func Sign(method, path string, timestamp int64, nonce string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s\n%s\n%d\n%s\n", method, path, timestamp, nonce)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the given signature matches the expected one for
// these inputs. Comparison is constant-time.
func Verify(signature, method, path string, timestamp int64, nonce string, body []byte, secret string) bool {
	expected := Sign(method, path, timestamp, nonce, body, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// Verifier validates inbound signed requests against this site's shared
// secret, enforcing the replay window and nonce uniqueness on top of the
// signature check.
type Verifier struct {
	secret string
	window time.Duration
	nonces NonceStore
	now    func() time.Time
}

// NewVerifier creates a Verifier for the given shared secret. A nil nonce
// store disables replay deduplication (the window check still applies).
func NewVerifier(secret string, window time.Duration, nonces NonceStore) *Verifier {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &Verifier{secret: secret, window: window, nonces: nonces, now: time.Now}
}

// Headers is the subset of request headers a signed call must carry.
type Headers struct {
	Token     string
	Timestamp string
	Nonce     string
	Signature string
}

// VerifyRequest checks a signed inbound request end to end: header presence,
// bearer token match, signature, timestamp freshness, and nonce uniqueness.
// Every failure wraps ErrAuthentication.
func (v *Verifier) VerifyRequest(ctx context.Context, method, path string, hdr Headers, body []byte) error {
	if hdr.Token == "" || hdr.Timestamp == "" || hdr.Nonce == "" || hdr.Signature == "" {
		return fmt.Errorf("%w: missing auth headers", ErrAuthentication)
	}

	if subtle.ConstantTimeCompare([]byte(hdr.Token), []byte(v.secret)) != 1 {
		return fmt.Errorf("%w: unknown token", ErrAuthentication)
	}

	ts, err := strconv.ParseInt(hdr.Timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrAuthentication)
	}

	if !Verify(hdr.Signature, method, path, ts, hdr.Nonce, body, v.secret) {
		return fmt.Errorf("%w: signature mismatch", ErrAuthentication)
	}

	// Freshness is checked after the signature so rejected requests leak
	// nothing about clock state to unauthenticated callers.
	drift := v.now().Sub(time.Unix(ts, 0))
	if drift > v.window || drift < -v.window {
		return fmt.Errorf("%w: timestamp outside replay window", ErrAuthentication)
	}

	if v.nonces != nil {
		seen, err := v.nonces.Seen(ctx, hdr.Nonce, 2*v.window)
		if err != nil {
			return fmt.Errorf("nonce store: %w", err)
		}
		if seen {
			return fmt.Errorf("%w: nonce replayed", ErrAuthentication)
		}
	}

	return nil
}
