// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package signature

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"
)

const testSecret = "test-shared-secret"

// fakeNonceStore remembers nonces in memory.
type fakeNonceStore struct {
	seen map[string]bool
	err  error
}

func newFakeNonceStore() *fakeNonceStore {
	return &fakeNonceStore{seen: make(map[string]bool)}
}

func (f *fakeNonceStore) Seen(_ context.Context, nonce string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[nonce] {
		return true, nil
	}
	f.seen[nonce] = true
	return false, nil
}

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"artifact":{}}`)
	a := Sign(http.MethodPost, DeployRoute, 1700000000, "nonce-1", body, testSecret)
	b := Sign(http.MethodPost, DeployRoute, 1700000000, "nonce-1", body, testSecret)
	if a != b {
		t.Errorf("same inputs produced different signatures: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestVerifyRejectsAnyChangedInput(t *testing.T) {
	body := []byte(`{"artifact":{"version":"1.0.0"}}`)
	ts := int64(1700000000)
	sig := Sign(http.MethodPost, DeployRoute, ts, "nonce-1", body, testSecret)

	if !Verify(sig, http.MethodPost, DeployRoute, ts, "nonce-1", body, testSecret) {
		t.Fatal("valid signature rejected")
	}

	cases := []struct {
		name string
		ok   bool
	}{
		{"method", Verify(sig, http.MethodPut, DeployRoute, ts, "nonce-1", body, testSecret)},
		{"path", Verify(sig, http.MethodPost, "/other", ts, "nonce-1", body, testSecret)},
		{"timestamp", Verify(sig, http.MethodPost, DeployRoute, ts+1, "nonce-1", body, testSecret)},
		{"nonce", Verify(sig, http.MethodPost, DeployRoute, ts, "nonce-2", body, testSecret)},
		{"body", Verify(sig, http.MethodPost, DeployRoute, ts, "nonce-1", []byte(`{}`), testSecret)},
		{"secret", Verify(sig, http.MethodPost, DeployRoute, ts, "nonce-1", body, "wrong")},
	}
	for _, tc := range cases {
		if tc.ok {
			t.Errorf("signature accepted despite changed %s", tc.name)
		}
	}
}

func signedHeaders(ts int64, nonce string, body []byte, secret string) Headers {
	return Headers{
		Token:     secret,
		Timestamp: strconv.FormatInt(ts, 10),
		Nonce:     nonce,
		Signature: Sign(http.MethodPost, DeployRoute, ts, nonce, body, secret),
	}
}

func TestVerifyRequestAccepts(t *testing.T) {
	v := NewVerifier(testSecret, DefaultReplayWindow, newFakeNonceStore())
	body := []byte(`{"artifact":{}}`)
	hdr := signedHeaders(time.Now().Unix(), "nonce-ok", body, testSecret)

	if err := v.VerifyRequest(context.Background(), http.MethodPost, DeployRoute, hdr, body); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestVerifyRequestMissingHeaders(t *testing.T) {
	v := NewVerifier(testSecret, DefaultReplayWindow, nil)
	body := []byte(`{}`)
	full := signedHeaders(time.Now().Unix(), "n", body, testSecret)

	cases := []struct {
		name string
		hdr  Headers
	}{
		{"no token", Headers{Timestamp: full.Timestamp, Nonce: full.Nonce, Signature: full.Signature}},
		{"no timestamp", Headers{Token: full.Token, Nonce: full.Nonce, Signature: full.Signature}},
		{"no nonce", Headers{Token: full.Token, Timestamp: full.Timestamp, Signature: full.Signature}},
		{"no signature", Headers{Token: full.Token, Timestamp: full.Timestamp, Nonce: full.Nonce}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.VerifyRequest(context.Background(), http.MethodPost, DeployRoute, tc.hdr, body)
			if !errors.Is(err, ErrAuthentication) {
				t.Errorf("expected ErrAuthentication, got %v", err)
			}
		})
	}
}

func TestVerifyRequestWrongToken(t *testing.T) {
	v := NewVerifier(testSecret, DefaultReplayWindow, nil)
	body := []byte(`{}`)
	hdr := signedHeaders(time.Now().Unix(), "n", body, "other-secret")

	err := v.VerifyRequest(context.Background(), http.MethodPost, DeployRoute, hdr, body)
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
}

func TestVerifyRequestMalformedTimestamp(t *testing.T) {
	v := NewVerifier(testSecret, DefaultReplayWindow, nil)
	body := []byte(`{}`)
	hdr := signedHeaders(time.Now().Unix(), "n", body, testSecret)
	hdr.Timestamp = "not-a-number"

	err := v.VerifyRequest(context.Background(), http.MethodPost, DeployRoute, hdr, body)
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
}

func TestVerifyRequestReplayWindow(t *testing.T) {
	v := NewVerifier(testSecret, 2*time.Minute, nil)
	body := []byte(`{}`)

	stale := time.Now().Add(-10 * time.Minute).Unix()
	err := v.VerifyRequest(context.Background(), http.MethodPost, DeployRoute,
		signedHeaders(stale, "n1", body, testSecret), body)
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("stale timestamp: expected ErrAuthentication, got %v", err)
	}

	future := time.Now().Add(10 * time.Minute).Unix()
	err = v.VerifyRequest(context.Background(), http.MethodPost, DeployRoute,
		signedHeaders(future, "n2", body, testSecret), body)
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("future timestamp: expected ErrAuthentication, got %v", err)
	}
}

func TestVerifyRequestNonceReplay(t *testing.T) {
	v := NewVerifier(testSecret, DefaultReplayWindow, newFakeNonceStore())
	body := []byte(`{}`)
	hdr := signedHeaders(time.Now().Unix(), "replayed-nonce", body, testSecret)

	if err := v.VerifyRequest(context.Background(), http.MethodPost, DeployRoute, hdr, body); err != nil {
		t.Fatalf("first use rejected: %v", err)
	}
	err := v.VerifyRequest(context.Background(), http.MethodPost, DeployRoute, hdr, body)
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("replayed nonce: expected ErrAuthentication, got %v", err)
	}
}

func TestVerifyRequestNonceStoreFailure(t *testing.T) {
	ns := newFakeNonceStore()
	ns.err = errors.New("valkey down")
	v := NewVerifier(testSecret, DefaultReplayWindow, ns)
	body := []byte(`{}`)
	hdr := signedHeaders(time.Now().Unix(), "n", body, testSecret)

	err := v.VerifyRequest(context.Background(), http.MethodPost, DeployRoute, hdr, body)
	if err == nil {
		t.Fatal("expected error when nonce store fails")
	}
	if errors.Is(err, ErrAuthentication) {
		t.Error("infrastructure failure should not read as an auth failure")
	}
}
