// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"syncpress/internal/signature"
)

func TestRecovererCatchesPanic(t *testing.T) {
	handler := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/sync/deploy", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
}

func TestLoggerPassesThrough(t *testing.T) {
	handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/sync/deploy", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status: got %d, want 202", rec.Code)
	}
}

func TestRateLimiterByClientIP(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/sync/deploy", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("10.0.0.1") != http.StatusOK || send("10.0.0.1") != http.StatusOK {
		t.Error("requests within the limit should pass")
	}
	if send("10.0.0.1") != http.StatusTooManyRequests {
		t.Error("request over the limit should be rejected")
	}
	if send("10.0.0.2") != http.StatusOK {
		t.Error("a different client should not share the bucket")
	}
}

func TestRateLimiterKeysSignedCallersByToken(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/sync/deploy", nil)
		// Same proxy IP for every caller.
		req.Header.Set("X-Real-IP", "10.0.0.9")
		req.Header.Set(signature.HeaderToken, token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("publisher-a") != http.StatusOK {
		t.Error("first request for a token should pass")
	}
	if send("publisher-a") != http.StatusTooManyRequests {
		t.Error("token over the limit should be rejected")
	}
	if send("publisher-b") != http.StatusOK {
		t.Error("a different token behind the same IP should not share the bucket")
	}
}
