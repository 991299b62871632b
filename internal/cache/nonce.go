// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// nonce.go provides a Valkey-backed short-lived set of seen request nonces.
// A signed deploy request whose nonce was already recorded inside the replay
// window is an exact replay and gets rejected at the transport boundary.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// nonceKeyPrefix is the Valkey key prefix for seen nonces.
const nonceKeyPrefix = "nonce:"

// NonceStore records request nonces with a TTL in Valkey.
type NonceStore struct {
	client *redis.Client
}

// NewNonceStore creates a nonce store backed by the given Valkey client.
func NewNonceStore(client *redis.Client) *NonceStore {
	return &NonceStore{client: client}
}

// Seen records the nonce and reports whether it was already present.
// SET NX makes the check-and-record atomic across concurrent requests.
func (ns *NonceStore) Seen(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ok, err := ns.client.SetNX(ctx, nonceKeyPrefix+nonce, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("nonce setnx: %w", err)
	}
	return !ok, nil
}
