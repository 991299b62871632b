// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// ConsumerStatus marks whether a registered consumer receives deploys.
type ConsumerStatus string

const (
	ConsumerStatusActive   ConsumerStatus = "active"
	ConsumerStatusInactive ConsumerStatus = "inactive"
)

// Consumer is a registered remote node that receives and locally
// materializes artifacts. The shared secret is the sole trust anchor for
// all signed traffic to and from this consumer.
type Consumer struct {
	ID           uuid.UUID      `json:"id"`
	SiteName     string         `json:"site_name"`
	BaseURL      string         `json:"base_url"`
	SharedSecret string         `json:"-"`
	Status       ConsumerStatus `json:"status"`
	LastSeenAt   *time.Time     `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsActive reports whether the consumer should be targeted by deploys.
func (c *Consumer) IsActive() bool {
	return c.Status == ConsumerStatusActive
}
