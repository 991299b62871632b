// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package deploy pushes signed artifacts from the publisher to registered
// consumer webhooks.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"syncpress/internal/models"
	"syncpress/internal/signature"
	"syncpress/internal/store"
)

// DefaultTimeout bounds a single webhook call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// TransportError is a non-2xx webhook response. Status carries the HTTP
// status code; Body carries a truncated response excerpt for diagnostics.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("consumer responded %d: %s", e.Status, e.Body)
}

// Response is the consumer's acknowledgment of an accepted deploy.
type Response struct {
	Status string          `json:"status"`
	JobID  *uuid.UUID      `json:"job_id,omitempty"`
	Diff   json.RawMessage `json:"diff,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Result is the outcome of one deploy attempt against one consumer.
type Result struct {
	ConsumerID uuid.UUID  `json:"consumer_id"`
	SiteName   string     `json:"site_name"`
	JobID      *uuid.UUID `json:"job_id,omitempty"`
	Skipped    bool       `json:"skipped,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Ok reports whether the consumer accepted the deploy.
func (r Result) Ok() bool {
	return r.Error == "" && !r.Skipped
}

// Sender delivers signed deploy requests to consumer webhooks.
type Sender struct {
	client      *http.Client
	consumers   *store.ConsumerStore
	concurrency int
	logger      *slog.Logger
}

// NewSender creates a Sender. Concurrency bounds how many consumers a
// fan-out targets at once; values below 1 are treated as 1.
func NewSender(consumers *store.ConsumerStore, timeout time.Duration, concurrency int, logger *slog.Logger) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sender{
		client:      &http.Client{Timeout: timeout},
		consumers:   consumers,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Send delivers one signed deploy request to a single consumer and returns
// the consumer's acknowledgment. The signature covers the fixed webhook
// route, a fresh nonce, and the exact request body bytes.
func (s *Sender) Send(ctx context.Context, consumer *models.Consumer, deploy *models.DeployRequest) (*Response, error) {
	body, err := json.Marshal(deploy)
	if err != nil {
		return nil, fmt.Errorf("marshal deploy request: %w", err)
	}

	url := strings.TrimRight(consumer.BaseURL, "/") + signature.DeployRoute
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build deploy request: %w", err)
	}

	timestamp := time.Now().Unix()
	nonce := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderToken, consumer.SharedSecret)
	req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(signature.HeaderNonce, nonce)
	req.Header.Set(signature.HeaderSignature,
		signature.Sign(http.MethodPost, signature.DeployRoute, timestamp, nonce, body, consumer.SharedSecret))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deploy to %s: %w", consumer.SiteName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read deploy response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Status: resp.StatusCode, Body: excerpt(raw)}
	}

	var ack Response
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, fmt.Errorf("decode deploy response: %w", err)
	}

	if s.consumers != nil {
		if err := s.consumers.TouchLastSeen(consumer.ID); err != nil {
			s.logger.Warn("failed to record consumer last seen", "consumer", consumer.SiteName, "error", err)
		}
	}
	return &ack, nil
}

// SendAll fans the deploy out to every given consumer with bounded
// concurrency. Every consumer gets a result entry in input order; inactive
// ones are marked skipped rather than contacted, so an operator listing an
// inactive target explicitly sees why nothing reached it. One consumer
// failing never stops delivery to the rest.
func (s *Sender) SendAll(ctx context.Context, consumers []models.Consumer, deploy *models.DeployRequest) []Result {
	results := make([]Result, len(consumers))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i := range consumers {
		consumer := &consumers[i]
		results[i] = Result{ConsumerID: consumer.ID, SiteName: consumer.SiteName}
		if !consumer.IsActive() {
			results[i].Skipped = true
			results[i].Error = "consumer is inactive"
			continue
		}

		wg.Add(1)
		go func(i int, consumer *models.Consumer) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ack, err := s.Send(ctx, consumer, deploy)
			if err != nil {
				s.logger.Error("deploy failed", "consumer", consumer.SiteName, "error", err)
				results[i].Error = err.Error()
			} else {
				results[i].JobID = ack.JobID
			}
		}(i, consumer)
	}
	wg.Wait()

	return results
}

// excerpt bounds an error body to a loggable size.
func excerpt(raw []byte) string {
	const max = 512
	text := strings.TrimSpace(string(raw))
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
