// Package webhook hands stored files off to the external automation endpoint.
// Delivery is attempted once; retrying the job is the only retry.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/model"
	"github.com/24ep/studio-sub000/internal/storage"

	"github.com/rs/zerolog"
)

type Resolver interface {
	Resolve(ctx context.Context) string
}

// Recorder stores the outbound payload and the raw response on the job.
type Recorder interface {
	RecordWebhook(ctx context.Context, jobID string, payload, response *string) error
}

type Dispatcher struct {
	resolver Resolver
	client   *Client
	store    storage.Storage
	recorder Recorder
	urlTTL   time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewDispatcher(resolver Resolver, client *Client, store storage.Storage, recorder Recorder, urlTTL time.Duration) *Dispatcher {
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &Dispatcher{
		resolver: resolver,
		client:   client,
		store:    store,
		recorder: recorder,
		urlTTL:   urlTTL,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.Component("webhook"),
	}
}

// Dispatch posts p for the job. It reports false with a nil error when no
// endpoint is configured. Any delivery failure comes back as a DependencyError
// after the payload and the failure reason have been recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) (bool, error) {
	url := d.resolver.Resolve(ctx)
	if url == "" {
		d.log.Debug().Str("job_id", p.JobID).Msg("No webhook endpoint configured, skipping dispatch")
		return false, nil
	}

	if p.File.Key != "" && d.store != nil {
		signed, err := d.store.PresignedGet(ctx, p.File.Key, d.urlTTL)
		if err != nil {
			d.log.Warn().Err(err).Str("job_id", p.JobID).Msg("Failed to presign file url")
		} else {
			p.File.URL = signed
		}
	}
	p.SentAt = d.now()

	body, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	payload := string(body)

	response, postErr := d.client.Post(ctx, url, body)
	if postErr != nil && response == "" {
		response = postErr.Error()
	}

	if err := d.recorder.RecordWebhook(context.WithoutCancel(ctx), p.JobID, &payload, &response); err != nil {
		d.log.Error().Err(err).Str("job_id", p.JobID).Msg("Failed to record webhook result")
	}

	if postErr != nil {
		d.log.Warn().
			Err(postErr).
			Str("job_id", p.JobID).
			Str("kind", string(p.Kind)).
			Msg("Webhook dispatch failed")
		return true, postErr
	}

	d.log.Info().Str("job_id", p.JobID).Str("kind", string(p.Kind)).Msg("Webhook dispatched")
	return true, nil
}

// RequiresDelivery reports whether a failed dispatch must fail the job: only
// jobs that exist to drive the automation do.
func RequiresDelivery(source model.JobSource) bool {
	return source == model.JobSourceAutomation
}
