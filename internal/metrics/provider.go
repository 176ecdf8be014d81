// Package metrics supplies point-in-time engagement and indexing snapshots
// for clinics. The provider is treated as eventually consistent and
// occasionally unavailable; the engine wraps it with Degrade so a provider
// outage never fails a pass.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

// Provider returns the metrics snapshot for a clinic over the trailing
// window.
type Provider interface {
	Snapshot(ctx context.Context, slug string, windowDays int) (clinic.Metrics, error)
}

// StoreProvider reads snapshots from the metrics hashes maintained by the
// ingestion pipeline (out of scope here) at metrics:<slug>.
type StoreProvider struct {
	client *redis.Client
}

// NewStoreProvider creates a provider over the given Redis client.
func NewStoreProvider(client *redis.Client) *StoreProvider {
	return &StoreProvider{client: client}
}

// Snapshot reads the clinic's metrics hash. A missing hash is valid and
// yields a zero snapshot: new clinics simply have no traffic yet.
func (p *StoreProvider) Snapshot(ctx context.Context, slug string, windowDays int) (clinic.Metrics, error) {
	raw, err := p.client.HGetAll(ctx, "metrics:"+slug).Result()
	if err != nil {
		return clinic.Metrics{}, fmt.Errorf("reading metrics for %s: %w", slug, err)
	}

	m := clinic.Metrics{WindowDays: windowDays}
	m.Clicks = intField(raw, "clicks")
	m.Calls = intField(raw, "calls")
	m.Impressions = intField(raw, "impressions")
	m.PrevClicks = intField(raw, "prev_clicks")
	m.Indexed = intField(raw, "indexed") != 0
	return m, nil
}

func intField(raw map[string]string, field string) int {
	v, ok := raw[field]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Degrade wraps a Provider so failures produce a zero-valued snapshot
// instead of an error. The degradation is logged and counted.
type Degrade struct {
	inner  Provider
	logger *slog.Logger
}

// NewDegrade wraps inner with zero-value degradation.
func NewDegrade(inner Provider, logger *slog.Logger) *Degrade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Degrade{inner: inner, logger: logger}
}

// Snapshot never returns an error: provider failures degrade to a zero
// snapshot for the requested window.
func (d *Degrade) Snapshot(ctx context.Context, slug string, windowDays int) (clinic.Metrics, error) {
	m, err := d.inner.Snapshot(ctx, slug, windowDays)
	if err != nil {
		d.logger.Warn("metrics unavailable, degrading to zero snapshot",
			"clinic", slug,
			"error", err,
		)
		return clinic.Metrics{WindowDays: windowDays}, nil
	}
	return m, nil
}

// Static is a fixed-response provider for tests. Err, when set, is returned
// for every snapshot; ErrFor limits the failure to specific slugs.
type Static struct {
	Snapshots map[string]clinic.Metrics
	Err       error
	ErrFor    map[string]error
}

// Snapshot returns the configured snapshot for the slug, or a zero snapshot
// when none is configured.
func (s *Static) Snapshot(ctx context.Context, slug string, windowDays int) (clinic.Metrics, error) {
	if s.Err != nil {
		return clinic.Metrics{}, s.Err
	}
	if err, ok := s.ErrFor[slug]; ok {
		return clinic.Metrics{}, err
	}
	if m, ok := s.Snapshots[slug]; ok {
		if m.WindowDays == 0 {
			m.WindowDays = windowDays
		}
		return m, nil
	}
	return clinic.Metrics{WindowDays: windowDays}, nil
}
