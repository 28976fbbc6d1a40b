// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsqlite

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ProbeSource derives connectivity by polling a server URL.
// Any HTTP response counts as online; a transport error counts as offline.
type ProbeSource struct {
	URL      string
	Interval time.Duration
	HTTP     *http.Client
	logger   *slog.Logger
	events   chan ConnectivityEvent
}

// NewProbeSource creates a probe; call Start to begin polling
func NewProbeSource(url string, interval time.Duration, logger *slog.Logger) *ProbeSource {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProbeSource{
		URL:      url,
		Interval: interval,
		HTTP:     &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
		events:   make(chan ConnectivityEvent, 1),
	}
}

func (p *ProbeSource) Events() <-chan ConnectivityEvent { return p.events }

// Start polls until ctx ends, then closes the event channel.
// The first probe always emits an event; later probes emit only on change.
func (p *ProbeSource) Start(ctx context.Context) {
	go func() {
		defer close(p.events)
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()

		var last *bool
		for {
			online := p.probe(ctx)
			if ctx.Err() != nil {
				return
			}
			if last == nil || *last != online {
				kind := EventOffline
				if online {
					kind = EventOnline
				}
				select {
				case p.events <- ConnectivityEvent{Kind: kind, At: time.Now()}:
				case <-ctx.Done():
					return
				}
				last = &online
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *ProbeSource) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		p.logger.Error("Invalid probe URL", "url", p.URL, "error", err)
		return false
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		p.logger.Debug("Connectivity probe failed", "url", p.URL, "error", err)
		return false
	}
	resp.Body.Close()
	return true
}
