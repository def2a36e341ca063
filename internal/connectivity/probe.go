// Package connectivity adapts an external online/offline signal into
// transition callbacks.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
)

// Listener receives connectivity transitions.
type Listener func(online bool)

// Probe polls a health URL and reports transitions only. Set lets a pushed
// feed inject state directly.
type Probe struct {
	url        string
	interval   time.Duration
	httpClient *http.Client
	logger     *logging.Logger

	mu        sync.Mutex
	known     bool
	online    bool
	listeners []Listener
}

// NewProbe creates a probe. An empty url disables polling; only Set updates it.
func NewProbe(url string, interval time.Duration, logger *logging.Logger) *Probe {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Probe{
		url:      url,
		interval: interval,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// OnChange registers a listener.
func (p *Probe) OnChange(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Online returns the last known state.
func (p *Probe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Set records a state and notifies listeners when it differs from the last
// known one. The first observation always notifies.
func (p *Probe) Set(online bool) {
	p.mu.Lock()
	if p.known && p.online == online {
		p.mu.Unlock()
		return
	}
	p.known = true
	p.online = online
	ls := make([]Listener, len(p.listeners))
	copy(ls, p.listeners)
	p.mu.Unlock()

	p.logger.Info("Connectivity changed", "online", online)
	for _, l := range ls {
		l(online)
	}
}

// Check performs one health request and records the result. A request cut
// short by ctx records nothing and returns the last known state.
func (p *Probe) Check(ctx context.Context) bool {
	online := p.check(ctx)
	if ctx.Err() != nil {
		return p.Online()
	}
	p.Set(online)
	return online
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Warn("Invalid connectivity probe URL", "url", p.url, "error", err)
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug("Connectivity probe failed", "error", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Run polls until ctx is done.
func (p *Probe) Run(ctx context.Context) {
	if p.url == "" {
		return
	}

	p.Check(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
