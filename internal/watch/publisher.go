// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"clash-launcher/internal/config"
	"clash-launcher/internal/events"
)

// VersionPublisher emits config-current-version with the installed release
// tag. The first Publish always emits; later calls emit only when the tag
// changed. A failed reload keeps the last published value.
type VersionPublisher struct {
	provider config.Provider
	opts     config.LoadOptions
	sink     events.Sink
	logger   *log.Logger

	mu        sync.Mutex
	last      string
	published bool
}

// NewVersionPublisher creates a VersionPublisher. A nil sink discards events.
func NewVersionPublisher(provider config.Provider, opts config.LoadOptions, sink events.Sink, logger *log.Logger) *VersionPublisher {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "config"})
	}
	return &VersionPublisher{provider: provider, opts: opts, sink: sink, logger: logger}
}

// Publish reloads configuration and emits the current version if needed.
func (p *VersionPublisher) Publish(ctx context.Context) error {
	cfg, err := p.provider.Load(ctx, p.opts)
	if err != nil {
		p.logger.Warn("config reload failed, keeping previous version", "err", err)
		return fmt.Errorf("reload config: %w", err)
	}

	p.mu.Lock()
	changed := !p.published || cfg.CurrentVersion != p.last
	p.last, p.published = cfg.CurrentVersion, true
	p.mu.Unlock()

	if changed {
		p.logger.Info("installed version", "version", cfg.CurrentVersion)
		p.sink.Emit(events.Event{Name: events.ConfigCurrentVersion, Payload: cfg.CurrentVersion})
	}
	return nil
}

// Current returns the last published version and whether one was published.
func (p *VersionPublisher) Current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.published
}

// OnChange adapts Publish to Config.OnChange.
func (p *VersionPublisher) OnChange(ctx context.Context, _ []string) error {
	return p.Publish(ctx)
}
