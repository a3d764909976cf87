package connectivity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds prober configuration.
type Config struct {
	// ServerURL is the backend base URL; the prober requests ServerURL/health.
	ServerURL string
	Timeout   time.Duration
	Interval  time.Duration
}

// Prober feeds a State by polling the backend health endpoint.
type Prober struct {
	cfg        Config
	state      *State
	httpClient *http.Client
	logger     *slog.Logger
	stopCh     chan struct{}
	stopped    chan struct{}

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

func NewProber(cfg Config, state *State, logger *slog.Logger) *Prober {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		cfg:   cfg,
		state: state,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:  logger,
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Probe checks the backend once and updates the state. The returned error
// explains why the backend was considered unreachable.
func (p *Prober) Probe(ctx context.Context) error {
	err := p.check(ctx)
	if p.state.Set(err == nil) {
		if err != nil {
			p.logger.Warn("backend unreachable", "error", err)
		} else {
			p.logger.Info("backend reachable")
		}
	}
	return err
}

func (p *Prober) check(ctx context.Context) error {
	url := strings.TrimRight(p.cfg.ServerURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: status %d", resp.StatusCode)
	}
	return nil
}

// Start probes immediately and then on every interval until Stop or ctx is
// done. Only the first call starts the loop.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.Probe(ctx)

	go func() {
		defer close(p.stopped)
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.Probe(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the background probe goroutine started by Start. It is safe to
// call more than once, or without Start.
func (p *Prober) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.stopped
	}
}
