package chatsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/logging"
)

// Target is what a Driver keeps fresh. Engine implements it; a push transport
// would call the same entry points.
type Target interface {
	RefreshRoster(ctx context.Context) error
	RefreshThread(ctx context.Context, conversationID string) error
	ActiveConversation() string
	AuthExpired(err error)
}

// Driver starts and stops refresh of a Target.
type Driver interface {
	Start(ctx context.Context, target Target) (*Handle, error)
	Stop(h *Handle) error
}

var handleSeq atomic.Uint64

// Handle owns one running refresh loop. Stop it through the Driver that
// returned it.
type Handle struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

func newHandle(parent context.Context) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		id:     handleSeq.Add(1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID identifies the handle in logs.
func (h *Handle) ID() uint64 {
	return h.id
}

// Done is closed once the loop and its in-flight ticks have exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Running reports whether the loop has not been cancelled.
func (h *Handle) Running() bool {
	return h.ctx.Err() == nil
}

// Poller drives a Target with two fixed-interval tickers: the roster while
// started, and the selected thread while one is selected.
type Poller struct {
	config Config
	logger zerolog.Logger

	mu     sync.Mutex
	handle *Handle
}

// NewPoller creates a polling Driver.
func NewPoller(config Config) *Poller {
	return &Poller{
		config: config.withDefaults(),
		logger: logging.Component("sync-poller"),
	}
}

// Start begins polling target. Starting a running poller returns the live
// handle.
func (p *Poller) Start(ctx context.Context, target Target) (*Handle, error) {
	if target == nil {
		return nil, errors.New("poller target is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil && p.handle.Running() {
		return p.handle, nil
	}

	h := newHandle(ctx)
	p.handle = h

	p.logger.Info().
		Uint64("handle", h.id).
		Dur("roster_interval", p.config.RosterInterval).
		Dur("thread_interval", p.config.ThreadInterval).
		Msg("sync poller starting")

	go p.run(h, target)
	return h, nil
}

// Stop cancels h and waits for its in-flight ticks. Stopping a nil or
// already stopped handle is a no-op.
func (p *Poller) Stop(h *Handle) error {
	if h == nil {
		return nil
	}
	h.cancel()
	<-h.done

	p.mu.Lock()
	if p.handle == h {
		p.handle = nil
	}
	p.mu.Unlock()

	p.logger.Info().Uint64("handle", h.id).Msg("sync poller stopped")
	return nil
}

func (p *Poller) run(h *Handle, target Target) {
	defer close(h.done)
	defer h.wg.Wait()

	rosterTicker := time.NewTicker(p.config.RosterInterval)
	defer rosterTicker.Stop()
	threadTicker := time.NewTicker(p.config.ThreadInterval)
	defer threadTicker.Stop()

	p.tickRoster(h, target)
	p.tickThread(h, target)

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-rosterTicker.C:
			p.tickRoster(h, target)
		case <-threadTicker.C:
			p.tickThread(h, target)
		}
	}
}

func (p *Poller) tickRoster(h *Handle, target Target) {
	p.spawn(h, target, "roster", "", func(ctx context.Context) error {
		return target.RefreshRoster(ctx)
	})
}

func (p *Poller) tickThread(h *Handle, target Target) {
	id := target.ActiveConversation()
	if id == "" {
		return
	}
	p.spawn(h, target, "thread", id, func(ctx context.Context) error {
		return target.RefreshThread(ctx, id)
	})
}

// spawn runs one tick without blocking the loop, so a slow tick never delays
// the next timer.
func (p *Poller) spawn(h *Handle, target Target, kind, conversationID string, fn func(ctx context.Context) error) {
	if h.ctx.Err() != nil {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		p.handleTickError(h, target, kind, conversationID, fn(h.ctx))
	}()
}

func (p *Poller) handleTickError(h *Handle, target Target, kind, conversationID string, err error) {
	logger := p.logger.With().Str("tick", kind).Logger()
	if conversationID != "" {
		logger = logging.WithConversation(logger, conversationID)
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || h.ctx.Err() != nil:
	case errors.Is(err, auth.ErrNoToken):
		logger.Debug().Msg("no token, skipping tick")
	case auth.IsUnauthorized(err):
		logger.Warn().Err(err).Msg("authentication expired, stopping poller")
		h.cancel()
		target.AuthExpired(err)
	default:
		logger.Warn().Err(err).Msg("refresh failed, retrying next tick")
	}
}
