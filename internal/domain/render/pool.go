package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"paystub/internal/platform/apperr"
)

type PoolConfig struct {
	Size           int
	AcquireTimeout time.Duration
	RenderTimeout  time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 10 * time.Second
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 30 * time.Second
	}
	return c
}

// Pool bounds the number of engines painting at once. Callers beyond the
// bound wait up to AcquireTimeout for a slot. Engines that crash or time
// out are discarded; healthy ones are kept idle for reuse.
type Pool struct {
	factory Factory
	cfg     PoolConfig
	slots   chan struct{}
	idle    chan Engine

	mu     sync.Mutex
	closed bool

	created   atomic.Int64
	discarded atomic.Int64
}

type PoolStats struct {
	Size      int   `json:"size"`
	Busy      int   `json:"busy"`
	Idle      int   `json:"idle"`
	Created   int64 `json:"created"`
	Discarded int64 `json:"discarded"`
}

func NewPool(factory Factory, cfg PoolConfig) (*Pool, error) {
	if factory == nil || cfg.Size < 1 {
		return nil, apperr.Configuration("render.pool", "pool needs a factory and a positive size, got size %d", cfg.Size)
	}
	cfg = cfg.withDefaults()
	return &Pool{
		factory: factory,
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.Size),
		idle:    make(chan Engine, cfg.Size),
	}, nil
}

func (p *Pool) Size() int {
	return p.cfg.Size
}

// Warm starts n engines ahead of the first request.
func (p *Pool) Warm(n int) error {
	for i := 0; i < n && i < p.cfg.Size; i++ {
		eng, err := p.create()
		if err != nil {
			return err
		}
		p.checkin(eng)
	}
	return nil
}

type outcome struct {
	doc     []byte
	err     error
	crashed bool
}

// Do runs fn on a pooled engine. With fresh set the engine is newly created
// rather than taken from the idle set. The slot and the engine are released
// on every path, including a panic inside fn.
func (p *Pool) Do(ctx context.Context, fresh bool, fn func(context.Context, Engine) ([]byte, error)) ([]byte, error) {
	const op = "render.pool"
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	eng, err := p.checkout(fresh)
	if err != nil {
		release()
		return nil, err
	}

	renderCtx, cancel := context.WithTimeout(ctx, p.cfg.RenderTimeout)
	defer cancel()
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: apperr.Transient(op, fmt.Errorf("%w: %v", ErrEngineCrashed, r)), crashed: true}
			}
			done <- out
		}()
		out.doc, out.err = fn(renderCtx, eng)
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			out.err = apperr.Transient(op, ErrEngineTimeout)
		}
		if out.crashed || apperr.Retryable(out.err) {
			p.discard(eng)
		} else {
			p.checkin(eng)
		}
		release()
		return out.doc, out.err
	case <-renderCtx.Done():
		// The engine is abandoned; its slot frees once fn returns.
		go func() {
			<-done
			p.discard(eng)
			release()
		}()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, apperr.Transient(op, ErrEngineTimeout)
	}
}

func (p *Pool) acquire(ctx context.Context) (func(), error) {
	const op = "render.pool"
	if p.isClosed() {
		return nil, apperr.New(apperr.KindConfiguration, op, ErrPoolClosed)
	}
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, apperr.Transient(op, ErrPoolExhausted)
	}
}

func (p *Pool) checkout(fresh bool) (Engine, error) {
	if !fresh {
		select {
		case eng := <-p.idle:
			return eng, nil
		default:
		}
	}
	return p.create()
}

func (p *Pool) create() (Engine, error) {
	eng, err := p.factory()
	if err != nil {
		return nil, apperr.New(apperr.KindRenderTransient, "render.pool", fmt.Errorf("start engine: %w", err))
	}
	p.created.Add(1)
	return eng, nil
}

func (p *Pool) checkin(eng Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = eng.Close()
		return
	}
	select {
	case p.idle <- eng:
	default:
		_ = eng.Close()
	}
}

func (p *Pool) discard(eng Engine) {
	p.discarded.Add(1)
	_ = eng.Close()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close stops handing out engines and closes the idle ones. Engines still
// painting are closed when they come back.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for {
		select {
		case eng := <-p.idle:
			_ = eng.Close()
		default:
			return nil
		}
	}
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Size:      p.cfg.Size,
		Busy:      len(p.slots),
		Idle:      len(p.idle),
		Created:   p.created.Load(),
		Discarded: p.discarded.Load(),
	}
}
