// Package render paints sealed pay records into themed PDF statements on a
// bounded pool of engines.
package render

import (
	"context"
	"log/slog"
	"time"

	"paystub/internal/domain/integrity"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/theme"
	"paystub/internal/platform/apperr"
	"paystub/internal/requestctx"
)

// Observer receives one call per finished render.
type Observer interface {
	ObserveRender(themeKey string, elapsed time.Duration, attempts int, err error)
}

type Renderer struct {
	pool      *Pool
	hint      string
	protector *Protector
	observer  Observer
	logger    *slog.Logger
}

type Option func(*Renderer)

// WithLookupHint sets the issuer hint carried in every scan code.
func WithLookupHint(hint string) Option {
	return func(r *Renderer) { r.hint = hint }
}

func WithProtector(p *Protector) Option {
	return func(r *Renderer) { r.protector = p }
}

func WithObserver(o Observer) Option {
	return func(r *Renderer) { r.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

func NewRenderer(pool *Pool, opts ...Option) *Renderer {
	r := &Renderer{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Pool() *Pool {
	return r.pool
}

// Render paints rec under the theme named by themeKey. A transient engine
// failure is retried once on a freshly started engine.
func (r *Renderer) Render(ctx context.Context, rec payroll.PayRecord, v integrity.Record, themeKey string) ([]byte, error) {
	def, err := theme.Lookup(themeKey)
	if err != nil {
		return nil, err
	}
	if v.ID.IsZero() || v.Seal == "" || v.Fingerprint == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "render.render", ErrUnsealed)
	}
	job := Job{Record: rec, Verification: v, Theme: def, Payload: integrity.PayloadFor(v, r.hint)}

	logger := requestctx.Logger(ctx, r.logger)
	start := time.Now()
	attempts := 1
	doc, err := r.attempt(ctx, job, false)
	if apperr.Retryable(err) && ctx.Err() == nil {
		logger.Warn("render failed, retrying on a fresh engine",
			"theme", def.Key, "verificationId", v.ID.String(), "error", err)
		attempts++
		doc, err = r.attempt(ctx, job, true)
	}
	if err == nil && r.protector != nil {
		doc, err = r.protector.Protect(doc)
	}
	if err != nil {
		logger.Error("render failed",
			"theme", def.Key, "verificationId", v.ID.String(), "attempts", attempts,
			"kind", apperr.KindOf(err), "error", err)
	}
	if r.observer != nil {
		r.observer.ObserveRender(def.Key, time.Since(start), attempts, err)
	}
	return doc, err
}

func (r *Renderer) attempt(ctx context.Context, job Job, fresh bool) ([]byte, error) {
	return r.pool.Do(ctx, fresh, func(ctx context.Context, eng Engine) ([]byte, error) {
		return eng.Render(ctx, job)
	})
}
