package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"paystub/internal/platform/apperr"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	rendersTotal     uint64
	renderFailures   uint64
	renderRetries    uint64
	renderDurationMs uint64

	mu           sync.Mutex
	failuresKind map[apperr.Kind]uint64
	rendersTheme map[string]uint64
}

func New() *Collector {
	return &Collector{
		failuresKind: map[apperr.Kind]uint64{},
		rendersTheme: map[string]uint64{},
	}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// ObserveRender counts one finished render, including its retry and failure
// kind.
func (c *Collector) ObserveRender(themeKey string, elapsed time.Duration, attempts int, err error) {
	atomic.AddUint64(&c.rendersTotal, 1)
	atomic.AddUint64(&c.renderDurationMs, uint64(elapsed.Milliseconds()))
	if attempts > 1 {
		atomic.AddUint64(&c.renderRetries, uint64(attempts-1))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rendersTheme[themeKey]++
	if err != nil {
		atomic.AddUint64(&c.renderFailures, 1)
		kind := apperr.KindOf(err)
		if kind == "" {
			kind = "unknown"
		}
		c.failuresKind[kind]++
	}
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	renders := atomic.LoadUint64(&c.rendersTotal)
	renderMs := atomic.LoadUint64(&c.renderDurationMs)
	renderAvg := float64(0)
	if renders > 0 {
		renderAvg = float64(renderMs) / float64(renders)
	}

	c.mu.Lock()
	byKind := make(map[string]uint64, len(c.failuresKind))
	for k, v := range c.failuresKind {
		byKind[string(k)] = v
	}
	byTheme := make(map[string]uint64, len(c.rendersTheme))
	for k, v := range c.rendersTheme {
		byTheme[k] = v
	}
	c.mu.Unlock()

	return map[string]any{
		"requestsTotal":        total,
		"errorsTotal":          errs,
		"rateLimitedTotal":     limited,
		"avgDurationMs":        avg,
		"totalDurationMs":      totalMs,
		"rendersTotal":         renders,
		"renderFailuresTotal":  atomic.LoadUint64(&c.renderFailures),
		"renderRetriesTotal":   atomic.LoadUint64(&c.renderRetries),
		"avgRenderDurationMs":  renderAvg,
		"renderFailuresByKind": byKind,
		"rendersByTheme":       byTheme,
	}
}
