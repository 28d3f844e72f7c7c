package render

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"paystub/internal/domain/integrity"
	"paystub/internal/domain/payroll"
)

// Result is the outcome for one theme of a batch.
type Result struct {
	Theme    string
	Document []byte
	Err      error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// RenderAll paints one sealed record under every theme key, at most
// pool-size at a time. Each theme succeeds or fails on its own. Once ctx is
// cancelled no further themes start; those already painting run to
// completion. Results keep the order of themeKeys.
func (r *Renderer) RenderAll(ctx context.Context, rec payroll.PayRecord, v integrity.Record, themeKeys []string) []Result {
	results := make([]Result, len(themeKeys))
	for i, key := range themeKeys {
		results[i].Theme = key
	}

	inflight := context.WithoutCancel(ctx)
	slots := make(chan struct{}, r.pool.Size())
	var g errgroup.Group
	for i, key := range themeKeys {
		acquired := false
		select {
		case slots <- struct{}{}:
			acquired = true
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			if acquired {
				<-slots
			}
			for j := i; j < len(themeKeys); j++ {
				results[j].Err = fmt.Errorf("%w: %w", ErrNotDispatched, context.Cause(ctx))
			}
			break
		}
		g.Go(func() error {
			defer func() { <-slots }()
			doc, err := r.Render(inflight, rec, v, key)
			results[i].Document, results[i].Err = doc, err
			return nil
		})
	}
	_ = g.Wait()
	return results
}
