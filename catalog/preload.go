package catalog

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

// Preload 并发创建一批树，任一失败时返回合并后的错误，已创建成功的树保留。
// workers <= 0 时不限制并发数。
func (c *Catalog) Preload(ctx context.Context, specs []Spec, workers int) error {
	done := c.logger.LogDuration(ctx, "preload", "trees", len(specs), "workers", workers)
	p := pool.New().WithContext(ctx)
	if workers > 0 {
		p = p.WithMaxGoroutines(workers)
	}
	for _, spec := range specs {
		p.Go(func(ctx context.Context) error {
			if _, err := c.Create(ctx, spec); err != nil {
				return fmt.Errorf("preload %q: %w", spec.Name, err)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	done()
	return nil
}
