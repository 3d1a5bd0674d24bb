// Package catalog 管理按名称索引的区间树集合。
// 每棵树独占一把互斥锁，不同树之间的读写互不阻塞；目录本身由读写锁保护。
package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/segtree/algorithm"
	"github.com/wyfcoding/segtree/logging"
	"github.com/wyfcoding/segtree/metrics"
	"github.com/wyfcoding/segtree/tracing"
	"github.com/wyfcoding/segtree/xerrors"
)

// 操作名，用于日志、指标和 span 命名。
const (
	OpCreate      = "create"
	OpDrop        = "drop"
	OpQuery       = "query"
	OpUpdatePoint = "update_point"
	OpUpdateRange = "update_range"
	OpValidate    = "validate"
)

// Spec 描述一棵待创建的树。
type Spec struct {
	Name        string
	Engine      string // recursive | iterative，空值使用目录默认引擎
	Aggregation string // sum | min | max
	Mode        string // increment | assign
	Values      []int64
}

// Stats 树的只读快照。
type Stats struct {
	Name        string    `json:"name"`
	Engine      string    `json:"engine"`
	Aggregation string    `json:"aggregation"`
	Mode        string    `json:"mode"`
	Len         int       `json:"len"`
	Queries     uint64    `json:"queries"`
	Updates     uint64    `json:"updates"`
	Version     uint64    `json:"version"` // 每次成功的非空更新加一
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Entry 目录中的一棵树。
type Entry struct {
	mu      sync.Mutex
	name    string
	engine  algorithm.Engine
	tree    algorithm.RangeTree[int64]
	created time.Time
	updated time.Time
	queries uint64
	updates uint64
	version uint64
}

// Name 返回树名。
func (e *Entry) Name() string { return e.name }

// Stats 返回当前快照。
func (e *Entry) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsLocked()
}

func (e *Entry) statsLocked() Stats {
	p := e.tree.Policy()
	return Stats{
		Name:        e.name,
		Engine:      e.engine.String(),
		Aggregation: p.Aggregation().String(),
		Mode:        p.Mode().String(),
		Len:         e.tree.Len(),
		Queries:     e.queries,
		Updates:     e.updates,
		Version:     e.version,
		CreatedAt:   e.created,
		UpdatedAt:   e.updated,
	}
}

// Values 物化当前逻辑数组。
func (e *Entry) Values() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Values()
}

// Catalog 树目录。
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	defaultEngine algorithm.Engine
	maxLeaves     int
	logger        *logging.Logger
	metrics       *metrics.RangeMetrics
	now           func() time.Time
}

// Option 目录配置项。
type Option func(*Catalog)

// WithDefaultEngine 设置 Spec.Engine 为空时使用的引擎。
func WithDefaultEngine(e algorithm.Engine) Option {
	return func(c *Catalog) { c.defaultEngine = e }
}

// WithMaxLeaves 限制单棵树的叶子数，<= 0 表示不限制。
func WithMaxLeaves(n int) Option {
	return func(c *Catalog) { c.maxLeaves = n }
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

func WithMetrics(m *metrics.RangeMetrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// New 创建空目录。
func New(opts ...Option) *Catalog {
	c := &Catalog{
		entries:       make(map[string]*Entry),
		defaultEngine: algorithm.EngineRecursive,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Default().WithModule("catalog")
	}
	return c
}

// Create 按 Spec 构建一棵新树并登记到目录。
func (c *Catalog) Create(ctx context.Context, spec Spec) (stats Stats, err error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Create")
	defer span.End()
	start := time.Now()
	engineName, aggName := spec.Engine, spec.Aggregation
	defer func() {
		c.metrics.Observe(engineName, aggName, OpCreate, start, err)
		c.finish(ctx, spec.Name, OpCreate, err)
	}()

	tracing.AddTag(ctx, "tree", spec.Name)
	tracing.AddTag(ctx, "len", len(spec.Values))

	entry, err := c.build(spec)
	if err != nil {
		return Stats{}, err
	}
	engineName = entry.engine.String()
	aggName = entry.tree.Policy().Aggregation().String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[spec.Name]; ok {
		return Stats{}, fmt.Errorf("%w: %q", xerrors.ErrTreeExists, spec.Name)
	}
	c.entries[spec.Name] = entry
	c.metrics.TreeAdded(spec.Name, entry.tree.Len())
	return entry.statsLocked(), nil
}

func (c *Catalog) build(spec Spec) (*Entry, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" || name != spec.Name {
		return nil, fmt.Errorf("%w: tree name %q must be non-empty without surrounding spaces", xerrors.ErrInvalidInput, spec.Name)
	}
	if c.maxLeaves > 0 && len(spec.Values) > c.maxLeaves {
		return nil, fmt.Errorf("%w: %d leaves exceeds limit %d", xerrors.ErrInvalidInput, len(spec.Values), c.maxLeaves)
	}

	engine := c.defaultEngine
	if spec.Engine != "" {
		var err error
		if engine, err = algorithm.ParseEngine(spec.Engine); err != nil {
			return nil, err
		}
	}
	agg, err := algorithm.ParseAggregation(spec.Aggregation)
	if err != nil {
		return nil, err
	}
	mode, err := algorithm.ParseUpdateMode(spec.Mode)
	if err != nil {
		return nil, err
	}
	policy, err := algorithm.NewPolicy[int64](agg, mode)
	if err != nil {
		return nil, err
	}
	tree, err := algorithm.NewRangeTree(engine, spec.Values, policy)
	if err != nil {
		return nil, err
	}

	now := c.now()
	return &Entry{name: name, engine: engine, tree: tree, created: now, updated: now}, nil
}

// Get 按名称查找树。
func (c *Catalog) Get(name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", xerrors.ErrTreeNotFound, name)
	}
	return e, nil
}

// Drop 删除树。
func (c *Catalog) Drop(ctx context.Context, name string) (err error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Drop")
	defer span.End()
	tracing.AddTag(ctx, "tree", name)
	start := time.Now()
	var engineName, aggName string
	defer func() {
		c.metrics.Observe(engineName, aggName, OpDrop, start, err)
		c.finish(ctx, name, OpDrop, err)
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", xerrors.ErrTreeNotFound, name)
	}
	engineName = e.engine.String()
	aggName = e.tree.Policy().Aggregation().String()
	delete(c.entries, name)
	c.metrics.TreeRemoved(name)
	return nil
}

// List 返回全部树的快照，按名称排序。
func (c *Catalog) List() []Stats {
	c.mu.RLock()
	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	out := make([]Stats, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Stats())
	}
	slices.SortFunc(out, func(a, b Stats) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Len 返回目录中的树数量。
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats 返回指定树的快照。
func (c *Catalog) Stats(name string) (Stats, error) {
	e, err := c.Get(name)
	if err != nil {
		return Stats{}, err
	}
	return e.Stats(), nil
}

// Values 返回指定树的逻辑数组。
func (c *Catalog) Values(name string) ([]int64, error) {
	e, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	return e.Values(), nil
}

// Query 返回 [lo, hi) 的聚合值。
func (c *Catalog) Query(ctx context.Context, name string, lo, hi int) (result int64, err error) {
	err = c.run(ctx, name, OpQuery, func(ctx context.Context, e *Entry) error {
		tracing.AddTag(ctx, "lo", lo)
		tracing.AddTag(ctx, "hi", hi)
		var qerr error
		result, qerr = e.tree.Query(lo, hi)
		if qerr == nil {
			e.queries++
		}
		return qerr
	})
	return result, err
}

// UpdatePoint 按树的更新模式修改单个叶子。
func (c *Catalog) UpdatePoint(ctx context.Context, name string, index int, value int64) error {
	return c.run(ctx, name, OpUpdatePoint, func(ctx context.Context, e *Entry) error {
		tracing.AddTag(ctx, "index", index)
		if err := e.tree.UpdatePoint(index, value); err != nil {
			return err
		}
		e.touch(c.now(), true)
		return nil
	})
}

// UpdateRange 按树的更新模式修改 [lo, hi) 内的所有叶子。空区间不改变版本号。
func (c *Catalog) UpdateRange(ctx context.Context, name string, lo, hi int, delta int64) error {
	return c.run(ctx, name, OpUpdateRange, func(ctx context.Context, e *Entry) error {
		tracing.AddTag(ctx, "lo", lo)
		tracing.AddTag(ctx, "hi", hi)
		if err := e.tree.UpdateRange(lo, hi, delta); err != nil {
			return err
		}
		e.touch(c.now(), lo < hi)
		return nil
	})
}

// Validate 校验指定树的内部不变量。
func (c *Catalog) Validate(ctx context.Context, name string) error {
	return c.run(ctx, name, OpValidate, func(_ context.Context, e *Entry) error {
		return e.tree.Validate()
	})
}

func (e *Entry) touch(now time.Time, changed bool) {
	e.updates++
	if changed {
		e.version++
		e.updated = now
	}
}

// run 在 span 内持有树锁执行 fn，并统一记录指标和日志。
func (c *Catalog) run(ctx context.Context, name, op string, fn func(context.Context, *Entry) error) (err error) {
	ctx, span := tracing.StartSpan(ctx, "catalog."+op)
	defer span.End()
	tracing.AddTag(ctx, "tree", name)

	start := time.Now()
	e, err := c.Get(name)
	if err != nil {
		c.metrics.Observe("", "", op, start, err)
		c.finish(ctx, name, op, err)
		return err
	}

	e.mu.Lock()
	err = fn(ctx, e)
	agg := e.tree.Policy().Aggregation().String()
	e.mu.Unlock()

	c.metrics.Observe(e.engine.String(), agg, op, start, err)
	c.finish(ctx, name, op, err)
	return err
}

func (c *Catalog) finish(ctx context.Context, name, op string, err error) {
	if err == nil {
		c.logger.DebugContext(ctx, "tree operation", "tree", name, "op", op)
		return
	}
	tracing.SetError(ctx, err)
	if xerrors.HTTPStatusOf(err) >= 500 {
		c.logger.ErrorContext(ctx, "tree operation failed", "tree", name, "op", op, "error", err)
		return
	}
	c.logger.WarnContext(ctx, "tree operation rejected", "tree", name, "op", op, "error", err)
}
