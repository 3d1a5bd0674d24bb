package algorithm

import (
	"fmt"
	"math"
	"strings"
)

// Number 线段树可承载的数值类型。
type Number interface {
	int | int32 | int64 | float32 | float64
}

// Aggregation 定义区间聚合语义。
type Aggregation int

const (
	AggregateSum Aggregation = iota // 区间和
	AggregateMin                    // 区间最小值
	AggregateMax                    // 区间最大值
)

func (a Aggregation) String() string {
	switch a {
	case AggregateSum:
		return "sum"
	case AggregateMin:
		return "min"
	case AggregateMax:
		return "max"
	default:
		return "unknown"
	}
}

// ParseAggregation 将 "sum"/"min"/"max"（大小写不敏感）解析为 Aggregation。
func ParseAggregation(s string) (Aggregation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum":
		return AggregateSum, nil
	case "min":
		return AggregateMin, nil
	case "max":
		return AggregateMax, nil
	}
	return 0, fmt.Errorf("%w: unknown aggregation %q", ErrInvalidInput, s)
}

// UpdateMode 定义区间更新语义：增量或赋值。
// 一棵树的更新语义在构造时确定，生命周期内不可混用。
type UpdateMode int

const (
	ModeIncrement UpdateMode = iota // 区间内每个元素加上 delta
	ModeAssign                      // 区间内每个元素被设置为 delta
)

func (m UpdateMode) String() string {
	switch m {
	case ModeIncrement:
		return "increment"
	case ModeAssign:
		return "assign"
	default:
		return "unknown"
	}
}

// ParseUpdateMode 解析 "increment"/"assign"，同时接受 "add" 与 "set" 两个别名。
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "increment", "add":
		return ModeIncrement, nil
	case "assign", "assignment", "set":
		return ModeAssign, nil
	}
	return 0, fmt.Errorf("%w: unknown update mode %q", ErrInvalidInput, s)
}

// Policy 聚合策略，是两种线段树引擎共享的不可变配置。
// 它描述了 combine（合并）、neutral（单位元）和 apply（把挂起的更新折叠进子树聚合值）三个要素。
// 零值是合法的：区间和 + 增量更新。
type Policy[V Number] struct {
	agg     Aggregation
	mode    UpdateMode
	neutral V
}

// NewPolicy 创建聚合策略。
func NewPolicy[V Number](agg Aggregation, mode UpdateMode) (Policy[V], error) {
	var p Policy[V]
	switch agg {
	case AggregateSum:
	case AggregateMin:
		p.neutral = maxOf[V]()
	case AggregateMax:
		p.neutral = minOf[V]()
	default:
		return p, fmt.Errorf("%w: aggregation %d", ErrInvalidPolicy, agg)
	}
	if mode != ModeIncrement && mode != ModeAssign {
		return p, fmt.Errorf("%w: update mode %d", ErrInvalidPolicy, mode)
	}
	p.agg = agg
	p.mode = mode
	return p, nil
}

// MustPolicy 与 NewPolicy 相同，但在参数非法时 panic，适用于常量配置。
func MustPolicy[V Number](agg Aggregation, mode UpdateMode) Policy[V] {
	p, err := NewPolicy[V](agg, mode)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Policy[V]) Aggregation() Aggregation { return p.agg }

func (p Policy[V]) Mode() UpdateMode { return p.mode }

// Neutral 返回 combine 的单位元：和为 0，最小值为 +∞，最大值为 −∞。
func (p Policy[V]) Neutral() V { return p.neutral }

// Combine 合并两个子区间的聚合值。
func (p Policy[V]) Combine(a, b V) V {
	switch p.agg {
	case AggregateMin:
		return min(a, b)
	case AggregateMax:
		return max(a, b)
	default:
		return a + b
	}
}

// Apply 把一次更新折叠进覆盖 span 个叶子的子树聚合值。
// 增量模式下，区间和加上 span*delta，最值只平移 delta；
// 赋值模式下忽略 old，区间和为 span*delta，最值为 delta。
func (p Policy[V]) Apply(old, delta V, span int) V {
	if p.mode == ModeAssign {
		if p.agg == AggregateSum {
			return delta * V(span)
		}
		return delta
	}
	if p.agg == AggregateSum {
		return old + delta*V(span)
	}
	return old + delta
}

// Compose 把新的更新叠加到已挂起的懒标记上。
// pending 先发生，delta 后发生。
func (p Policy[V]) Compose(pending, delta V) V {
	if p.mode == ModeAssign {
		return delta
	}
	return pending + delta
}

// Reduce 对整个序列做一次朴素的 combine 归约，空序列返回单位元。
func (p Policy[V]) Reduce(values []V) V {
	acc := p.neutral
	for _, v := range values {
		acc = p.Combine(acc, v)
	}
	return acc
}

func (p Policy[V]) String() string {
	return p.agg.String() + "/" + p.mode.String()
}

func maxOf[V Number]() V {
	var zero V
	switch any(zero).(type) {
	case int:
		return any(math.MaxInt).(V)
	case int32:
		return any(int32(math.MaxInt32)).(V)
	case int64:
		return any(int64(math.MaxInt64)).(V)
	case float32:
		return any(float32(math.Inf(1))).(V)
	default:
		return any(math.Inf(1)).(V)
	}
}

func minOf[V Number]() V {
	var zero V
	switch any(zero).(type) {
	case int:
		return any(math.MinInt).(V)
	case int32:
		return any(int32(math.MinInt32)).(V)
	case int64:
		return any(int64(math.MinInt64)).(V)
	case float32:
		return any(float32(math.Inf(-1))).(V)
	default:
		return any(math.Inf(-1)).(V)
	}
}

// approxEqual 整数精确比较；浮点数允许相对误差，用于不变量校验。
func approxEqual[V Number](a, b V) bool {
	if a == b {
		return true
	}
	switch any(a).(type) {
	case float32, float64:
		x, y := float64(a), float64(b)
		if math.IsInf(x, 0) || math.IsInf(y, 0) {
			return false
		}
		diff := math.Abs(x - y)
		scale := math.Max(1, math.Max(math.Abs(x), math.Abs(y)))
		return diff <= 1e-6*scale
	}
	return false
}
