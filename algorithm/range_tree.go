package algorithm

import (
	"fmt"
	"strings"
)

// RangeTree 是递归与迭代两种线段树引擎共同实现的区间查询/区间更新契约。
// 所有下标从 0 开始，区间均为半开区间 [lo, hi)。
// 实现不是并发安全的，调用方需要自行串行化（例如每棵树一把互斥锁）。
type RangeTree[V Number] interface {
	// Len 返回叶子数 n，构造后固定不变。
	Len() int
	// Policy 返回构造时确定的聚合策略。
	Policy() Policy[V]
	// Query 返回 [lo, hi) 的聚合值；lo == hi 时返回单位元。
	Query(lo, hi int) (V, error)
	// UpdatePoint 按策略的更新模式对单个叶子赋值或累加。
	UpdatePoint(index int, value V) error
	// UpdateRange 按策略的更新模式对 [lo, hi) 内所有叶子赋值或累加；lo == hi 时不做任何事。
	UpdateRange(lo, hi int, delta V) error
	// Values 物化当前逻辑数组。
	Values() []V
	// Validate 校验内部缓存的不变量。
	Validate() error
}

// Engine 线段树实现方式。
type Engine int

const (
	EngineRecursive Engine = iota // 自顶向下递归，4n 数组
	EngineIterative               // 自底向上迭代，2n 数组
)

func (e Engine) String() string {
	switch e {
	case EngineRecursive:
		return "recursive"
	case EngineIterative:
		return "iterative"
	default:
		return "unknown"
	}
}

// ParseEngine 解析引擎名称。
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recursive", "":
		return EngineRecursive, nil
	case "iterative":
		return EngineIterative, nil
	}
	return 0, fmt.Errorf("%w: unknown engine %q", ErrInvalidInput, s)
}

// NewRangeTree 按引擎类型构造线段树。
func NewRangeTree[V Number](engine Engine, seq []V, policy Policy[V]) (RangeTree[V], error) {
	switch engine {
	case EngineRecursive:
		t, err := NewRecursiveTree(seq, policy)
		if err != nil {
			return nil, err
		}
		return t, nil
	case EngineIterative:
		t, err := NewIterativeTree(seq, policy)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: engine %d", ErrInvalidInput, engine)
}
