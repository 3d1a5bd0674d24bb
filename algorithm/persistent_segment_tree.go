package algorithm

import "fmt"

// pstNode 可持久化线段树节点，子节点以下标引用节点池。
type pstNode[V Number] struct {
	left, right int
	value       V
}

// PersistentTree 可持久化线段树（主席树）。
// 每次单点更新只复制根到叶子路径上的 O(log N) 个节点，产生一个新版本；旧版本保持只读可查询。
// 适用于历史版本查询。不支持区间懒更新。
type PersistentTree[V Number] struct {
	roots  []int        // 每个版本的根节点下标，版本号即下标。
	nodes  []pstNode[V] // 静态数组模拟动态节点。
	n      int
	policy Policy[V]
}

// NewPersistentTree 以 seq 构建版本 0。
func NewPersistentTree[V Number](seq []V, policy Policy[V]) (*PersistentTree[V], error) {
	n := len(seq)
	if n == 0 {
		return nil, fmt.Errorf("%w: sequence must not be empty", ErrInvalidInput)
	}
	t := &PersistentTree[V]{
		nodes:  make([]pstNode[V], 0, 2*n),
		n:      n,
		policy: policy,
	}
	t.roots = append(t.roots, t.build(seq, 0, n))
	return t, nil
}

func (t *PersistentTree[V]) build(seq []V, lo, hi int) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, pstNode[V]{})
	if lo+1 == hi {
		t.nodes[idx].value = seq[lo]
		return idx
	}
	mid := (lo + hi) / 2
	l := t.build(seq, lo, mid)
	r := t.build(seq, mid, hi)
	t.nodes[idx] = pstNode[V]{left: l, right: r, value: t.policy.Combine(t.nodes[l].value, t.nodes[r].value)}
	return idx
}

// Len 返回叶子数。
func (t *PersistentTree[V]) Len() int { return t.n }

// Versions 返回版本总数，最新版本号为 Versions()-1。
func (t *PersistentTree[V]) Versions() int { return len(t.roots) }

// Update 在 version 的基础上单点更新，返回新版本号。
func (t *PersistentTree[V]) Update(version, index int, value V) (int, error) {
	if err := checkIndex(version, len(t.roots)); err != nil {
		return 0, err
	}
	if err := checkIndex(index, t.n); err != nil {
		return 0, err
	}
	t.roots = append(t.roots, t.update(t.roots[version], 0, t.n, index, value))
	return len(t.roots) - 1, nil
}

func (t *PersistentTree[V]) update(prev, lo, hi, index int, value V) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, t.nodes[prev]) // 复制旧节点。
	if lo+1 == hi {
		t.nodes[idx].value = t.policy.Apply(t.nodes[prev].value, value, 1)
		return idx
	}
	mid := (lo + hi) / 2
	if index < mid {
		l := t.update(t.nodes[prev].left, lo, mid, index, value)
		t.nodes[idx].left = l
	} else {
		r := t.update(t.nodes[prev].right, mid, hi, index, value)
		t.nodes[idx].right = r
	}
	node := t.nodes[idx]
	t.nodes[idx].value = t.policy.Combine(t.nodes[node.left].value, t.nodes[node.right].value)
	return idx
}

// Query 查询版本 version 中 [lo, hi) 的聚合值。
func (t *PersistentTree[V]) Query(version, lo, hi int) (V, error) {
	if err := checkIndex(version, len(t.roots)); err != nil {
		var zero V
		return zero, err
	}
	if err := checkRange(lo, hi, t.n); err != nil {
		var zero V
		return zero, err
	}
	if lo == hi {
		return t.policy.Neutral(), nil
	}
	return t.query(t.roots[version], 0, t.n, lo, hi), nil
}

func (t *PersistentTree[V]) query(idx, lo, hi, qlo, qhi int) V {
	switch classify(lo, hi, qlo, qhi) {
	case overlapNone:
		return t.policy.Neutral()
	case overlapTotal:
		return t.nodes[idx].value
	}
	mid := (lo + hi) / 2
	return t.policy.Combine(
		t.query(t.nodes[idx].left, lo, mid, qlo, qhi),
		t.query(t.nodes[idx].right, mid, hi, qlo, qhi),
	)
}
