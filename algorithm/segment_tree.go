package algorithm

import "fmt"

// overlap 描述节点区间与目标区间的关系。
type overlap int

const (
	overlapNone    overlap = iota // 完全不重叠
	overlapTotal                  // 节点区间被目标区间完全覆盖
	overlapPartial                // 部分重叠，需要拆分
)

// classify 比较节点区间 [lo, hi) 与目标区间 [qlo, qhi)。
func classify(lo, hi, qlo, qhi int) overlap {
	if qhi <= lo || hi <= qlo {
		return overlapNone
	}
	if qlo <= lo && hi <= qhi {
		return overlapTotal
	}
	return overlapPartial
}

// RecursiveTree (递归线段树) 是一种树状数据结构，用于高效地处理序列的区间查询、单点更新和区间更新。
// 节点 k 代表半开区间 [lo, hi)，左右子节点分别为 2k+1 和 2k+2，区间在 mid=(lo+hi)/2 处拆分。
// 区间更新通过懒标记延迟下发：lazy[k] 是尚未作用到 tree[k] 自身、也尚未下发给子节点的更新。
// 构建 O(N)，更新和查询均为 O(log N)。
type RecursiveTree[V Number] struct {
	tree    []V    // 节点聚合值，4*N 空间。
	lazy    []V    // 挂起的更新量。
	pending []bool // lazy[k] 是否有效；赋值为 0 也是一次有效的挂起更新。
	n       int    // 原始序列长度。
	policy  Policy[V]
}

// NewRecursiveTree 从序列构建递归线段树，序列被复制，调用方之后的修改不影响树。
// seq 为空时返回 ErrInvalidInput。
func NewRecursiveTree[V Number](seq []V, policy Policy[V]) (*RecursiveTree[V], error) {
	n := len(seq)
	if n == 0 {
		return nil, fmt.Errorf("%w: sequence must not be empty", ErrInvalidInput)
	}
	t := &RecursiveTree[V]{
		tree:    make([]V, 4*n),
		lazy:    make([]V, 4*n),
		pending: make([]bool, 4*n),
		n:       n,
		policy:  policy,
	}
	t.build(seq, 0, 0, n)
	return t, nil
}

func (t *RecursiveTree[V]) build(seq []V, k, lo, hi int) {
	if lo+1 == hi {
		t.tree[k] = seq[lo]
		return
	}
	mid := (lo + hi) / 2
	t.build(seq, 2*k+1, lo, mid)
	t.build(seq, 2*k+2, mid, hi)
	t.tree[k] = t.policy.Combine(t.tree[2*k+1], t.tree[2*k+2])
}

// Len 返回叶子数。
func (t *RecursiveTree[V]) Len() int { return t.n }

// Policy 返回聚合策略。
func (t *RecursiveTree[V]) Policy() Policy[V] { return t.policy }

// Query 返回 [lo, hi) 的聚合值。
func (t *RecursiveTree[V]) Query(lo, hi int) (V, error) {
	if err := checkRange(lo, hi, t.n); err != nil {
		var zero V
		return zero, err
	}
	if lo == hi {
		return t.policy.Neutral(), nil
	}
	return t.query(0, 0, t.n, lo, hi), nil
}

// UpdatePoint 单点更新。赋值模式下叶子被替换为 value，增量模式下加上 value。
func (t *RecursiveTree[V]) UpdatePoint(index int, value V) error {
	if err := checkIndex(index, t.n); err != nil {
		return err
	}
	t.updatePoint(0, 0, t.n, index, value)
	return nil
}

// UpdateRange 区间更新，懒惰地作用在 O(log N) 个节点上。
func (t *RecursiveTree[V]) UpdateRange(lo, hi int, delta V) error {
	if err := checkRange(lo, hi, t.n); err != nil {
		return err
	}
	if lo == hi {
		return nil
	}
	t.updateRange(0, 0, t.n, lo, hi, delta)
	return nil
}

// flush 把节点 k 上挂起的更新作用到自身，并累积到两个子节点的懒标记上（不触碰子节点的聚合值）。
func (t *RecursiveTree[V]) flush(k, lo, hi int) {
	if !t.pending[k] {
		return
	}
	delta := t.lazy[k]
	t.tree[k] = t.policy.Apply(t.tree[k], delta, hi-lo)
	if hi-lo > 1 {
		t.mark(2*k+1, delta)
		t.mark(2*k+2, delta)
	}
	var zero V
	t.lazy[k] = zero
	t.pending[k] = false
}

// mark 在节点 k 上登记一次延迟更新。
func (t *RecursiveTree[V]) mark(k int, delta V) {
	if t.pending[k] {
		t.lazy[k] = t.policy.Compose(t.lazy[k], delta)
		return
	}
	t.lazy[k] = delta
	t.pending[k] = true
}

func (t *RecursiveTree[V]) query(k, lo, hi, qlo, qhi int) V {
	t.flush(k, lo, hi)
	switch classify(lo, hi, qlo, qhi) {
	case overlapNone:
		return t.policy.Neutral()
	case overlapTotal:
		return t.tree[k]
	}
	mid := (lo + hi) / 2
	return t.policy.Combine(
		t.query(2*k+1, lo, mid, qlo, qhi),
		t.query(2*k+2, mid, hi, qlo, qhi),
	)
}

func (t *RecursiveTree[V]) updateRange(k, lo, hi, qlo, qhi int, delta V) {
	t.flush(k, lo, hi)
	switch classify(lo, hi, qlo, qhi) {
	case overlapNone:
		return
	case overlapTotal:
		t.tree[k] = t.policy.Apply(t.tree[k], delta, hi-lo)
		if hi-lo > 1 {
			t.mark(2*k+1, delta)
			t.mark(2*k+2, delta)
		}
		return
	}
	mid := (lo + hi) / 2
	t.updateRange(2*k+1, lo, mid, qlo, qhi, delta)
	t.updateRange(2*k+2, mid, hi, qlo, qhi, delta)
	t.tree[k] = t.policy.Combine(t.tree[2*k+1], t.tree[2*k+2])
}

func (t *RecursiveTree[V]) updatePoint(k, lo, hi, index int, value V) {
	t.flush(k, lo, hi)
	if lo+1 == hi {
		t.tree[k] = t.policy.Apply(t.tree[k], value, 1)
		return
	}
	mid := (lo + hi) / 2
	if index < mid {
		t.updatePoint(2*k+1, lo, mid, index, value)
		t.flush(2*k+2, mid, hi)
	} else {
		t.updatePoint(2*k+2, mid, hi, index, value)
		t.flush(2*k+1, lo, mid)
	}
	t.tree[k] = t.policy.Combine(t.tree[2*k+1], t.tree[2*k+2])
}

// Values 物化当前逻辑数组，过程中会下发沿途所有懒标记。
func (t *RecursiveTree[V]) Values() []V {
	out := make([]V, 0, t.n)
	t.collect(0, 0, t.n, &out)
	return out
}

func (t *RecursiveTree[V]) collect(k, lo, hi int, out *[]V) {
	t.flush(k, lo, hi)
	if lo+1 == hi {
		*out = append(*out, t.tree[k])
		return
	}
	mid := (lo + hi) / 2
	t.collect(2*k+1, lo, mid, out)
	t.collect(2*k+2, mid, hi, out)
}

// Validate 校验每个内部节点都等于两个子节点（计入其挂起更新后）的 combine。
// 校验是只读的，不会下发懒标记。
func (t *RecursiveTree[V]) Validate() error {
	_, err := t.validate(0, 0, t.n)
	return err
}

// validate 返回节点 k 计入自身挂起更新后的有效值。
func (t *RecursiveTree[V]) validate(k, lo, hi int) (V, error) {
	effective := t.tree[k]
	if t.pending[k] {
		effective = t.policy.Apply(effective, t.lazy[k], hi-lo)
	}
	if lo+1 == hi {
		return effective, nil
	}
	mid := (lo + hi) / 2
	left, err := t.validate(2*k+1, lo, mid)
	if err != nil {
		return effective, err
	}
	right, err := t.validate(2*k+2, mid, hi)
	if err != nil {
		return effective, err
	}
	if want := t.policy.Combine(left, right); !approxEqual(t.tree[k], want) {
		return effective, fmt.Errorf("%w: node %d [%d, %d) holds %v, children combine to %v",
			ErrInvariantViolation, k, lo, hi, t.tree[k], want)
	}
	return effective, nil
}
