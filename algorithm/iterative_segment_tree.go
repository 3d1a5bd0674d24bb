package algorithm

import (
	"fmt"
	"math/bits"
)

// IterativeTree 自底向上的迭代线段树，使用 2N 大小的数组，常数比递归版本更小。
// 叶子位于 [N, 2N)，内部节点 p 聚合 2p 与 2p+1。
// lazy[p] 只存在于内部节点：它已经作用到 tree[p] 上，但还没有下发给子节点。
// 不变量：tree[p] == apply(combine(tree[2p], tree[2p+1]), lazy[p])，即"模去自身懒标记后正确"。
type IterativeTree[V Number] struct {
	tree    []V    // 2N 个节点。
	lazy    []V    // 仅内部节点 [1, N) 使用。
	pending []bool // lazy[p] 是否有效。
	span    []int  // 节点覆盖的叶子数，区间和按它缩放增量。
	n       int
	height  int // ceil(log2(N)) 的上界，即叶子到根的最大层数。
	policy  Policy[V]
}

// NewIterativeTree 从序列构建迭代线段树。seq 为空时返回 ErrInvalidInput。
func NewIterativeTree[V Number](seq []V, policy Policy[V]) (*IterativeTree[V], error) {
	n := len(seq)
	if n == 0 {
		return nil, fmt.Errorf("%w: sequence must not be empty", ErrInvalidInput)
	}
	t := &IterativeTree[V]{
		tree:    make([]V, 2*n),
		lazy:    make([]V, n),
		pending: make([]bool, n),
		span:    make([]int, 2*n),
		n:       n,
		height:  bits.Len(uint(n)),
		policy:  policy,
	}
	for i, v := range seq {
		t.tree[n+i] = v
		t.span[n+i] = 1
	}
	for p := n - 1; p >= 1; p-- {
		t.tree[p] = policy.Combine(t.tree[2*p], t.tree[2*p+1])
		t.span[p] = t.span[2*p] + t.span[2*p+1]
	}
	return t, nil
}

// Len 返回叶子数。
func (t *IterativeTree[V]) Len() int { return t.n }

// Policy 返回聚合策略。
func (t *IterativeTree[V]) Policy() Policy[V] { return t.policy }

// apply 把 delta 作用到节点 p，内部节点同时记录懒标记。
func (t *IterativeTree[V]) apply(p int, delta V) {
	t.tree[p] = t.policy.Apply(t.tree[p], delta, t.span[p])
	if p >= t.n {
		return
	}
	if t.pending[p] {
		t.lazy[p] = t.policy.Compose(t.lazy[p], delta)
	} else {
		t.lazy[p] = delta
		t.pending[p] = true
	}
}

// push 从最高层祖先开始向下，把叶子 p 路径上所有挂起的懒标记下发给两个子节点。
func (t *IterativeTree[V]) push(p int) {
	for s := t.height; s > 0; s-- {
		i := p >> s
		if i == 0 || !t.pending[i] {
			continue
		}
		t.apply(2*i, t.lazy[i])
		t.apply(2*i+1, t.lazy[i])
		var zero V
		t.lazy[i] = zero
		t.pending[i] = false
	}
}

// rebuild 从叶子 p 向上重算所有祖先：combine(子节点) 再叠加祖先自身未下发的懒标记。
func (t *IterativeTree[V]) rebuild(p int) {
	for p > 1 {
		p >>= 1
		v := t.policy.Combine(t.tree[2*p], t.tree[2*p+1])
		if t.pending[p] {
			v = t.policy.Apply(v, t.lazy[p], t.span[p])
		}
		t.tree[p] = v
	}
}

// Query 返回 [lo, hi) 的聚合值。
func (t *IterativeTree[V]) Query(lo, hi int) (V, error) {
	if err := checkRange(lo, hi, t.n); err != nil {
		var zero V
		return zero, err
	}
	res := t.policy.Neutral()
	if lo == hi {
		return res, nil
	}
	l, r := lo+t.n, hi+t.n
	t.push(l)
	t.push(r - 1)
	for l < r {
		if l&1 == 1 {
			res = t.policy.Combine(res, t.tree[l])
			l++
		}
		if r&1 == 1 {
			r--
			res = t.policy.Combine(res, t.tree[r])
		}
		l >>= 1
		r >>= 1
	}
	return res, nil
}

// UpdateRange 区间更新：先下发边界路径上的懒标记，再在最粗的完全覆盖节点上作用 delta，最后自底向上重建祖先。
// 赋值语义要求新标记晚于所有祖先的旧标记，因此更新前同样需要 push。
func (t *IterativeTree[V]) UpdateRange(lo, hi int, delta V) error {
	if err := checkRange(lo, hi, t.n); err != nil {
		return err
	}
	if lo == hi {
		return nil
	}
	l0, r0 := lo+t.n, hi+t.n
	t.push(l0)
	t.push(r0 - 1)
	for l, r := l0, r0; l < r; l, r = l>>1, r>>1 {
		if l&1 == 1 {
			t.apply(l, delta)
			l++
		}
		if r&1 == 1 {
			r--
			t.apply(r, delta)
		}
	}
	t.rebuild(l0)
	t.rebuild(r0 - 1)
	return nil
}

// UpdatePoint 单点更新。
func (t *IterativeTree[V]) UpdatePoint(index int, value V) error {
	if err := checkIndex(index, t.n); err != nil {
		return err
	}
	p := index + t.n
	t.push(p)
	t.tree[p] = t.policy.Apply(t.tree[p], value, 1)
	t.rebuild(p)
	return nil
}

// Values 物化当前逻辑数组。
func (t *IterativeTree[V]) Values() []V {
	out := make([]V, t.n)
	for i := range out {
		p := i + t.n
		t.push(p)
		out[i] = t.tree[p]
	}
	return out
}

// Validate 校验每个内部节点满足 tree[p] == apply(combine(children), lazy[p])。
func (t *IterativeTree[V]) Validate() error {
	for p := t.n - 1; p >= 1; p-- {
		want := t.policy.Combine(t.tree[2*p], t.tree[2*p+1])
		if t.pending[p] {
			want = t.policy.Apply(want, t.lazy[p], t.span[p])
		}
		if !approxEqual(t.tree[p], want) {
			return fmt.Errorf("%w: node %d holds %v, expected %v", ErrInvariantViolation, p, t.tree[p], want)
		}
	}
	return nil
}
