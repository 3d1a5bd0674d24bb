package algorithm

import "fmt"

// Fenwick 树状数组（Binary Indexed Tree），支持单点增量与前缀和查询，均为 O(log N)。
// 内部使用 1-indexed 数组。
type Fenwick[V Number] struct {
	sums []V
}

// NewFenwick 创建长度为 n 的全零树状数组。
func NewFenwick[V Number](n int) (*Fenwick[V], error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: fenwick size must be positive, got %d", ErrInvalidInput, n)
	}
	return &Fenwick[V]{sums: make([]V, n+1)}, nil
}

// NewFenwickFrom 以 O(N) 从序列构建树状数组。
func NewFenwickFrom[V Number](seq []V) (*Fenwick[V], error) {
	f, err := NewFenwick[V](len(seq))
	if err != nil {
		return nil, err
	}
	for i, v := range seq {
		k := i + 1
		f.sums[k] += v
		if parent := k + (k & -k); parent < len(f.sums) {
			f.sums[parent] += f.sums[k]
		}
	}
	return f, nil
}

// Len 返回元素个数。
func (f *Fenwick[V]) Len() int { return len(f.sums) - 1 }

// Add 将第 i 个元素加上 delta。
func (f *Fenwick[V]) Add(i int, delta V) error {
	if err := checkIndex(i, f.Len()); err != nil {
		return err
	}
	for k := i + 1; k < len(f.sums); k += k & -k {
		f.sums[k] += delta
	}
	return nil
}

// PrefixSum 返回前 i+1 个元素（下标 0..i，含 i）的和。
func (f *Fenwick[V]) PrefixSum(i int) (V, error) {
	if err := checkIndex(i, f.Len()); err != nil {
		var zero V
		return zero, err
	}
	return f.prefix(i + 1), nil
}

// prefix 返回前 k 个元素的和。
func (f *Fenwick[V]) prefix(k int) V {
	var acc V
	for ; k > 0; k -= k & -k {
		acc += f.sums[k]
	}
	return acc
}

// RangeSum 返回半开区间 [lo, hi) 的和。
func (f *Fenwick[V]) RangeSum(lo, hi int) (V, error) {
	if err := checkRange(lo, hi, f.Len()); err != nil {
		var zero V
		return zero, err
	}
	return f.prefix(hi) - f.prefix(lo), nil
}

// Fenwick2D 二维树状数组，支持单点增量与二维前缀和，均为 O(log M · log N)。
// 只支持求和，不带懒标记。
type Fenwick2D[V Number] struct {
	sums [][]V
	m, n int
}

// NewFenwick2D 创建 m 行 n 列的全零二维树状数组。
func NewFenwick2D[V Number](m, n int) (*Fenwick2D[V], error) {
	if m <= 0 || n <= 0 {
		return nil, fmt.Errorf("%w: matrix dimensions must be positive, got %dx%d", ErrInvalidInput, m, n)
	}
	sums := make([][]V, m+1)
	for i := range sums {
		sums[i] = make([]V, n+1)
	}
	return &Fenwick2D[V]{sums: sums, m: m, n: n}, nil
}

// NewFenwick2DFrom 从矩阵构建，所有行必须等长。
func NewFenwick2DFrom[V Number](matrix [][]V) (*Fenwick2D[V], error) {
	if len(matrix) == 0 {
		return nil, fmt.Errorf("%w: matrix must not be empty", ErrInvalidInput)
	}
	f, err := NewFenwick2D[V](len(matrix), len(matrix[0]))
	if err != nil {
		return nil, err
	}
	for i, row := range matrix {
		if len(row) != f.n {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrInvalidInput, i, len(row), f.n)
		}
		for j, v := range row {
			f.add(i, j, v)
		}
	}
	return f, nil
}

// Dims 返回行数与列数。
func (f *Fenwick2D[V]) Dims() (rows, cols int) { return f.m, f.n }

// Add 将 (i, j) 处的元素加上 delta。
func (f *Fenwick2D[V]) Add(i, j int, delta V) error {
	if err := checkIndex(i, f.m); err != nil {
		return err
	}
	if err := checkIndex(j, f.n); err != nil {
		return err
	}
	f.add(i, j, delta)
	return nil
}

func (f *Fenwick2D[V]) add(i, j int, delta V) {
	for r := i + 1; r <= f.m; r += r & -r {
		for c := j + 1; c <= f.n; c += c & -c {
			f.sums[r][c] += delta
		}
	}
}

// Query 返回左上角 (0, 0) 到 (i, j)（含）矩形内的和。
func (f *Fenwick2D[V]) Query(i, j int) (V, error) {
	if err := checkIndex(i, f.m); err != nil {
		var zero V
		return zero, err
	}
	if err := checkIndex(j, f.n); err != nil {
		var zero V
		return zero, err
	}
	return f.prefix(i+1, j+1), nil
}

// prefix 返回前 rows 行、前 cols 列的和。
func (f *Fenwick2D[V]) prefix(rows, cols int) V {
	var acc V
	for r := rows; r > 0; r -= r & -r {
		for c := cols; c > 0; c -= c & -c {
			acc += f.sums[r][c]
		}
	}
	return acc
}

// RangeSum 返回行 [r1, r2)、列 [c1, c2) 半开矩形内的和。
func (f *Fenwick2D[V]) RangeSum(r1, c1, r2, c2 int) (V, error) {
	if err := checkRange(r1, r2, f.m); err != nil {
		var zero V
		return zero, err
	}
	if err := checkRange(c1, c2, f.n); err != nil {
		var zero V
		return zero, err
	}
	return f.prefix(r2, c2) - f.prefix(r1, c2) - f.prefix(r2, c1) + f.prefix(r1, c1), nil
}

// FenwickMax 维护前缀最大值的树状数组。
// 元素只能被抬高：Update 之后元素变为 max(原值, x)，较小的 x 不会生效。
type FenwickMax[V Number] struct {
	maxes []V
}

// NewFenwickMax 创建长度为 n 的树状数组，初始元素为 V 的最小值。
func NewFenwickMax[V Number](n int) (*FenwickMax[V], error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: fenwick size must be positive, got %d", ErrInvalidInput, n)
	}
	maxes := make([]V, n+1)
	lowest := minOf[V]()
	for i := range maxes {
		maxes[i] = lowest
	}
	return &FenwickMax[V]{maxes: maxes}, nil
}

// Len 返回元素个数。
func (f *FenwickMax[V]) Len() int { return len(f.maxes) - 1 }

// Update 把第 k 个元素抬高到 x。
func (f *FenwickMax[V]) Update(k int, x V) error {
	if err := checkIndex(k, f.Len()); err != nil {
		return err
	}
	for i := k + 1; i < len(f.maxes); i += i & -i {
		f.maxes[i] = max(f.maxes[i], x)
	}
	return nil
}

// PrefixMax 返回下标 0..k（含 k）的最大值。
func (f *FenwickMax[V]) PrefixMax(k int) (V, error) {
	if err := checkIndex(k, f.Len()); err != nil {
		var zero V
		return zero, err
	}
	acc := f.maxes[0]
	for i := k + 1; i > 0; i -= i & -i {
		acc = max(acc, f.maxes[i])
	}
	return acc, nil
}
