package algorithm

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFenwick_PrefixAndRange(t *testing.T) {
	seq := []int64{5, 1, 4, 2, 3}
	f, err := NewFenwickFrom(seq)
	require.NoError(t, err)
	assert.Equal(t, 5, f.Len())

	got, err := f.PrefixSum(4)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got)

	require.NoError(t, f.Add(1, 10))
	got, err = f.RangeSum(1, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(17), got)

	got, err = f.RangeSum(2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestFenwick_RandomAgainstBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 8))
	n := 37
	vals := make([]int64, n)
	f, err := NewFenwick[int64](n)
	require.NoError(t, err)
	for range 400 {
		i := r.IntN(n)
		d := r.Int64N(21) - 10
		require.NoError(t, f.Add(i, d))
		vals[i] += d

		lo := r.IntN(n + 1)
		hi := lo + r.IntN(n-lo+1)
		var want int64
		for _, v := range vals[lo:hi] {
			want += v
		}
		got, err := f.RangeSum(lo, hi)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestFenwick_Errors(t *testing.T) {
	_, err := NewFenwick[int64](0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewFenwickFrom[int64](nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	f, err := NewFenwick[int64](3)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Add(3, 1), ErrOutOfRange)
	_, err = f.PrefixSum(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = f.RangeSum(2, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestFenwick2D_Query(t *testing.T) {
	matrix := [][]int64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	}
	f, err := NewFenwick2DFrom(matrix)
	require.NoError(t, err)
	rows, cols := f.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)

	got, err := f.Query(1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got)

	got, err = f.Query(2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(45), got)

	require.NoError(t, f.Add(0, 0, 100))
	got, err = f.Query(0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(106), got)

	// 行 [1, 3)，列 [1, 3)：5+6+8+9。
	got, err = f.RangeSum(1, 1, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(28), got)
}

func TestFenwick2D_RandomAgainstBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(12, 34))
	m, n := 6, 9
	grid := make([][]int64, m)
	for i := range grid {
		grid[i] = make([]int64, n)
	}
	f, err := NewFenwick2D[int64](m, n)
	require.NoError(t, err)

	for range 200 {
		i, j := r.IntN(m), r.IntN(n)
		d := r.Int64N(11) - 5
		require.NoError(t, f.Add(i, j, d))
		grid[i][j] += d

		qi, qj := r.IntN(m), r.IntN(n)
		var want int64
		for a := 0; a <= qi; a++ {
			for b := 0; b <= qj; b++ {
				want += grid[a][b]
			}
		}
		got, err := f.Query(qi, qj)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestFenwick2D_Errors(t *testing.T) {
	_, err := NewFenwick2D[int64](0, 3)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewFenwick2DFrom([][]int64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	f, err := NewFenwick2D[int64](2, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Add(2, 0, 1), ErrOutOfRange)
	_, err = f.Query(0, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = f.RangeSum(0, 0, 3, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestFenwickMax_RandomAgainstBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 3))
	n := 29
	vals := make([]int64, n)
	for i := range vals {
		vals[i] = math.MinInt64
	}
	f, err := NewFenwickMax[int64](n)
	require.NoError(t, err)
	for range 400 {
		i := r.IntN(n)
		x := r.Int64N(201) - 150
		require.NoError(t, f.Update(i, x))
		vals[i] = max(vals[i], x)

		k := r.IntN(n)
		want := int64(math.MinInt64)
		for _, v := range vals[:k+1] {
			want = max(want, v)
		}
		got, err := f.PrefixMax(k)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestFenwickMax_Negatives(t *testing.T) {
	f, err := NewFenwickMax[int64](4)
	require.NoError(t, err)
	require.NoError(t, f.Update(1, -7))
	require.NoError(t, f.Update(2, -3))

	got, err := f.PrefixMax(0)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), got)
	got, err = f.PrefixMax(1)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), got)
	got, err = f.PrefixMax(3)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), got)

	// 较小的值不会降低已有元素。
	require.NoError(t, f.Update(2, -100))
	got, err = f.PrefixMax(3)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), got)

	fl, err := NewFenwickMax[float64](2)
	require.NoError(t, err)
	require.NoError(t, fl.Update(1, -0.5))
	gotF, err := fl.PrefixMax(1)
	require.NoError(t, err)
	assert.Equal(t, -0.5, gotF)
}

func TestFenwickMax_Errors(t *testing.T) {
	_, err := NewFenwickMax[int64](0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	f, err := NewFenwickMax[int64](3)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Update(3, 1), ErrOutOfRange)
	assert.ErrorIs(t, f.Update(-1, 1), ErrOutOfRange)
	_, err = f.PrefixMax(3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
