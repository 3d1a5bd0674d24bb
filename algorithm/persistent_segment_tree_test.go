package algorithm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistentTree_Versions(t *testing.T) {
	tree, err := NewPersistentTree([]int64{5, 1, 4, 2, 3}, MustPolicy[int64](AggregateSum, ModeAssign))
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Versions())
	assert.Equal(t, 5, tree.Len())

	v1, err := tree.Update(0, 1, 11)
	require.NoError(t, err)
	v2, err := tree.Update(v1, 2, 14)
	require.NoError(t, err)
	assert.Equal(t, 3, tree.Versions())

	// 旧版本保持不变。
	got, err := tree.Query(0, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got)

	got, err = tree.Query(v1, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(25), got)

	got, err = tree.Query(v2, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(27), got)

	// 从旧版本分叉。
	v3, err := tree.Update(0, 0, 0)
	require.NoError(t, err)
	got, err = tree.Query(v3, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
}

func TestPersistentTree_MinIncrement(t *testing.T) {
	tree, err := NewPersistentTree([]int64{7, 3, 9}, MustPolicy[int64](AggregateMin, ModeIncrement))
	require.NoError(t, err)
	v1, err := tree.Update(0, 1, 10)
	require.NoError(t, err)

	got, _ := tree.Query(0, 0, 3)
	assert.Equal(t, int64(3), got)
	got, _ = tree.Query(v1, 0, 3)
	assert.Equal(t, int64(7), got)
	got, _ = tree.Query(v1, 1, 1)
	assert.Equal(t, MustPolicy[int64](AggregateMin, ModeIncrement).Neutral(), got)
}

func TestPersistentTree_Errors(t *testing.T) {
	_, err := NewPersistentTree([]int64{}, Policy[int64]{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	tree, err := NewPersistentTree([]int64{1, 2}, Policy[int64]{})
	require.NoError(t, err)
	_, err = tree.Update(1, 0, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = tree.Update(0, 2, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = tree.Query(0, 1, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, 1, tree.Versions())
}
