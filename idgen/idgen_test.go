package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/segtree/config"
)

func TestSnowflakeGenerator_Unique(t *testing.T) {
	g, err := NewGenerator(config.SnowflakeConfig{Type: "snowflake", MachineID: 3})
	require.NoError(t, err)

	seen := make(map[int64]struct{})
	for range 1000 {
		id := g.Generate()
		assert.Positive(t, id)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestSonyflakeGenerator(t *testing.T) {
	g, err := NewGenerator(config.SnowflakeConfig{Type: "sonyflake", MachineID: 7, StartTime: "2024-01-01"})
	require.NoError(t, err)
	a, b := g.Generate(), g.Generate()
	assert.Positive(t, a)
	assert.Greater(t, b, a)
}

func TestNewGenerator_Errors(t *testing.T) {
	_, err := NewGenerator(config.SnowflakeConfig{Type: "uuid"})
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = NewGenerator(config.SnowflakeConfig{Type: "sonyflake", MachineID: 70000})
	assert.ErrorIs(t, err, ErrInvalidMachineID)
	_, err = NewGenerator(config.SnowflakeConfig{StartTime: "yesterday"})
	assert.ErrorIs(t, err, ErrParseTime)
	_, err = NewGenerator(config.SnowflakeConfig{MachineID: 5000})
	assert.ErrorIs(t, err, ErrCreateNode)
}

type fixedGenerator int64

func (f fixedGenerator) Generate() int64 { return int64(f) }

func TestDefault(t *testing.T) {
	SetDefault(fixedGenerator(42))
	t.Cleanup(func() { SetDefault(nil) })
	assert.Equal(t, "42", GenIDString())

	SetDefault(nil)
	assert.NotEmpty(t, GenIDString())
}
