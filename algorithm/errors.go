package algorithm

import (
	"fmt"

	"github.com/wyfcoding/segtree/xerrors"
)

var (
	// ErrInvalidInput 构造参数非法，例如空序列。
	ErrInvalidInput = xerrors.ErrInvalidInput
	// ErrOutOfRange 下标或区间越界。
	ErrOutOfRange = xerrors.ErrOutOfRange
	// ErrInvalidPolicy 未知的聚合语义或更新模式。
	ErrInvalidPolicy = xerrors.ErrInvalidPolicy
	// ErrInvariantViolation 树内部缓存与子节点不一致。
	ErrInvariantViolation = xerrors.ErrInvariantViolation
)

// checkIndex 校验 0 <= index < n。
func checkIndex(index, n int) error {
	if index < 0 || index >= n {
		return fmt.Errorf("%w: index %d not in [0, %d)", ErrOutOfRange, index, n)
	}
	return nil
}

// checkRange 校验半开区间 0 <= lo <= hi <= n。
func checkRange(lo, hi, n int) error {
	if lo < 0 || hi > n || lo > hi {
		return fmt.Errorf("%w: range [%d, %d) not within [0, %d]", ErrOutOfRange, lo, hi, n)
	}
	return nil
}
