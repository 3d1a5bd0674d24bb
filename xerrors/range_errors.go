package xerrors

var (
	// ErrInvalidInput 构造参数非法，例如空序列。
	ErrInvalidInput = New(ErrInvalidArg, 400101, "invalid input", "sequence must not be empty and dimensions must be positive", nil)
	// ErrOutOfRange 下标或区间越界。
	ErrOutOfRange = New(ErrInvalidArg, 400102, "out of range", "require 0 <= index < n and 0 <= lo <= hi <= n", nil)
	// ErrInvalidPolicy 未知的聚合语义或更新模式。
	ErrInvalidPolicy = New(ErrInvalidArg, 400103, "invalid policy", "supported aggregations: sum, min, max; modes: increment, assign", nil)
	// ErrInvalidCommand 更新指令无法解析。
	ErrInvalidCommand = New(ErrInvalidArg, 400104, "invalid command", "command must name a tree and a supported op", nil)
	// ErrTreeNotFound 指定名称的树不存在。
	ErrTreeNotFound = New(ErrNotFound, 404101, "tree not found", "create the tree before using it", nil)
	// ErrTreeExists 同名树已存在。
	ErrTreeExists = New(ErrAlreadyExists, 409101, "tree already exists", "drop the existing tree or choose another name", nil)
	// ErrInvariantViolation 树内部缓存不一致。
	ErrInvariantViolation = New(ErrInternal, 500101, "invariant violation", "cached aggregate disagrees with its children", nil)
)
