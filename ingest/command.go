// Package ingest 从 Kafka 消费区间更新指令并应用到树目录。
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/wyfcoding/segtree/catalog"
	"github.com/wyfcoding/segtree/logging"
	"github.com/wyfcoding/segtree/xerrors"
)

// 指令类型。
const (
	OpPoint = "point"
	OpRange = "range"
)

// Command 一条更新指令。
//
//	{"tree":"prices","op":"point","index":3,"value":7}
//	{"tree":"prices","op":"range","lo":0,"hi":10,"value":-1}
//
// value 的含义随树的更新模式而定：increment 为增量，assign 为覆盖值。
type Command struct {
	Tree  string `json:"tree"`
	Op    string `json:"op"`
	Index *int   `json:"index,omitempty"`
	Lo    *int   `json:"lo,omitempty"`
	Hi    *int   `json:"hi,omitempty"`
	Value *int64 `json:"value"`
}

// Decode 解析并校验一条指令，格式错误返回 ErrInvalidCommand。
func Decode(data []byte) (Command, error) {
	var cmd Command
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", xerrors.ErrInvalidCommand, err)
	}
	if err := cmd.validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

func (c Command) validate() error {
	if c.Tree == "" {
		return fmt.Errorf("%w: missing tree", xerrors.ErrInvalidCommand)
	}
	if c.Value == nil {
		return fmt.Errorf("%w: missing value", xerrors.ErrInvalidCommand)
	}
	switch c.Op {
	case OpPoint:
		if c.Index == nil {
			return fmt.Errorf("%w: point command requires index", xerrors.ErrInvalidCommand)
		}
	case OpRange:
		if c.Lo == nil || c.Hi == nil {
			return fmt.Errorf("%w: range command requires lo and hi", xerrors.ErrInvalidCommand)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", xerrors.ErrInvalidCommand, c.Op)
	}
	return nil
}

// Applier 把指令应用到目录。
type Applier struct {
	catalog *catalog.Catalog
	logger  *logging.Logger
}

// NewApplier logger 为 nil 时使用默认日志器。
func NewApplier(c *catalog.Catalog, logger *logging.Logger) *Applier {
	if logger == nil {
		logger = logging.Default().WithModule("ingest")
	}
	return &Applier{catalog: c, logger: logger}
}

// Handle 解析 data 并应用，满足 Handler 签名。
func (a *Applier) Handle(ctx context.Context, data []byte) error {
	cmd, err := Decode(data)
	if err != nil {
		return err
	}
	return a.Apply(ctx, cmd)
}

// Apply 执行一条已校验的指令。
func (a *Applier) Apply(ctx context.Context, cmd Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}
	var err error
	switch cmd.Op {
	case OpPoint:
		err = a.catalog.UpdatePoint(ctx, cmd.Tree, *cmd.Index, *cmd.Value)
	default:
		err = a.catalog.UpdateRange(ctx, cmd.Tree, *cmd.Lo, *cmd.Hi, *cmd.Value)
	}
	if err != nil {
		return err
	}
	a.logger.DebugContext(ctx, "command applied", "tree", cmd.Tree, "op", cmd.Op)
	return nil
}
