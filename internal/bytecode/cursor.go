package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Instruction 解码后的指令
type Instruction struct {
	Op     OpCode
	BCI    int
	Next   int   // 下一条指令的位置
	Index  int   // 局部变量 / 类 / 调用点索引
	Value  int32 // 立即数或 iinc 增量
	Target int   // 跳转目标（绝对位置）
}

func (in Instruction) String() string {
	switch {
	case in.Op.IsBranch() || in.Op == OpGoto:
		return fmt.Sprintf("%d: %s %d", in.BCI, in.Op, in.Target)
	case in.Op == OpBipush || in.Op == OpSipush:
		return fmt.Sprintf("%d: %s %d", in.BCI, in.Op, in.Value)
	case in.Op == OpIinc:
		return fmt.Sprintf("%d: %s %d %d", in.BCI, in.Op, in.Index, in.Value)
	case in.Op == OpIload || in.Op == OpAload || in.Op == OpIstore || in.Op == OpAstore,
		in.Op == OpCheckcast || in.Op == OpInstanceof || in.Op == OpInvokestatic:
		return fmt.Sprintf("%d: %s #%d", in.BCI, in.Op, in.Index)
	}
	return fmt.Sprintf("%d: %s", in.BCI, in.Op)
}

// Cursor 字节码游标
type Cursor struct {
	code []byte
	bci  int
}

// NewCursor 创建游标
func NewCursor(code []byte) *Cursor {
	return &Cursor{code: code}
}

// BCI 当前位置
func (c *Cursor) BCI() int {
	return c.bci
}

// Seek 移动到指定位置
func (c *Cursor) Seek(bci int) {
	c.bci = bci
}

// Done 是否已越过代码末尾
func (c *Cursor) Done() bool {
	return c.bci >= len(c.code)
}

// Decode 解码当前指令（不移动游标）
func (c *Cursor) Decode() (Instruction, error) {
	return DecodeAt(c.code, c.bci)
}

// Advance 解码当前指令并前进
func (c *Cursor) Advance() (Instruction, error) {
	in, err := c.Decode()
	if err != nil {
		return in, err
	}
	c.bci = in.Next
	return in, nil
}

// DecodeAt 解码 bci 处的指令
func DecodeAt(code []byte, bci int) (Instruction, error) {
	if bci < 0 || bci >= len(code) {
		return Instruction{}, fmt.Errorf("bci %d out of range [0,%d)", bci, len(code))
	}
	op := OpCode(code[bci])
	length := op.Length()
	if length == 0 {
		return Instruction{}, fmt.Errorf("bci %d: unsupported opcode %s", bci, op)
	}
	if bci+length > len(code) {
		return Instruction{}, fmt.Errorf("bci %d: truncated %s", bci, op)
	}

	in := Instruction{Op: op, BCI: bci, Next: bci + length}
	operands := code[bci+1 : bci+length]

	switch {
	case op == OpBipush:
		in.Value = int32(int8(operands[0]))
	case op == OpSipush:
		in.Value = int32(int16(binary.BigEndian.Uint16(operands)))
	case op == OpIload || op == OpAload || op == OpIstore || op == OpAstore:
		in.Index = int(operands[0])
	case op == OpIinc:
		in.Index = int(operands[0])
		in.Value = int32(int8(operands[1]))
	case op.IsBranch() || op == OpGoto:
		in.Target = bci + int(int16(binary.BigEndian.Uint16(operands)))
	case op == OpCheckcast || op == OpInstanceof || op == OpInvokestatic:
		in.Index = int(binary.BigEndian.Uint16(operands))
	case op >= OpIconstM1 && op <= OpIconst5:
		in.Value = int32(op) - int32(OpIconst0)
	default:
		if idx, ok := op.ShortLocal(); ok {
			in.Index = idx
		}
	}
	return in, nil
}
