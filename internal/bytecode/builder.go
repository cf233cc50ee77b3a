package bytecode

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
// 方法构建器
// ============================================================================

// Label 构建器中的跳转标签
type Label int

// branchFixup 待回填的跳转
type branchFixup struct {
	at    int   // 操作码位置
	label Label // 目标标签
}

type handlerFixup struct {
	start, end, handler Label
	catchType           int32
}

// Builder 字节码构建器（测试与 CLI 使用）
type Builder struct {
	method   Method
	labels   []int
	fixups   []branchFixup
	handlers []handlerFixup
	err      error
}

// NewBuilder 创建构建器
func NewBuilder(name string, numArgs, maxLocals int) *Builder {
	return &Builder{method: Method{Name: name, NumArgs: numArgs, MaxLocals: maxLocals}}
}

// BCI 当前写入位置
func (b *Builder) BCI() int {
	return len(b.method.Code)
}

// NewLabel 创建未绑定标签
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Bind 将标签绑定到当前位置
func (b *Builder) Bind(l Label) *Builder {
	if b.labels[l] >= 0 {
		b.fail("label %d bound twice", l)
	}
	b.labels[l] = b.BCI()
	return b
}

// Op 写入无操作数指令
func (b *Builder) Op(ops ...OpCode) *Builder {
	for _, op := range ops {
		if op.Length() != 1 {
			b.fail("%s needs operands", op)
			continue
		}
		b.method.Code = append(b.method.Code, byte(op))
	}
	return b
}

// Iconst 写入最短的整数常量指令
func (b *Builder) Iconst(v int32) *Builder {
	switch {
	case v >= -1 && v <= 5:
		b.method.Code = append(b.method.Code, byte(int32(OpIconst0)+v))
	case v >= -128 && v <= 127:
		b.method.Code = append(b.method.Code, byte(OpBipush), byte(int8(v)))
	case v >= -32768 && v <= 32767:
		b.method.Code = append(b.method.Code, byte(OpSipush), 0, 0)
		binary.BigEndian.PutUint16(b.method.Code[len(b.method.Code)-2:], uint16(int16(v)))
	default:
		b.fail("constant %d does not fit sipush", v)
	}
	return b
}

// Local 写入局部变量加载/存储（自动选择短格式）
func (b *Builder) Local(op OpCode, index int) *Builder {
	if index < 0 || index > 255 {
		b.fail("local index %d out of range", index)
		return b
	}
	if index <= 3 {
		switch op {
		case OpIload:
			return b.Op(OpIload0 + OpCode(index))
		case OpAload:
			return b.Op(OpAload0 + OpCode(index))
		case OpIstore:
			return b.Op(OpIstore0 + OpCode(index))
		case OpAstore:
			return b.Op(OpAstore0 + OpCode(index))
		}
	}
	if !op.IsLoad() && !op.IsStore() {
		b.fail("%s is not a local access", op)
		return b
	}
	b.method.Code = append(b.method.Code, byte(op), byte(index))
	return b
}

// Iinc 写入 iinc
func (b *Builder) Iinc(index int, delta int8) *Builder {
	b.method.Code = append(b.method.Code, byte(OpIinc), byte(index), byte(delta))
	return b
}

// Branch 写入跳转，目标在 Build 时回填
func (b *Builder) Branch(op OpCode, target Label) *Builder {
	if !op.IsBranch() && op != OpGoto {
		b.fail("%s is not a branch", op)
		return b
	}
	b.fixups = append(b.fixups, branchFixup{at: b.BCI(), label: target})
	b.method.Code = append(b.method.Code, byte(op), 0, 0)
	return b
}

// Class 写入 checkcast / instanceof，并登记类引用
func (b *Builder) Class(op OpCode, name string, id int32) *Builder {
	idx := -1
	for i, c := range b.method.Classes {
		if c.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.method.Classes = append(b.method.Classes, ClassRef{Name: name, ID: id})
		idx = len(b.method.Classes) - 1
	}
	if op != OpCheckcast && op != OpInstanceof {
		b.fail("%s takes no class operand", op)
		return b
	}
	b.method.Code = append(b.method.Code, byte(op), 0, 0)
	binary.BigEndian.PutUint16(b.method.Code[len(b.method.Code)-2:], uint16(idx))
	return b
}

// AddClass 登记类引用并返回索引（aastore 的元素类型使用）
func (b *Builder) AddClass(name string, id int32) int {
	b.method.Classes = append(b.method.Classes, ClassRef{Name: name, ID: id})
	return len(b.method.Classes) - 1
}

// Invoke 写入 invokestatic
func (b *Builder) Invoke(name string, args int, returns bool) *Builder {
	b.method.Calls = append(b.method.Calls, CallSite{Name: name, Args: args, Returns: returns})
	b.method.Code = append(b.method.Code, byte(OpInvokestatic), 0, 0)
	binary.BigEndian.PutUint16(b.method.Code[len(b.method.Code)-2:], uint16(len(b.method.Calls)-1))
	return b
}

// Handler 登记异常处理器
func (b *Builder) Handler(start, end, handler Label, catchType int32) *Builder {
	b.handlers = append(b.handlers, handlerFixup{start, end, handler, catchType})
	return b
}

// Build 回填跳转并计算最大栈深度
func (b *Builder) Build() (*Method, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, f := range b.fixups {
		target := b.labels[f.label]
		if target < 0 {
			return nil, fmt.Errorf("%s: branch at %d to unbound label %d", b.method.Name, f.at, f.label)
		}
		binary.BigEndian.PutUint16(b.method.Code[f.at+1:], uint16(int16(target-f.at)))
	}
	for _, h := range b.handlers {
		start, end, handler := b.labels[h.start], b.labels[h.end], b.labels[h.handler]
		if start < 0 || end < 0 || handler < 0 {
			return nil, fmt.Errorf("%s: exception handler with unbound label", b.method.Name)
		}
		b.method.Handlers = append(b.method.Handlers, ExceptionEntry{
			StartPC:   int32(start),
			EndPC:     int32(end),
			HandlerPC: int32(handler),
			CatchType: h.catchType,
		})
	}

	m := b.method
	m.MaxStack = 1 << 16
	info, err := Analyze(&m)
	if err != nil {
		return nil, err
	}
	m.MaxStack = info.MaxDepth
	return &m, nil
}

// MustBuild 构建失败时 panic
func (b *Builder) MustBuild() *Method {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}

func (b *Builder) fail(format string, args ...interface{}) {
	if b.err == nil {
		b.err = fmt.Errorf("%s: "+format, append([]interface{}{b.method.Name}, args...)...)
	}
}
