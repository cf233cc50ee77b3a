package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble 反汇编方法字节码，附带类、调用点与异常表
func (m *Method) Disassemble() string {
	var sb strings.Builder
	// 预估大小：每条指令约 30 字节输出
	sb.Grow(len(m.Code) * 30)

	fmt.Fprintf(&sb, "=== %s (args=%d locals=%d stack=%d) ===\n", m.Name, m.NumArgs, m.MaxLocals, m.MaxStack)

	c := NewCursor(m.Code)
	for !c.Done() {
		in, err := c.Advance()
		if err != nil {
			fmt.Fprintf(&sb, "%04d <%v>\n", c.BCI(), err)
			break
		}
		m.disassembleInstruction(&sb, in)
	}

	for _, h := range m.Handlers {
		catch := "any"
		if h.CatchType != 0 {
			catch = fmt.Sprintf("class %d", h.CatchType)
		}
		fmt.Fprintf(&sb, "  try [%d, %d) -> %d catch %s\n", h.StartPC, h.EndPC, h.HandlerPC, catch)
	}
	return sb.String()
}

func (m *Method) disassembleInstruction(sb *strings.Builder, in Instruction) {
	fmt.Fprintf(sb, "%04d ", in.BCI)
	op := in.Op
	switch {
	case op.IsBranch() || op == OpGoto:
		fmt.Fprintf(sb, "%-16s -> %d\n", op, in.Target)
	case op == OpBipush || op == OpSipush:
		fmt.Fprintf(sb, "%-16s %4d\n", op, in.Value)
	case op == OpIinc:
		fmt.Fprintf(sb, "%-16s %4d %+d\n", op, in.Index, in.Value)
	case op == OpIload || op == OpAload || op == OpIstore || op == OpAstore:
		fmt.Fprintf(sb, "%-16s %4d\n", op, in.Index)
	case op == OpCheckcast || op == OpInstanceof:
		name := "?"
		if ref, err := m.Class(in.Index); err == nil {
			name = ref.Name
		}
		fmt.Fprintf(sb, "%-16s %4d '%s'\n", op, in.Index, name)
	case op == OpInvokestatic:
		if cs, err := m.Call(in.Index); err == nil {
			fmt.Fprintf(sb, "%-16s %4d '%s' (%d args)\n", op, in.Index, cs.Name, cs.Args)
		} else {
			fmt.Fprintf(sb, "%-16s %4d '?'\n", op, in.Index)
		}
	default:
		fmt.Fprintf(sb, "%s\n", op)
	}
}
