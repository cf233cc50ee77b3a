package codegen

import (
	"github.com/tangzhangming/novajit/internal/bytecode"
	jerrors "github.com/tangzhangming/novajit/internal/errors"
	"github.com/tangzhangming/novajit/internal/jit/frame"
	"github.com/tangzhangming/novajit/internal/jit/platform"
	"github.com/tangzhangming/novajit/internal/jit/queue"
	"github.com/tangzhangming/novajit/internal/jit/trampoline"
)

// ============================================================================
// 指令翻译
// ============================================================================
//
// 值一律按 64 位字处理。lower 返回下一条要编译的指令位置，以及路径是否继续。

func (c *Context) lower(in bytecode.Instruction) (int, bool, error) {
	f := c.frame
	var err error

	switch op := in.Op; {
	case op == bytecode.OpNop:

	case op == bytecode.OpAconstNull:
		err = f.PushImm(0)
	case op >= bytecode.OpIconstM1 && op <= bytecode.OpIconst5, op == bytecode.OpBipush, op == bytecode.OpSipush:
		err = f.PushImm(int64(in.Value))

	case op.IsLoad():
		err = f.PushLocal(in.Index)
	case op.IsStore():
		err = f.StoreLocal(in.Index)
	case op == bytecode.OpIinc:
		err = c.iinc(in.Index, in.Value)

	case op == bytecode.OpPop:
		err = f.Drop(1)
	case op == bytecode.OpPop2:
		err = f.Drop(2)
	case op == bytecode.OpDup:
		err = f.Dup()
	case op == bytecode.OpSwap:
		err = f.Swap()

	case op == bytecode.OpIadd, op == bytecode.OpIsub, op == bytecode.OpImul,
		op == bytecode.OpIand, op == bytecode.OpIor, op == bytecode.OpIxor:
		err = c.binary(op)
	case op == bytecode.OpIdiv, op == bytecode.OpIrem:
		err = c.divide(op)
	case op == bytecode.OpIneg:
		err = c.negate()

	case op.IsBranch():
		return c.branch(in)
	case op == bytecode.OpGoto:
		// 目标已编译时由 run 对齐并跳转，否则直接接着编译目标
		return in.Target, true, nil
	case op.IsReturn():
		return in.Next, false, c.ret(op)
	case op == bytecode.OpAthrow:
		return in.Next, false, c.athrow()

	case op == bytecode.OpArraylength:
		err = c.arrayLength()
	case op == bytecode.OpIaload, op == bytecode.OpAaload:
		err = c.arrayLoad()
	case op == bytecode.OpIastore:
		err = c.arrayStore(false)
	case op == bytecode.OpAastore:
		err = c.arrayStore(true)
	case op == bytecode.OpCheckcast:
		err = c.checkCast(in.Index)
	case op == bytecode.OpInstanceof:
		err = c.instanceOf(in.Index)
	case op == bytecode.OpInvokestatic:
		err = c.invoke(in.Index)

	default:
		err = jerrors.Invariantf(jerrors.J0200, "unsupported opcode %s", op)
	}
	return in.Next, true, err
}

// operands 栈顶两项的槽索引（a 在下，b 在上）
func (c *Context) operands() (a, b int, err error) {
	if b, err = c.frame.StackIndex(0); err != nil {
		return
	}
	a, err = c.frame.StackIndex(1)
	return
}

// ============================================================================
// 算术
// ============================================================================

// fold 按 int32 语义求值，结果符号扩展回 64 位
func fold(op bytecode.OpCode, a, b int64) (int64, bool) {
	x, y := int32(a), int32(b)
	var v int32
	switch op {
	case bytecode.OpIadd:
		v = x + y
	case bytecode.OpIsub:
		v = x - y
	case bytecode.OpImul:
		v = x * y
	case bytecode.OpIand:
		v = x & y
	case bytecode.OpIor:
		v = x | y
	case bytecode.OpIxor:
		v = x ^ y
	case bytecode.OpIdiv:
		if y == 0 {
			return 0, false
		}
		// MinInt32 / -1 回绕为 MinInt32
		if y == -1 {
			v = -x
		} else {
			v = x / y
		}
	case bytecode.OpIrem:
		if y == 0 {
			return 0, false
		}
		if y != -1 {
			v = x % y
		}
	default:
		return 0, false
	}
	return int64(v), true
}

// foldTop 两个操作数都是已知立即数时在编译期求值
func (c *Context) foldTop(op bytecode.OpCode, ia, ib int) (bool, error) {
	sa, sb := c.frame.Slot(ia), c.frame.Slot(ib)
	if sa.Kind != frame.KindImmediate || sb.Kind != frame.KindImmediate {
		return false, nil
	}
	v, ok := fold(op, sa.Imm, sb.Imm)
	if !ok {
		return false, nil
	}
	if err := c.frame.Drop(2); err != nil {
		return true, err
	}
	return true, c.frame.PushImm(v)
}

func (c *Context) binary(op bytecode.OpCode) error {
	f := c.frame
	ia, ib, err := c.operands()
	if err != nil {
		return err
	}
	if done, err := c.foldTop(op, ia, ib); done || err != nil {
		return err
	}

	if sb := f.Slot(ib); sb.Kind == frame.KindImmediate && fitsInt32(sb.Imm) &&
		(op == bytecode.OpIadd || op == bytecode.OpIsub) {
		a, err := f.WritableRegister(ia)
		if err != nil {
			return err
		}
		if op == bytecode.OpIadd {
			c.asm.AddRegImm32(preg(a), int32(sb.Imm))
		} else {
			c.asm.SubRegImm32(preg(a), int32(sb.Imm))
		}
		return f.Drop(1)
	}

	b, err := f.EnsureRegister(ib)
	if err != nil {
		return err
	}
	f.Pin(ib)
	a, err := f.WritableRegister(ia)
	if err != nil {
		return err
	}
	dst, src := preg(a), preg(b)
	switch op {
	case bytecode.OpIadd:
		c.asm.AddRegReg(dst, src)
	case bytecode.OpIsub:
		c.asm.SubRegReg(dst, src)
	case bytecode.OpImul:
		c.asm.IMulRegReg(dst, src)
	case bytecode.OpIand:
		c.asm.AndRegReg(dst, src)
	case bytecode.OpIor:
		c.asm.OrRegReg(dst, src)
	case bytecode.OpIxor:
		c.asm.XorRegReg(dst, src)
	}
	return f.Drop(1)
}

// divide idiv / irem
//
//	test d, d ; je ArithmeticException
//	cmp d, -1 ; jne div
//	neg rax (irem: xor rdx, rdx) ; jmp done
//	div: cqo ; idiv d
//	done:
//
// 最小值除以 -1 在硬件上会触发异常，单独处理。
func (c *Context) divide(op bytecode.OpCode) error {
	f := c.frame
	ia, ib, err := c.operands()
	if err != nil {
		return err
	}
	if done, err := c.foldTop(op, ia, ib); done || err != nil {
		return err
	}

	rax, rdx := frame.Reg(platform.RAX), frame.Reg(platform.RDX)
	if err := f.ClaimScratchReg(rax); err != nil {
		return err
	}
	if err := f.ClaimScratchReg(rdx); err != nil {
		return err
	}
	d, err := f.ClaimScratch(0)
	if err != nil {
		return err
	}
	if err := c.loadSlot(platform.RAX, ia); err != nil {
		return err
	}
	if err := c.loadSlot(preg(d), ib); err != nil {
		return err
	}

	fault, err := c.throwTarget(queue.Arithmetic)
	if err != nil {
		return err
	}
	a := c.asm
	div, done := a.NewLabel(), a.NewLabel()
	a.TestRegReg(preg(d), preg(d))
	a.Jcc(platform.CondE, fault)
	a.CmpRegImm32(preg(d), -1)
	a.Jcc(platform.CondNE, div)
	if op == bytecode.OpIdiv {
		a.Neg(platform.RAX)
	} else {
		a.XorRegReg(platform.RDX, platform.RDX)
	}
	a.Jmp(done)
	if err := c.bind(div); err != nil {
		return err
	}
	a.CQO()
	a.IDivReg(preg(d))
	if err := c.bind(done); err != nil {
		return err
	}

	if err := f.Drop(2); err != nil {
		return err
	}
	f.ReleaseScratch(d)
	if op == bytecode.OpIdiv {
		f.ReleaseScratch(rdx)
		return f.PushResult(rax)
	}
	f.ReleaseScratch(rax)
	return f.PushResult(rdx)
}

func (c *Context) negate() error {
	f := c.frame
	i, err := f.StackIndex(0)
	if err != nil {
		return err
	}
	if s := f.Slot(i); s.Kind == frame.KindImmediate {
		if err := f.Drop(1); err != nil {
			return err
		}
		return f.PushImm(-s.Imm)
	}
	r, err := f.WritableRegister(i)
	if err != nil {
		return err
	}
	c.asm.Neg(preg(r))
	return nil
}

// iinc 已知立即数的局部变量直接改写为新的立即数
func (c *Context) iinc(idx int, delta int32) error {
	f := c.frame
	if s := f.Slot(idx); s.Kind == frame.KindImmediate && f.Depth() < f.MaxStack() {
		if err := f.PushImm(s.Imm + int64(delta)); err != nil {
			return err
		}
		return f.StoreLocal(idx)
	}
	r, err := f.WritableRegister(idx)
	if err != nil {
		return err
	}
	c.asm.AddRegImm32(preg(r), delta)
	return nil
}

// ============================================================================
// 分支
// ============================================================================

var branchConds = map[bytecode.OpCode]platform.Cond{
	bytecode.OpIfeq:      platform.CondE,
	bytecode.OpIfne:      platform.CondNE,
	bytecode.OpIflt:      platform.CondL,
	bytecode.OpIfge:      platform.CondGE,
	bytecode.OpIfgt:      platform.CondG,
	bytecode.OpIfle:      platform.CondLE,
	bytecode.OpIfIcmpeq:  platform.CondE,
	bytecode.OpIfIcmpne:  platform.CondNE,
	bytecode.OpIfIcmplt:  platform.CondL,
	bytecode.OpIfIcmpge:  platform.CondGE,
	bytecode.OpIfIcmpgt:  platform.CondG,
	bytecode.OpIfIcmple:  platform.CondLE,
	bytecode.OpIfAcmpeq:  platform.CondE,
	bytecode.OpIfAcmpne:  platform.CondNE,
	bytecode.OpIfnull:    platform.CondE,
	bytecode.OpIfnonnull: platform.CondNE,
}

func holds(cond platform.Cond, a, b int64) bool {
	switch cond {
	case platform.CondE:
		return a == b
	case platform.CondNE:
		return a != b
	case platform.CondL:
		return a < b
	case platform.CondGE:
		return a >= b
	case platform.CondG:
		return a > b
	case platform.CondLE:
		return a <= b
	}
	return false
}

func unaryBranch(op bytecode.OpCode) bool {
	return (op >= bytecode.OpIfeq && op <= bytecode.OpIfle) ||
		op == bytecode.OpIfnull || op == bytecode.OpIfnonnull
}

// branch 条件跳转：跳转一侧推迟为 Continuation，主线继续编译顺序执行的一侧
// 比较指令与 jcc 之间不发出任何代码，帧副本在操作数出栈之后获取
func (c *Context) branch(in bytecode.Instruction) (int, bool, error) {
	cond := branchConds[in.Op]
	taken, static, err := c.compare(in.Op, cond)
	if err != nil {
		return 0, false, err
	}
	if static {
		if taken {
			return in.Target, true, nil
		}
		return in.Next, true, nil
	}
	_, e, err := c.deferElement(queue.Continuation{}, in.Target, c.snapshot())
	if err != nil {
		return 0, false, err
	}
	c.asm.Jcc(cond, e.Entry)
	return in.Next, true, nil
}

// compare 弹出操作数并设置条件码；操作数都是立即数时返回静态结果
func (c *Context) compare(op bytecode.OpCode, cond platform.Cond) (taken, static bool, err error) {
	f := c.frame
	if unaryBranch(op) {
		i, err := f.StackIndex(0)
		if err != nil {
			return false, false, err
		}
		if s := f.Slot(i); s.Kind == frame.KindImmediate {
			return holds(cond, s.Imm, 0), true, f.Drop(1)
		}
		r, err := f.EnsureRegister(i)
		if err != nil {
			return false, false, err
		}
		c.asm.TestRegReg(preg(r), preg(r))
		return false, false, f.Drop(1)
	}

	ia, ib, err := c.operands()
	if err != nil {
		return false, false, err
	}
	sa, sb := f.Slot(ia), f.Slot(ib)
	if sa.Kind == frame.KindImmediate && sb.Kind == frame.KindImmediate {
		return holds(cond, sa.Imm, sb.Imm), true, f.Drop(2)
	}
	a, err := f.EnsureRegister(ia)
	if err != nil {
		return false, false, err
	}
	if sb.Kind == frame.KindImmediate && fitsInt32(sb.Imm) {
		c.asm.CmpRegImm32(preg(a), int32(sb.Imm))
		return false, false, f.Drop(2)
	}
	f.Pin(ia)
	b, err := f.EnsureRegister(ib)
	if err != nil {
		return false, false, err
	}
	c.asm.CmpRegReg(preg(a), preg(b))
	return false, false, f.Drop(2)
}

// ============================================================================
// 返回与抛出
// ============================================================================

func (c *Context) ret(op bytecode.OpCode) error {
	if op == bytecode.OpReturn {
		c.asm.XorRegReg(platform.ReturnReg, platform.ReturnReg)
	} else {
		i, err := c.frame.StackIndex(0)
		if err != nil {
			return err
		}
		if err := c.loadSlot(platform.ReturnReg, i); err != nil {
			return err
		}
	}
	c.epilogue()
	return nil
}

func (c *Context) athrow() error {
	i, err := c.frame.StackIndex(0)
	if err != nil {
		return err
	}
	if err := c.frame.Flush(); err != nil {
		return err
	}
	if err := c.callRuntime(trampoline.Throw, threadArg(), slotArg(i)); err != nil {
		return err
	}
	c.asm.Ud2()
	return nil
}

// ============================================================================
// 数组
// ============================================================================

// stackRegs 把栈顶 n 项装入寄存器并钉住，返回的寄存器与槽索引自栈顶向下排列
func (c *Context) stackRegs(n int) ([]platform.Reg, []int, error) {
	regs := make([]platform.Reg, n)
	idx := make([]int, n)
	for d := 0; d < n; d++ {
		i, err := c.frame.StackIndex(d)
		if err != nil {
			return nil, nil, err
		}
		r, err := c.frame.EnsureRegister(i)
		if err != nil {
			return nil, nil, err
		}
		c.frame.Pin(i)
		regs[d], idx[d] = preg(r), i
	}
	return regs, idx, nil
}

func (c *Context) unpin(idx []int) {
	for _, i := range idx {
		c.frame.Unpin(i)
	}
}

func (c *Context) arrayLength() error {
	f := c.frame
	regs, idx, err := c.stackRegs(1)
	if err != nil {
		return err
	}
	array := regs[0]
	if err := c.nullCheck(array); err != nil {
		return err
	}
	r, err := f.AllocRegister(frame.Regs(frame.Reg(array)))
	if err != nil {
		return err
	}
	c.asm.MovRegMem(preg(r), array, platform.ArrayLengthOffset)
	c.unpin(idx)
	if err := f.Drop(1); err != nil {
		return err
	}
	return f.PushResult(r)
}

func (c *Context) arrayLoad() error {
	f := c.frame
	regs, idx, err := c.stackRegs(2)
	if err != nil {
		return err
	}
	index, array := regs[0], regs[1]
	if err := c.nullCheck(array); err != nil {
		return err
	}
	if err := c.boundsCheck(array, index); err != nil {
		return err
	}
	r, err := f.AllocRegister(frame.Regs(frame.Reg(array), frame.Reg(index)))
	if err != nil {
		return err
	}
	c.asm.MovRegIndex(preg(r), array, index, platform.ArrayDataOffset)
	c.unpin(idx)
	if err := f.Drop(2); err != nil {
		return err
	}
	return f.PushResult(r)
}

// arrayStore iastore / aastore
// aastore 存入非 null 引用前由 TypeCheck 元素调用运行时检查元素类型
func (c *Context) arrayStore(typed bool) error {
	f := c.frame
	regs, idx, err := c.stackRegs(3)
	if err != nil {
		return err
	}
	value, index, array := regs[0], regs[1], regs[2]
	if err := c.nullCheck(array); err != nil {
		return err
	}
	if err := c.boundsCheck(array, index); err != nil {
		return err
	}
	if typed {
		_, e, err := c.deferElement(queue.TypeCheck{}, c.bci, c.snapshot())
		if err != nil {
			return err
		}
		c.asm.TestRegReg(value, value)
		c.asm.Jcc(platform.CondE, e.Return)
		c.asm.Jmp(e.Entry)
		if err := c.bind(e.Return); err != nil {
			return err
		}
	}
	c.asm.MovIndexReg(array, index, platform.ArrayDataOffset, value)
	c.unpin(idx)
	return f.Drop(3)
}

// ============================================================================
// 类型检查
// ============================================================================

// instanceOf 快路径：null 得 0，类标识相同得 1，其余交给 InstanceOf 元素调用运行时
func (c *Context) instanceOf(classIndex int) error {
	f := c.frame
	ref, err := c.method.Class(classIndex)
	if err != nil {
		return jerrors.Invariantf(jerrors.J0200, "%v", err)
	}
	regs, idx, err := c.stackRegs(1)
	if err != nil {
		return err
	}
	obj := regs[0]
	r, err := f.ClaimScratch(frame.Regs(frame.Reg(obj)))
	if err != nil {
		return err
	}
	_, e, err := c.deferElement(queue.InstanceOf{ClassID: ref.ID}, c.bci, c.snapshot())
	if err != nil {
		return err
	}
	e.Scratch[0], e.Scratch[1] = r, frame.Reg(obj)

	a := c.asm
	a.MovRegImm32(preg(r), 0)
	a.TestRegReg(obj, obj)
	a.Jcc(platform.CondE, e.Return)
	a.CmpMemImm32(obj, platform.ObjectClassOffset, ref.ID)
	a.Jcc(platform.CondNE, e.Entry)
	a.MovRegImm32(preg(r), 1)
	if err := c.bind(e.Return); err != nil {
		return err
	}

	c.unpin(idx)
	if err := f.Drop(1); err != nil {
		return err
	}
	return f.PushResult(r)
}

// checkCast 快路径：null 或类标识相同直接通过，其余交给 CheckCast 元素
func (c *Context) checkCast(classIndex int) error {
	ref, err := c.method.Class(classIndex)
	if err != nil {
		return jerrors.Invariantf(jerrors.J0200, "%v", err)
	}
	regs, idx, err := c.stackRegs(1)
	if err != nil {
		return err
	}
	obj := regs[0]
	_, e, err := c.deferElement(queue.CheckCast{ClassID: ref.ID}, c.bci, c.snapshot())
	if err != nil {
		return err
	}
	e.Scratch[0] = frame.Reg(obj)

	a := c.asm
	a.TestRegReg(obj, obj)
	a.Jcc(platform.CondE, e.Return)
	a.CmpMemImm32(obj, platform.ObjectClassOffset, ref.ID)
	a.Jcc(platform.CondNE, e.Entry)
	if err := c.bind(e.Return); err != nil {
		return err
	}
	c.unpin(idx)
	return nil
}

// ============================================================================
// 调用
// ============================================================================

// invoke invokestatic：帧全部写回内存，参数以地址形式传给运行时
// 第 k 个参数位于 args - 8*k（槽的内存位置随索引递减）
func (c *Context) invoke(siteIndex int) error {
	f := c.frame
	site, err := c.method.Call(siteIndex)
	if err != nil {
		return jerrors.Invariantf(jerrors.J0200, "%v", err)
	}
	if err := f.Flush(); err != nil {
		return err
	}
	args := []arg{threadArg(), immArg(int64(siteIndex)), immArg(0)}
	if site.Args > 0 {
		first, err := f.StackIndex(site.Args - 1)
		if err != nil {
			return err
		}
		args[2] = slotAddrArg(first)
	}
	if err := c.callRuntime(trampoline.Invoke, args...); err != nil {
		return err
	}
	if err := f.Clobber(callerSaved); err != nil {
		return err
	}
	if err := f.Drop(site.Args); err != nil {
		return err
	}
	if site.Returns {
		return f.PushResult(frame.Reg(platform.ReturnReg))
	}
	return nil
}
