package codegen

import (
	jerrors "github.com/tangzhangming/novajit/internal/errors"
	"github.com/tangzhangming/novajit/internal/jit/platform"
	"github.com/tangzhangming/novajit/internal/jit/queue"
	"github.com/tangzhangming/novajit/internal/jit/trampoline"
)

// ============================================================================
// 运行时调用
// ============================================================================

type argKind uint8

const (
	argThread   argKind = iota // 线程指针
	argImm                     // 立即数
	argSlot                    // 槽的内存值
	argSlotAddr                // 槽内存位置的地址
)

// arg 运行时调用参数
// 参数只来自线程寄存器、立即数和槽的内存位置，依次写入参数寄存器时不会互相覆盖
type arg struct {
	kind argKind
	v    int64
}

func threadArg() arg { return arg{kind: argThread} }
func immArg(v int64) arg { return arg{kind: argImm, v: v} }
func slotArg(i int) arg { return arg{kind: argSlot, v: int64(i)} }
func slotAddrArg(i int) arg { return arg{kind: argSlotAddr, v: int64(i)} }

// callRuntime 发出 `mov r11, addr; call r11`
// 调用方负责在调用前让帧驻留内存，调用后 Clobber 调用者保存寄存器
func (c *Context) callRuntime(r trampoline.Routine, args ...arg) error {
	addr, err := c.routines.Resolve(r)
	if err != nil {
		return err
	}
	if len(args) > len(platform.ArgRegs) {
		return jerrors.Invariantf(jerrors.J0203, "%s takes %d arguments", r, len(args))
	}
	for i, a := range args {
		dst := platform.ArgRegs[i]
		switch a.kind {
		case argThread:
			c.asm.MovRegReg(dst, platform.ThreadReg)
		case argImm:
			c.asm.MovRegImm(dst, a.v)
		case argSlot:
			c.asm.MovRegMem(dst, platform.RBP, platform.SlotOffset(int(a.v)))
		case argSlotAddr:
			c.asm.Lea(dst, platform.RBP, platform.SlotOffset(int(a.v)))
		}
	}
	c.asm.MovRegImm64(platform.ScratchReg, uint64(addr))
	c.asm.CallReg(platform.ScratchReg)
	return nil
}

// ============================================================================
// 异常目标
// ============================================================================

// throwTarget 返回当前位置抛出隐式异常时应跳转的标签
//
// 被本方法处理器覆盖的位置推迟一个 QuickCatch，携带当前帧的副本；
// 否则使用该异常种类共享的持久抛出元素。
func (c *Context) throwTarget(kind queue.Exception) (platform.Label, error) {
	if c.opts.QuickCatch {
		if pc, ok := c.handlers.FindHandler(int32(c.bci), c.classID(kind.ClassName())); ok {
			work := queue.QuickCatch{Exception: kind, HandlerBCI: int(pc)}
			_, e, err := c.deferElement(work, c.bci, c.snapshot())
			if err != nil {
				return platform.NoLabel, err
			}
			return e.Entry, nil
		}
	}
	if l, ok := c.throwers[kind]; ok {
		return l, nil
	}
	h, e, err := c.deferElement(queue.ThrowException{Exception: kind}, c.bci, nil)
	if err != nil {
		return platform.NoLabel, err
	}
	if err := c.queue.MakePersistent(h); err != nil {
		return platform.NoLabel, err
	}
	c.throwers[kind] = e.Entry
	return e.Entry, nil
}

// classID 方法常量表中类名对应的运行时类标识，不存在时返回 -1
// catch-all 处理器（CatchType 为 0）总能匹配
func (c *Context) classID(name string) int32 {
	for _, ref := range c.method.Classes {
		if ref.Name == name {
			return ref.ID
		}
	}
	return -1
}

// nullCheck 对象为 null 时跳转到 NullPointerException
func (c *Context) nullCheck(obj platform.Reg) error {
	target, err := c.throwTarget(queue.NullPointer)
	if err != nil {
		return err
	}
	c.asm.TestRegReg(obj, obj)
	c.asm.Jcc(platform.CondE, target)
	return nil
}

// boundsCheck 无符号比较同时拒绝负数下标
func (c *Context) boundsCheck(array, index platform.Reg) error {
	target, err := c.throwTarget(queue.ArrayIndexOutOfBounds)
	if err != nil {
		return err
	}
	c.asm.CmpRegMem(index, array, platform.ArrayLengthOffset)
	c.asm.Jcc(platform.CondAE, target)
	return nil
}
