package codegen

import (
	"go.uber.org/zap"

	jerrors "github.com/tangzhangming/novajit/internal/errors"
	"github.com/tangzhangming/novajit/internal/jit/frame"
	"github.com/tangzhangming/novajit/internal/jit/platform"
	"github.com/tangzhangming/novajit/internal/jit/queue"
	"github.com/tangzhangming/novajit/internal/jit/trampoline"
)

// ============================================================================
// 队列元素
// ============================================================================

// CompileElement 实现 queue.Compiler
func (c *Context) CompileElement(h queue.Handle, e *queue.Element) (bool, error) {
	c.bci = e.BCI
	if e.Suspensions == 0 {
		e.CodeSizeBefore = c.asm.Len()
	}

	var err error
	finished := true
	switch w := e.Work.(type) {
	case queue.Continuation:
		finished, err = c.continuation(h, e)
	case queue.ThrowException:
		err = c.throwException(e, w)
	case queue.TypeCheck:
		err = c.typeCheck(e)
	case queue.InstanceOf:
		err = c.instanceOfSlow(e, w)
	case queue.CheckCast:
		err = c.checkCastSlow(e, w)
	case queue.StackOverflow:
		err = c.stackOverflow(e)
	case queue.TimerTick:
		err = c.tick(e)
	case queue.OnStackReplacement:
		err = c.onStackReplacement(e, w)
	case queue.QuickCatch:
		finished, err = c.quickCatch(h, e, w)
	default:
		err = jerrors.Invariantf(jerrors.J0200, "no code for element %s", e.Kind())
	}
	if err != nil {
		return false, err
	}
	if finished {
		c.logger.Debug("element compiled",
			zap.Stringer("kind", e.Kind()),
			zap.Int("bci", e.BCI),
			zap.Int("code_bytes", c.asm.Len()-e.CodeSizeBefore),
		)
	}
	return finished, nil
}

// continuation 从挂起处恢复时绑定恢复标签，否则绑定入口标签
func (c *Context) continuation(h queue.Handle, e *queue.Element) (bool, error) {
	label := e.Entry
	if e.Suspensions > 0 {
		label = e.ResumeLabel
	}
	if err := c.bind(label); err != nil {
		return false, err
	}
	c.frame = e.Frame
	return c.run(e.Resume, h, e)
}

func (c *Context) throwException(e *queue.Element, w queue.ThrowException) error {
	if err := c.bind(e.Entry); err != nil {
		return err
	}
	if err := c.callRuntime(trampoline.ThrowException, threadArg(), immArg(int64(w.Exception))); err != nil {
		return err
	}
	c.asm.Ud2()
	return nil
}

func (c *Context) stackOverflow(e *queue.Element) error {
	if err := c.bind(e.Entry); err != nil {
		return err
	}
	if err := c.callRuntime(trampoline.StackOverflow, threadArg()); err != nil {
		return err
	}
	c.asm.Ud2()
	return nil
}

// slowCall 慢路径的公共部分：帧写回内存、调用运行时、作废调用者保存寄存器
// 返回调用前的帧副本，调用方最后恢复到它再跳回主线
func (c *Context) slowCall(e *queue.Element, r trampoline.Routine, args ...arg) (*frame.Frame, error) {
	if err := c.bind(e.Entry); err != nil {
		return nil, err
	}
	f := e.Frame
	c.frame = f
	saved := f.Clone()
	if err := f.Flush(); err != nil {
		return nil, err
	}
	if err := c.callRuntime(r, args...); err != nil {
		return nil, err
	}
	return saved, nil
}

// resume 恢复到 saved 并跳回主线
func (c *Context) resume(e *queue.Element, saved *frame.Frame) error {
	if err := c.frame.Restore(saved); err != nil {
		return err
	}
	c.asm.Jmp(e.Return)
	return nil
}

// failIfZero 运行时返回 0 时抛出 kind
func (c *Context) failIfZero(kind queue.Exception) error {
	target, err := c.throwTarget(kind)
	if err != nil {
		return err
	}
	c.asm.TestRegReg(platform.ReturnReg, platform.ReturnReg)
	c.asm.Jcc(platform.CondE, target)
	return nil
}

func (c *Context) tick(e *queue.Element) error {
	saved, err := c.slowCall(e, trampoline.TimerTick, threadArg())
	if err != nil {
		return err
	}
	if err := c.frame.Clobber(callerSaved); err != nil {
		return err
	}
	return c.resume(e, saved)
}

// typeCheck aastore 存入非 null 引用
func (c *Context) typeCheck(e *queue.Element) error {
	value, err := e.Frame.StackIndex(0)
	if err != nil {
		return err
	}
	array, err := e.Frame.StackIndex(2)
	if err != nil {
		return err
	}
	saved, err := c.slowCall(e, trampoline.ArrayStoreCheck, threadArg(), slotArg(array), slotArg(value))
	if err != nil {
		return err
	}
	if err := c.frame.Clobber(callerSaved); err != nil {
		return err
	}
	if err := c.failIfZero(queue.ArrayStore); err != nil {
		return err
	}
	return c.resume(e, saved)
}

// instanceOfSlow 运行时判断子类型，结果写入主线占用的临时寄存器
func (c *Context) instanceOfSlow(e *queue.Element, w queue.InstanceOf) error {
	obj, err := e.Frame.StackIndex(0)
	if err != nil {
		return err
	}
	result := e.Scratch[0]
	saved, err := c.slowCall(e, trampoline.IsSubtype, threadArg(), slotArg(obj), immArg(int64(w.ClassID)))
	if err != nil {
		return err
	}
	c.asm.MovRegReg(preg(result), platform.ReturnReg)
	c.frame.Invalidate(result)
	if err := c.frame.Clobber(callerSaved); err != nil {
		return err
	}
	return c.resume(e, saved)
}

func (c *Context) checkCastSlow(e *queue.Element, w queue.CheckCast) error {
	obj, err := e.Frame.StackIndex(0)
	if err != nil {
		return err
	}
	saved, err := c.slowCall(e, trampoline.IsSubtype, threadArg(), slotArg(obj), immArg(int64(w.ClassID)))
	if err != nil {
		return err
	}
	if err := c.frame.Clobber(callerSaved); err != nil {
		return err
	}
	if err := c.failIfZero(queue.ClassCast); err != nil {
		return err
	}
	return c.resume(e, saved)
}

// onStackReplacement 解释器在循环头切换到编译代码的入口
//
// 入口自己建立栈帧，从运行时取回解释器的局部变量数组，复制到槽的内存位置，
// 然后从全内存帧对齐到循环头的入口帧。
func (c *Context) onStackReplacement(e *queue.Element, w queue.OnStackReplacement) error {
	b, ok := c.blocks[w.HeaderBCI]
	if !ok {
		return jerrors.Invariantf(jerrors.J0202, "loop header %d has no entry frame", w.HeaderBCI)
	}
	if err := c.bind(e.Entry); err != nil {
		return err
	}
	c.enterFrame()
	if err := c.callRuntime(trampoline.OSRMigrate, threadArg(), immArg(int64(w.HeaderBCI))); err != nil {
		return err
	}
	for i := 0; i < c.method.MaxLocals; i++ {
		c.asm.MovRegMem(platform.ScratchReg, platform.ReturnReg, int32(i*platform.WordSize))
		c.asm.MovMemReg(platform.RBP, platform.SlotOffset(i), platform.ScratchReg)
	}
	c.frame = e.Frame
	if err := c.frame.ConformTo(b.entry); err != nil {
		return err
	}
	c.asm.Jmp(b.label)
	return nil
}

// quickCatch 隐式异常的处理器在同一方法内：构造异常对象放入处理器入口的栈槽，
// 然后编译（或跳转到）处理器
func (c *Context) quickCatch(h queue.Handle, e *queue.Element, w queue.QuickCatch) (bool, error) {
	if err := c.bind(e.Entry); err != nil {
		return false, err
	}
	f := e.Frame
	c.frame = f
	f.ReleaseAllScratch()
	if err := f.Flush(); err != nil {
		return false, err
	}
	if err := c.callRuntime(trampoline.NewException, threadArg(), immArg(int64(w.Exception))); err != nil {
		return false, err
	}
	if err := f.Clobber(callerSaved); err != nil {
		return false, err
	}
	if err := f.SetDepth(1); err != nil {
		return false, err
	}
	c.asm.MovMemReg(platform.RBP, platform.SlotOffset(f.Locals()), platform.ReturnReg)
	return c.run(w.HandlerBCI, h, e)
}
