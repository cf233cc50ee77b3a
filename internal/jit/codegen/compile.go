package codegen

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/novajit/internal/bytecode"
	jerrors "github.com/tangzhangming/novajit/internal/errors"
	"github.com/tangzhangming/novajit/internal/jit/frame"
	"github.com/tangzhangming/novajit/internal/jit/platform"
	"github.com/tangzhangming/novajit/internal/jit/queue"
	"github.com/tangzhangming/novajit/internal/jit/regalloc"
	"github.com/tangzhangming/novajit/internal/jit/trampoline"
)

// Result 编译结果
type Result struct {
	Method     string
	Code       []byte
	OSREntries map[int]int // 循环头 bci -> 代码偏移
	Elements   map[queue.Kind]int
	Queue      queue.Stats
	Blocks     int
	FrameSize  int32
}

// Compile 编译方法
func Compile(m *bytecode.Method, routines *trampoline.Table, opts Options, logger *zap.Logger) (*Result, error) {
	c, err := NewContext(m, routines, opts, logger)
	if err != nil {
		return nil, err
	}
	return c.Compile()
}

// Compile 序言、主线、驱动队列直到为空，最后回填重定位
// 出错时已发出的代码全部作废，队列中剩余的元素随上下文一起回收
func (c *Context) Compile() (*Result, error) {
	if c.used {
		return nil, jerrors.Invariantf(jerrors.J0205, "%s: context already compiled", c.method.Name)
	}
	c.used = true
	defer c.queue.Reset()

	if err := c.prologue(); err != nil {
		return nil, c.fail(err)
	}
	if _, err := c.run(0, queue.NoHandle, nil); err != nil {
		return nil, c.fail(err)
	}
	if err := c.queue.Drain(c); err != nil {
		return nil, c.fail(err)
	}
	code, err := c.asm.Code()
	if err != nil {
		return nil, c.fail(jerrors.New(jerrors.J0202, err))
	}

	res := &Result{
		Method:     c.method.Name,
		Code:       code,
		OSREntries: make(map[int]int, len(c.osr)),
		Elements:   c.kinds,
		Queue:      c.queue.Stats(),
		Blocks:     len(c.blocks),
		FrameSize:  c.frameSize,
	}
	for bci, l := range c.osr {
		off, _ := c.asm.Offset(l)
		res.OSREntries[bci] = off
	}
	c.logger.Debug("method compiled",
		zap.Int("code_bytes", len(code)),
		zap.Int("blocks", res.Blocks),
		zap.Int("elements", res.Queue.Allocated),
		zap.Int("suspended", res.Queue.Suspended),
	)
	return res, nil
}

func (c *Context) fail(err error) error {
	return jerrors.Wrap(err, c.method.Name, c.bci)
}

// ============================================================================
// 序言与尾声
// ============================================================================

// enterFrame 建立栈帧并保存被调用者保存寄存器，rdi 中的线程指针移入 r15
func (c *Context) enterFrame() {
	a := c.asm
	a.Push(platform.RBP)
	a.MovRegReg(platform.RBP, platform.RSP)
	for _, r := range platform.CalleeSaved {
		a.Push(r)
	}
	a.SubRegImm32(platform.RSP, c.frameSize)
	a.MovRegReg(platform.ThreadReg, platform.RDI)
}

func (c *Context) prologue() error {
	c.enterFrame()
	if c.opts.StackCheck {
		_, e, err := c.deferElement(queue.StackOverflow{}, 0, nil)
		if err != nil {
			return err
		}
		c.asm.CmpRegMem(platform.RSP, platform.ThreadReg, platform.ThreadStackLimit)
		c.asm.Jcc(platform.CondB, e.Entry)
	}
	// 参数从 rsi 指向的数组复制到局部变量的内存位置
	for i := 0; i < c.method.NumArgs; i++ {
		c.asm.MovRegMem(platform.ScratchReg, platform.RSI, int32(i*platform.WordSize))
		c.asm.MovMemReg(platform.RBP, platform.SlotOffset(i), platform.ScratchReg)
	}
	c.frame = c.newFrame(c.regs)
	c.frame.SetMemoryLocals()
	return nil
}

func (c *Context) epilogue() {
	a := c.asm
	a.Lea(platform.RSP, platform.RBP, -int32(len(platform.CalleeSaved)*platform.WordSize))
	for i := len(platform.CalleeSaved) - 1; i >= 0; i-- {
		a.Pop(platform.CalleeSaved[i])
	}
	a.Pop(platform.RBP)
	a.Ret()
}

// ============================================================================
// 路径编译
// ============================================================================

// run 从 bci 开始沿字节码顺序编译当前路径
//
// 路径在返回、抛出或跳到已编译的块时结束，返回 true。
// 延续路径推迟了新的嵌套路径且启用了 SuspendOnDefer 时在下一条指令处挂起，返回 false。
func (c *Context) run(bci int, h queue.Handle, e *queue.Element) (bool, error) {
	for {
		c.bci = bci
		if b, ok := c.blocks[bci]; ok {
			return true, c.jumpTo(b)
		}
		if c.info.BlockStart[bci] {
			if err := c.enterBlock(bci); err != nil {
				return false, err
			}
		}

		c.cursor.Seek(bci)
		in, err := c.cursor.Advance()
		if err != nil {
			return false, jerrors.New(jerrors.J0200, err)
		}
		before := c.deferred
		next, more, err := c.lower(in)
		if err != nil {
			return false, err
		}
		if !more {
			return true, nil
		}
		if c.shouldSuspend(e, before, next) {
			e.ResumeLabel = c.asm.NewLabel()
			c.asm.Jmp(e.ResumeLabel)
			return false, c.queue.Suspend(h, next)
		}
		bci = next
	}
}

func (c *Context) shouldSuspend(e *queue.Element, before, next int) bool {
	if e == nil || !c.opts.SuspendOnDefer || e.Kind() != queue.KindContinuation || c.deferred == before {
		return false
	}
	_, compiled := c.blocks[next]
	return !compiled
}

// enterBlock 第一次到达块起点：汇合点先泛化当前帧，然后记录入口帧并绑定标签
func (c *Context) enterBlock(bci int) error {
	if c.info.IsJoin(bci) {
		if err := c.frame.Widen(); err != nil {
			return err
		}
	}
	b := &block{bci: bci, label: c.asm.NewLabel(), entry: c.frame.Clone()}
	if err := c.bind(b.label); err != nil {
		return err
	}
	c.blocks[bci] = b
	if c.opts.OSR && c.info.LoopHeader[bci] && c.frame.Depth() == 0 {
		return c.deferOSR(b)
	}
	return nil
}

// jumpTo 对齐到块的入口帧并跳转，进入循环头前检查时钟滴答
func (c *Context) jumpTo(b *block) error {
	if c.opts.TimerTicks && c.info.LoopHeader[b.bci] {
		if err := c.timerTick(); err != nil {
			return err
		}
	}
	if err := c.frame.ConformTo(b.entry); err != nil {
		return err
	}
	c.asm.Jmp(b.label)
	return nil
}

// timerTick `sub qword [r15+8], 1; je tick`，滴答耗尽时进入运行时
func (c *Context) timerTick() error {
	_, e, err := c.deferElement(queue.TimerTick{}, c.bci, c.snapshot())
	if err != nil {
		return err
	}
	c.asm.SubMemImm8(platform.ThreadReg, platform.ThreadTickCount, 1)
	c.asm.Jcc(platform.CondE, e.Entry)
	return c.bind(e.Return)
}

// deferOSR 为循环头推迟一个栈上替换入口，入口从全内存帧出发对齐到循环头
func (c *Context) deferOSR(b *block) error {
	f := c.newFrame(regalloc.New(c.order))
	f.SetMemoryLocals()
	_, e, err := c.deferElement(queue.OnStackReplacement{HeaderBCI: b.bci}, b.bci, f)
	if err != nil {
		return err
	}
	c.osr[b.bci] = e.Entry
	return nil
}

// loadSlot 把槽 i 的值读入物理寄存器 dst，不改变帧
func (c *Context) loadSlot(dst platform.Reg, i int) error {
	s := c.frame.Slot(i)
	switch s.Kind {
	case frame.KindRegister:
		if preg(s.Reg) != dst {
			c.asm.MovRegReg(dst, preg(s.Reg))
		}
	case frame.KindImmediate:
		c.asm.MovRegImm(dst, s.Imm)
	case frame.KindMemory:
		c.asm.MovRegMem(dst, platform.RBP, platform.SlotOffset(i))
	default:
		return jerrors.Invariantf(jerrors.J0010, "slot %d holds %s", i, s.Kind)
	}
	return nil
}
