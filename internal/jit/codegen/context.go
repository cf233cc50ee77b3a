// Package codegen 把单个方法的字节码翻译成 x86-64 机器码
//
// 主线沿着字节码顺序编译，条件跳转的另一侧、慢路径与异常路径都作为队列元素推迟，
// 主线结束后由队列驱动循环逐个编译。每个基本块第一次被编译时记录入口帧，
// 之后到达该块的路径先把自己的虚拟帧对齐到入口帧再跳转。
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

// ============================================================================
// 选项
// ============================================================================

// Options 代码生成选项
type Options struct {
	// VerifyMerges 每次帧合并后逐槽校验（调试用）
	VerifyMerges bool
	// SuspendOnDefer 延续路径推迟了嵌套路径时挂起自己，让嵌套路径先编译
	SuspendOnDefer bool
	// OSR 为循环头生成栈上替换入口
	OSR bool
	// TimerTicks 回边上检查时钟滴答
	TimerTicks bool
	// StackCheck 序言中检查栈溢出
	StackCheck bool
	// QuickCatch 被同方法处理器覆盖的隐式异常直接跳转到处理器
	QuickCatch bool
	// MaxElements 队列元素池容量，0 表示不限
	MaxElements int
	// Registers 可分配寄存器（按偏好排序），为空时使用 platform.DefaultAllocatable
	Registers []platform.Reg
}

// DefaultOptions 默认选项
func DefaultOptions() Options {
	return Options{
		OSR:        true,
		TimerTicks: true,
		StackCheck: true,
		QuickCatch: true,
	}
}

// ============================================================================
// 编译上下文
// ============================================================================

// block 基本块的编译状态
type block struct {
	bci   int
	label platform.Label
	entry *frame.Frame // 后到达的路径向它对齐
}

// Context 单个方法的编译上下文
//
// 一次编译的全部状态都挂在上下文上：帧、队列、标签、块入口表。
// 上下文之间不共享可变状态，编译过程中可以为另一个方法再创建一个上下文。
// 每个上下文只能 Compile 一次。
type Context struct {
	method   *bytecode.Method
	info     *bytecode.Info
	handlers *bytecode.ExceptionTable
	cursor   *bytecode.Cursor

	asm      *platform.Assembler
	regs     *regalloc.RegisterFile
	order    []frame.Reg
	routines *trampoline.Table
	queue    *queue.Queue
	opts     Options
	logger   *zap.Logger

	frame     *frame.Frame // 当前路径的虚拟帧
	frameSize int32

	blocks   map[int]*block
	throwers map[queue.Exception]platform.Label // 共享的异常抛出元素
	osr      map[int]platform.Label
	kinds    map[queue.Kind]int

	bci      int // 正在编译的字节码位置，用于错误定位
	deferred int // 已推迟的延续路径数量
	used     bool
}

// NewContext 分析方法并创建编译上下文
func NewContext(m *bytecode.Method, routines *trampoline.Table, opts Options, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := bytecode.Analyze(m)
	if err != nil {
		return nil, jerrors.Wrap(jerrors.New(jerrors.J0201, err), m.Name, -1)
	}
	order, err := allocatable(opts.Registers)
	if err != nil {
		return nil, jerrors.Wrap(err, m.Name, -1)
	}

	c := &Context{
		method:    m,
		info:      info,
		handlers:  m.ExceptionTable(),
		cursor:    bytecode.NewCursor(m.Code),
		asm:       platform.NewAssembler(),
		regs:      regalloc.New(order),
		order:     order,
		routines:  routines,
		queue:     queue.New(opts.MaxElements, logger),
		opts:      opts,
		logger:    logger.With(zap.String("method", m.Name)),
		frameSize: platform.FrameSize(m.MaxLocals + m.MaxStack),
		blocks:    make(map[int]*block),
		throwers:  make(map[queue.Exception]platform.Label),
		osr:       make(map[int]platform.Label),
		kinds:     make(map[queue.Kind]int),
	}
	return c, nil
}

// allocatable 校验并转换可分配寄存器
func allocatable(regs []platform.Reg) ([]frame.Reg, error) {
	if len(regs) == 0 {
		regs = platform.DefaultAllocatable
	}
	out := make([]frame.Reg, 0, len(regs))
	var seen frame.RegSet
	for _, r := range regs {
		switch r {
		case platform.RSP, platform.RBP, platform.ThreadReg, platform.ScratchReg:
			return nil, jerrors.Invariantf(jerrors.J0206, "register %s is reserved", r)
		}
		if r < 0 || r >= platform.NumRegs {
			return nil, jerrors.Invariantf(jerrors.J0206, "unknown register %d", r)
		}
		fr := frame.Reg(r)
		if seen.Has(fr) {
			return nil, jerrors.Invariantf(jerrors.J0206, "register %s listed twice", r)
		}
		seen = seen.With(fr)
		out = append(out, fr)
	}
	return out, nil
}

// Method 正在编译的方法
func (c *Context) Method() *bytecode.Method { return c.method }

// Info 字节码分析结果
func (c *Context) Info() *bytecode.Info { return c.info }

// Queue 编译队列
func (c *Context) Queue() *queue.Queue { return c.queue }

// Frame 当前路径的虚拟帧
func (c *Context) Frame() *frame.Frame { return c.frame }

// newFrame 创建全部槽为空的帧，拥有独立的寄存器分配状态
func (c *Context) newFrame(alloc frame.Allocator) *frame.Frame {
	f := frame.New(c.method.MaxLocals, c.method.MaxStack, alloc, emitter{c.asm})
	f.Verify = c.opts.VerifyMerges
	return f
}

// snapshot 当前帧的副本，交给推迟的元素
// 钉住只对当前指令有效，副本上全部解除
func (c *Context) snapshot() *frame.Frame {
	s := c.frame.Clone()
	s.UnpinAll()
	return s
}

// deferElement 分配元素、分配入口与返回标签并插入队列
func (c *Context) deferElement(work queue.Work, bci int, f *frame.Frame) (queue.Handle, *queue.Element, error) {
	h, e, err := c.queue.Allocate(work, bci, f)
	if err != nil {
		return queue.NoHandle, nil, err
	}
	e.Entry = c.asm.NewLabel()
	e.Return = c.asm.NewLabel()
	if err := c.queue.Insert(h); err != nil {
		return queue.NoHandle, nil, err
	}
	c.kinds[work.Kind()]++
	if work.Kind() == queue.KindContinuation {
		c.deferred++
	}
	return h, e, nil
}

func (c *Context) bind(l platform.Label) error {
	if err := c.asm.Bind(l); err != nil {
		return jerrors.New(jerrors.J0202, err)
	}
	return nil
}

// preg 帧寄存器与物理寄存器编号一致
func preg(r frame.Reg) platform.Reg {
	return platform.Reg(r)
}

func fregs(rs []platform.Reg) frame.RegSet {
	var set frame.RegSet
	for _, r := range rs {
		set = set.With(frame.Reg(r))
	}
	return set
}

var callerSaved = fregs(platform.CallerSaved)
