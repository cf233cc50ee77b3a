// Package queue 实现编译工作队列
//
// 单遍代码生成器把很少执行的路径（异常抛出、动态类型检查、栈溢出检查、OSR 入口……）
// 推迟到主线代码生成完之后再发射。每条被推迟的路径是一个队列元素：
// 它拥有自己的虚拟帧副本，驱动循环在主线结束后逐个取出并编译。
package queue

import (
	"github.com/tangzhangming/novajit/internal/jit/frame"
	"github.com/tangzhangming/novajit/internal/jit/platform"
)

// ============================================================================
// 元素种类
// ============================================================================

// Kind 元素种类
type Kind uint8

const (
	KindContinuation       Kind = iota // 推迟的字节码编译
	KindThrowException                 // 抛出隐式异常
	KindTypeCheck                      // aastore 存储类型检查
	KindInstanceOf                     // instanceof 慢路径
	KindCheckCast                      // checkcast 慢路径
	KindStackOverflow                  // 序言栈溢出
	KindTimerTick                      // 回边时钟滴答
	KindOnStackReplacement             // 循环头 OSR 入口
	KindQuickCatch                     // 同方法内处理器捕获隐式异常
)

var kindNames = [...]string{
	KindContinuation:       "Continuation",
	KindThrowException:     "ThrowException",
	KindTypeCheck:          "TypeCheck",
	KindInstanceOf:         "InstanceOf",
	KindCheckCast:          "CheckCast",
	KindStackOverflow:      "StackOverflow",
	KindTimerTick:          "TimerTick",
	KindOnStackReplacement: "OnStackReplacement",
	KindQuickCatch:         "QuickCatch",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Exception 编译代码可能隐式抛出的运行时异常
type Exception uint8

const (
	NullPointer Exception = iota
	ArrayIndexOutOfBounds
	Arithmetic
	ClassCast
	ArrayStore
)

var exceptionClasses = [...]string{
	NullPointer:           "java/lang/NullPointerException",
	ArrayIndexOutOfBounds: "java/lang/ArrayIndexOutOfBoundsException",
	Arithmetic:            "java/lang/ArithmeticException",
	ClassCast:             "java/lang/ClassCastException",
	ArrayStore:            "java/lang/ArrayStoreException",
}

// ClassName 异常类名
func (e Exception) ClassName() string {
	if int(e) < len(exceptionClasses) {
		return exceptionClasses[e]
	}
	return "java/lang/RuntimeException"
}

func (e Exception) String() string {
	return e.ClassName()
}

// ============================================================================
// 元素变体
// ============================================================================

// Work 元素变体，只能是本包定义的类型
type Work interface {
	Kind() Kind
	sealed()
}

// Continuation 从 Element.BCI 开始继续编译字节码
type Continuation struct{}

// ThrowException 调用运行时抛出异常，不返回
type ThrowException struct {
	Exception Exception
}

// TypeCheck aastore 的存储检查
// 数组与待存的值从元素帧的栈上取（栈顶为值，其下为下标与数组），不使用 Scratch
type TypeCheck struct{}

// InstanceOf 快速路径未命中时调用运行时判断子类型
// Scratch[0] 为主线占用的结果寄存器，Scratch[1] 为对象所在寄存器
type InstanceOf struct {
	ClassID int32
}

// CheckCast 快速路径未命中时调用运行时判断子类型，失败抛出 ClassCastException
// Scratch[0] 为对象
type CheckCast struct {
	ClassID int32
}

// StackOverflow 方法序言发现栈越界
type StackOverflow struct{}

// TimerTick 回边上的滴答计数耗尽，进入运行时后回到循环
type TimerTick struct{}

// OnStackReplacement 解释器在循环头跳入编译代码的入口
type OnStackReplacement struct {
	HeaderBCI int
}

// QuickCatch 隐式异常发生在 try 范围内，直接转到本方法的处理器
type QuickCatch struct {
	Exception  Exception
	HandlerBCI int
}

func (Continuation) Kind() Kind       { return KindContinuation }
func (ThrowException) Kind() Kind     { return KindThrowException }
func (TypeCheck) Kind() Kind          { return KindTypeCheck }
func (InstanceOf) Kind() Kind         { return KindInstanceOf }
func (CheckCast) Kind() Kind          { return KindCheckCast }
func (StackOverflow) Kind() Kind      { return KindStackOverflow }
func (TimerTick) Kind() Kind          { return KindTimerTick }
func (OnStackReplacement) Kind() Kind { return KindOnStackReplacement }
func (QuickCatch) Kind() Kind         { return KindQuickCatch }

func (Continuation) sealed()       {}
func (ThrowException) sealed()     {}
func (TypeCheck) sealed()          {}
func (InstanceOf) sealed()         {}
func (CheckCast) sealed()          {}
func (StackOverflow) sealed()      {}
func (TimerTick) sealed()          {}
func (OnStackReplacement) sealed() {}
func (QuickCatch) sealed()         {}

// ============================================================================
// 元素
// ============================================================================

// State 元素状态
//
//	Allocated -> Queued -> Compiling -> Finished
//	                          |
//	                          +-> Suspended -> Queued -> ...
type State uint8

const (
	StateFree State = iota // 在池的空闲链表中
	StateAllocated
	StateQueued
	StateCompiling
	StateFinished
	StateSuspended
)

var stateNames = [...]string{
	StateFree:      "free",
	StateAllocated: "allocated",
	StateQueued:    "queued",
	StateCompiling: "compiling",
	StateFinished:  "finished",
	StateSuspended: "suspended",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Element 一条被推迟的代码路径
type Element struct {
	Work Work
	BCI  int // 推迟发生处（Continuation 为开始编译的位置）

	// Frame 元素拥有的虚拟帧：推迟时当前帧的副本
	Frame *frame.Frame

	Entry  platform.Label // 主线跳到这里
	Return platform.Label // 慢路径结束后跳回这里（没有返回的元素为 NoLabel）

	Scratch    [2]frame.Reg // 慢路径需要的主线寄存器，含义由变体决定
	Persistent bool
	State      State

	// Continuation 的编译进度
	Resume         int            // 下次从这里继续编译
	ResumeLabel    platform.Label // 挂起时发出的跳转目标，恢复时绑定
	CodeSizeBefore int            // 开始编译本元素时的代码长度
	Suspensions    int
	suspendedAt    map[int]struct{} // 曾经挂起过的字节码位置
}

// Kind 元素种类
func (e *Element) Kind() Kind {
	if e.Work == nil {
		return KindContinuation
	}
	return e.Work.Kind()
}

func (e *Element) reset(work Work, bci int) {
	*e = Element{
		Work:        work,
		BCI:         bci,
		Entry:       platform.NoLabel,
		Return:      platform.NoLabel,
		Scratch:     [2]frame.Reg{frame.NoReg, frame.NoReg},
		State:       StateAllocated,
		Resume:      bci,
		ResumeLabel: platform.NoLabel,
	}
}
