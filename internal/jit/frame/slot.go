// Package frame 实现虚拟帧：编译期对“每个逻辑值此刻在哪里”的建模
//
// 每个槽（局部变量或表达式栈中的一项）可能位于寄存器、寄存器对、内存，或者是已知立即数。
// 单遍代码生成器在每条字节码之后读取并修改当前帧；控制流汇合时用 ConformTo
// 把当前帧对齐到目标块记录的入口帧，使跳转本身不再需要任何调整。
package frame

import (
	"fmt"
	"strings"
)

// ============================================================================
// 寄存器
// ============================================================================

// Reg 物理寄存器编号（与后端寄存器编号一致）
type Reg int8

const (
	// NoReg 无寄存器
	NoReg Reg = -1
	// MaxRegs 可跟踪的物理寄存器数量
	MaxRegs = 16
)

// Valid 是否为可跟踪的寄存器
func (r Reg) Valid() bool {
	return r >= 0 && r < MaxRegs
}

func (r Reg) String() string {
	if !r.Valid() {
		return "-"
	}
	return fmt.Sprintf("r%d", int(r))
}

// RegSet 寄存器集合
type RegSet uint32

// Regs 构造寄存器集合
func Regs(rs ...Reg) RegSet {
	var s RegSet
	for _, r := range rs {
		s = s.With(r)
	}
	return s
}

// Has 是否包含 r
func (s RegSet) Has(r Reg) bool {
	return r.Valid() && s&(1<<uint(r)) != 0
}

// With 加入 r
func (s RegSet) With(r Reg) RegSet {
	if !r.Valid() {
		return s
	}
	return s | 1<<uint(r)
}

// Without 移除 r
func (s RegSet) Without(r Reg) RegSet {
	if !r.Valid() {
		return s
	}
	return s &^ (1 << uint(r))
}

// ============================================================================
// 槽
// ============================================================================

// Kind 槽的表示形式
type Kind uint8

const (
	KindNone         Kind = iota // 尚无值
	KindRegister                 // 单寄存器
	KindRegisterPair             // 寄存器对（宽值：低半部分 Reg，高半部分 Hi）
	KindMemory                   // 位于槽的内存位置
	KindImmediate                // 已知立即数
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRegister:
		return "reg"
	case KindRegisterPair:
		return "pair"
	case KindMemory:
		return "mem"
	case KindImmediate:
		return "imm"
	default:
		return "?"
	}
}

// Flags 槽状态位
type Flags uint8

const (
	// FlagPinned 正在执行的指令已经引用该槽，不能被重新分配或溢出
	FlagPinned Flags = 1 << iota
	// FlagAliased 多个槽共享同一寄存器
	FlagAliased
	// FlagDirty 寄存器（或立即数）尚未写回内存
	FlagDirty
	// FlagConditional 值只在当前条件码状态下有效
	FlagConditional
)

func (f Flags) String() string {
	var parts []string
	if f&FlagPinned != 0 {
		parts = append(parts, "pinned")
	}
	if f&FlagAliased != 0 {
		parts = append(parts, "aliased")
	}
	if f&FlagDirty != 0 {
		parts = append(parts, "dirty")
	}
	if f&FlagConditional != 0 {
		parts = append(parts, "cond")
	}
	return strings.Join(parts, ",")
}

// Slot 一个逻辑存储位置
type Slot struct {
	Kind  Kind
	Reg   Reg   // 单寄存器，或寄存器对的低半部分
	Hi    Reg   // 寄存器对的高半部分
	Imm   int64 // 已知立即数
	Flags Flags
}

// Register 单寄存器槽
func Register(r Reg) Slot {
	return Slot{Kind: KindRegister, Reg: r, Hi: NoReg, Flags: FlagDirty}
}

// Pair 寄存器对槽
func Pair(lo, hi Reg) Slot {
	return Slot{Kind: KindRegisterPair, Reg: lo, Hi: hi, Flags: FlagDirty}
}

// Immediate 立即数槽
func Immediate(v int64) Slot {
	return Slot{Kind: KindImmediate, Reg: NoReg, Hi: NoReg, Imm: v, Flags: FlagDirty}
}

// Memory 内存槽
func Memory() Slot {
	return Slot{Kind: KindMemory, Reg: NoReg, Hi: NoReg}
}

// Empty 空槽
func Empty() Slot {
	return Slot{Kind: KindNone, Reg: NoReg, Hi: NoReg}
}

// InRegister 是否驻留在寄存器（含寄存器对）
func (s Slot) InRegister() bool {
	return s.Kind == KindRegister || s.Kind == KindRegisterPair
}

// Dirty 是否有待写回
func (s Slot) Dirty() bool {
	return s.Flags&FlagDirty != 0
}

// Pinned 是否被钉住
func (s Slot) Pinned() bool {
	return s.Flags&FlagPinned != 0
}

// Conditional 是否条件有效
func (s Slot) Conditional() bool {
	return s.Flags&FlagConditional != 0
}

// Uses 槽占用的寄存器
func (s Slot) Uses() RegSet {
	switch s.Kind {
	case KindRegister:
		return Regs(s.Reg)
	case KindRegisterPair:
		return Regs(s.Reg, s.Hi)
	}
	return 0
}

// SameLocation 种类与物理位置是否相同（不比较标志）
func (s Slot) SameLocation(o Slot) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case KindRegister:
		return s.Reg == o.Reg
	case KindRegisterPair:
		return s.Reg == o.Reg && s.Hi == o.Hi
	case KindImmediate:
		return s.Imm == o.Imm
	}
	return true
}

func (s Slot) String() string {
	var loc string
	switch s.Kind {
	case KindRegister:
		loc = s.Reg.String()
	case KindRegisterPair:
		loc = s.Reg.String() + ":" + s.Hi.String()
	case KindImmediate:
		loc = fmt.Sprintf("#%d", s.Imm)
	default:
		loc = s.Kind.String()
	}
	if s.Flags != 0 {
		return loc + "{" + s.Flags.String() + "}"
	}
	return loc
}
