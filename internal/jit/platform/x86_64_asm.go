// x86_64_asm.go - x86-64 汇编器
//
// 单遍代码生成使用的底层汇编器。
// 跳转目标使用标签表示：先引用、后绑定，所有 rel32 位移在 Code() 时统一回填。
//
// x86-64 指令编码格式：
// [前缀] [REX] [操作码] [ModR/M] [SIB] [位移] [立即数]

package platform

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
// 寄存器
// ============================================================================

// Reg x86-64 通用寄存器
type Reg int8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	NumRegs = 16

	// RegNone 无寄存器
	RegNone Reg = -1
)

var regNames = [NumRegs]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// String 返回寄存器名称
func (r Reg) String() string {
	if r >= 0 && int(r) < NumRegs {
		return regNames[r]
	}
	return "???"
}

// ParseReg 按名称查找寄存器
func ParseReg(name string) (Reg, bool) {
	for i, n := range regNames {
		if n == name {
			return Reg(i), true
		}
	}
	return RegNone, false
}

// IsExtended 是否需要 REX 扩展位
func (r Reg) IsExtended() bool {
	return r >= R8 && r <= R15
}

// LowBits 寄存器编码的低 3 位
func (r Reg) LowBits() byte {
	return byte(r) & 0x7
}

// ============================================================================
// 条件码
// ============================================================================

// Cond 条件码（Jcc 操作码低 4 位）
type Cond byte

const (
	CondB  Cond = 0x2 // 无符号小于
	CondAE Cond = 0x3 // 无符号大于等于
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondBE Cond = 0x6
	CondA  Cond = 0x7
	CondL  Cond = 0xC
	CondGE Cond = 0xD
	CondLE Cond = 0xE
	CondG  Cond = 0xF
)

// Negate 返回相反条件
func (c Cond) Negate() Cond {
	return c ^ 1
}

// ============================================================================
// 标签
// ============================================================================

// Label 代码标签
type Label int32

// NoLabel 空标签
const NoLabel Label = -1

// reloc 重定位条目
type reloc struct {
	offset int   // rel32 字段在代码中的偏移
	target Label // 目标标签
}

// ============================================================================
// 汇编器
// ============================================================================

// Assembler x86-64 汇编器
type Assembler struct {
	code   []byte
	labels []int // 标签位置，-1 表示未绑定
	relocs []reloc
}

// NewAssembler 创建汇编器
func NewAssembler() *Assembler {
	return &Assembler{code: make([]byte, 0, 1024)}
}

// Reset 重置汇编器状态
func (a *Assembler) Reset() {
	a.code = a.code[:0]
	a.labels = a.labels[:0]
	a.relocs = a.relocs[:0]
}

// Len 当前代码长度
func (a *Assembler) Len() int {
	return len(a.code)
}

// NewLabel 分配新标签
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Bind 将标签绑定到当前位置
func (a *Assembler) Bind(l Label) error {
	if int(l) < 0 || int(l) >= len(a.labels) {
		return fmt.Errorf("asm: unknown label %d", l)
	}
	if a.labels[l] >= 0 {
		return fmt.Errorf("asm: label %d bound twice", l)
	}
	a.labels[l] = len(a.code)
	return nil
}

// Bound 标签是否已绑定
func (a *Assembler) Bound(l Label) bool {
	return int(l) >= 0 && int(l) < len(a.labels) && a.labels[l] >= 0
}

// Offset 已绑定标签的代码偏移
func (a *Assembler) Offset(l Label) (int, bool) {
	if !a.Bound(l) {
		return 0, false
	}
	return a.labels[l], true
}

// Code 回填重定位并返回机器码
func (a *Assembler) Code() ([]byte, error) {
	for _, r := range a.relocs {
		target, ok := a.Offset(r.target)
		if !ok {
			return nil, fmt.Errorf("asm: unbound label %d referenced at %#x", r.target, r.offset)
		}
		// 相对偏移从 rel32 字段结束处计算
		rel := int32(target - (r.offset + 4))
		binary.LittleEndian.PutUint32(a.code[r.offset:], uint32(rel))
	}
	out := make([]byte, len(a.code))
	copy(out, a.code)
	return out, nil
}

// ============================================================================
// 底层编码
// ============================================================================

func (a *Assembler) emit(bytes ...byte) {
	a.code = append(a.code, bytes...)
}

func (a *Assembler) emitU32(v uint32) {
	a.code = binary.LittleEndian.AppendUint32(a.code, v)
}

func (a *Assembler) emitU64(v uint64) {
	a.code = binary.LittleEndian.AppendUint64(a.code, v)
}

func (a *Assembler) emitRel32(target Label) {
	a.relocs = append(a.relocs, reloc{offset: len(a.code), target: target})
	a.emitU32(0)
}

// rex 构造 REX 前缀
func rex(w, r, x, b bool) byte {
	var v byte = 0x40
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

// modrm 构造 ModR/M 字节
func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 0x7) << 3) | (rm & 0x7)
}

// emitMemOperand 编码 [base+offset]
func (a *Assembler) emitMemOperand(reg byte, base Reg, offset int32) {
	needSIB := base == RSP || base == R12
	rm := base.LowBits()
	if needSIB {
		rm = 4
	}

	switch {
	case offset == 0 && base != RBP && base != R13:
		a.emit(modrm(0, reg, rm))
		if needSIB {
			a.emit(0x24)
		}
	case offset >= -128 && offset <= 127:
		a.emit(modrm(1, reg, rm))
		if needSIB {
			a.emit(0x24)
		}
		a.emit(byte(offset))
	default:
		a.emit(modrm(2, reg, rm))
		if needSIB {
			a.emit(0x24)
		}
		a.emitU32(uint32(offset))
	}
}

// emitIndexOperand 编码 [base+index*8+disp]
func (a *Assembler) emitIndexOperand(reg byte, base, index Reg, disp int32) {
	sib := byte(3<<6) | (index.LowBits() << 3) | base.LowBits()
	if disp >= -128 && disp <= 127 {
		a.emit(modrm(1, reg, 4), sib, byte(disp))
		return
	}
	a.emit(modrm(2, reg, 4), sib)
	a.emitU32(uint32(disp))
}

// ============================================================================
// 数据移动
// ============================================================================

// MovRegReg mov dst, src
func (a *Assembler) MovRegReg(dst, src Reg) {
	a.emit(rex(true, src.IsExtended(), false, dst.IsExtended()))
	a.emit(0x89)
	a.emit(modrm(3, src.LowBits(), dst.LowBits()))
}

// MovRegImm 加载立即数，能用 imm32 符号扩展时使用短编码
// 不使用 xor 清零，因为物化立即数可能发生在比较与条件跳转之间
func (a *Assembler) MovRegImm(reg Reg, imm int64) {
	if imm >= -1<<31 && imm < 1<<31 {
		a.MovRegImm32(reg, int32(imm))
		return
	}
	a.MovRegImm64(reg, uint64(imm))
}

// MovRegImm64 mov reg, imm64
func (a *Assembler) MovRegImm64(reg Reg, imm uint64) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xB8 + reg.LowBits())
	a.emitU64(imm)
}

// MovRegImm32 mov reg, imm32（符号扩展）
func (a *Assembler) MovRegImm32(reg Reg, imm int32) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xC7)
	a.emit(modrm(3, 0, reg.LowBits()))
	a.emitU32(uint32(imm))
}

// MovRegMem mov dst, [base+offset]
func (a *Assembler) MovRegMem(dst Reg, base Reg, offset int32) {
	a.emit(rex(true, dst.IsExtended(), false, base.IsExtended()))
	a.emit(0x8B)
	a.emitMemOperand(dst.LowBits(), base, offset)
}

// MovMemReg mov [base+offset], src
func (a *Assembler) MovMemReg(base Reg, offset int32, src Reg) {
	a.emit(rex(true, src.IsExtended(), false, base.IsExtended()))
	a.emit(0x89)
	a.emitMemOperand(src.LowBits(), base, offset)
}

// MovMemImm32 mov qword [base+offset], imm32（符号扩展）
func (a *Assembler) MovMemImm32(base Reg, offset int32, imm int32) {
	a.emit(rex(true, false, false, base.IsExtended()))
	a.emit(0xC7)
	a.emitMemOperand(0, base, offset)
	a.emitU32(uint32(imm))
}

// MovRegIndex mov dst, [base+index*8+disp]
func (a *Assembler) MovRegIndex(dst, base, index Reg, disp int32) {
	a.emit(rex(true, dst.IsExtended(), index.IsExtended(), base.IsExtended()))
	a.emit(0x8B)
	a.emitIndexOperand(dst.LowBits(), base, index, disp)
}

// MovIndexReg mov [base+index*8+disp], src
func (a *Assembler) MovIndexReg(base, index Reg, disp int32, src Reg) {
	a.emit(rex(true, src.IsExtended(), index.IsExtended(), base.IsExtended()))
	a.emit(0x89)
	a.emitIndexOperand(src.LowBits(), base, index, disp)
}

// Lea lea dst, [base+offset]
func (a *Assembler) Lea(dst, base Reg, offset int32) {
	a.emit(rex(true, dst.IsExtended(), false, base.IsExtended()))
	a.emit(0x8D)
	a.emitMemOperand(dst.LowBits(), base, offset)
}

// Xchg xchg a, b
func (a *Assembler) Xchg(r1, r2 Reg) {
	a.emit(rex(true, r2.IsExtended(), false, r1.IsExtended()))
	a.emit(0x87)
	a.emit(modrm(3, r2.LowBits(), r1.LowBits()))
}

// ============================================================================
// 算术与位运算
// ============================================================================

// aluRegReg 编码 op dst, src（0x01 add / 0x29 sub / 0x21 and / 0x09 or / 0x31 xor / 0x39 cmp）
func (a *Assembler) aluRegReg(opcode byte, dst, src Reg) {
	a.emit(rex(true, src.IsExtended(), false, dst.IsExtended()))
	a.emit(opcode)
	a.emit(modrm(3, src.LowBits(), dst.LowBits()))
}

// aluRegImm 编码 op reg, imm（ext 为 ModR/M.reg 操作码扩展）
func (a *Assembler) aluRegImm(ext byte, reg Reg, imm int32) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	if imm >= -128 && imm <= 127 {
		a.emit(0x83)
		a.emit(modrm(3, ext, reg.LowBits()))
		a.emit(byte(imm))
		return
	}
	a.emit(0x81)
	a.emit(modrm(3, ext, reg.LowBits()))
	a.emitU32(uint32(imm))
}

// AddRegReg add dst, src
func (a *Assembler) AddRegReg(dst, src Reg) { a.aluRegReg(0x01, dst, src) }

// SubRegReg sub dst, src
func (a *Assembler) SubRegReg(dst, src Reg) { a.aluRegReg(0x29, dst, src) }

// AndRegReg and dst, src
func (a *Assembler) AndRegReg(dst, src Reg) { a.aluRegReg(0x21, dst, src) }

// OrRegReg or dst, src
func (a *Assembler) OrRegReg(dst, src Reg) { a.aluRegReg(0x09, dst, src) }

// XorRegReg xor dst, src
func (a *Assembler) XorRegReg(dst, src Reg) { a.aluRegReg(0x31, dst, src) }

// AddRegImm32 add reg, imm
func (a *Assembler) AddRegImm32(reg Reg, imm int32) { a.aluRegImm(0, reg, imm) }

// SubRegImm32 sub reg, imm
func (a *Assembler) SubRegImm32(reg Reg, imm int32) { a.aluRegImm(5, reg, imm) }

// IMulRegReg imul dst, src
func (a *Assembler) IMulRegReg(dst, src Reg) {
	a.emit(rex(true, dst.IsExtended(), false, src.IsExtended()))
	a.emit(0x0F, 0xAF)
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
}

// Neg neg reg
func (a *Assembler) Neg(reg Reg) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xF7)
	a.emit(modrm(3, 3, reg.LowBits()))
}

// CQO 符号扩展 RAX -> RDX:RAX
func (a *Assembler) CQO() {
	a.emit(0x48, 0x99)
}

// IDivReg idiv reg（RDX:RAX / reg -> RAX，余数 -> RDX）
func (a *Assembler) IDivReg(reg Reg) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xF7)
	a.emit(modrm(3, 7, reg.LowBits()))
}

// SubMemImm8 sub qword [base+offset], imm8
func (a *Assembler) SubMemImm8(base Reg, offset int32, imm int8) {
	a.emit(rex(true, false, false, base.IsExtended()))
	a.emit(0x83)
	a.emitMemOperand(5, base, offset)
	a.emit(byte(imm))
}

// ============================================================================
// 比较
// ============================================================================

// CmpRegReg cmp left, right
func (a *Assembler) CmpRegReg(left, right Reg) { a.aluRegReg(0x39, left, right) }

// CmpRegImm32 cmp reg, imm
func (a *Assembler) CmpRegImm32(reg Reg, imm int32) { a.aluRegImm(7, reg, imm) }

// CmpRegMem cmp reg, [base+offset]
func (a *Assembler) CmpRegMem(reg, base Reg, offset int32) {
	a.emit(rex(true, reg.IsExtended(), false, base.IsExtended()))
	a.emit(0x3B)
	a.emitMemOperand(reg.LowBits(), base, offset)
}

// CmpMemImm32 cmp qword [base+offset], imm
func (a *Assembler) CmpMemImm32(base Reg, offset int32, imm int32) {
	a.emit(rex(true, false, false, base.IsExtended()))
	a.emit(0x81)
	a.emitMemOperand(7, base, offset)
	a.emitU32(uint32(imm))
}

// TestRegReg test r1, r2
func (a *Assembler) TestRegReg(r1, r2 Reg) {
	a.emit(rex(true, r2.IsExtended(), false, r1.IsExtended()))
	a.emit(0x85)
	a.emit(modrm(3, r2.LowBits(), r1.LowBits()))
}

// ============================================================================
// 栈
// ============================================================================

// Push push reg
func (a *Assembler) Push(reg Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x50 + reg.LowBits())
}

// Pop pop reg
func (a *Assembler) Pop(reg Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x58 + reg.LowBits())
}

// ============================================================================
// 控制流
// ============================================================================

// Jmp jmp label
func (a *Assembler) Jmp(target Label) {
	a.emit(0xE9)
	a.emitRel32(target)
}

// Jcc 条件跳转
func (a *Assembler) Jcc(cond Cond, target Label) {
	a.emit(0x0F, 0x80|byte(cond))
	a.emitRel32(target)
}

// CallReg call reg
func (a *Assembler) CallReg(reg Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xFF)
	a.emit(modrm(3, 2, reg.LowBits()))
}

// Ret ret
func (a *Assembler) Ret() {
	a.emit(0xC3)
}

// Ud2 不可达标记
func (a *Assembler) Ud2() {
	a.emit(0x0F, 0x0B)
}
