package frame

import (
	"fmt"
	"sort"
	"strings"

	jerrors "github.com/tangzhangming/novajit/internal/errors"
)

// Allocator 物理寄存器分配器
//
// 帧只在寄存器的第一个使用者出现时 Reserve，在最后一个使用者消失时 Release。
type Allocator interface {
	IsFree(r Reg) bool
	Reserve(r Reg)
	Release(r Reg)
	// Pick 按偏好顺序返回一个空闲寄存器，不做预留
	Pick(avoid RegSet) (Reg, bool)
	Clone() Allocator
}

// Emitter 帧操作需要的机器指令
type Emitter interface {
	Store(slot int, r Reg)
	Load(r Reg, slot int)
	StoreImm(slot int, v int64)
	LoadImm(r Reg, v int64)
	Move(dst, src Reg)
	Swap(a, b Reg)
}

// immEntry 寄存器中已知的立即数
type immEntry struct {
	valid bool
	v     int64
}

// Frame 虚拟帧
//
// 槽按索引排列：先是 locals 个局部变量，后是表达式栈（栈底在前）。
// 槽 i 的内存位置由后端按索引计算，帧本身不关心具体地址。
type Frame struct {
	slots    []Slot
	locals   int
	maxStack int
	sp       int

	users   [MaxRegs][]int    // 寄存器 -> 使用它的槽
	imm     [MaxRegs]immEntry // 寄存器 -> 已知立即数
	scratch RegSet            // 代码生成器临时占用的寄存器

	alloc Allocator
	emit  Emitter

	// Verify 为真时 ConformTo 结束后逐位校验两个帧
	Verify bool

	emitted int
}

// New 创建帧，所有槽为空
func New(locals, maxStack int, alloc Allocator, emit Emitter) *Frame {
	f := &Frame{
		slots:    make([]Slot, locals+maxStack),
		locals:   locals,
		maxStack: maxStack,
		alloc:    alloc,
		emit:     emit,
	}
	for i := range f.slots {
		f.slots[i] = Empty()
	}
	return f
}

// ============================================================================
// 访问器
// ============================================================================

// Locals 局部变量数量
func (f *Frame) Locals() int { return f.locals }

// MaxStack 表达式栈容量
func (f *Frame) MaxStack() int { return f.maxStack }

// Depth 当前表达式栈深度
func (f *Frame) Depth() int { return f.sp }

// Len 活跃槽数量（局部变量加上当前栈深度）
func (f *Frame) Len() int { return f.locals + f.sp }

// Slot 返回槽 i 的副本
func (f *Frame) Slot(i int) Slot { return f.slots[i] }

// Users 返回使用寄存器 r 的槽（升序）
func (f *Frame) Users(r Reg) []int {
	if !r.Valid() {
		return nil
	}
	out := append([]int(nil), f.users[r]...)
	sort.Ints(out)
	return out
}

// Scratch 代码生成器临时占用的寄存器
func (f *Frame) Scratch() RegSet { return f.scratch }

// Emitted 本帧发出的指令条数
func (f *Frame) Emitted() int { return f.emitted }

// Emitter 返回指令发射器
func (f *Frame) Emitter() Emitter { return f.emit }

// SetEmitter 替换指令发射器
func (f *Frame) SetEmitter(e Emitter) { f.emit = e }

// Allocator 返回寄存器分配器
func (f *Frame) Allocator() Allocator { return f.alloc }

// Immediate 返回寄存器 r 中已知的立即数
func (f *Frame) Immediate(r Reg) (int64, bool) {
	if !r.Valid() || !f.imm[r].valid {
		return 0, false
	}
	return f.imm[r].v, true
}

// StackIndex 距栈顶 depth 的栈项对应的槽索引
func (f *Frame) StackIndex(depth int) (int, error) {
	if depth < 0 || depth >= f.sp {
		return 0, fail(jerrors.J0002, ErrUnderflow, "depth %d with %d entries", depth, f.sp)
	}
	return f.locals + f.sp - 1 - depth, nil
}

// Peek 返回距栈顶 depth 的栈项
func (f *Frame) Peek(depth int) (Slot, error) {
	i, err := f.StackIndex(depth)
	if err != nil {
		return Slot{}, err
	}
	return f.slots[i], nil
}

// Clone 深拷贝，克隆与原帧共享发射器
func (f *Frame) Clone() *Frame {
	c := *f
	c.slots = append([]Slot(nil), f.slots...)
	for r := range c.users {
		c.users[r] = append([]int(nil), f.users[r]...)
	}
	c.alloc = f.alloc.Clone()
	c.emitted = 0
	return &c
}

func (f *Frame) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < f.Len(); i++ {
		if i == f.locals {
			sb.WriteString(" |")
		}
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(f.slots[i].String())
	}
	sb.WriteString("]")
	return sb.String()
}

// ============================================================================
// 反向索引维护
// ============================================================================

// setSlot 是修改槽内容的唯一入口，同时维护反向索引、分配器与别名标志
func (f *Frame) setSlot(i int, s Slot) {
	old := f.slots[i]
	if old.Kind == KindRegister || old.Kind == KindRegisterPair {
		f.removeUser(old.Reg, i)
		if old.Kind == KindRegisterPair {
			f.removeUser(old.Hi, i)
		}
	}
	s.Flags &^= FlagAliased
	if s.Kind != KindRegisterPair {
		s.Hi = NoReg
	}
	if !s.InRegister() {
		s.Reg = NoReg
	}
	f.slots[i] = s
	if s.InRegister() {
		f.addUser(s.Reg, i)
		if s.Kind == KindRegisterPair {
			f.addUser(s.Hi, i)
		}
	}
	f.refreshAliases(old.Uses() | s.Uses())
}

func (f *Frame) addUser(r Reg, i int) {
	if len(f.users[r]) == 0 {
		if f.scratch.Has(r) {
			// 临时寄存器的所有权转交给槽
			f.scratch = f.scratch.Without(r)
		} else {
			f.alloc.Reserve(r)
		}
	}
	f.users[r] = append(f.users[r], i)
}

func (f *Frame) removeUser(r Reg, i int) {
	us := f.users[r]
	for k, u := range us {
		if u == i {
			us = append(us[:k], us[k+1:]...)
			break
		}
	}
	f.users[r] = us
	if len(us) == 0 {
		f.alloc.Release(r)
	}
}

func (f *Frame) refreshAliases(set RegSet) {
	for r := Reg(0); r < MaxRegs; r++ {
		if !set.Has(r) {
			continue
		}
		for _, i := range f.users[r] {
			s := &f.slots[i]
			aliased := false
			for q := Reg(0); q < MaxRegs; q++ {
				if s.Uses().Has(q) && len(f.users[q]) > 1 {
					aliased = true
				}
			}
			if aliased {
				s.Flags |= FlagAliased
			} else {
				s.Flags &^= FlagAliased
			}
		}
	}
}

// ============================================================================
// 指令发射（同时维护立即数缓存）
// ============================================================================

func (f *Frame) store(i int, r Reg) {
	f.emit.Store(i, r)
	f.emitted++
}

func (f *Frame) storeImm(i int, v int64) {
	f.emit.StoreImm(i, v)
	f.emitted++
}

func (f *Frame) load(r Reg, i int) {
	f.emit.Load(r, i)
	f.imm[r] = immEntry{}
	f.emitted++
}

func (f *Frame) loadImm(r Reg, v int64) {
	f.emit.LoadImm(r, v)
	f.imm[r] = immEntry{valid: true, v: v}
	f.emitted++
}

func (f *Frame) move(dst, src Reg) {
	f.emit.Move(dst, src)
	f.imm[dst] = f.imm[src]
	f.emitted++
}

func (f *Frame) swap(a, b Reg) {
	f.emit.Swap(a, b)
	f.imm[a], f.imm[b] = f.imm[b], f.imm[a]
	f.emitted++
}

// materialize 让寄存器 r 持有 v，优先复用已持有 v 的寄存器
func (f *Frame) materialize(r Reg, v int64) {
	if e := f.imm[r]; e.valid && e.v == v {
		return
	}
	for c := Reg(0); c < MaxRegs; c++ {
		if e := f.imm[c]; e.valid && e.v == v {
			f.move(r, c)
			return
		}
	}
	f.loadImm(r, v)
}

// writeBack 把槽的值写回内存（不改变槽的表示）
func (f *Frame) writeBack(i int) {
	s := f.slots[i]
	if !s.Dirty() {
		return
	}
	switch s.Kind {
	case KindRegister:
		f.store(i, s.Reg)
	case KindRegisterPair:
		f.store(i, s.Reg)
		f.store(i+1, s.Hi)
	case KindImmediate:
		f.storeImm(i, s.Imm)
	}
	f.slots[i].Flags &^= FlagDirty
}

// Invalidate 代码生成器直接写入寄存器后调用，丢弃缓存的立即数
func (f *Frame) Invalidate(r Reg) {
	if r.Valid() {
		f.imm[r] = immEntry{}
	}
}

// ============================================================================
// 栈操作
// ============================================================================

func (f *Frame) checkSlot(s Slot) error {
	switch s.Kind {
	case KindRegister:
		if !s.Reg.Valid() {
			return fail(jerrors.J0010, ErrKindMismatch, "register slot without register")
		}
	case KindRegisterPair:
		if !s.Reg.Valid() || !s.Hi.Valid() || s.Reg == s.Hi {
			return fail(jerrors.J0010, ErrKindMismatch, "malformed register pair %s", s)
		}
	}
	return nil
}

func (f *Frame) ensureRoom(n int) error {
	if f.sp+n > f.maxStack {
		return fail(jerrors.J0001, ErrFrameOverflow, "depth %d exceeds max stack %d", f.sp+n, f.maxStack)
	}
	return nil
}

// Push 压入一个值
// 寄存器已被其他槽使用时，新槽与之形成别名
func (f *Frame) Push(s Slot) error {
	if err := f.ensureRoom(1); err != nil {
		return err
	}
	if s.Kind == KindRegisterPair {
		return f.PushPair(s.Reg, s.Hi)
	}
	if err := f.checkSlot(s); err != nil {
		return err
	}
	f.sp++
	f.setSlot(f.locals+f.sp-1, s)
	return nil
}

// PushReg 压入寄存器中的值
func (f *Frame) PushReg(r Reg) error {
	return f.Push(Register(r))
}

// PushResult 压入刚被指令写入的寄存器
func (f *Frame) PushResult(r Reg) error {
	f.Invalidate(r)
	return f.PushReg(r)
}

// PushImm 压入立即数
func (f *Frame) PushImm(v int64) error {
	return f.Push(Immediate(v))
}

// PushMemory 压入一个已在内存位置中的值
func (f *Frame) PushMemory() error {
	return f.Push(Memory())
}

// PushPair 压入宽值，占用两个栈项：寄存器对本身和一个空的高位占位
func (f *Frame) PushPair(lo, hi Reg) error {
	if err := f.ensureRoom(2); err != nil {
		return err
	}
	s := Pair(lo, hi)
	if err := f.checkSlot(s); err != nil {
		return err
	}
	f.sp += 2
	f.setSlot(f.locals+f.sp-2, s)
	f.setSlot(f.locals+f.sp-1, Empty())
	return nil
}

// Pop 弹出栈顶，返回其原来的描述
// 寄存器的最后一个使用者被弹出时寄存器归还分配器
func (f *Frame) Pop() (Slot, error) {
	if f.sp == 0 {
		return Slot{}, fail(jerrors.J0002, ErrUnderflow, "pop from empty stack")
	}
	i := f.locals + f.sp - 1
	s := f.slots[i]
	f.setSlot(i, Empty())
	f.sp--
	s.Flags &^= FlagPinned | FlagAliased
	return s, nil
}

// PopKind 弹出栈顶并断言其种类
func (f *Frame) PopKind(k Kind) (Slot, error) {
	s, err := f.Pop()
	if err != nil {
		return s, err
	}
	if s.Kind != k {
		return s, fail(jerrors.J0010, ErrKindMismatch, "popped %s, want %s", s.Kind, k)
	}
	return s, nil
}

// PopPair 弹出宽值
func (f *Frame) PopPair() (Slot, error) {
	if _, err := f.PopKind(KindNone); err != nil {
		return Slot{}, err
	}
	return f.PopKind(KindRegisterPair)
}

// Drop 丢弃栈顶 n 项
func (f *Frame) Drop(n int) error {
	for ; n > 0; n-- {
		if _, err := f.Pop(); err != nil {
			return err
		}
	}
	return nil
}

// copyOf 生成可放入另一个槽的值副本
// 内存中的值先装入寄存器，因为内存位置随槽而定
func (f *Frame) copyOf(i int) (Slot, error) {
	s := f.slots[i]
	switch s.Kind {
	case KindMemory, KindNone:
		if _, err := f.EnsureRegister(i); err != nil {
			return Slot{}, err
		}
		s = f.slots[i]
	case KindRegisterPair:
		return Slot{}, fail(jerrors.J0010, ErrKindMismatch, "slot %d holds a wide value", i)
	}
	c := s
	c.Flags = FlagDirty | s.Flags&FlagConditional
	return c, nil
}

// Dup 复制栈顶
func (f *Frame) Dup() error {
	i, err := f.StackIndex(0)
	if err != nil {
		return err
	}
	if err := f.ensureRoom(1); err != nil {
		return err
	}
	c, err := f.copyOf(i)
	if err != nil {
		return err
	}
	return f.Push(c)
}

// Swap 交换栈顶两项
func (f *Frame) Swap() error {
	a, err := f.StackIndex(0)
	if err != nil {
		return err
	}
	b, err := f.StackIndex(1)
	if err != nil {
		return err
	}
	pa, pb := f.slots[a].Flags&FlagPinned, f.slots[b].Flags&FlagPinned
	sa, err := f.copyOf(a)
	if err != nil {
		return err
	}
	// 装入 b 时不能把 a 刚装入的寄存器溢出
	f.Pin(a)
	sb, err := f.copyOf(b)
	if pa == 0 {
		f.Unpin(a)
	}
	if err != nil {
		return err
	}
	sa.Flags |= pa
	sb.Flags |= pb
	f.setSlot(a, sb)
	f.setSlot(b, sa)
	return nil
}

// PushLocal 把局部变量压栈
// 内存中的局部变量被装入寄存器，局部变量自身随即缓存在该寄存器中
func (f *Frame) PushLocal(idx int) error {
	if idx < 0 || idx >= f.locals {
		return fail(jerrors.J0010, ErrKindMismatch, "local %d out of range", idx)
	}
	if err := f.ensureRoom(1); err != nil {
		return err
	}
	c, err := f.copyOf(idx)
	if err != nil {
		return err
	}
	return f.Push(c)
}

// StoreLocal 弹出栈顶写入局部变量
func (f *Frame) StoreLocal(idx int) error {
	if idx < 0 || idx >= f.locals {
		return fail(jerrors.J0010, ErrKindMismatch, "local %d out of range", idx)
	}
	top, err := f.StackIndex(0)
	if err != nil {
		return err
	}
	v, err := f.copyOf(top)
	if err != nil {
		return err
	}
	if old := f.slots[idx]; old.SameLocation(v) {
		v.Flags = old.Flags &^ FlagAliased
	}
	f.setSlot(idx, v)
	_, err = f.Pop()
	return err
}

// ============================================================================
// 寄存器管理
// ============================================================================

// EnsureRegister 让槽 i 驻留在寄存器，返回该寄存器（宽值返回低半部分）
func (f *Frame) EnsureRegister(i int) (Reg, error) {
	s := f.slots[i]
	switch s.Kind {
	case KindRegister, KindRegisterPair:
		return s.Reg, nil
	case KindImmediate:
		r, err := f.regForImmediate(s.Imm)
		if err != nil {
			return NoReg, err
		}
		f.setSlot(i, Slot{Kind: KindRegister, Reg: r, Flags: s.Flags})
		return r, nil
	default:
		r, err := f.AllocRegister(0)
		if err != nil {
			return NoReg, err
		}
		f.load(r, i)
		f.setSlot(i, Slot{Kind: KindRegister, Reg: r, Flags: s.Flags &^ FlagDirty})
		return r, nil
	}
}

func (f *Frame) regForImmediate(v int64) (Reg, error) {
	for c := Reg(0); c < MaxRegs; c++ {
		if e := f.imm[c]; e.valid && e.v == v && f.alloc.IsFree(c) && !f.scratch.Has(c) {
			return c, nil
		}
	}
	r, err := f.AllocRegister(0)
	if err != nil {
		return NoReg, err
	}
	f.loadImm(r, v)
	return r, nil
}

// EnsureStack 让距栈顶 depth 的栈项驻留在寄存器
func (f *Frame) EnsureStack(depth int) (Reg, error) {
	i, err := f.StackIndex(depth)
	if err != nil {
		return NoReg, err
	}
	return f.EnsureRegister(i)
}

// WritableRegister 返回槽 i 独占的寄存器，调用方随后可以直接改写它
// 寄存器被别名共享时先复制一份；槽随即标记为脏
func (f *Frame) WritableRegister(i int) (Reg, error) {
	r, err := f.EnsureRegister(i)
	if err != nil {
		return NoReg, err
	}
	s := f.slots[i]
	if s.Kind == KindRegisterPair {
		return NoReg, fail(jerrors.J0010, ErrKindMismatch, "slot %d holds a wide value", i)
	}
	if len(f.users[r]) > 1 {
		n, err := f.AllocRegister(Regs(r))
		if err != nil {
			return NoReg, err
		}
		f.move(n, r)
		s.Reg = n
		r = n
	}
	s.Flags |= FlagDirty
	f.setSlot(i, s)
	f.Invalidate(r)
	return r, nil
}

// AllocRegister 返回一个空闲寄存器，必要时溢出一个未钉住的寄存器
// 返回的寄存器未被预留，调用方应立即压栈或 ClaimScratch
func (f *Frame) AllocRegister(avoid RegSet) (Reg, error) {
	avoid |= f.scratch
	if r, ok := f.alloc.Pick(avoid); ok {
		return r, nil
	}
	victim := NoReg
	victimClean := false
	for r := Reg(0); r < MaxRegs; r++ {
		if avoid.Has(r) || len(f.users[r]) == 0 {
			continue
		}
		pinned, clean := false, true
		for _, i := range f.users[r] {
			if f.slots[i].Pinned() {
				pinned = true
			}
			if f.slots[i].Dirty() {
				clean = false
			}
		}
		if pinned {
			continue
		}
		if victim == NoReg || (clean && !victimClean) {
			victim, victimClean = r, clean
		}
	}
	if victim == NoReg {
		return NoReg, fail(jerrors.J0007, ErrNoRegister, "all registers pinned or reserved")
	}
	if err := f.SpillRegister(victim); err != nil {
		return NoReg, err
	}
	return victim, nil
}

// ClaimScratch 占用一个临时寄存器，它不属于任何槽
func (f *Frame) ClaimScratch(avoid RegSet) (Reg, error) {
	r, err := f.AllocRegister(avoid)
	if err != nil {
		return NoReg, err
	}
	f.alloc.Reserve(r)
	f.scratch = f.scratch.With(r)
	f.Invalidate(r)
	return r, nil
}

// ClaimScratchReg 占用指定的寄存器作为临时寄存器，必要时先溢出它
func (f *Frame) ClaimScratchReg(r Reg) error {
	if f.scratch.Has(r) {
		return fail(jerrors.J0007, ErrNoRegister, "%s already claimed", r)
	}
	if len(f.users[r]) > 0 {
		if err := f.SpillRegister(r); err != nil {
			return err
		}
	}
	f.alloc.Reserve(r)
	f.scratch = f.scratch.With(r)
	f.Invalidate(r)
	return nil
}

// ReleaseScratch 归还临时寄存器
func (f *Frame) ReleaseScratch(r Reg) {
	if !f.scratch.Has(r) {
		return
	}
	f.scratch = f.scratch.Without(r)
	f.alloc.Release(r)
}

// ReleaseAllScratch 归还全部临时寄存器
func (f *Frame) ReleaseAllScratch() {
	for r := Reg(0); r < MaxRegs; r++ {
		f.ReleaseScratch(r)
	}
}

// SpillRegister 把寄存器 r 的所有使用者写回内存并释放 r
func (f *Frame) SpillRegister(r Reg) error {
	us := append([]int(nil), f.users[r]...)
	for _, i := range us {
		if f.slots[i].Pinned() {
			return fail(jerrors.J0006, ErrPinnedSpill, "slot %d in %s", i, r)
		}
	}
	for _, i := range us {
		f.writeBack(i)
		f.setSlot(i, Memory())
	}
	return nil
}

// Flush 把所有值写回内存，之后帧完全驻留在内存中
func (f *Frame) Flush() error {
	for i := 0; i < f.Len(); i++ {
		s := f.slots[i]
		if s.Kind == KindNone || s.Kind == KindMemory {
			continue
		}
		if s.Pinned() {
			return fail(jerrors.J0006, ErrPinnedSpill, "flushing pinned slot %d", i)
		}
		f.writeBack(i)
		f.setSlot(i, Memory())
	}
	return nil
}

// Clobber 一次调用会破坏 regs：其中的值写回内存，缓存的立即数作废
func (f *Frame) Clobber(regs RegSet) error {
	for r := Reg(0); r < MaxRegs; r++ {
		if !regs.Has(r) {
			continue
		}
		if len(f.users[r]) > 0 {
			if err := f.SpillRegister(r); err != nil {
				return err
			}
		}
		f.imm[r] = immEntry{}
	}
	return nil
}

// Pin 钉住槽 i
func (f *Frame) Pin(i int) {
	f.slots[i].Flags |= FlagPinned
}

// Unpin 解除槽 i 的钉住
func (f *Frame) Unpin(i int) {
	f.slots[i].Flags &^= FlagPinned
}

// UnpinAll 解除全部钉住
func (f *Frame) UnpinAll() {
	for i := range f.slots {
		f.slots[i].Flags &^= FlagPinned
	}
}

// MarkConditional 标记槽 i 只在当前条件码状态下有效
func (f *Frame) MarkConditional(i int) {
	if f.slots[i].Kind != KindNone {
		f.slots[i].Flags |= FlagConditional
	}
}

// ClearConditional 条件码被破坏前调用：条件有效的值写回内存
func (f *Frame) ClearConditional() error {
	for i := 0; i < f.Len(); i++ {
		if !f.slots[i].Conditional() {
			continue
		}
		if f.slots[i].Pinned() {
			return fail(jerrors.J0006, ErrPinnedSpill, "conditional slot %d is pinned", i)
		}
		f.writeBack(i)
		f.setSlot(i, Memory())
	}
	return nil
}

// Widen 把帧放宽为适合作为汇合点入口的形态
//   - 立即数与条件有效的值写回内存
//   - 别名寄存器只保留给编号最小的槽，其余槽写回内存
//   - 清空立即数缓存
func (f *Frame) Widen() error {
	for i := 0; i < f.Len(); i++ {
		s := f.slots[i]
		if s.Kind == KindNone || s.Kind == KindMemory {
			continue
		}
		if s.Pinned() {
			return fail(jerrors.J0006, ErrPinnedSpill, "widening pinned slot %d", i)
		}
		demote := s.Kind == KindImmediate || s.Conditional()
		if !demote && s.Flags&FlagAliased != 0 {
			for r := Reg(0); r < MaxRegs; r++ {
				if !s.Uses().Has(r) {
					continue
				}
				for _, u := range f.users[r] {
					if u < i {
						demote = true
					}
				}
			}
		}
		if demote {
			f.writeBack(i)
			f.setSlot(i, Memory())
		}
	}
	f.imm = [MaxRegs]immEntry{}
	return nil
}

// Reset 清空所有槽与缓存（用于从全内存状态重新开始，例如异常处理入口）
func (f *Frame) Reset() {
	for i := range f.slots {
		f.setSlot(i, Empty())
	}
	f.sp = 0
	f.imm = [MaxRegs]immEntry{}
}

// SetMemoryLocals 把所有局部变量标记为驻留在内存
func (f *Frame) SetMemoryLocals() {
	for i := 0; i < f.locals; i++ {
		f.setSlot(i, Memory())
	}
}

// SetDepth 把表达式栈设为 depth 个内存值（异常处理入口与 OSR 入口使用）
func (f *Frame) SetDepth(depth int) error {
	if depth > f.maxStack {
		return fail(jerrors.J0001, ErrFrameOverflow, "depth %d exceeds max stack %d", depth, f.maxStack)
	}
	for f.sp > 0 {
		if _, err := f.Pop(); err != nil {
			return err
		}
	}
	for ; depth > 0; depth-- {
		if err := f.PushMemory(); err != nil {
			return err
		}
	}
	return nil
}

func (f *Frame) describe(i int) string {
	if i < f.locals {
		return fmt.Sprintf("local %d", i)
	}
	return fmt.Sprintf("stack %d", i-f.locals)
}
