package frame

import (
	jerrors "github.com/tangzhangming/novajit/internal/errors"
)

// ============================================================================
// 帧合并
// ============================================================================
//
// ConformTo 发出把当前帧变成目标帧所需的最少指令，分三个阶段：
//
//   阶段一（写回内存）：目标要求在内存中的值写回；目标要求“已写回”而当前未写回的值写回；
//                     类型冲突（单寄存器与寄存器对、条件有效的值）降级到内存。
//   阶段二（寄存器重排）：寄存器之间的并行移动，遇到环用交换指令打破。
//   阶段三（装入寄存器）：从内存装入，或把立即数物化到目标寄存器。
//
// 阶段二开始前寄存器中的每个值都是某个移动的源，目标寄存器要么空闲要么是另一个移动的源，
// 因此按依赖顺序移动加上环上交换即可完成重排。

type regMove struct {
	dst, src Reg
}

// ConformTo 把当前帧调整为与 target 完全一致，target 不被修改
func (f *Frame) ConformTo(target *Frame) error {
	if f.locals != target.locals || f.sp != target.sp {
		return fail(jerrors.J0005, ErrDepthMismatch,
			"locals %d/%d depth %d/%d", f.locals, target.locals, f.sp, target.sp)
	}
	if f.scratch != target.scratch {
		return fail(jerrors.J0004, ErrMergeConflict, "scratch registers differ")
	}
	n := f.Len()
	for i := 0; i < n; i++ {
		if f.slots[i].Pinned() || target.slots[i].Pinned() {
			return fail(jerrors.J0004, ErrMergeConflict, "%s is pinned at a merge", f.describe(i))
		}
	}
	if err := f.checkAliases(target); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		if err := f.toMemory(i, target.slots[i]); err != nil {
			return err
		}
	}
	f.shuffle(target)
	for i := 0; i < n; i++ {
		f.toRegister(i, target)
	}
	if err := f.reconcileImmediates(target); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		t := target.slots[i]
		s := &f.slots[i]
		s.Flags = s.Flags&FlagAliased | t.Flags&(FlagDirty|FlagConditional)
	}

	if f.Verify {
		return VerifyConformTo(f, target)
	}
	return nil
}

// checkAliases 目标帧中共享同一寄存器的槽，在当前帧中必须是同一个值
func (f *Frame) checkAliases(target *Frame) error {
	for r := Reg(0); r < MaxRegs; r++ {
		us := target.users[r]
		if len(us) < 2 {
			continue
		}
		first := f.slots[us[0]]
		for _, u := range us[1:] {
			s := f.slots[u]
			same := first.SameLocation(s) && (s.InRegister() || s.Kind == KindImmediate)
			if !same {
				return fail(jerrors.J0003, ErrUnresolvableAlias,
					"%s shares %s with %s in the target but holds %s vs %s",
					f.describe(u), r, f.describe(us[0]), s, first)
			}
		}
	}
	return nil
}

// toMemory 阶段一
func (f *Frame) toMemory(i int, t Slot) error {
	s := f.slots[i]
	switch t.Kind {
	case KindNone:
		if s.Kind != KindNone {
			f.setSlot(i, Empty())
		}

	case KindMemory:
		if s.Kind != KindMemory {
			f.writeBack(i)
			f.setSlot(i, Memory())
		}

	case KindImmediate:
		switch {
		case s.Kind == KindImmediate && s.Imm == t.Imm:
		case s.Kind == KindRegister && f.imm[s.Reg].valid && f.imm[s.Reg].v == t.Imm:
			f.writeBack(i)
			f.setSlot(i, Slot{Kind: KindImmediate, Imm: t.Imm, Flags: f.slots[i].Flags})
		default:
			return fail(jerrors.J0004, ErrMergeConflict,
				"%s must be #%d but is %s", f.describe(i), t.Imm, s)
		}
		if !t.Dirty() && f.slots[i].Dirty() {
			f.writeBack(i)
		}

	case KindRegister, KindRegisterPair:
		conflict := s.Conditional() ||
			(s.InRegister() && s.Kind != t.Kind) ||
			(s.Kind == KindImmediate && t.Kind == KindRegisterPair)
		if conflict {
			f.writeBack(i)
			f.setSlot(i, Memory())
			return nil
		}
		if !t.Dirty() && s.Dirty() {
			f.writeBack(i)
		}
	}
	return nil
}

// shuffle 阶段二：寄存器之间的并行移动
func (f *Frame) shuffle(target *Frame) {
	var moves []regMove
	var assigned [MaxRegs]bool
	add := func(dst, src Reg) {
		if assigned[dst] {
			return
		}
		assigned[dst] = true
		if dst != src {
			moves = append(moves, regMove{dst: dst, src: src})
		}
	}
	n := f.Len()
	for i := 0; i < n; i++ {
		s, t := f.slots[i], target.slots[i]
		if !s.InRegister() || !t.InRegister() {
			continue
		}
		add(t.Reg, s.Reg)
		if t.Kind == KindRegisterPair {
			add(t.Hi, s.Hi)
		}
	}

	for len(moves) > 0 {
		progress := false
		for k := 0; k < len(moves); k++ {
			m := moves[k]
			if isSource(moves, m.dst) {
				continue
			}
			f.move(m.dst, m.src)
			moves = append(moves[:k], moves[k+1:]...)
			k--
			progress = true
		}
		if progress {
			continue
		}
		// 剩下的都是环：交换后 dst 已就位，原 dst 中的值换到了 src
		m := moves[0]
		f.swap(m.dst, m.src)
		rest := moves[:0]
		for _, o := range moves[1:] {
			switch o.src {
			case m.dst:
				o.src = m.src
			case m.src:
				o.src = m.dst
			}
			if o.src != o.dst {
				rest = append(rest, o)
			}
		}
		moves = rest
	}

	for i := 0; i < n; i++ {
		s, t := f.slots[i], target.slots[i]
		if !s.InRegister() || !t.InRegister() {
			continue
		}
		s.Reg, s.Hi = t.Reg, t.Hi
		f.setSlot(i, s)
	}
}

func isSource(moves []regMove, r Reg) bool {
	for _, m := range moves {
		if m.src == r {
			return true
		}
	}
	return false
}

// toRegister 阶段三
func (f *Frame) toRegister(i int, target *Frame) {
	s, t := f.slots[i], target.slots[i]
	if !t.InRegister() || s.InRegister() {
		return
	}
	// 内存中的槽总是从自己的内存位置装入；目标缓存的立即数交给 reconcileImmediates 核对
	if s.Kind == KindImmediate {
		f.materialize(t.Reg, s.Imm)
	} else {
		f.load(t.Reg, i)
		if t.Kind == KindRegisterPair {
			f.load(t.Hi, i+1)
		}
	}
	f.setSlot(i, Slot{Kind: t.Kind, Reg: t.Reg, Hi: t.Hi, Flags: s.Flags})
}

// reconcileImmediates 让立即数缓存与目标一致
// 被槽占用的寄存器不能靠重新装入立即数来迎合目标，那会覆盖槽的值
func (f *Frame) reconcileImmediates(target *Frame) error {
	for r := Reg(0); r < MaxRegs; r++ {
		want := target.imm[r]
		if !want.valid || f.imm[r] == want {
			continue
		}
		if len(f.users[r]) > 0 || f.scratch.Has(r) {
			return fail(jerrors.J0004, ErrMergeConflict, "%s must hold #%d", r, want.v)
		}
		f.loadImm(r, want.v)
	}
	f.imm = target.imm
	return nil
}
