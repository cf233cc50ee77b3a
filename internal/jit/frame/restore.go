package frame

import (
	jerrors "github.com/tangzhangming/novajit/internal/errors"
)

// Restore 把 Flush 过的帧恢复成同一路径上 Flush 之前的副本 saved
//
// 慢路径调用运行时前 Flush，调用后 Restore。saved 中共享同一寄存器的槽在同一路径上
// 持有同一个值，且干净的槽与其内存位置一致，所以从编号最小的使用者装入寄存器即可。
// 两个不相关的帧之间做不到这一点，ConformTo 会把这种情况报告为别名无法消解。
func (f *Frame) Restore(saved *Frame) error {
	if f.locals != saved.locals || f.sp != saved.sp {
		return fail(jerrors.J0005, ErrDepthMismatch,
			"locals %d/%d depth %d/%d", f.locals, saved.locals, f.sp, saved.sp)
	}
	if f.scratch != saved.scratch {
		return fail(jerrors.J0004, ErrMergeConflict, "scratch registers differ")
	}
	n := f.Len()
	for i := 0; i < n; i++ {
		if k := f.slots[i].Kind; k != KindMemory && k != KindNone {
			return fail(jerrors.J0004, ErrMergeConflict, "%s is %s, want memory", f.describe(i), f.slots[i])
		}
	}

	for r := Reg(0); r < MaxRegs; r++ {
		us := saved.Users(r)
		if len(us) == 0 {
			continue
		}
		u := us[0]
		home := u
		if s := saved.slots[u]; s.Kind == KindRegisterPair && s.Hi == r {
			home = u + 1
		}
		f.load(r, home)
	}
	for i := 0; i < n; i++ {
		t := saved.slots[i]
		t.Flags &^= FlagPinned
		f.setSlot(i, t)
	}
	for r := Reg(0); r < MaxRegs; r++ {
		want := saved.imm[r]
		if want.valid && f.imm[r] != want && len(f.users[r]) == 0 && !f.scratch.Has(r) {
			f.loadImm(r, want.v)
		}
	}
	f.imm = saved.imm

	if f.Verify {
		return VerifyConformTo(f, saved)
	}
	return nil
}
