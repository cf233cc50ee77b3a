package frame

import (
	"fmt"

	"go.uber.org/multierr"

	jerrors "github.com/tangzhangming/novajit/internal/errors"
)

// VerifyConformTo 逐位比较两个帧，汇总所有不一致之处
// 只在调试模式下于 ConformTo 之后调用
func VerifyConformTo(got, want *Frame) error {
	var errs error
	if got.locals != want.locals || got.sp != want.sp {
		errs = multierr.Append(errs, fmt.Errorf("shape %d+%d, want %d+%d", got.locals, got.sp, want.locals, want.sp))
	} else {
		for i := 0; i < got.Len(); i++ {
			g, w := got.slots[i], want.slots[i]
			if !g.SameLocation(w) || g.Flags&^FlagPinned != w.Flags&^FlagPinned {
				errs = multierr.Append(errs, fmt.Errorf("%s is %s, want %s", got.describe(i), g, w))
			}
		}
	}
	for r := Reg(0); r < MaxRegs; r++ {
		if got.imm[r] != want.imm[r] {
			errs = multierr.Append(errs, fmt.Errorf("%s immediate cache %v, want %v", r, got.imm[r], want.imm[r]))
		}
		if got.alloc.IsFree(r) != want.alloc.IsFree(r) {
			errs = multierr.Append(errs, fmt.Errorf("%s free=%v, want %v", r, got.alloc.IsFree(r), want.alloc.IsFree(r)))
		}
	}
	if got.scratch != want.scratch {
		errs = multierr.Append(errs, fmt.Errorf("scratch %#x, want %#x", got.scratch, want.scratch))
	}
	errs = multierr.Append(errs, got.check())
	if errs != nil {
		return jerrors.New(jerrors.J0009, fmt.Errorf("%w: %v", ErrVerify, errs))
	}
	return nil
}

// Check 校验反向索引、别名标志与分配器状态是否和槽一致
func (f *Frame) Check() error {
	if err := f.check(); err != nil {
		return jerrors.New(jerrors.J0008, fmt.Errorf("%w: %v", ErrInconsistent, err))
	}
	return nil
}

func (f *Frame) check() error {
	var errs error
	var want [MaxRegs][]int
	for i := range f.slots {
		s := f.slots[i]
		if i >= f.Len() && s.Kind != KindNone {
			errs = multierr.Append(errs, fmt.Errorf("slot %d above the stack top holds %s", i, s))
		}
		for r := Reg(0); r < MaxRegs; r++ {
			if s.Uses().Has(r) {
				want[r] = append(want[r], i)
			}
		}
	}
	for r := Reg(0); r < MaxRegs; r++ {
		if !sameMembers(want[r], f.users[r]) {
			errs = multierr.Append(errs, fmt.Errorf("%s users %v, slots say %v", r, f.users[r], want[r]))
		}
		if len(want[r]) > 0 && f.alloc.IsFree(r) {
			errs = multierr.Append(errs, fmt.Errorf("%s is in use but free in the allocator", r))
		}
		if f.scratch.Has(r) {
			if len(want[r]) > 0 {
				errs = multierr.Append(errs, fmt.Errorf("scratch %s is also held by slots", r))
			}
			if f.alloc.IsFree(r) {
				errs = multierr.Append(errs, fmt.Errorf("scratch %s is free in the allocator", r))
			}
		}
		for _, i := range want[r] {
			aliased := f.slots[i].Flags&FlagAliased != 0
			if len(want[r]) > 1 && !aliased {
				errs = multierr.Append(errs, fmt.Errorf("%s shares %s but is not marked aliased", f.describe(i), r))
			}
		}
	}
	for i := range f.slots {
		s := f.slots[i]
		if s.Flags&FlagAliased == 0 {
			continue
		}
		shared := false
		for r := Reg(0); r < MaxRegs; r++ {
			if s.Uses().Has(r) && len(want[r]) > 1 {
				shared = true
			}
		}
		if !shared {
			errs = multierr.Append(errs, fmt.Errorf("%s marked aliased without sharing", f.describe(i)))
		}
	}
	return errs
}

func sameMembers(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int]int, len(a))
	for _, x := range a {
		seen[x]++
	}
	for _, x := range b {
		if seen[x] == 0 {
			return false
		}
		seen[x]--
	}
	return true
}
