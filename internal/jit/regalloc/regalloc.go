// regalloc.go - 寄存器文件
//
// 单遍编译器不做活跃区间分析：虚拟帧在需要寄存器时向寄存器文件索要一个空闲寄存器，
// 没有空闲寄存器时由虚拟帧决定溢出谁。寄存器文件只记录哪些寄存器空闲、
// 按什么顺序偏好，以及方法里用到过哪些寄存器。

package regalloc

import (
	"github.com/tangzhangming/novajit/internal/jit/frame"
)

// ============================================================================
// 寄存器文件
// ============================================================================

// RegisterFile 实现 frame.Allocator
type RegisterFile struct {
	order    []frame.Reg         // 可分配寄存器，按偏好排序
	freeRegs [frame.MaxRegs]bool // 哪些寄存器是空闲的
	usedRegs [frame.MaxRegs]bool // 哪些寄存器被使用过
	managed  [frame.MaxRegs]bool // 是否参与分配
}

// New 创建寄存器文件，order 之外的寄存器永远不空闲
func New(order []frame.Reg) *RegisterFile {
	rf := &RegisterFile{order: append([]frame.Reg(nil), order...)}
	for _, r := range order {
		if r.Valid() {
			rf.freeRegs[r] = true
			rf.managed[r] = true
		}
	}
	return rf
}

// IsFree 寄存器是否空闲
func (rf *RegisterFile) IsFree(r frame.Reg) bool {
	return r.Valid() && rf.freeRegs[r]
}

// Reserve 占用寄存器
func (rf *RegisterFile) Reserve(r frame.Reg) {
	if !r.Valid() || !rf.managed[r] {
		return
	}
	rf.freeRegs[r] = false
	rf.usedRegs[r] = true
}

// Release 归还寄存器
func (rf *RegisterFile) Release(r frame.Reg) {
	if !r.Valid() || !rf.managed[r] {
		return
	}
	rf.freeRegs[r] = true
}

// Pick 按偏好顺序挑选空闲寄存器
func (rf *RegisterFile) Pick(avoid frame.RegSet) (frame.Reg, bool) {
	for _, r := range rf.order {
		if rf.freeRegs[r] && !avoid.Has(r) {
			return r, true
		}
	}
	return frame.NoReg, false
}

// Clone 复制寄存器文件
func (rf *RegisterFile) Clone() frame.Allocator {
	c := *rf
	return &c
}

// Managed 参与分配的寄存器
func (rf *RegisterFile) Managed() frame.RegSet {
	var s frame.RegSet
	for _, r := range rf.order {
		s = s.With(r)
	}
	return s
}

// Used 方法编译过程中占用过的寄存器
func (rf *RegisterFile) Used() frame.RegSet {
	var s frame.RegSet
	for r := frame.Reg(0); r < frame.MaxRegs; r++ {
		if rf.usedRegs[r] {
			s = s.With(r)
		}
	}
	return s
}

// NumFree 空闲寄存器数量
func (rf *RegisterFile) NumFree() int {
	n := 0
	for _, r := range rf.order {
		if rf.freeRegs[r] {
			n++
		}
	}
	return n
}
