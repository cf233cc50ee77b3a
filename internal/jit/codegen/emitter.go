package codegen

import (
	"math"

	"github.com/tangzhangming/novajit/internal/jit/frame"
	"github.com/tangzhangming/novajit/internal/jit/platform"
)

// emitter 把帧操作翻译成 x86-64 指令，槽 i 的内存位置是 [rbp+SlotOffset(i)]
type emitter struct {
	asm *platform.Assembler
}

func (e emitter) Store(slot int, r frame.Reg) {
	e.asm.MovMemReg(platform.RBP, platform.SlotOffset(slot), preg(r))
}

func (e emitter) Load(r frame.Reg, slot int) {
	e.asm.MovRegMem(preg(r), platform.RBP, platform.SlotOffset(slot))
}

func (e emitter) StoreImm(slot int, v int64) {
	if fitsInt32(v) {
		e.asm.MovMemImm32(platform.RBP, platform.SlotOffset(slot), int32(v))
		return
	}
	e.asm.MovRegImm(platform.ScratchReg, v)
	e.asm.MovMemReg(platform.RBP, platform.SlotOffset(slot), platform.ScratchReg)
}

func (e emitter) LoadImm(r frame.Reg, v int64) {
	e.asm.MovRegImm(preg(r), v)
}

func (e emitter) Move(dst, src frame.Reg) {
	e.asm.MovRegReg(preg(dst), preg(src))
}

func (e emitter) Swap(a, b frame.Reg) {
	e.asm.Xchg(preg(a), preg(b))
}

func fitsInt32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}
