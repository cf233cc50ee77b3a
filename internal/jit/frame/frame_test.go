package frame_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jerrors "github.com/tangzhangming/novajit/internal/errors"
	"github.com/tangzhangming/novajit/internal/jit/frame"
	"github.com/tangzhangming/novajit/internal/jit/regalloc"
)

// machine 模拟寄存器与帧内存，记录发出的指令
type machine struct {
	regs [frame.MaxRegs]int64
	mem  map[int]int64
	ops  []string
	next int64
}

func newMachine() *machine {
	m := &machine{mem: make(map[int]int64), next: 1000}
	for r := range m.regs {
		m.regs[r] = -int64(r) - 1
	}
	return m
}

func (m *machine) fresh() int64 {
	m.next++
	return m.next
}

func (m *machine) Store(slot int, r frame.Reg) {
	m.mem[slot] = m.regs[r]
	m.ops = append(m.ops, fmt.Sprintf("store [%d], %s", slot, r))
}

func (m *machine) Load(r frame.Reg, slot int) {
	m.regs[r] = m.mem[slot]
	m.ops = append(m.ops, fmt.Sprintf("load %s, [%d]", r, slot))
}

func (m *machine) StoreImm(slot int, v int64) {
	m.mem[slot] = v
	m.ops = append(m.ops, fmt.Sprintf("store [%d], #%d", slot, v))
}

func (m *machine) LoadImm(r frame.Reg, v int64) {
	m.regs[r] = v
	m.ops = append(m.ops, fmt.Sprintf("mov %s, #%d", r, v))
}

func (m *machine) Move(dst, src frame.Reg) {
	m.regs[dst] = m.regs[src]
	m.ops = append(m.ops, fmt.Sprintf("mov %s, %s", dst, src))
}

func (m *machine) Swap(a, b frame.Reg) {
	m.regs[a], m.regs[b] = m.regs[b], m.regs[a]
	m.ops = append(m.ops, fmt.Sprintf("xchg %s, %s", a, b))
}

var testRegs = []frame.Reg{0, 1, 2, 3, 4, 5}

func newFrame(m *machine, locals, maxStack int, regs ...frame.Reg) *frame.Frame {
	if len(regs) == 0 {
		regs = testRegs
	}
	return frame.New(locals, maxStack, regalloc.New(regs), m)
}

// pushFresh 把一个新值写入空闲寄存器并压栈
func pushFresh(t *testing.T, f *frame.Frame, m *machine) int64 {
	r, err := f.AllocRegister(0)
	require.NoError(t, err)
	v := m.fresh()
	m.regs[r] = v
	require.NoError(t, f.PushResult(r))
	return v
}

// pushIn 把一个新值写入指定寄存器并压栈
func pushIn(t *testing.T, f *frame.Frame, m *machine, r frame.Reg) int64 {
	v := m.fresh()
	m.regs[r] = v
	require.NoError(t, f.PushResult(r))
	return v
}

// values 按帧描述读出每个槽当前的值
func values(f *frame.Frame, m *machine) []int64 {
	out := make([]int64, f.Len())
	for i := range out {
		s := f.Slot(i)
		switch s.Kind {
		case frame.KindRegister, frame.KindRegisterPair:
			out[i] = m.regs[s.Reg]
		case frame.KindImmediate:
			out[i] = s.Imm
		case frame.KindMemory:
			out[i] = m.mem[i]
		}
	}
	return out
}

// ============================================================================
// 栈操作
// ============================================================================

func TestOverflowAndUnderflow(t *testing.T) {
	f := newFrame(newMachine(), 0, 1)
	require.NoError(t, f.PushImm(1))

	err := f.PushImm(2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, frame.ErrFrameOverflow))
	assert.Equal(t, jerrors.J0001, jerrors.CodeOf(err))
	assert.True(t, jerrors.IsInvariant(err))

	_, err = f.Pop()
	require.NoError(t, err)
	_, err = f.Pop()
	assert.True(t, errors.Is(err, frame.ErrUnderflow))
	assert.Equal(t, jerrors.J0002, jerrors.CodeOf(err))
}

func TestPopKind(t *testing.T) {
	f := newFrame(newMachine(), 0, 2)
	require.NoError(t, f.PushImm(4))
	s, err := f.PopKind(frame.KindImmediate)
	require.NoError(t, err)
	assert.Equal(t, int64(4), s.Imm)

	require.NoError(t, f.PushMemory())
	_, err = f.PopKind(frame.KindRegister)
	assert.True(t, errors.Is(err, frame.ErrKindMismatch))
}

func TestAliasingIsRefcounted(t *testing.T) {
	m := newMachine()
	rf := regalloc.New(testRegs)
	f := frame.New(1, 4, rf, m)

	pushIn(t, f, m, 2)
	require.NoError(t, f.Dup())
	assert.Equal(t, []int{1, 2}, f.Users(2))
	assert.NotZero(t, f.Slot(1).Flags&frame.FlagAliased)
	assert.NotZero(t, f.Slot(2).Flags&frame.FlagAliased)

	_, err := f.Pop()
	require.NoError(t, err)
	assert.False(t, rf.IsFree(2))
	assert.Zero(t, f.Slot(1).Flags&frame.FlagAliased)

	_, err = f.Pop()
	require.NoError(t, err)
	assert.True(t, rf.IsFree(2))
	assert.NoError(t, f.Check())
}

func TestPushLocalCachesTheLoad(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 2, 2)
	f.SetMemoryLocals()
	m.mem[1] = 77

	require.NoError(t, f.PushLocal(1))
	local := f.Slot(1)
	top := f.Slot(2)
	assert.Equal(t, frame.KindRegister, local.Kind)
	assert.False(t, local.Dirty())
	assert.Equal(t, local.Reg, top.Reg)
	assert.True(t, top.Dirty())
	assert.Equal(t, []string{"load r0, [1]"}, m.ops)

	// 第二次读取不再访问内存
	require.NoError(t, f.PushLocal(1))
	assert.Len(t, m.ops, 1)
	assert.Equal(t, []int64{m.mem[0], 77, 77, 77}, values(f, m))
	assert.NoError(t, f.Check())
}

func TestStoreLocalKeepsCleanLocal(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 1, 1)
	f.SetMemoryLocals()

	require.NoError(t, f.PushLocal(0))
	require.NoError(t, f.StoreLocal(0))
	assert.False(t, f.Slot(0).Dirty())
	assert.Equal(t, 0, f.Depth())
	assert.NoError(t, f.Check())
}

func TestSwapMovesMemoryValuesIntoRegisters(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 2)
	m.mem[0] = 11
	m.mem[1] = 22
	require.NoError(t, f.PushMemory())
	require.NoError(t, f.PushMemory())

	require.NoError(t, f.Swap())
	assert.Equal(t, []int64{22, 11}, values(f, m))
	assert.True(t, f.Slot(0).Dirty())
	assert.True(t, f.Slot(1).Dirty())
	assert.NoError(t, f.Check())
}

// ============================================================================
// 溢出与写回
// ============================================================================

func TestAllocRegisterSpillsUnpinnedVictim(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 3, 0, 1)
	a := pushIn(t, f, m, 0)
	b := pushIn(t, f, m, 1)
	f.Pin(0)

	r, err := f.AllocRegister(0)
	require.NoError(t, err)
	assert.Equal(t, frame.Reg(1), r)
	assert.Equal(t, frame.KindMemory, f.Slot(1).Kind)
	assert.Equal(t, []int64{a, b}, values(f, m))

	f.Pin(1)
	require.NoError(t, f.ClaimScratchReg(1))
	_, err = f.AllocRegister(0)
	assert.True(t, errors.Is(err, frame.ErrNoRegister))
	assert.Equal(t, jerrors.J0007, jerrors.CodeOf(err))
}

func TestSpillPinnedFails(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 1)
	pushIn(t, f, m, 3)
	f.Pin(0)
	err := f.SpillRegister(3)
	assert.True(t, errors.Is(err, frame.ErrPinnedSpill))
	f.UnpinAll()
	assert.NoError(t, f.SpillRegister(3))
}

func TestFlushMakesFrameMemoryResident(t *testing.T) {
	m := newMachine()
	rf := regalloc.New(testRegs)
	f := frame.New(2, 3, rf, m)
	f.SetMemoryLocals()
	m.mem[0], m.mem[1] = 5, 6

	require.NoError(t, f.PushLocal(0)) // 干净的局部变量缓存
	pushFresh(t, f, m)
	require.NoError(t, f.PushImm(9))
	want := values(f, m)
	m.ops = nil

	require.NoError(t, f.Flush())
	for i := 0; i < f.Len(); i++ {
		assert.Equal(t, frame.KindMemory, f.Slot(i).Kind, "slot %d", i)
	}
	assert.Equal(t, want, values(f, m))
	assert.Len(t, m.ops, 3) // 别名栈项、新值、立即数；局部变量本来就在内存
	assert.Equal(t, len(testRegs), rf.NumFree())
	assert.NoError(t, f.Check())
}

func TestWidenDropsImmediatesAndAliases(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 1, 3)
	pushIn(t, f, m, 4)
	require.NoError(t, f.StoreLocal(0))
	require.NoError(t, f.PushLocal(0))
	require.NoError(t, f.PushImm(9))
	_, err := f.EnsureStack(0)
	require.NoError(t, err)
	want := values(f, m)

	require.NoError(t, f.Widen())
	assert.Equal(t, frame.KindRegister, f.Slot(0).Kind)
	assert.Equal(t, frame.KindMemory, f.Slot(1).Kind)
	assert.Zero(t, f.Slot(0).Flags&frame.FlagAliased)
	for r := frame.Reg(0); r < frame.MaxRegs; r++ {
		_, ok := f.Immediate(r)
		assert.False(t, ok)
	}
	assert.Equal(t, want, values(f, m))
	assert.NoError(t, f.Check())
}

func TestWidenWritesBackImmediates(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 1, 1)
	require.NoError(t, f.PushImm(3))
	require.NoError(t, f.StoreLocal(0))
	require.NoError(t, f.Widen())
	assert.Equal(t, frame.KindMemory, f.Slot(0).Kind)
	assert.Equal(t, []string{"store [0], #3"}, m.ops)
}

// ============================================================================
// 合并
// ============================================================================

func TestConformToSelfEmitsNothing(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 2, 4)
	f.SetMemoryLocals()
	require.NoError(t, f.PushLocal(0))
	pushFresh(t, f, m)
	require.NoError(t, f.PushImm(5))
	require.NoError(t, f.Dup())
	m.ops = nil

	f.Verify = true
	before := f.Emitted()
	require.NoError(t, f.ConformTo(f.Clone()))
	assert.Empty(t, m.ops)
	assert.Equal(t, before, f.Emitted())
}

// 两个局部变量互换寄存器：一条交换指令
func TestConformSwapsTwoCycle(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 2, 1)
	a := pushIn(t, f, m, 0)
	require.NoError(t, f.StoreLocal(0))
	b := pushIn(t, f, m, 1)
	require.NoError(t, f.StoreLocal(1))

	tm := newMachine()
	target := newFrame(tm, 2, 1)
	pushIn(t, target, tm, 1)
	require.NoError(t, target.StoreLocal(0))
	pushIn(t, target, tm, 0)
	require.NoError(t, target.StoreLocal(1))

	m.ops = nil
	f.Verify = true
	require.NoError(t, f.ConformTo(target))
	assert.Equal(t, []string{"xchg r1, r0"}, m.ops)
	assert.Equal(t, []int64{a, b}, values(f, m))
}

func TestConformRotatesThreeCycle(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 3, 1)
	var want []int64
	for i := 0; i < 3; i++ {
		want = append(want, pushIn(t, f, m, frame.Reg(i)))
		require.NoError(t, f.StoreLocal(i))
	}

	tm := newMachine()
	target := newFrame(tm, 3, 1)
	for i := 0; i < 3; i++ {
		pushIn(t, target, tm, frame.Reg((i+1)%3))
		require.NoError(t, target.StoreLocal(i))
	}

	m.ops = nil
	f.Verify = true
	require.NoError(t, f.ConformTo(target))
	assert.Len(t, m.ops, 2)
	assert.Equal(t, want, values(f, m))
	assert.Equal(t, frame.Reg(1), f.Slot(0).Reg)
	assert.Equal(t, frame.Reg(2), f.Slot(1).Reg)
	assert.Equal(t, frame.Reg(0), f.Slot(2).Reg)
}

// 共享寄存器的两个槽分到两个寄存器：先复制，不需要交换
func TestConformSplitsAlias(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 2)
	v := pushIn(t, f, m, 0)
	require.NoError(t, f.Dup())

	tm := newMachine()
	target := newFrame(tm, 0, 2)
	pushIn(t, target, tm, 0)
	pushIn(t, target, tm, 1)

	m.ops = nil
	f.Verify = true
	require.NoError(t, f.ConformTo(target))
	assert.Equal(t, []string{"mov r1, r0"}, m.ops)
	assert.Equal(t, []int64{v, v}, values(f, m))
	assert.Zero(t, f.Slot(0).Flags&frame.FlagAliased)
}

func TestConformStoresLoadsAndMaterializes(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 2, 1)
	f.SetMemoryLocals()
	m.mem[1] = 8
	a := pushIn(t, f, m, 3)
	require.NoError(t, f.StoreLocal(0))
	require.NoError(t, f.PushImm(7))

	tm := newMachine()
	target := newFrame(tm, 2, 1)
	target.SetMemoryLocals()
	tm.mem[0] = 0
	require.NoError(t, target.PushLocal(1)) // 局部变量 1 缓存在 r0
	require.NoError(t, target.StoreLocal(1))
	pushIn(t, target, tm, 5)

	m.ops = nil
	f.Verify = true
	require.NoError(t, f.ConformTo(target))
	assert.Equal(t, []string{
		"store [0], r3",
		"load r0, [1]",
		"mov r5, #7",
	}, m.ops)
	assert.Equal(t, []int64{a, 8, 7}, values(f, m))
}

func TestConformImmediateMismatchIsFatal(t *testing.T) {
	f := newFrame(newMachine(), 0, 1)
	require.NoError(t, f.PushImm(6))
	target := newFrame(newMachine(), 0, 1)
	require.NoError(t, target.PushImm(5))

	err := f.ConformTo(target)
	assert.True(t, errors.Is(err, frame.ErrMergeConflict))
	assert.Equal(t, jerrors.J0004, jerrors.CodeOf(err))
}

func TestConformLoadsMemorySlotDespiteCachedTarget(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 1)
	m.mem[0] = 9
	require.NoError(t, f.PushMemory())

	// 目标的 r0 缓存 #5，但当前帧的值只在内存里
	target := newFrame(newMachine(), 0, 1)
	require.NoError(t, target.PushImm(5))
	_, err := target.EnsureStack(0)
	require.NoError(t, err)

	m.ops = nil
	f.Verify = true
	err = f.ConformTo(target)
	assert.True(t, errors.Is(err, frame.ErrMergeConflict))
	assert.Equal(t, jerrors.J0004, jerrors.CodeOf(err))
	assert.NotContains(t, m.ops, "mov r0, #5")
	assert.Equal(t, int64(9), m.regs[0])
}

func TestConformMaterializesKnownImmediateIntoCachedTarget(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 1)
	require.NoError(t, f.PushImm(5))

	target := newFrame(newMachine(), 0, 1)
	require.NoError(t, target.PushImm(5))
	_, err := target.EnsureStack(0)
	require.NoError(t, err)

	f.Verify = true
	require.NoError(t, f.ConformTo(target))
	assert.Equal(t, []int64{5}, values(f, m))
	v, ok := f.Immediate(0)
	assert.True(t, ok)
	assert.Equal(t, int64(5), v)
}

func TestConformUnresolvableAlias(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 2)
	pushIn(t, f, m, 0)
	pushIn(t, f, m, 1)

	tm := newMachine()
	target := newFrame(tm, 0, 2)
	pushIn(t, target, tm, 0)
	require.NoError(t, target.Dup())

	err := f.ConformTo(target)
	assert.True(t, errors.Is(err, frame.ErrUnresolvableAlias))
	assert.Equal(t, jerrors.J0003, jerrors.CodeOf(err))
}

func TestConformDepthMismatch(t *testing.T) {
	f := newFrame(newMachine(), 0, 2)
	target := newFrame(newMachine(), 0, 2)
	require.NoError(t, target.PushImm(1))
	err := f.ConformTo(target)
	assert.True(t, errors.Is(err, frame.ErrDepthMismatch))
}

func TestConformDowngradesConditional(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 1)
	v := pushIn(t, f, m, 2)
	f.MarkConditional(0)

	tm := newMachine()
	target := newFrame(tm, 0, 1)
	pushIn(t, target, tm, 2)

	m.ops = nil
	f.Verify = true
	require.NoError(t, f.ConformTo(target))
	assert.Equal(t, []string{"store [0], r2", "load r2, [0]"}, m.ops)
	assert.Equal(t, []int64{v}, values(f, m))
}

func TestConformWritesBackPairs(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 2)
	m.regs[0], m.regs[1] = 1, 2
	require.NoError(t, f.PushPair(0, 1))
	assert.Equal(t, 2, f.Depth())

	target := newFrame(newMachine(), 0, 2)
	require.NoError(t, target.PushMemory())
	require.NoError(t, target.PushMemory())

	m.ops = nil
	require.NoError(t, f.ConformTo(target))
	assert.Equal(t, []string{"store [0], r0", "store [1], r1"}, m.ops)
	assert.Equal(t, int64(1), m.mem[0])
	assert.Equal(t, int64(2), m.mem[1])
}

func TestPairRoundTrip(t *testing.T) {
	rf := regalloc.New(testRegs)
	f := frame.New(0, 2, rf, newMachine())
	require.NoError(t, f.PushPair(2, 3))
	assert.False(t, rf.IsFree(2))
	assert.False(t, rf.IsFree(3))

	s, err := f.PopPair()
	require.NoError(t, err)
	assert.Equal(t, frame.Reg(2), s.Reg)
	assert.Equal(t, frame.Reg(3), s.Hi)
	assert.True(t, rf.IsFree(2))
	assert.True(t, rf.IsFree(3))
}

func TestVerifyReportsEveryMismatch(t *testing.T) {
	a := newFrame(newMachine(), 0, 2)
	require.NoError(t, a.PushImm(1))
	require.NoError(t, a.PushImm(2))
	b := newFrame(newMachine(), 0, 2)
	require.NoError(t, b.PushImm(3))
	require.NoError(t, b.PushImm(4))

	err := frame.VerifyConformTo(a, b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, frame.ErrVerify))
	assert.Equal(t, jerrors.J0009, jerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "stack 0")
	assert.Contains(t, err.Error(), "stack 1")
}

// ============================================================================
// 随机合并
// ============================================================================

const (
	randLocals = 4
	randStack  = 4
)

func randomFrame(t *testing.T, rng *rand.Rand, m *machine, depth int) *frame.Frame {
	f := newFrame(m, randLocals, randStack)
	f.SetMemoryLocals()
	for i := 0; i < randLocals; i++ {
		m.mem[i] = m.fresh()
		switch rng.Intn(3) {
		case 0:
			require.NoError(t, f.PushImm(int64(rng.Intn(3))))
			require.NoError(t, f.StoreLocal(i))
		case 1:
			pushFresh(t, f, m)
			require.NoError(t, f.StoreLocal(i))
		}
	}
	for f.Depth() < depth {
		switch op := rng.Intn(5); {
		case op == 0:
			require.NoError(t, f.PushLocal(rng.Intn(randLocals)))
		case op == 1:
			require.NoError(t, f.PushImm(int64(rng.Intn(3))))
		case op == 2:
			pushFresh(t, f, m)
		case op == 3 && f.Depth() > 0:
			require.NoError(t, f.Dup())
		default:
			m.mem[f.Len()] = m.fresh()
			require.NoError(t, f.PushMemory())
		}
		if f.Depth() >= 2 && rng.Intn(4) == 0 {
			require.NoError(t, f.Swap())
		}
		if f.Depth() > 0 && rng.Intn(4) == 0 {
			_, err := f.EnsureStack(0)
			require.NoError(t, err)
		}
	}
	return f
}

func TestConformRandomFramesPreserveValues(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 300; iter++ {
		depth := rng.Intn(randStack + 1)

		m := newMachine()
		f := randomFrame(t, rng, m, depth)
		require.NoError(t, f.Check())

		tm := newMachine()
		target := randomFrame(t, rng, tm, depth)
		require.NoError(t, target.Widen())

		before := values(f, m)
		f.Verify = true
		require.NoError(t, f.ConformTo(target), "iteration %d: %s -> %s", iter, f, target)
		assert.Equal(t, before, values(f, m), "iteration %d", iter)

		// 再次合并是空操作
		n := len(m.ops)
		require.NoError(t, f.ConformTo(target))
		assert.Equal(t, n, len(m.ops), "iteration %d", iter)
	}
}

// 目标不经过泛化：由当前帧派生，保留立即数缓存与别名
func TestConformUnwidenedTargetsNeverLoseValues(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 300; iter++ {
		depth := rng.Intn(randStack + 1)

		m := newMachine()
		f := randomFrame(t, rng, m, depth)

		target := f.Clone()
		target.SetEmitter(newMachine())
		for k := 0; k < depth; k++ {
			if rng.Intn(2) == 0 {
				_, err := target.EnsureStack(k)
				require.NoError(t, err)
			}
		}
		require.NoError(t, target.Check())

		// 当前帧写回内存后，目标缓存的立即数不再能从帧描述中得知
		if rng.Intn(2) == 0 {
			require.NoError(t, f.Flush())
		}

		before := values(f, m)
		f.Verify = true
		err := f.ConformTo(target)
		if err != nil {
			// 只允许显式拒绝，不允许悄悄换掉值
			fatal := errors.Is(err, frame.ErrMergeConflict) || errors.Is(err, frame.ErrUnresolvableAlias)
			require.True(t, fatal, "iteration %d: %v", iter, err)
			continue
		}
		assert.Equal(t, before, values(f, m), "iteration %d: %s -> %s", iter, f, target)
	}
}

// ============================================================================
// 慢路径恢复
// ============================================================================

func TestRestoreReloadsAliasedRegisters(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 2, 3)
	f.SetMemoryLocals()
	m.mem[0], m.mem[1] = 5, 6

	require.NoError(t, f.PushLocal(0))
	require.NoError(t, f.Dup())
	pushFresh(t, f, m)
	require.NoError(t, f.StoreLocal(1))
	want := values(f, m)

	saved := f.Clone()
	require.NoError(t, f.Flush())
	// 运行时调用破坏所有寄存器
	for r := range m.regs {
		m.regs[r] = -99
	}

	// 别名无法从一般的合并中消解
	err := f.Clone().ConformTo(saved)
	require.Error(t, err)

	f.Verify = true
	require.NoError(t, f.Restore(saved))
	assert.Equal(t, want, values(f, m))
	assert.NoError(t, f.Check())
	for i := 0; i < f.Len(); i++ {
		assert.True(t, f.Slot(i).SameLocation(saved.Slot(i)), "slot %d", i)
	}
}

func TestRestoreRematerializesCachedImmediates(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 2)
	require.NoError(t, f.PushImm(7))
	r, err := f.EnsureStack(0)
	require.NoError(t, err)
	require.NoError(t, f.Drop(1))
	require.NoError(t, f.PushImm(1))

	saved := f.Clone()
	require.NoError(t, f.Flush())
	require.NoError(t, f.Clobber(frame.Regs(r)))
	m.regs[r] = -99

	require.NoError(t, f.Restore(saved))
	v, ok := f.Immediate(r)
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, int64(7), m.regs[r])
}

func TestRestoreRequiresMemoryResidentFrame(t *testing.T) {
	m := newMachine()
	f := newFrame(m, 0, 1)
	pushFresh(t, f, m)
	err := f.Restore(f.Clone())
	require.Error(t, err)
	assert.True(t, errors.Is(err, frame.ErrMergeConflict))

	g := newFrame(m, 0, 2)
	require.NoError(t, g.PushImm(1))
	h := newFrame(m, 0, 2)
	err = g.Restore(h)
	assert.True(t, errors.Is(err, frame.ErrDepthMismatch))
}
