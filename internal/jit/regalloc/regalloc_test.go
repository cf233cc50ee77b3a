package regalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/novajit/internal/jit/frame"
)

func TestPickFollowsPreference(t *testing.T) {
	rf := New([]frame.Reg{3, 12, 1})

	r, ok := rf.Pick(0)
	require.True(t, ok)
	assert.Equal(t, frame.Reg(3), r)

	r, ok = rf.Pick(frame.Regs(3))
	require.True(t, ok)
	assert.Equal(t, frame.Reg(12), r)

	rf.Reserve(3)
	rf.Reserve(12)
	r, ok = rf.Pick(0)
	require.True(t, ok)
	assert.Equal(t, frame.Reg(1), r)

	rf.Reserve(1)
	_, ok = rf.Pick(0)
	assert.False(t, ok)
	assert.Equal(t, 0, rf.NumFree())
}

func TestUnmanagedRegistersAreNeverFree(t *testing.T) {
	rf := New([]frame.Reg{0, 1})
	assert.False(t, rf.IsFree(15))
	rf.Release(15)
	assert.False(t, rf.IsFree(15))
	assert.Equal(t, frame.Regs(0, 1), rf.Managed())
}

func TestCloneIsIndependent(t *testing.T) {
	rf := New([]frame.Reg{0, 1})
	c := rf.Clone()
	c.Reserve(0)
	assert.True(t, rf.IsFree(0))
	assert.False(t, c.IsFree(0))
	assert.Equal(t, frame.Regs(0), c.(*RegisterFile).Used())
	assert.Equal(t, frame.RegSet(0), rf.Used())
}
