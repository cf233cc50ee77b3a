package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassOf(t *testing.T) {
	assert.Equal(t, ClassResource, ClassOf(J0100))
	assert.Equal(t, ClassResource, ClassOf(J0204))
	assert.Equal(t, ClassInvariant, ClassOf(J0003))
	assert.Equal(t, ClassInvariant, ClassOf("nope"))
	assert.Equal(t, "resource", ClassResource.String())
	assert.Equal(t, "invariant", ClassInvariant.String())
}

func TestConstructors(t *testing.T) {
	e := New(J0100, fmt.Errorf("pool exhausted"))
	assert.Equal(t, ClassResource, e.Class)
	assert.Equal(t, -1, e.BCI)
	assert.Equal(t, "J0100: pool exhausted", e.Error())

	assert.True(t, IsInvariant(Invariantf(J0002, "pop on empty stack")))
	assert.True(t, IsResource(Resourcef(J0204, "code cache full")))
	assert.False(t, IsResource(errors.New("plain")))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestWrapAddsLocationOnce(t *testing.T) {
	assert.Nil(t, Wrap(nil, "m", 3))

	inner := Invariantf(J0005, "depth 2 != 3")
	outer := Wrap(inner, "demo.max", 7)
	assert.Equal(t, "J0005 demo.max@7: depth 2 != 3", outer.Error())
	assert.Equal(t, -1, inner.BCI)

	// 已有位置不会被覆盖
	again := Wrap(fmt.Errorf("ctx: %w", outer), "other", 9)
	var je *Error
	require.True(t, errors.As(again, &je))
	assert.Equal(t, "demo.max", je.Method)
	assert.Equal(t, 7, je.BCI)

	plain := Wrap(errors.New("boom"), "m", 0)
	assert.True(t, IsInvariant(plain))
	assert.Equal(t, "", CodeOf(plain))
}

func TestFormat(t *testing.T) {
	SetColorsEnabled(false)
	t.Cleanup(func() { SetColorsEnabled(detectColorSupport()) })

	err := Wrap(Resourcef(J0204, "code cache full"), "demo.sum", 12)
	out := Format(err)
	assert.Equal(t, "resource[J0204]: 可执行内存分配失败\n"+
		"  --> demo.sum@12\n"+
		"  = cause: code cache full\n"+
		"  = help: 调大 jit.code_cache_bytes，或调用 Reset 清空代码缓存\n", out)

	out = Format(Invariantf(J0003, "rax aliased"))
	assert.Equal(t, "error[J0003]: 寄存器别名无法消解\n  = cause: rax aliased\n", out)

	assert.Equal(t, "error: boom\n", Format(errors.New("boom")))
	assert.Empty(t, Format(nil))
}

func TestColorize(t *testing.T) {
	SetColorsEnabled(true)
	t.Cleanup(func() { SetColorsEnabled(detectColorSupport()) })

	s := Colorize("x", ColorRed)
	assert.NotEqual(t, "x", s)
	assert.Equal(t, "x", Strip(s))
	assert.True(t, ColorsEnabled())
}
