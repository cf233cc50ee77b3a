// jit_test.go - JIT 编译服务测试

package jit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tangzhangming/novajit/internal/bytecode"
	jerrors "github.com/tangzhangming/novajit/internal/errors"
	"github.com/tangzhangming/novajit/internal/jit/platform"
	"github.com/tangzhangming/novajit/internal/jit/queue"
	"github.com/tangzhangming/novajit/internal/jit/trampoline"
)

func newCompiler(t *testing.T, cfg *Config) *Compiler {
	t.Helper()
	c, err := New(cfg, zaptest.NewLogger(t), trampoline.Placeholder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Reset() })
	return c
}

func maxMethod(name string) *bytecode.Method {
	b := bytecode.NewBuilder(name, 2, 2)
	ge, end := b.NewLabel(), b.NewLabel()
	b.Local(bytecode.OpIload, 0).
		Local(bytecode.OpIload, 1).
		Branch(bytecode.OpIfIcmpge, ge).
		Iconst(1).
		Branch(bytecode.OpGoto, end).
		Bind(ge).
		Iconst(0).
		Bind(end).
		Op(bytecode.OpIreturn)
	return b.MustBuild()
}

// broken 含有未知操作码的方法，分析阶段即失败
func broken(name string) *bytecode.Method {
	return &bytecode.Method{
		Name:      name,
		MaxLocals: 1,
		MaxStack:  1,
		Code:      []byte{0xFE, byte(bytecode.OpReturn)},
	}
}

// ============================================================================
// 配置
// ============================================================================

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Registers = []string{"rbx", "r12", "rcx"}
	cfg.SuspendOnDefer = true

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, []platform.Reg{platform.RBX, platform.R12, platform.RCX}, opts.Registers)
	assert.True(t, opts.SuspendOnDefer)
	assert.True(t, opts.OSR)
	assert.Equal(t, cfg.MaxPoolElements, opts.MaxElements)

	cfg.Registers = []string{"xmm0"}
	_, err = cfg.Options()
	assert.Error(t, err)
	_, err = New(cfg, nil, trampoline.Placeholder())
	assert.Error(t, err)
}

// ============================================================================
// 编译与缓存
// ============================================================================

func TestCompileCachesMethod(t *testing.T) {
	c := newCompiler(t, nil)
	m := maxMethod("max")

	cm, err := c.Compile(m)
	require.NoError(t, err)
	assert.Equal(t, "max", cm.Name)
	assert.NotEmpty(t, cm.Code)
	assert.NotZero(t, cm.Entry)
	assert.Equal(t, 1, cm.Result.Elements[queue.KindContinuation])

	again, err := c.Compile(m)
	require.NoError(t, err)
	assert.Same(t, cm, again)

	got, ok := c.Lookup("max")
	require.True(t, ok)
	assert.Same(t, cm, got)
	assert.Equal(t, []string{"max"}, c.Methods())

	st := c.Stats()
	assert.EqualValues(t, 1, st.Compiled)
	assert.EqualValues(t, 1, st.CacheHits)
	assert.EqualValues(t, 1, st.CacheMisses)
	assert.EqualValues(t, len(cm.Code), st.CodeBytes)
	assert.Positive(t, st.Elements)
}

func TestBailoutIsRemembered(t *testing.T) {
	c := newCompiler(t, nil)
	m := broken("odd")

	_, err := c.Compile(m)
	require.Error(t, err)
	var b *Bailout
	require.True(t, errors.As(err, &b))
	assert.Equal(t, "odd", b.Method)
	assert.NotEmpty(t, b.Code)
	assert.Equal(t, jerrors.ClassInvariant, b.Class)
	assert.True(t, c.InterpretOnly("odd"))

	// 不会重试
	_, again := c.Compile(m)
	assert.Same(t, err, again)
	assert.EqualValues(t, 1, c.Stats().Bailouts)
	assert.EqualValues(t, 1, c.Stats().CacheMisses)

	c.Invalidate("odd")
	assert.False(t, c.InterpretOnly("odd"))
}

func TestResourceBailout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CodeCacheBytes = 16
	c := newCompiler(t, cfg)

	_, err := c.Compile(maxMethod("big"))
	require.Error(t, err)
	assert.True(t, jerrors.IsResource(err))
	assert.Equal(t, jerrors.J0204, jerrors.CodeOf(err))
	assert.Zero(t, c.cache.Used())
}

func TestDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	c := newCompiler(t, cfg)

	_, err := c.Compile(maxMethod("max"))
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Nil(t, c.RecordInvocation(maxMethod("max")))
}

func TestConcurrentCompileOfSameMethod(t *testing.T) {
	c := newCompiler(t, nil)
	c.compiling["busy"] = true

	_, err := c.Compile(maxMethod("busy"))
	require.Error(t, err)
	assert.Equal(t, jerrors.J0205, jerrors.CodeOf(err))
	assert.False(t, c.InterpretOnly("busy"))
}

func TestHotspotTriggersCompile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HotspotThreshold = 3
	c := newCompiler(t, cfg)
	m := maxMethod("hot")

	assert.Nil(t, c.RecordInvocation(m))
	assert.Nil(t, c.RecordInvocation(m))
	cm := c.RecordInvocation(m)
	require.NotNil(t, cm)
	assert.Same(t, cm, c.RecordInvocation(m))
	assert.EqualValues(t, 1, c.Stats().HotspotCompiles)
}

func TestResetClearsEverything(t *testing.T) {
	c := newCompiler(t, nil)
	_, err := c.Compile(maxMethod("a"))
	require.NoError(t, err)
	_, _ = c.Compile(broken("b"))

	require.NoError(t, c.Reset())
	_, ok := c.Lookup("a")
	assert.False(t, ok)
	assert.False(t, c.InterpretOnly("b"))
	assert.Equal(t, Stats{}, c.Stats())
	assert.Zero(t, c.cache.Used())
}

func TestOSREntryAddress(t *testing.T) {
	b := bytecode.NewBuilder("spin", 1, 1)
	head, exit := b.NewLabel(), b.NewLabel()
	b.Bind(head).
		Local(bytecode.OpIload, 0).
		Branch(bytecode.OpIfeq, exit).
		Iinc(0, -1).
		Branch(bytecode.OpGoto, head).
		Bind(exit).
		Op(bytecode.OpReturn)

	c := newCompiler(t, nil)
	cm, err := c.Compile(b.MustBuild())
	require.NoError(t, err)

	addr, ok := cm.OSREntry(0)
	require.True(t, ok)
	assert.Greater(t, addr, cm.Entry)
	assert.Less(t, addr, cm.Entry+uintptr(len(cm.Code)))
	_, ok = cm.OSREntry(1)
	assert.False(t, ok)
}

// ============================================================================
// 代码内存
// ============================================================================

func TestCodeCacheInstall(t *testing.T) {
	cc := NewCodeCache(0)
	code := []byte{0xC3}
	r, err := cc.install(code)
	require.NoError(t, err)
	assert.Equal(t, code, r.code)
	assert.NotZero(t, r.entry())
	if r.executable() {
		assert.Nil(t, r.mapErr)
	}
	assert.Equal(t, 1, cc.Used())
	require.NoError(t, cc.Clear())
	assert.Zero(t, cc.Used())
}

func TestPageAlign(t *testing.T) {
	assert.Equal(t, 4096, pageAlign(0, 4096))
	assert.Equal(t, 4096, pageAlign(1, 4096))
	assert.Equal(t, 4096, pageAlign(4096, 4096))
	assert.Equal(t, 8192, pageAlign(4097, 4096))
}
