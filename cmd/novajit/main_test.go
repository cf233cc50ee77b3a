package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tangzhangming/novajit/internal/bytecode"
	"github.com/tangzhangming/novajit/internal/jit"
	"github.com/tangzhangming/novajit/internal/jit/queue"
	"github.com/tangzhangming/novajit/internal/jit/trampoline"
)

func TestDemoMethodsCompile(t *testing.T) {
	cfg := jit.DefaultConfig()
	cfg.VerifyMerges = true
	c, err := jit.New(cfg, zaptest.NewLogger(t), trampoline.Placeholder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Reset() })

	for _, m := range demoMethods() {
		cm, err := c.Compile(m)
		require.NoError(t, err, m.Name)
		assert.NotEmpty(t, cm.Code, m.Name)
	}

	cmp, ok := c.Lookup("demo.cmp")
	require.True(t, ok)
	assert.Equal(t, 1, cmp.Result.Elements[queue.KindContinuation])

	sum, ok := c.Lookup("demo.sum")
	require.True(t, ok)
	assert.Len(t, sum.Result.OSREntries, 1)
}

func TestDemoArchiveRoundTrip(t *testing.T) {
	methods := demoMethods()
	data, err := bytecode.MarshalMethods(methods...)
	require.NoError(t, err)
	loaded, err := bytecode.UnmarshalMethods(data)
	require.NoError(t, err)
	require.Len(t, loaded, len(methods))
	for i := range methods {
		assert.Equal(t, methods[i].Name, loaded[i].Name)
		assert.Equal(t, methods[i].Code, loaded[i].Code)
	}
}
