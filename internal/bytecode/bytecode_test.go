package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// maxOf: iload_0; iload_1; if_icmpge L; iconst_1; goto END; L: iconst_0; END: ireturn
func buildCompare(t *testing.T) *Method {
	b := NewBuilder("cmp", 2, 2)
	l, end := b.NewLabel(), b.NewLabel()
	b.Op(OpIload0, OpIload1).Branch(OpIfIcmpge, l)
	b.Op(OpIconst1).Branch(OpGoto, end)
	b.Bind(l).Op(OpIconst0)
	b.Bind(end).Op(OpIreturn)
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func TestBuilderEncodesBranches(t *testing.T) {
	m := buildCompare(t)

	require.Equal(t, 11, len(m.Code))
	assert.Equal(t, 2, m.MaxStack)

	in, err := DecodeAt(m.Code, 2)
	require.NoError(t, err)
	assert.Equal(t, OpIfIcmpge, in.Op)
	assert.Equal(t, 9, in.Target)
	assert.Equal(t, 5, in.Next)

	in, err = DecodeAt(m.Code, 6)
	require.NoError(t, err)
	assert.Equal(t, OpGoto, in.Op)
	assert.Equal(t, 10, in.Target)
}

func TestAnalyzeBlocksAndJoins(t *testing.T) {
	m := buildCompare(t)
	info, err := Analyze(m)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, -1, -1, 0, 1, -1, -1, 0, 1}, info.Depth)
	for _, bci := range []int{0, 5, 9, 10} {
		assert.True(t, info.BlockStart[bci], "block start at %d", bci)
	}
	assert.Equal(t, 2, info.Preds[10])
	assert.True(t, info.IsJoin(10))
	assert.False(t, info.IsJoin(9))
	assert.False(t, info.IsJoin(5))
}

func TestAnalyzeLoopHeader(t *testing.T) {
	// i = 0; while (i < n) i++; return i
	b := NewBuilder("count", 1, 2)
	head, exit := b.NewLabel(), b.NewLabel()
	b.Op(OpIconst0).Local(OpIstore, 1)
	b.Bind(head).Local(OpIload, 1).Local(OpIload, 0).Branch(OpIfIcmpge, exit)
	b.Iinc(1, 1).Branch(OpGoto, head)
	b.Bind(exit).Local(OpIload, 1).Op(OpIreturn)
	m, err := b.Build()
	require.NoError(t, err)

	info, err := Analyze(m)
	require.NoError(t, err)
	assert.True(t, info.LoopHeader[2])
	assert.True(t, info.IsJoin(2))
	assert.Equal(t, 2, info.Preds[2])
}

func TestAnalyzeReportsAllProblems(t *testing.T) {
	m := &Method{
		Name:      "bad",
		MaxLocals: 1,
		MaxStack:  1,
		Code:      []byte{byte(OpIadd), byte(OpIreturn)},
	}
	_, err := Analyze(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "underflows")

	m = &Method{
		Name:      "deep",
		MaxLocals: 1,
		MaxStack:  1,
		Code:      []byte{byte(OpIconst1), byte(OpIconst2), byte(OpIadd), byte(OpIreturn)},
	}
	_, err = Analyze(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
}

func TestAnalyzeHandlers(t *testing.T) {
	b := NewBuilder("guarded", 1, 1)
	start, end, handler := b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Bind(start).Local(OpIload, 0).Iconst(10).Op(OpIdiv)
	b.Bind(end).Op(OpIreturn)
	b.Bind(handler).Op(OpPop).Iconst(-1).Op(OpIreturn)
	b.Handler(start, end, handler, 0)
	m, err := b.Build()
	require.NoError(t, err)

	info, err := Analyze(m)
	require.NoError(t, err)
	hpc := int(m.Handlers[0].HandlerPC)
	assert.True(t, info.Handler[hpc])
	assert.Equal(t, 1, info.Depth[hpc])

	pc, ok := m.ExceptionTable().FindHandler(2, 7)
	assert.True(t, ok)
	assert.Equal(t, int32(hpc), pc)
	_, ok = m.ExceptionTable().FindHandler(int32(hpc), 7)
	assert.False(t, ok)
}

func TestCursorWalk(t *testing.T) {
	m := buildCompare(t)
	c := NewCursor(m.Code)
	var ops []OpCode
	for !c.Done() {
		in, err := c.Advance()
		require.NoError(t, err)
		ops = append(ops, in.Op)
	}
	assert.Equal(t, []OpCode{OpIload0, OpIload1, OpIfIcmpge, OpIconst1, OpGoto, OpIconst0, OpIreturn}, ops)

	c.Seek(9)
	in, err := c.Decode()
	require.NoError(t, err)
	assert.Equal(t, int32(0), in.Value)
	assert.Equal(t, "9: iconst_0", in.String())
}

func TestIconstEncodings(t *testing.T) {
	b := NewBuilder("consts", 0, 0)
	b.Iconst(-1).Iconst(100).Iconst(-300).Op(OpPop, OpPop, OpPop, OpReturn)
	m, err := b.Build()
	require.NoError(t, err)

	in, _ := DecodeAt(m.Code, 0)
	assert.Equal(t, int32(-1), in.Value)
	in, _ = DecodeAt(m.Code, 1)
	assert.Equal(t, OpBipush, in.Op)
	assert.Equal(t, int32(100), in.Value)
	in, _ = DecodeAt(m.Code, 3)
	assert.Equal(t, OpSipush, in.Op)
	assert.Equal(t, int32(-300), in.Value)
}

func TestArchive(t *testing.T) {
	m := buildCompare(t)
	data, err := MarshalMethods(m)
	require.NoError(t, err)

	methods, err := UnmarshalMethods(data)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, m, methods[0])

	_, err = UnmarshalMethods([]byte{0xa0})
	assert.Error(t, err)
}

func TestDisassemble(t *testing.T) {
	b := NewBuilder("cast", 1, 1)
	start, end, handler := b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Bind(start).
		Local(OpAload, 0).
		Class(OpCheckcast, "demo/Foo", 4).
		Invoke("use", 1, false).
		Bind(end).
		Op(OpReturn).
		Bind(handler).
		Op(OpPop, OpReturn).
		Handler(start, end, handler, 0)
	out := b.MustBuild().Disassemble()

	assert.Contains(t, out, "=== cast (args=1 locals=1 stack=1) ===")
	assert.Contains(t, out, "0001 checkcast")
	assert.Contains(t, out, "'demo/Foo'")
	assert.Contains(t, out, "'use' (1 args)")
	assert.Contains(t, out, "try [0, 7) -> 8 catch any")
}
