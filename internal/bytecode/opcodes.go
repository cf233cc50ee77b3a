package bytecode

import "fmt"

// OpCode 操作码类型
// 编码与 JVM 类文件保持一致，只实现 JIT 支持的子集
type OpCode byte

const (
	// 常量
	OpNop        OpCode = 0x00 // 空操作
	OpAconstNull OpCode = 0x01 // 将 null 压入栈
	OpIconstM1   OpCode = 0x02 // 将 -1 压入栈
	OpIconst0    OpCode = 0x03 // 将 0 压入栈
	OpIconst1    OpCode = 0x04 // 将 1 压入栈
	OpIconst2    OpCode = 0x05 // 将 2 压入栈
	OpIconst3    OpCode = 0x06 // 将 3 压入栈
	OpIconst4    OpCode = 0x07 // 将 4 压入栈
	OpIconst5    OpCode = 0x08 // 将 5 压入栈
	OpBipush     OpCode = 0x10 // 将单字节常量压入栈 (s1)
	OpSipush     OpCode = 0x11 // 将短整型常量压入栈 (s2)

	// 加载
	OpIload   OpCode = 0x15 // 加载 int 局部变量 (u1)
	OpAload   OpCode = 0x19 // 加载引用局部变量 (u1)
	OpIload0  OpCode = 0x1A
	OpIload1  OpCode = 0x1B
	OpIload2  OpCode = 0x1C
	OpIload3  OpCode = 0x1D
	OpAload0  OpCode = 0x2A
	OpAload1  OpCode = 0x2B
	OpAload2  OpCode = 0x2C
	OpAload3  OpCode = 0x2D
	OpIaload  OpCode = 0x2E // 加载 int 数组元素
	OpAaload  OpCode = 0x32 // 加载引用数组元素

	// 存储
	OpIstore  OpCode = 0x36 // 存储 int 局部变量 (u1)
	OpAstore  OpCode = 0x3A // 存储引用局部变量 (u1)
	OpIstore0 OpCode = 0x3B
	OpIstore1 OpCode = 0x3C
	OpIstore2 OpCode = 0x3D
	OpIstore3 OpCode = 0x3E
	OpAstore0 OpCode = 0x4B
	OpAstore1 OpCode = 0x4C
	OpAstore2 OpCode = 0x4D
	OpAstore3 OpCode = 0x4E
	OpIastore OpCode = 0x4F // 存储 int 数组元素
	OpAastore OpCode = 0x53 // 存储引用数组元素（需要类型检查）

	// 栈操作
	OpPop  OpCode = 0x57 // 弹出栈顶元素
	OpPop2 OpCode = 0x58 // 弹出栈顶两个元素
	OpDup  OpCode = 0x59 // 复制栈顶元素
	OpSwap OpCode = 0x5F // 交换栈顶两个元素

	// 算术
	OpIadd OpCode = 0x60
	OpIsub OpCode = 0x64
	OpImul OpCode = 0x68
	OpIdiv OpCode = 0x6C
	OpIrem OpCode = 0x70
	OpIneg OpCode = 0x74
	OpIand OpCode = 0x7E
	OpIor  OpCode = 0x80
	OpIxor OpCode = 0x82
	OpIinc OpCode = 0x84 // 局部变量自增 (u1 index, s1 delta)

	// 条件跳转 (s2 相对偏移)
	OpIfeq     OpCode = 0x99
	OpIfne     OpCode = 0x9A
	OpIflt     OpCode = 0x9B
	OpIfge     OpCode = 0x9C
	OpIfgt     OpCode = 0x9D
	OpIfle     OpCode = 0x9E
	OpIfIcmpeq OpCode = 0x9F
	OpIfIcmpne OpCode = 0xA0
	OpIfIcmplt OpCode = 0xA1
	OpIfIcmpge OpCode = 0xA2
	OpIfIcmpgt OpCode = 0xA3
	OpIfIcmple OpCode = 0xA4
	OpIfAcmpeq OpCode = 0xA5
	OpIfAcmpne OpCode = 0xA6
	OpGoto     OpCode = 0xA7

	// 返回
	OpIreturn OpCode = 0xAC
	OpAreturn OpCode = 0xB0
	OpReturn  OpCode = 0xB1

	// 调用 (u2 调用点索引)
	OpInvokestatic OpCode = 0xB8

	// 对象
	OpArraylength OpCode = 0xBE
	OpAthrow      OpCode = 0xBF
	OpCheckcast   OpCode = 0xC0 // u2 类索引
	OpInstanceof  OpCode = 0xC1 // u2 类索引
	OpIfnull      OpCode = 0xC6
	OpIfnonnull   OpCode = 0xC7
)

// opInfo 操作码静态信息
type opInfo struct {
	name   string
	length int // 指令总长度（含操作码）
	pop    int // 出栈数量（-1 表示依赖操作数）
	push   int // 入栈数量
}

var opTable = map[OpCode]opInfo{
	OpNop:        {"nop", 1, 0, 0},
	OpAconstNull: {"aconst_null", 1, 0, 1},
	OpIconstM1:   {"iconst_m1", 1, 0, 1},
	OpIconst0:    {"iconst_0", 1, 0, 1},
	OpIconst1:    {"iconst_1", 1, 0, 1},
	OpIconst2:    {"iconst_2", 1, 0, 1},
	OpIconst3:    {"iconst_3", 1, 0, 1},
	OpIconst4:    {"iconst_4", 1, 0, 1},
	OpIconst5:    {"iconst_5", 1, 0, 1},
	OpBipush:     {"bipush", 2, 0, 1},
	OpSipush:     {"sipush", 3, 0, 1},

	OpIload:  {"iload", 2, 0, 1},
	OpAload:  {"aload", 2, 0, 1},
	OpIload0: {"iload_0", 1, 0, 1},
	OpIload1: {"iload_1", 1, 0, 1},
	OpIload2: {"iload_2", 1, 0, 1},
	OpIload3: {"iload_3", 1, 0, 1},
	OpAload0: {"aload_0", 1, 0, 1},
	OpAload1: {"aload_1", 1, 0, 1},
	OpAload2: {"aload_2", 1, 0, 1},
	OpAload3: {"aload_3", 1, 0, 1},
	OpIaload: {"iaload", 1, 2, 1},
	OpAaload: {"aaload", 1, 2, 1},

	OpIstore:  {"istore", 2, 1, 0},
	OpAstore:  {"astore", 2, 1, 0},
	OpIstore0: {"istore_0", 1, 1, 0},
	OpIstore1: {"istore_1", 1, 1, 0},
	OpIstore2: {"istore_2", 1, 1, 0},
	OpIstore3: {"istore_3", 1, 1, 0},
	OpAstore0: {"astore_0", 1, 1, 0},
	OpAstore1: {"astore_1", 1, 1, 0},
	OpAstore2: {"astore_2", 1, 1, 0},
	OpAstore3: {"astore_3", 1, 1, 0},
	OpIastore: {"iastore", 1, 3, 0},
	OpAastore: {"aastore", 1, 3, 0},

	OpPop:  {"pop", 1, 1, 0},
	OpPop2: {"pop2", 1, 2, 0},
	OpDup:  {"dup", 1, 1, 2},
	OpSwap: {"swap", 1, 2, 2},

	OpIadd: {"iadd", 1, 2, 1},
	OpIsub: {"isub", 1, 2, 1},
	OpImul: {"imul", 1, 2, 1},
	OpIdiv: {"idiv", 1, 2, 1},
	OpIrem: {"irem", 1, 2, 1},
	OpIneg: {"ineg", 1, 1, 1},
	OpIand: {"iand", 1, 2, 1},
	OpIor:  {"ior", 1, 2, 1},
	OpIxor: {"ixor", 1, 2, 1},
	OpIinc: {"iinc", 3, 0, 0},

	OpIfeq:     {"ifeq", 3, 1, 0},
	OpIfne:     {"ifne", 3, 1, 0},
	OpIflt:     {"iflt", 3, 1, 0},
	OpIfge:     {"ifge", 3, 1, 0},
	OpIfgt:     {"ifgt", 3, 1, 0},
	OpIfle:     {"ifle", 3, 1, 0},
	OpIfIcmpeq: {"if_icmpeq", 3, 2, 0},
	OpIfIcmpne: {"if_icmpne", 3, 2, 0},
	OpIfIcmplt: {"if_icmplt", 3, 2, 0},
	OpIfIcmpge: {"if_icmpge", 3, 2, 0},
	OpIfIcmpgt: {"if_icmpgt", 3, 2, 0},
	OpIfIcmple: {"if_icmple", 3, 2, 0},
	OpIfAcmpeq: {"if_acmpeq", 3, 2, 0},
	OpIfAcmpne: {"if_acmpne", 3, 2, 0},
	OpGoto:     {"goto", 3, 0, 0},

	OpIreturn: {"ireturn", 1, 1, 0},
	OpAreturn: {"areturn", 1, 1, 0},
	OpReturn:  {"return", 1, 0, 0},

	OpInvokestatic: {"invokestatic", 3, -1, -1},

	OpArraylength: {"arraylength", 1, 1, 1},
	OpAthrow:      {"athrow", 1, 1, 0},
	OpCheckcast:   {"checkcast", 3, 1, 1},
	OpInstanceof:  {"instanceof", 3, 1, 1},
	OpIfnull:      {"ifnull", 3, 1, 0},
	OpIfnonnull:   {"ifnonnull", 3, 1, 0},
}

// String 返回操作码名称
func (op OpCode) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("op_%#02x", byte(op))
}

// Valid 操作码是否受支持
func (op OpCode) Valid() bool {
	_, ok := opTable[op]
	return ok
}

// Length 指令长度（含操作码），未知操作码返回 0
func (op OpCode) Length() int {
	return opTable[op].length
}

// IsBranch 是否为条件跳转
func (op OpCode) IsBranch() bool {
	return (op >= OpIfeq && op <= OpIfAcmpne) || op == OpIfnull || op == OpIfnonnull
}

// IsReturn 是否为返回指令
func (op OpCode) IsReturn() bool {
	return op == OpIreturn || op == OpAreturn || op == OpReturn
}

// EndsBlock 指令之后不会顺序执行
func (op OpCode) EndsBlock() bool {
	return op == OpGoto || op == OpAthrow || op.IsReturn()
}

// ShortLocal 返回 xload_n / xstore_n 隐含的局部变量索引
func (op OpCode) ShortLocal() (int, bool) {
	switch {
	case op >= OpIload0 && op <= OpIload3:
		return int(op - OpIload0), true
	case op >= OpAload0 && op <= OpAload3:
		return int(op - OpAload0), true
	case op >= OpIstore0 && op <= OpIstore3:
		return int(op - OpIstore0), true
	case op >= OpAstore0 && op <= OpAstore3:
		return int(op - OpAstore0), true
	}
	return 0, false
}

// IsLoad 是否为局部变量加载
func (op OpCode) IsLoad() bool {
	return op == OpIload || op == OpAload ||
		(op >= OpIload0 && op <= OpIload3) || (op >= OpAload0 && op <= OpAload3)
}

// IsStore 是否为局部变量存储
func (op OpCode) IsStore() bool {
	return op == OpIstore || op == OpAstore ||
		(op >= OpIstore0 && op <= OpIstore3) || (op >= OpAstore0 && op <= OpAstore3)
}
