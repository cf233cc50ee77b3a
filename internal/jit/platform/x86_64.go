package platform

// ============================================================================
// 编译代码的调用约定与帧布局（System V AMD64）
// ============================================================================
//
// 入口：RDI = 线程指针，RSI = 参数数组指针（每个参数 8 字节）
// 返回：RAX
//
// 帧布局（RBP 相对）：
//   [rbp+8]          返回地址
//   [rbp]            旧 RBP
//   [rbp-8..-40]     RBX R12 R13 R14 R15（被调用者保存）
//   [rbp-48-8*i]     槽 i 的内存位置（局部变量在前，表达式栈在后）

const (
	// ThreadReg 保存线程指针，整个方法内不参与分配
	ThreadReg = R15
	// ScratchReg 汇编层临时寄存器（大立即数存储、运行时调用地址）
	ScratchReg = R11
	// ReturnReg 返回值寄存器
	ReturnReg = RAX

	// WordSize 槽宽度
	WordSize = 8
)

// CalleeSaved 序言中保存的寄存器（按压栈顺序）
var CalleeSaved = []Reg{RBX, R12, R13, R14, R15}

// ArgRegs 运行时调用的参数寄存器
var ArgRegs = []Reg{RDI, RSI, RDX, RCX, R8, R9}

// CallerSaved 运行时调用会破坏的寄存器
var CallerSaved = []Reg{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}

// DefaultAllocatable 默认可分配寄存器（按偏好排序：先被调用者保存，再调用者保存）
var DefaultAllocatable = []Reg{RBX, R12, R13, R14, RCX, RDX, RSI, RDI, R8, R9, R10, RAX}

// savedAreaSize 被保存寄存器占用的字节数
var savedAreaSize = int32(len(CalleeSaved) * WordSize)

// SlotOffset 槽 i 相对 RBP 的偏移
func SlotOffset(slot int) int32 {
	return -(savedAreaSize + int32(slot+1)*WordSize)
}

// FrameSize 为 n 个槽分配的栈空间
// 进入方法时 rsp ≡ 8 (mod 16)，push rbp 后对齐；之后压入 5 个寄存器再减去 FrameSize，
// 调用点需要 rsp ≡ 0 (mod 16)，因此 FrameSize ≡ 8 (mod 16)
func FrameSize(slots int) int32 {
	size := int32(slots * WordSize)
	if size%16 != 8 {
		size += 8
	}
	return size
}

// 线程结构偏移（运行时与编译代码共享）
const (
	ThreadStackLimit = 0  // 栈下限，rsp 低于该值即栈溢出
	ThreadTickCount  = 8  // 时钟滴答计数，减到 0 进入运行时
	ThreadException  = 16 // 待处理异常对象
)

// 对象布局
const (
	ObjectClassOffset = 0  // 对象头：类标识
	ArrayLengthOffset = 8  // 数组长度
	ArrayDataOffset   = 16 // 数组元素起点，每个元素 8 字节
)
