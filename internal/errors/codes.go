// Package errors 提供 JIT 编译器的错误分类
//
// JIT 错误只有两类：
//   - 编译器不变量被破坏（虚拟帧别名无法消解、虚拟栈溢出/下溢、同一字节码位置重复挂起……）
//   - 资源耗尽（队列元素池、代码缓存分配失败）
//
// 两类错误都只会导致“放弃 JIT 编译该方法，回退到解释执行”，不会作为语言级异常暴露给用户。
package errors

// ============================================================================
// 错误类别
// ============================================================================

// Class 错误类别
type Class int

const (
	ClassInvariant Class = iota // 编译器不变量被破坏
	ClassResource               // 资源耗尽
)

func (c Class) String() string {
	switch c {
	case ClassInvariant:
		return "invariant"
	case ClassResource:
		return "resource"
	default:
		return "unknown"
	}
}

// ============================================================================
// 帧模型错误码 (J00xx)
// ============================================================================

const (
	J0001 = "J0001" // 虚拟栈溢出（超过方法声明的最大栈深度）
	J0002 = "J0002" // 虚拟栈下溢
	J0003 = "J0003" // 寄存器别名无法消解
	J0004 = "J0004" // 合并冲突（目标帧期望的值当前帧无法提供）
	J0005 = "J0005" // 栈深度不一致
	J0006 = "J0006" // 溢出被钉住的槽
	J0007 = "J0007" // 没有可用寄存器
	J0008 = "J0008" // 反向索引与槽不一致
	J0009 = "J0009" // 合并后校验失败
	J0010 = "J0010" // 槽类型不符
)

// ============================================================================
// 编译队列错误码 (J01xx)
// ============================================================================

const (
	J0100 = "J0100" // 队列元素池耗尽
	J0101 = "J0101" // 同一字节码位置重复挂起
	J0102 = "J0102" // 失效的元素句柄
	J0103 = "J0103" // 非法的元素状态转换
	J0104 = "J0104" // 持久元素不能回收
)

// ============================================================================
// 代码生成错误码 (J02xx)
// ============================================================================

const (
	J0200 = "J0200" // 不支持的操作码
	J0201 = "J0201" // 字节码分析失败
	J0202 = "J0202" // 未绑定的标签
	J0203 = "J0203" // 缺少运行时例程
	J0204 = "J0204" // 可执行内存分配失败
	J0205 = "J0205" // 嵌套编译冲突
	J0206 = "J0206" // 无效的寄存器配置
)

// codeClass 错误码默认类别
var codeClass = map[string]Class{
	J0100: ClassResource,
	J0204: ClassResource,
}

// ClassOf 返回错误码的默认类别
func ClassOf(code string) Class {
	if c, ok := codeClass[code]; ok {
		return c
	}
	return ClassInvariant
}
