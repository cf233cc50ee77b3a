package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// 错误码说明
// ============================================================================

var codeMessages = map[string]string{
	J0001: "虚拟栈溢出",
	J0002: "虚拟栈下溢",
	J0003: "寄存器别名无法消解",
	J0004: "合并冲突",
	J0005: "栈深度不一致",
	J0006: "溢出被钉住的槽",
	J0007: "没有可用寄存器",
	J0008: "反向索引与槽不一致",
	J0009: "合并后校验失败",
	J0010: "槽类型不符",
	J0100: "队列元素池耗尽",
	J0101: "同一字节码位置重复挂起",
	J0102: "失效的元素句柄",
	J0103: "非法的元素状态转换",
	J0104: "持久元素不能回收",
	J0200: "不支持的操作码",
	J0201: "字节码分析失败",
	J0202: "未绑定的标签",
	J0203: "缺少运行时例程",
	J0204: "可执行内存分配失败",
	J0205: "嵌套编译冲突",
	J0206: "无效的寄存器配置",
}

// codeHints 用户可以自己处理的错误给出提示
var codeHints = map[string]string{
	J0007: "jit.registers 至少需要能同时容纳一条指令的全部操作数",
	J0100: "调大 jit.max_pool_elements，或设为 0 取消上限",
	J0201: "检查方法的字节码与异常表",
	J0203: "运行时没有注册该例程，方法只能解释执行",
	J0204: "调大 jit.code_cache_bytes，或调用 Reset 清空代码缓存",
	J0206: "jit.registers 不能包含 rsp、rbp、r11 与线程寄存器 r15",
}

// Describe 错误码的简短说明
func Describe(code string) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return "未知错误"
}

// ============================================================================
// 格式化
// ============================================================================

// Format 把放弃编译的原因格式化成多行报告
//
//	error[J0204]: 可执行内存分配失败
//	  --> demo.sum@12
//	  = cause: code cache full
//	  = help: 调大 jit.code_cache_bytes ...
func Format(err error) string {
	if err == nil {
		return ""
	}
	var je *Error
	if !errors.As(err, &je) {
		return Colorize("error", ColorBoldRed) + ": " + err.Error() + "\n"
	}

	var sb strings.Builder
	level, color := "error", ColorBoldRed
	if je.Class == ClassResource {
		level, color = "resource", ColorBoldYellow
	}
	header := level
	if je.Code != "" {
		header += "[" + je.Code + "]"
	}
	sb.WriteString(Colorize(header, color))
	sb.WriteString(Colorize(": "+Describe(je.Code), ColorBoldWhite))
	sb.WriteString("\n")

	if je.Method != "" {
		loc := je.Method
		if je.BCI >= 0 {
			loc += fmt.Sprintf("@%d", je.BCI)
		}
		sb.WriteString(Colorize("  --> ", ColorCyan) + loc + "\n")
	}
	if je.Err != nil {
		sb.WriteString(Colorize("  = cause: ", ColorCyan) + je.Err.Error() + "\n")
	}
	if hint, ok := codeHints[je.Code]; ok {
		sb.WriteString(Colorize("  = help: ", ColorYellow) + hint + "\n")
	}
	return sb.String()
}
