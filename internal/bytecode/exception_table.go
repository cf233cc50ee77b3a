package bytecode

// ============================================================================
// 异常表
// ============================================================================

// ExceptionEntry 异常表条目
// [StartPC, EndPC) 内抛出的异常若匹配 CatchType（0 表示捕获全部）则跳转到 HandlerPC
type ExceptionEntry struct {
	StartPC   int32 `cbor:"1,keyasint"`
	EndPC     int32 `cbor:"2,keyasint"`
	HandlerPC int32 `cbor:"3,keyasint"`
	CatchType int32 `cbor:"4,keyasint"` // 类标识，0 表示 catch-all
}

// ExceptionTable 方法的异常表
type ExceptionTable struct {
	Method  string
	Entries []ExceptionEntry
}

// FindHandler 查找异常处理器
// 按表顺序匹配第一个覆盖 pc 的条目
func (et *ExceptionTable) FindHandler(pc int32, exceptionType int32) (int32, bool) {
	for _, entry := range et.Entries {
		if pc >= entry.StartPC && pc < entry.EndPC {
			if entry.CatchType == 0 || entry.CatchType == exceptionType {
				return entry.HandlerPC, true
			}
		}
	}
	return 0, false
}

// Covers 是否有任何处理器覆盖 pc
func (et *ExceptionTable) Covers(pc int32) bool {
	for _, entry := range et.Entries {
		if pc >= entry.StartPC && pc < entry.EndPC {
			return true
		}
	}
	return false
}

// Handlers 返回所有处理器入口
func (et *ExceptionTable) Handlers() []int32 {
	out := make([]int32, 0, len(et.Entries))
	seen := make(map[int32]bool)
	for _, entry := range et.Entries {
		if !seen[entry.HandlerPC] {
			seen[entry.HandlerPC] = true
			out = append(out, entry.HandlerPC)
		}
	}
	return out
}
