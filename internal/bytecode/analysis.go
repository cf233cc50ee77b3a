package bytecode

import (
	"fmt"

	"go.uber.org/multierr"
)

// ============================================================================
// 控制流与栈深度分析
// ============================================================================

// Info 字节码分析结果
// 所有切片按 bci 索引，非指令起点的位置保持零值
type Info struct {
	Depth      []int  // 指令入口栈深度，-1 表示不可达
	BlockStart []bool // 基本块起点
	Preds      []int  // 基本块前驱边数量（方法入口算一条）
	LoopHeader []bool // 回边目标
	Handler    []bool // 异常处理器入口
	MaxDepth   int
}

// IsJoin 基本块是否为汇合点
// 汇合点的入口帧需要泛化，后到达的路径再向其对齐
func (in *Info) IsJoin(bci int) bool {
	return in.Preds[bci] > 1 || in.LoopHeader[bci] || in.Handler[bci]
}

// Reachable bci 是否为可达指令
func (in *Info) Reachable(bci int) bool {
	return bci >= 0 && bci < len(in.Depth) && in.Depth[bci] >= 0
}

type edge struct {
	from, to int
}

// Analyze 用数据流分析计算栈深度、基本块与汇合点
func Analyze(m *Method) (*Info, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	n := len(m.Code)
	info := &Info{
		Depth:      make([]int, n),
		BlockStart: make([]bool, n),
		Preds:      make([]int, n),
		LoopHeader: make([]bool, n),
		Handler:    make([]bool, n),
	}
	for i := range info.Depth {
		info.Depth[i] = -1
	}

	var errs error
	var edges []edge
	starts := make([]bool, n)

	type workItem struct {
		pos   int
		depth int
	}
	worklist := []workItem{{0, 0}}
	info.BlockStart[0] = true
	info.Preds[0]++

	for _, h := range m.Handlers {
		if int(h.HandlerPC) < 0 || int(h.HandlerPC) >= n {
			errs = multierr.Append(errs, fmt.Errorf("handler pc %d out of range", h.HandlerPC))
			continue
		}
		info.Handler[h.HandlerPC] = true
		info.BlockStart[h.HandlerPC] = true
		worklist = append(worklist, workItem{int(h.HandlerPC), 1})
	}

	// 先到达的深度为准，不一致即报错
	visit := func(from, to, depth int) {
		if to < 0 || to >= n {
			errs = multierr.Append(errs, fmt.Errorf("bci %d: branch target %d out of range", from, to))
			return
		}
		if info.Depth[to] >= 0 {
			if info.Depth[to] != depth {
				errs = multierr.Append(errs, fmt.Errorf("bci %d: inconsistent stack depth %d and %d", to, info.Depth[to], depth))
			}
			return
		}
		worklist = append(worklist, workItem{to, depth})
	}

	for len(worklist) > 0 {
		item := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		pos, depth := item.pos, item.depth
		for pos < n {
			if info.Depth[pos] >= 0 {
				if info.Depth[pos] != depth {
					errs = multierr.Append(errs, fmt.Errorf("bci %d: inconsistent stack depth %d and %d", pos, info.Depth[pos], depth))
				}
				break
			}
			info.Depth[pos] = depth
			starts[pos] = true

			in, err := DecodeAt(m.Code, pos)
			if err != nil {
				errs = multierr.Append(errs, err)
				break
			}

			pop, push, err := stackEffect(m, in)
			if err != nil {
				errs = multierr.Append(errs, err)
				break
			}
			if depth < pop {
				errs = multierr.Append(errs, fmt.Errorf("bci %d: %s underflows stack (depth %d)", pos, in.Op, depth))
				break
			}
			if in.Op.IsLoad() || in.Op.IsStore() || in.Op == OpIinc {
				if in.Index >= m.MaxLocals {
					errs = multierr.Append(errs, fmt.Errorf("bci %d: local %d >= max locals %d", pos, in.Index, m.MaxLocals))
				}
			}
			depth = depth - pop + push
			if depth > info.MaxDepth {
				info.MaxDepth = depth
			}
			if depth > m.MaxStack {
				errs = multierr.Append(errs, fmt.Errorf("bci %d: stack depth %d exceeds max %d", pos, depth, m.MaxStack))
				break
			}

			if in.Op.IsBranch() || in.Op == OpGoto {
				edges = append(edges, edge{pos, in.Target})
				visit(pos, in.Target, depth)
				if in.Target >= 0 && in.Target < n {
					info.BlockStart[in.Target] = true
				}
			}
			if in.Op.IsBranch() {
				if in.Next < n {
					info.BlockStart[in.Next] = true
				}
				edges = append(edges, edge{pos, in.Next})
			}
			if in.Op.EndsBlock() {
				if in.Next < n {
					info.BlockStart[in.Next] = true
				}
				break
			}
			if in.Next >= n {
				errs = multierr.Append(errs, fmt.Errorf("bci %d: control falls off the end of %s", pos, m.Name))
				break
			}
			if !in.Op.IsBranch() {
				edges = append(edges, edge{pos, in.Next})
			}
			pos = in.Next
		}
	}

	for _, e := range edges {
		if e.to < 0 || e.to >= n {
			continue
		}
		if !starts[e.to] && info.Depth[e.to] < 0 {
			continue
		}
		if !starts[e.to] {
			errs = multierr.Append(errs, fmt.Errorf("bci %d: branch into the middle of an instruction at %d", e.from, e.to))
			continue
		}
		if info.BlockStart[e.to] {
			info.Preds[e.to]++
			if e.from >= e.to {
				info.LoopHeader[e.to] = true
			}
		}
	}

	if errs != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, errs)
	}
	return info, nil
}

// stackEffect 返回指令的出栈/入栈数量
func stackEffect(m *Method, in Instruction) (pop, push int, err error) {
	if in.Op == OpInvokestatic {
		site, err := m.Call(in.Index)
		if err != nil {
			return 0, 0, err
		}
		if site.Returns {
			push = 1
		}
		return site.Args, push, nil
	}
	info := opTable[in.Op]
	return info.pop, info.push, nil
}
