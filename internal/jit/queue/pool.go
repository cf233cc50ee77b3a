package queue

import (
	"errors"
	"fmt"

	jerrors "github.com/tangzhangming/novajit/internal/errors"
)

// 队列错误
var (
	ErrPoolExhausted      = errors.New("compilation element pool exhausted")
	ErrRepeatedSuspension = errors.New("element suspended twice at the same bytecode index")
	ErrStaleHandle        = errors.New("stale element handle")
	ErrBadTransition      = errors.New("illegal element state transition")
	ErrPersistentFree     = errors.New("persistent element freed before teardown")
)

func fail(code string, sentinel error, format string, args ...interface{}) error {
	return jerrors.New(code, fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)))
}

// ============================================================================
// 句柄
// ============================================================================

// Handle 元素句柄：arena 下标加代数，元素被回收后旧句柄失效
type Handle struct {
	index int32
	gen   uint32
}

// NoHandle 空句柄
var NoHandle Handle

// Valid 是否为非空句柄
func (h Handle) Valid() bool { return h.gen != 0 }

func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d", h.index, h.gen)
}

// ============================================================================
// 元素池
// ============================================================================

// Stats 池与驱动循环计数
type Stats struct {
	Allocated  int // Allocate 成功次数
	Reused     int // 其中复用空闲元素的次数
	Freed      int // 回收次数
	Compiled   int // CompileElement 调用次数
	Suspended  int // 挂起次数
	HighWater  int // 同时存活元素的峰值
	Persistent int // 持久元素数量
}

// Pool 元素 arena，空闲元素用下标串成单链表
type Pool struct {
	elems    []*Element
	gens     []uint32
	next     []int32
	freeHead int32
	limit    int
	live     int
	stats    Stats
}

// NewPool 创建元素池，limit 为 0 表示不限数量
func NewPool(limit int) *Pool {
	return &Pool{freeHead: -1, limit: limit}
}

// Allocate 取出一个元素并初始化公共字段
func (p *Pool) Allocate(work Work, bci int) (Handle, *Element, error) {
	var idx int32
	if p.freeHead >= 0 {
		idx = p.freeHead
		p.freeHead = p.next[idx]
		p.next[idx] = -1
		p.stats.Reused++
	} else {
		if p.limit > 0 && len(p.elems) >= p.limit {
			return NoHandle, nil, fail(jerrors.J0100, ErrPoolExhausted, "%d elements in use", p.live)
		}
		idx = int32(len(p.elems))
		p.elems = append(p.elems, &Element{})
		p.gens = append(p.gens, 0)
		p.next = append(p.next, -1)
	}
	p.gens[idx]++
	e := p.elems[idx]
	e.reset(work, bci)

	p.live++
	p.stats.Allocated++
	if p.live > p.stats.HighWater {
		p.stats.HighWater = p.live
	}
	return Handle{index: idx, gen: p.gens[idx]}, e, nil
}

// Get 解析句柄
func (p *Pool) Get(h Handle) (*Element, error) {
	if !h.Valid() || int(h.index) >= len(p.elems) || p.gens[h.index] != h.gen {
		return nil, fail(jerrors.J0102, ErrStaleHandle, "%s", h)
	}
	e := p.elems[h.index]
	if e.State == StateFree {
		return nil, fail(jerrors.J0102, ErrStaleHandle, "%s is free", h)
	}
	return e, nil
}

// Free 回收元素；持久元素只能由 Reset 回收
func (p *Pool) Free(h Handle) error {
	e, err := p.Get(h)
	if err != nil {
		return err
	}
	if e.Persistent {
		return fail(jerrors.J0104, ErrPersistentFree, "%s %s", e.Kind(), h)
	}
	p.release(h.index)
	return nil
}

func (p *Pool) release(idx int32) {
	// 清空元素，放弃对旧虚拟帧的引用
	*p.elems[idx] = Element{State: StateFree}
	p.gens[idx]++
	p.next[idx] = p.freeHead
	p.freeHead = idx
	p.live--
	p.stats.Freed++
}

// Reset 回收全部元素（包括持久元素），方法编译结束时调用
func (p *Pool) Reset() {
	for i, e := range p.elems {
		if e.State != StateFree {
			p.release(int32(i))
		}
	}
}

// Live 存活元素数量
func (p *Pool) Live() int { return p.live }

// Cap arena 已分配的元素数量
func (p *Pool) Cap() int { return len(p.elems) }

// Stats 计数快照
func (p *Pool) Stats() Stats { return p.stats }
