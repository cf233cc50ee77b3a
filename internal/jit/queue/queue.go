package queue

import (
	"go.uber.org/zap"

	jerrors "github.com/tangzhangming/novajit/internal/errors"
	"github.com/tangzhangming/novajit/internal/jit/frame"
)

// Compiler 编译单个元素
// 返回 true 表示元素已完成；返回 false 前必须已经调用 Queue.Suspend
type Compiler interface {
	CompileElement(h Handle, e *Element) (finished bool, err error)
}

// CompilerFunc 函数形式的 Compiler
type CompilerFunc func(h Handle, e *Element) (bool, error)

// CompileElement 实现 Compiler
func (fn CompilerFunc) CompileElement(h Handle, e *Element) (bool, error) {
	return fn(h, e)
}

// Queue 待编译元素
//
// 新插入的元素最先被取出（最近推迟的路径先编译，代码布局接近深度优先）；
// 挂起的元素回到队尾，等它推迟出来的嵌套路径都编译完再恢复。
type Queue struct {
	pool    *Pool
	pending []Handle // 末尾是队首
	logger  *zap.Logger
}

// New 创建队列，limit 为元素池容量（0 表示不限）
func New(limit int, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{pool: NewPool(limit), logger: logger}
}

// Pool 元素池
func (q *Queue) Pool() *Pool { return q.pool }

// Len 等待编译的元素数量
func (q *Queue) Len() int { return len(q.pending) }

// Empty 队列是否为空
func (q *Queue) Empty() bool { return len(q.pending) == 0 }

// Get 解析句柄
func (q *Queue) Get(h Handle) (*Element, error) { return q.pool.Get(h) }

// Allocate 分配元素，f 为元素拥有的帧（调用方负责传入副本）
// 调用方填好变体字段后再 Insert
func (q *Queue) Allocate(work Work, bci int, f *frame.Frame) (Handle, *Element, error) {
	h, e, err := q.pool.Allocate(work, bci)
	if err != nil {
		return NoHandle, nil, err
	}
	e.Frame = f
	return h, e, nil
}

// MakePersistent 标记为持久元素：编译完成后不回收，供多个位置共享
func (q *Queue) MakePersistent(h Handle) error {
	e, err := q.pool.Get(h)
	if err != nil {
		return err
	}
	if !e.Persistent {
		e.Persistent = true
		q.pool.stats.Persistent++
	}
	return nil
}

// Insert 把已分配的元素放入队首
func (q *Queue) Insert(h Handle) error {
	e, err := q.pool.Get(h)
	if err != nil {
		return err
	}
	if e.State != StateAllocated {
		return fail(jerrors.J0103, ErrBadTransition, "insert %s %s in state %s", e.Kind(), h, e.State)
	}
	e.State = StateQueued
	q.pending = append(q.pending, h)
	return nil
}

// Pop 取出队首元素
func (q *Queue) Pop() (Handle, bool) {
	n := len(q.pending)
	if n == 0 {
		return NoHandle, false
	}
	h := q.pending[n-1]
	q.pending = q.pending[:n-1]
	return h, true
}

// Suspend 正在编译的 Continuation 推迟了嵌套路径，在 bci 处挂起
// 同一元素在任何一个曾经挂起过的字节码位置再次挂起说明编译没有前进，属于编译器错误
func (q *Queue) Suspend(h Handle, bci int) error {
	e, err := q.pool.Get(h)
	if err != nil {
		return err
	}
	if e.State != StateCompiling || e.Kind() != KindContinuation {
		return fail(jerrors.J0103, ErrBadTransition, "suspend %s %s in state %s", e.Kind(), h, e.State)
	}
	if _, seen := e.suspendedAt[bci]; seen {
		return fail(jerrors.J0101, ErrRepeatedSuspension, "%s at bci %d", h, bci)
	}
	if e.suspendedAt == nil {
		e.suspendedAt = make(map[int]struct{})
	}
	e.suspendedAt[bci] = struct{}{}
	e.Resume = bci
	e.Suspensions++
	e.State = StateSuspended
	q.pool.stats.Suspended++
	return nil
}

// Drain 驱动循环：主线编译完后反复取出元素编译，直到队列为空
// 遇到第一个错误立即返回，队列中剩余元素由 Reset 回收
func (q *Queue) Drain(c Compiler) error {
	for {
		h, ok := q.Pop()
		if !ok {
			return nil
		}
		e, err := q.pool.Get(h)
		if err != nil {
			return err
		}
		if e.State != StateQueued {
			return fail(jerrors.J0103, ErrBadTransition, "compile %s %s in state %s", e.Kind(), h, e.State)
		}
		e.State = StateCompiling
		q.logger.Debug("compile element",
			zap.Stringer("kind", e.Kind()),
			zap.Int("bci", e.BCI),
			zap.Int("resume", e.Resume),
		)

		finished, err := c.CompileElement(h, e)
		q.pool.stats.Compiled++
		if err != nil {
			return err
		}

		if finished {
			e.State = StateFinished
			if !e.Persistent {
				if err := q.pool.Free(h); err != nil {
					return err
				}
			}
			continue
		}
		if e.State != StateSuspended {
			return fail(jerrors.J0103, ErrBadTransition, "%s %s returned unfinished without suspending", e.Kind(), h)
		}
		e.State = StateQueued
		q.pending = append([]Handle{h}, q.pending...)
	}
}

// Reset 清空队列并回收全部元素
func (q *Queue) Reset() {
	q.pending = q.pending[:0]
	q.pool.Reset()
}

// Stats 计数快照
func (q *Queue) Stats() Stats { return q.pool.Stats() }
