// Package trampoline 管理编译代码调用的运行时例程地址
//
// 编译代码通过 `mov r11, addr; call r11` 进入运行时。例程遵循 System V 调用约定，
// 第一个参数总是线程指针。
package trampoline

import (
	"fmt"
	"sort"
	"unsafe"

	jerrors "github.com/tangzhangming/novajit/internal/errors"
)

// Routine 运行时例程
type Routine uint8

const (
	// ThrowException(thread, exceptionKind)：抛出隐式异常，不返回
	ThrowException Routine = iota
	// NewException(thread, exceptionKind) -> object：构造隐式异常对象，供同方法处理器使用
	NewException
	// StackOverflow(thread)：抛出 StackOverflowError，不返回
	StackOverflow
	// TimerTick(thread)：时钟滴答耗尽，可能切换线程
	TimerTick
	// IsSubtype(thread, object, classID) -> 0/1
	IsSubtype
	// Invoke(thread, callSite, args) -> value：静态调用
	Invoke
	// OSRMigrate(thread, headerBCI) -> locals：OSR 入口取回解释器的局部变量
	OSRMigrate
	// ArrayStoreCheck(thread, array, value) -> 0/1
	ArrayStoreCheck
	// Throw(thread, object)：athrow，不返回
	Throw

	numRoutines
)

var routineNames = [...]string{
	ThrowException:  "ThrowException",
	NewException:    "NewException",
	StackOverflow:   "StackOverflow",
	TimerTick:       "TimerTick",
	IsSubtype:       "IsSubtype",
	Invoke:          "Invoke",
	OSRMigrate:      "OSRMigrate",
	ArrayStoreCheck: "ArrayStoreCheck",
	Throw:           "Throw",
}

func (r Routine) String() string {
	if r < numRoutines {
		return routineNames[r]
	}
	return fmt.Sprintf("Routine(%d)", uint8(r))
}

// Routines 全部例程
func Routines() []Routine {
	out := make([]Routine, numRoutines)
	for i := range out {
		out[i] = Routine(i)
	}
	return out
}

// ParseRoutine 按名字查找例程
func ParseRoutine(name string) (Routine, bool) {
	for i, n := range routineNames {
		if n == name {
			return Routine(i), true
		}
	}
	return 0, false
}

// ============================================================================
// 例程表
// ============================================================================

// Table 例程地址表
type Table struct {
	addrs map[Routine]uintptr
}

// NewTable 创建空表
func NewTable() *Table {
	return &Table{addrs: make(map[Routine]uintptr)}
}

// Register 登记例程地址
func (t *Table) Register(r Routine, addr uintptr) {
	t.addrs[r] = addr
}

// RegisterFunc 登记 Go 函数作为例程
func (t *Table) RegisterFunc(r Routine, fn interface{}) {
	t.addrs[r] = funcAddr(fn)
}

// Address 查询例程地址
func (t *Table) Address(r Routine) (uintptr, bool) {
	addr, ok := t.addrs[r]
	return addr, ok && addr != 0
}

// Resolve 查询例程地址，未登记时返回编译错误
func (t *Table) Resolve(r Routine) (uintptr, error) {
	if addr, ok := t.Address(r); ok {
		return addr, nil
	}
	return 0, jerrors.Invariantf(jerrors.J0203, "runtime routine %s is not registered", r)
}

// Missing 未登记的例程
func (t *Table) Missing() []Routine {
	var out []Routine
	for _, r := range Routines() {
		if _, ok := t.Address(r); !ok {
			out = append(out, r)
		}
	}
	return out
}

// Entries 已登记的例程（按例程编号排序）
func (t *Table) Entries() []Routine {
	out := make([]Routine, 0, len(t.addrs))
	for r := range t.addrs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Placeholder 每个例程一个固定的假地址，用于只生成代码不执行的场景（反汇编、测试）
func Placeholder() *Table {
	t := NewTable()
	for _, r := range Routines() {
		t.Register(r, 0x7f0000000000+uintptr(r)*0x100)
	}
	return t
}

// funcAddr 取 Go 函数代码地址
// Go 函数值是指向函数描述符的指针，描述符第一个字段是代码地址
func funcAddr(fn interface{}) uintptr {
	return *(*uintptr)((*[2]unsafe.Pointer)(unsafe.Pointer(&fn))[1])
}
