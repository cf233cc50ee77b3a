package main

import (
	"github.com/tangzhangming/novajit/internal/bytecode"
)

// demoMethods 内置的示例方法，覆盖分支、循环、隐式异常与类型检查
func demoMethods() []*bytecode.Method {
	return []*bytecode.Method{
		demoMax(),
		demoSum(),
		demoSafeDiv(),
		demoSumArray(),
		demoCast(),
	}
}

// if (a >= b) return 0; return 1
func demoMax() *bytecode.Method {
	b := bytecode.NewBuilder("demo.cmp", 2, 2)
	ge, end := b.NewLabel(), b.NewLabel()
	b.Local(bytecode.OpIload, 0).
		Local(bytecode.OpIload, 1).
		Branch(bytecode.OpIfIcmpge, ge).
		Iconst(1).
		Branch(bytecode.OpGoto, end).
		Bind(ge).
		Iconst(0).
		Bind(end).
		Op(bytecode.OpIreturn)
	return b.MustBuild()
}

// s = 0; for (i = 0; i < n; i++) s += i; return s
func demoSum() *bytecode.Method {
	b := bytecode.NewBuilder("demo.sum", 1, 3)
	head, exit := b.NewLabel(), b.NewLabel()
	b.Iconst(0).Local(bytecode.OpIstore, 1).
		Iconst(0).Local(bytecode.OpIstore, 2).
		Bind(head).
		Local(bytecode.OpIload, 2).
		Local(bytecode.OpIload, 0).
		Branch(bytecode.OpIfIcmpge, exit).
		Local(bytecode.OpIload, 1).
		Local(bytecode.OpIload, 2).
		Op(bytecode.OpIadd).
		Local(bytecode.OpIstore, 1).
		Iinc(2, 1).
		Branch(bytecode.OpGoto, head).
		Bind(exit).
		Local(bytecode.OpIload, 1).
		Op(bytecode.OpIreturn)
	return b.MustBuild()
}

// try { return a / b } catch (ArithmeticException) { return -1 }
func demoSafeDiv() *bytecode.Method {
	b := bytecode.NewBuilder("demo.safeDiv", 2, 2)
	arith := int32(2)
	b.AddClass("java/lang/ArithmeticException", arith)
	start, end, handler := b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Bind(start).
		Local(bytecode.OpIload, 0).
		Local(bytecode.OpIload, 1).
		Op(bytecode.OpIdiv).
		Op(bytecode.OpIreturn).
		Bind(end).
		Bind(handler).
		Op(bytecode.OpPop).
		Iconst(-1).
		Op(bytecode.OpIreturn).
		Handler(start, end, handler, arith)
	return b.MustBuild()
}

// s = 0; for (i = 0; i < a.length; i++) s += a[i]; return s
func demoSumArray() *bytecode.Method {
	b := bytecode.NewBuilder("demo.sumArray", 1, 3)
	head, exit := b.NewLabel(), b.NewLabel()
	b.Iconst(0).Local(bytecode.OpIstore, 1).
		Iconst(0).Local(bytecode.OpIstore, 2).
		Bind(head).
		Local(bytecode.OpIload, 2).
		Local(bytecode.OpAload, 0).
		Op(bytecode.OpArraylength).
		Branch(bytecode.OpIfIcmpge, exit).
		Local(bytecode.OpIload, 1).
		Local(bytecode.OpAload, 0).
		Local(bytecode.OpIload, 2).
		Op(bytecode.OpIaload).
		Op(bytecode.OpIadd).
		Local(bytecode.OpIstore, 1).
		Iinc(2, 1).
		Branch(bytecode.OpGoto, head).
		Bind(exit).
		Local(bytecode.OpIload, 1).
		Op(bytecode.OpIreturn)
	return b.MustBuild()
}

// return o instanceof Foo ? ((Foo) o) : null 的简化形式
func demoCast() *bytecode.Method {
	b := bytecode.NewBuilder("demo.cast", 1, 1)
	no := b.NewLabel()
	b.Local(bytecode.OpAload, 0).
		Class(bytecode.OpInstanceof, "demo/Foo", 10).
		Branch(bytecode.OpIfeq, no).
		Local(bytecode.OpAload, 0).
		Class(bytecode.OpCheckcast, "demo/Foo", 10).
		Op(bytecode.OpAreturn).
		Bind(no).
		Op(bytecode.OpAconstNull).
		Op(bytecode.OpAreturn)
	return b.MustBuild()
}
