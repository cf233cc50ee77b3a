package bytecode

import "fmt"

// ClassRef 类引用（checkcast / instanceof / aastore 使用）
type ClassRef struct {
	Name string `cbor:"1,keyasint"`
	ID   int32  `cbor:"2,keyasint"` // 运行时类标识，对象头第一个字保存该值
}

// CallSite 静态调用点
type CallSite struct {
	Name    string `cbor:"1,keyasint"`
	Args    int    `cbor:"2,keyasint"`
	Returns bool   `cbor:"3,keyasint"` // 是否有返回值
}

// Method 待编译方法的元数据
type Method struct {
	Name      string           `cbor:"1,keyasint"`
	NumArgs   int              `cbor:"2,keyasint"` // 参数占用的局部变量数（从 0 开始）
	MaxLocals int              `cbor:"3,keyasint"`
	MaxStack  int              `cbor:"4,keyasint"`
	Code      []byte           `cbor:"5,keyasint"`
	Handlers  []ExceptionEntry `cbor:"6,keyasint"`
	Classes   []ClassRef       `cbor:"7,keyasint"`
	Calls     []CallSite       `cbor:"8,keyasint"`
}

// Class 按常量索引取类引用
func (m *Method) Class(index int) (ClassRef, error) {
	if index < 0 || index >= len(m.Classes) {
		return ClassRef{}, fmt.Errorf("%s: class index %d out of range", m.Name, index)
	}
	return m.Classes[index], nil
}

// Call 按常量索引取调用点
func (m *Method) Call(index int) (CallSite, error) {
	if index < 0 || index >= len(m.Calls) {
		return CallSite{}, fmt.Errorf("%s: call index %d out of range", m.Name, index)
	}
	return m.Calls[index], nil
}

// ExceptionTable 返回方法的异常表
func (m *Method) ExceptionTable() *ExceptionTable {
	return &ExceptionTable{Method: m.Name, Entries: m.Handlers}
}

// Validate 检查元数据的基本一致性
func (m *Method) Validate() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("method without name")
	case m.NumArgs < 0 || m.NumArgs > m.MaxLocals:
		return fmt.Errorf("%s: %d args do not fit in %d locals", m.Name, m.NumArgs, m.MaxLocals)
	case m.MaxStack < 0:
		return fmt.Errorf("%s: negative max stack", m.Name)
	case len(m.Code) == 0:
		return fmt.Errorf("%s: empty code", m.Name)
	}
	return nil
}
