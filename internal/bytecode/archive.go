package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// 方法归档格式：CBOR（canonical 编码，保证同一方法编码结果稳定）

// archiveMagic 归档魔数
const archiveMagic = "NJM1"

// archive 方法归档
type archive struct {
	Magic   string    `cbor:"1,keyasint"`
	Methods []*Method `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalMethods 将方法序列化为归档
func MarshalMethods(methods ...*Method) ([]byte, error) {
	return cborEncMode.Marshal(&archive{Magic: archiveMagic, Methods: methods})
}

// UnmarshalMethods 从归档中读取方法
func UnmarshalMethods(data []byte) ([]*Method, error) {
	var a archive
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal archive: %w", err)
	}
	if a.Magic != archiveMagic {
		return nil, fmt.Errorf("bytecode: bad archive magic %q", a.Magic)
	}
	for _, m := range a.Methods {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("bytecode: %w", err)
		}
	}
	return a.Methods, nil
}
