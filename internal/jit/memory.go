// memory.go - 可执行内存管理
//
// 机器码先以读写权限写入，再改为读与执行权限（W^X）。
// 映射失败时退回普通 Go 内存，代码仍可反汇编与检查，只是不能执行。

package jit

import (
	"sync"
	"unsafe"

	jerrors "github.com/tangzhangming/novajit/internal/errors"
)

// codeRegion 一段已安装的机器码
type codeRegion struct {
	mem    []byte // 映射得到的整页内存，未映射时为 nil
	code   []byte // 机器码（映射时指向 mem 的前缀）
	mapErr error  // 映射失败的原因
}

func (r *codeRegion) executable() bool { return r.mem != nil }

// entry 代码第一个字节的地址
func (r *codeRegion) entry() uintptr {
	if len(r.code) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.code[0]))
}

// CodeCache 代码缓存
// 按字节数限制容量；已安装的代码可能正在执行，满了只能拒绝而不能淘汰
type CodeCache struct {
	mu       sync.Mutex
	maxSize  int
	usedSize int
	regions  []*codeRegion
}

// NewCodeCache 创建代码缓存，maxSize <= 0 表示不限
func NewCodeCache(maxSize int) *CodeCache {
	return &CodeCache{maxSize: maxSize}
}

// install 把机器码复制到可执行内存
// 只有容量不足时返回错误；映射失败时代码留在普通内存中，原因记录在 mapErr
func (cc *CodeCache) install(code []byte) (*codeRegion, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if cc.maxSize > 0 && cc.usedSize+len(code) > cc.maxSize {
		return nil, jerrors.Resourcef(jerrors.J0204, "code cache full: %d + %d > %d bytes",
			cc.usedSize, len(code), cc.maxSize)
	}
	r := &codeRegion{}
	if mem, err := allocExecutable(code); err == nil {
		r.mem, r.code = mem, mem[:len(code)]
	} else {
		r.code, r.mapErr = append([]byte(nil), code...), err
	}
	cc.regions = append(cc.regions, r)
	cc.usedSize += len(code)
	return r, nil
}

// Used 已使用的字节数
func (cc *CodeCache) Used() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.usedSize
}

// Clear 释放所有代码
// 调用方保证没有线程仍在执行其中的代码
func (cc *CodeCache) Clear() error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	var firstErr error
	for _, r := range cc.regions {
		if r.mem == nil {
			continue
		}
		if err := freeExecutable(r.mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	cc.regions = nil
	cc.usedSize = 0
	return firstErr
}

// pageAlign 向上对齐到页大小
func pageAlign(size, pageSize int) int {
	if size <= 0 {
		size = 1
	}
	return (size + pageSize - 1) &^ (pageSize - 1)
}
